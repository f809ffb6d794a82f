package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

const serviceName = "cart"

// Handlers groups the route handlers mounted by NewRouter.
type Handlers struct {
	Cart     *CartHandler
	Product  *ProductHandler
	Checkout *CheckoutHandler
}

// RouterOptions holds the tunable parts of the router.
type RouterOptions struct {
	PprofCIDRs []string
	CORS       middleware.CORSConfig
	// ProductCacheMaxAge is the Cache-Control max-age for catalog reads, in
	// seconds. Zero disables the header.
	ProductCacheMaxAge int
	// RateLimitRPS and RateLimitBurst size the per-caller token bucket on
	// /api/v1. A zero rate disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// JWTSecret switches caller identification from gateway headers to
	// verified bearer tokens when set.
	JWTSecret string
}

// NewRouter creates a chi router with all cart service routes registered.
func NewRouter(h Handlers, healthHandler *health.Handler, logger *slog.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(opts.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, opts.PprofCIDRs, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		if opts.JWTSecret != "" {
			r.Use(middleware.BearerIdentity(opts.JWTSecret, logger))
		} else {
			r.Use(middleware.Identity)
		}
		r.Use(middleware.RateLimit(opts.RateLimitRPS, opts.RateLimitBurst, logger))

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", h.Cart.CreateCart)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Get("/", h.Cart.ListCarts)

			r.Route("/{cartId}", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Put("/", h.Cart.ReplaceLineItems)
				r.Delete("/", h.Cart.ClearLineItems)
				r.With(middleware.RequireRole(middleware.RoleAdmin)).Delete("/purge", h.Cart.DeleteCart)

				r.Get("/availability", h.Cart.CheckAvailability)
				r.Post("/purchase", h.Checkout.Purchase)

				r.Post("/products/{productId}", h.Cart.AddLineItem)
				r.Put("/products/{productId}", h.Cart.SetLineItemQuantity)
				r.Delete("/products/{productId}", h.Cart.RemoveLineItem)
			})
		})

		r.Route("/tickets/{ticketId}", func(r chi.Router) {
			r.Get("/", h.Checkout.GetTicket)
			r.With(middleware.RequireRole(middleware.RoleAdmin)).Post("/reconcile", h.Checkout.ReconcileTicket)
		})

		r.Route("/products", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.ProductCacheMaxAge > 0 {
					r.Use(middleware.CacheControl(opts.ProductCacheMaxAge))
				}
				r.Get("/", h.Product.ListProducts)
				r.Get("/{productId}", h.Product.GetProduct)
			})

			r.With(middleware.RequireRole(middleware.RoleAdmin, middleware.RolePremium)).Post("/", h.Product.CreateProduct)
			r.Put("/{productId}", h.Product.UpdateProduct)
			r.Delete("/{productId}", h.Product.DeleteProduct)
		})
	})

	return r
}
