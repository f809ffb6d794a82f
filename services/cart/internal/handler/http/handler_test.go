package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httputil"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/event"
	"github.com/utafrali/storefront/services/cart/internal/notifier"
	redisrepo "github.com/utafrali/storefront/services/cart/internal/repository/redis"
	"github.com/utafrali/storefront/services/cart/internal/service"
)

// ============================================================================
// Mock repositories
// ============================================================================

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockProductRepository) Update(ctx context.Context, product *domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockTicketRepository struct {
	mock.Mock
}

func (m *mockTicketRepository) CreateWithStock(ctx context.Context, ticket *domain.Ticket, lines []domain.LineItem) error {
	return m.Called(ctx, ticket, lines).Error(0)
}

func (m *mockTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *mockTicketRepository) MarkReconciled(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, at)
	return args.Bool(0), args.Error(1)
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	handler  http.Handler
	carts    *redisrepo.CartRepository
	products *mockProductRepository
	tickets  *mockTicketRepository
}

func newTestServer(t *testing.T, tweaks ...func(*RouterOptions)) *testServer {
	t.Helper()
	logger := testLogger()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	carts := redisrepo.NewCartRepository(client, 0)
	products := new(mockProductRepository)
	tickets := new(mockTicketRepository)
	producer := event.NewProducer(discardPublisher{}, logger)
	notify := notifier.NewLogNotifier(logger)

	catalogSvc := service.NewCatalogService(products, notify, logger, 4)
	cartSvc := service.NewCartService(carts, catalogSvc, producer, logger)
	ticketSvc := service.NewTicketService(cartSvc, tickets, logger)
	checkoutSvc := service.NewCheckoutService(cartSvc, ticketSvc, notify, producer, logger,
		service.ReconcileConfig{Attempts: 2, Backoff: time.Millisecond})

	opts := RouterOptions{CORS: middleware.DefaultCORSConfig(), ProductCacheMaxAge: 60}
	for _, tweak := range tweaks {
		tweak(&opts)
	}

	router := NewRouter(Handlers{
		Cart:     NewCartHandler(cartSvc, catalogSvc, logger),
		Product:  NewProductHandler(catalogSvc, logger),
		Checkout: NewCheckoutHandler(checkoutSvc, ticketSvc, logger),
	}, health.NewHandler(), logger, opts)

	return &testServer{handler: router, carts: carts, products: products, tickets: tickets}
}

var (
	userHeaders    = map[string]string{middleware.HeaderUserID: "u-1", middleware.HeaderUserEmail: "shopper@example.com"}
	premiumHeaders = map[string]string{middleware.HeaderUserID: "u-2", middleware.HeaderUserEmail: "seller@example.com", middleware.HeaderUserRole: "premium"}
	adminHeaders   = map[string]string{middleware.HeaderUserID: "adm-1", middleware.HeaderUserEmail: "admin@example.com", middleware.HeaderUserRole: "admin"}
)

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedCart(t *testing.T, id string, items ...domain.LineItem) {
	t.Helper()
	cart, err := domain.NewCart(id, items, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.carts.Create(context.Background(), cart))
}

func (s *testServer) storedCart(t *testing.T, id string) *domain.Cart {
	t.Helper()
	cart, err := s.carts.Get(context.Background(), id)
	require.NoError(t, err)
	return cart
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Data
}

func product(id, owner string, stock int) *domain.Product {
	return &domain.Product{ID: id, Title: "Product " + id, Price: 1000, Stock: stock, Owner: owner, Status: domain.ProductStatusActive}
}

// ============================================================================
// Identity & infrastructure
// ============================================================================

func TestRouter_RequiresIdentity(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeResponse(t, rec).Error.Code)
}

func TestRouter_HealthLive(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RejectsNonJSONBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts", bytes.NewBufferString("products=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.HeaderUserID, "u-1")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouter_RateLimitsPerCaller(t *testing.T) {
	s := newTestServer(t, func(o *RouterOptions) {
		o.RateLimitRPS = 1
		o.RateLimitBurst = 2
	})
	s.seedCart(t, "c1")

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, userHeaders).Code)
	}
	rec := s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, userHeaders)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decodeResponse(t, rec).Error.Code)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, adminHeaders).Code)
}

func TestRouter_BearerTokenIdentity(t *testing.T) {
	s := newTestServer(t, func(o *RouterOptions) { o.JWTSecret = "router-secret" })
	s.seedCart(t, "c1")

	// Gateway headers alone are not trusted in token mode.
	rec := s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, userHeaders)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.TokenClaims{
		UserID: "adm-9",
		Role:   middleware.RoleAdmin,
	}).SignedString([]byte("router-secret"))
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/v1/carts", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ============================================================================
// Carts
// ============================================================================

func TestCreateCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/carts", map[string]any{
		"products": []map[string]any{{"product": "p1", "quantity": 1}, {"product": "p1", "quantity": 2}},
	}, userHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `"0"`, rec.Header().Get("ETag"))

	cart := decodeData[domain.Cart](t, rec)
	assert.NotEmpty(t, cart.ID)
	assert.Equal(t, []domain.LineItem{{ProductRef: "p1", Quantity: 3}}, cart.Products)
}

func TestCreateCart_WithoutBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/carts", nil, userHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `[]`, string(mustField(t, rec, "products")))
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, field string) json.RawMessage {
	t.Helper()
	var resp struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	raw, ok := resp.Data[field]
	require.True(t, ok, "missing field %s", field)
	return raw
}

func TestCreateCart_ValidationError(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/carts", map[string]any{
		"products": []map[string]any{{"quantity": 1}},
	}, userHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "products[0].product")
}

func TestNonPositiveQuantityIsInvalidQuantity(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create cart", http.MethodPost, "/api/v1/carts", map[string]any{
			"products": []map[string]any{{"product": "p1", "quantity": 0}},
		}},
		{"replace line items", http.MethodPut, "/api/v1/carts/c1", map[string]any{
			"products": []map[string]any{{"product": "p1", "quantity": -1}},
		}},
		{"add line item", http.MethodPost, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 0}},
		{"set quantity", http.MethodPut, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 0}},
		{"quantity omitted", http.MethodPut, "/api/v1/carts/c1/products/p1", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, userHeaders)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "INVALID_QUANTITY", resp.Error.Code)
		})
	}
	assert.Equal(t, []domain.LineItem{{ProductRef: "p1", Quantity: 2}}, s.storedCart(t, "c1").Products)
}

func TestGetCart_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/carts/missing", nil, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeResponse(t, rec).Error.Code)
}

func TestListCarts_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1")
	s.seedCart(t, "c2")

	rec := s.do(t, http.MethodGet, "/api/v1/carts", nil, userHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/carts?limit=10", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]domain.Cart](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/v1/carts?limit=abc", nil, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddLineItem_MergesAndBumpsVersion(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})
	s.products.On("GetByID", mock.Anything, "p1").Return(product("p1", domain.OwnerAdmin, 10), nil)

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 3}, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))

	cart := decodeData[domain.Cart](t, rec)
	assert.Equal(t, []domain.LineItem{{ProductRef: "p1", Quantity: 5}}, cart.Products)
}

func TestAddLineItem_IfMatch(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1")
	s.products.On("GetByID", mock.Anything, "p1").Return(product("p1", domain.OwnerAdmin, 10), nil)

	headers := map[string]string{middleware.HeaderUserID: "u-1", "If-Match": `"4"`}
	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 1}, headers)
	assert.Equal(t, http.StatusConflict, rec.Code)

	headers["If-Match"] = "banana"
	rec = s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 1}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	headers["If-Match"] = `W/"0"`
	rec = s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 1}, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddLineItem_OwnProductForbidden(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1")
	s.products.On("GetByID", mock.Anything, "p2").Return(product("p2", "seller@example.com", 10), nil)

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p2", map[string]int{"quantity": 1}, premiumHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, s.storedCart(t, "c1").Products)
}

func TestAddLineItem_UnknownProduct(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1")
	s.products.On("GetByID", mock.Anything, "p9").Return(nil, apperrors.NotFoundOf("product", "p9", domain.ErrProductNotFound))

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/products/p9", map[string]int{"quantity": 1}, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetLineItemQuantity(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})

	rec := s.do(t, http.MethodPut, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 0}, userHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_QUANTITY", decodeResponse(t, rec).Error.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/carts/c1/products/p2", map[string]int{"quantity": 1}, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/carts/c1/products/p1", map[string]int{"quantity": 7}, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.LineItem{{ProductRef: "p1", Quantity: 7}}, s.storedCart(t, "c1").Products)
}

func TestRemoveLineItem_Idempotent(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodDelete, "/api/v1/carts/c1/products/p1", nil, userHeaders)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeData[domain.Cart](t, rec).Products)
	}
	assert.Equal(t, int64(1), s.storedCart(t, "c1").Version)
}

func TestReplaceThenGet(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})

	body := map[string]any{"products": []map[string]any{{"product": "p2", "quantity": 1}, {"product": "p3", "quantity": 4}}}
	rec := s.do(t, http.MethodPut, "/api/v1/carts/c1", body, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"1"`, rec.Header().Get("ETag"))
	assert.Equal(t, []domain.LineItem{{ProductRef: "p2", Quantity: 1}, {ProductRef: "p3", Quantity: 4}},
		decodeData[domain.Cart](t, rec).Products)
}

func TestClearLineItems_KeepsCart(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})

	rec := s.do(t, http.MethodDelete, "/api/v1/carts/c1", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.storedCart(t, "c1").Products)
}

func TestDeleteCart_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1")

	rec := s.do(t, http.MethodDelete, "/api/v1/carts/c1/purge", nil, userHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/carts/c1/purge", nil, adminHeaders)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/carts/c1", nil, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAvailability(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2}, domain.LineItem{ProductRef: "p2", Quantity: 5})
	s.products.On("GetByID", mock.Anything, "p1").Return(product("p1", domain.OwnerAdmin, 10), nil)
	s.products.On("GetByID", mock.Anything, "p2").Return(product("p2", domain.OwnerAdmin, 1), nil)

	rec := s.do(t, http.MethodGet, "/api/v1/carts/c1/availability", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := decodeData[[]service.Availability](t, rec)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Available)
	assert.False(t, lines[1].Available)
	assert.Equal(t, 1, lines[1].Stock)
}

// ============================================================================
// Purchase & tickets
// ============================================================================

type statusEnvelope struct {
	Status  string                  `json:"status"`
	Payload *domain.PurchaseOutcome `json:"payload"`
	Error   *httputil.ErrorResponse `json:"error"`
}

func TestPurchase_PartialFulfilment(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2}, domain.LineItem{ProductRef: "p2", Quantity: 1})

	s.tickets.On("CreateWithStock", mock.Anything, mock.AnythingOfType("*domain.Ticket"), mock.Anything).
		Run(func(args mock.Arguments) {
			tk := args.Get(1).(*domain.Ticket)
			tk.Purchased = []domain.PurchasedItem{{ProductRef: "p1", Quantity: 2, Price: 1000}}
			tk.Unfulfilled = []domain.LineItem{{ProductRef: "p2", Quantity: 1}}
			tk.Amount = 2000
		}).
		Return(nil)
	s.tickets.On("MarkReconciled", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/purchase", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	var env statusEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, httputil.StatusSuccess, env.Status)
	require.NotNil(t, env.Payload)
	assert.NotEmpty(t, env.Payload.TicketID)
	assert.Equal(t, []domain.LineItem{{ProductRef: "p2", Quantity: 1}}, env.Payload.Unfulfilled)
	assert.True(t, env.Payload.NotificationOK)
	assert.True(t, env.Payload.Reconciled)

	assert.Equal(t, []domain.LineItem{{ProductRef: "p2", Quantity: 1}}, s.storedCart(t, "c1").Products)
}

func TestPurchase_TicketCreationFailed(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})
	s.tickets.On("CreateWithStock", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("tx aborted"))

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/purchase", nil, userHeaders)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env statusEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, httputil.StatusError, env.Status)
	assert.Nil(t, env.Payload)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TICKET_CREATION_FAILED", env.Error.Code)
	assert.Len(t, s.storedCart(t, "c1").Products, 1)
}

func TestPurchase_SameCartVersionConflict(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})
	s.tickets.On("CreateWithStock", mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.ConflictOf("cart c1 was already purchased at version 0", domain.ErrCartAlreadyPurchased))

	rec := s.do(t, http.MethodPost, "/api/v1/carts/c1/purchase", nil, userHeaders)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var env statusEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, httputil.StatusError, env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Len(t, s.storedCart(t, "c1").Products, 1)
}

func TestPurchase_CartNotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/carts/missing/purchase", nil, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var env statusEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, httputil.StatusError, env.Status)
}

func TestTickets(t *testing.T) {
	s := newTestServer(t)
	s.seedCart(t, "c1", domain.LineItem{ProductRef: "p1", Quantity: 2})
	ticket := &domain.Ticket{ID: "t1", Code: "TKT-00000001", CartID: "c1", PurchasedAt: time.Now().UTC()}
	s.tickets.On("GetByID", mock.Anything, "t1").Return(ticket, nil)
	s.tickets.On("GetByID", mock.Anything, "t9").Return(nil, apperrors.NotFoundOf("ticket", "t9", domain.ErrTicketNotFound))
	s.tickets.On("MarkReconciled", mock.Anything, "t1", mock.Anything).Return(true, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/tickets/t1", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TKT-00000001", decodeData[domain.Ticket](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/tickets/t9", nil, userHeaders)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/tickets/t1/reconcile", nil, userHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/tickets/t1/reconcile", nil, adminHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.storedCart(t, "c1").Products)
	s.tickets.AssertCalled(t, "MarkReconciled", mock.Anything, "t1", mock.Anything)
}

// ============================================================================
// Products
// ============================================================================

func TestListProducts(t *testing.T) {
	s := newTestServer(t)
	available := true
	filter := domain.ProductFilter{Category: "mates", Available: &available, Sort: "desc"}
	s.products.On("List", mock.Anything, filter, pagination.New(1, 5)).
		Return([]domain.Product{*product("p1", domain.OwnerAdmin, 3)}, 1, nil)

	rec := s.do(t, http.MethodGet, "/api/v1/products?category=mates&available=true&sort=desc&limit=5", nil, userHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))

	page := decodeData[pagination.Result[domain.Product]](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Len(t, page.Items, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/products?available=maybe", nil, userHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products?sort=sideways", nil, userHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProduct_Roles(t *testing.T) {
	s := newTestServer(t)
	s.products.On("Create", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(nil)
	body := map[string]any{"title": "Bombilla", "price": 900, "stock": 4, "category": "accessories"}

	rec := s.do(t, http.MethodPost, "/api/v1/products", body, userHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/products", body, premiumHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "seller@example.com", decodeData[domain.Product](t, rec).Owner)

	rec = s.do(t, http.MethodPost, "/api/v1/products", map[string]any{"price": 1}, adminHeaders)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	s := newTestServer(t)
	s.products.On("GetByID", mock.Anything, "p2").Return(product("p2", "seller@example.com", 3), nil)
	s.products.On("Update", mock.Anything, mock.Anything).Return(nil)
	s.products.On("Delete", mock.Anything, "p2").Return(nil)

	rec := s.do(t, http.MethodPut, "/api/v1/products/p2", map[string]any{"stock": 9}, userHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/products/p2", map[string]any{"stock": 9}, premiumHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 9, decodeData[domain.Product](t, rec).Stock)

	rec = s.do(t, http.MethodDelete, "/api/v1/products/p2", nil, adminHeaders)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
