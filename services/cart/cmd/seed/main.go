// Command seed populates the catalog with a deterministic set of demo
// products. Product IDs derive from a fixed namespace and index, so
// re-running the command updates the same rows instead of duplicating them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/pkg/slug"
	"github.com/utafrali/storefront/services/cart/internal/config"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository/postgres"
	"github.com/utafrali/storefront/services/cart/migrations"
)

var seedNamespace = uuid.MustParse("6f1c2b0e-7a43-4d5e-9b61-0c8f3a2d9e47")

// --------------------------------------------------------------------------
// Seed data definitions
// --------------------------------------------------------------------------

type categoryDef struct {
	name     string
	nouns    []string
	minPrice int64
	maxPrice int64
}

var categories = []categoryDef{
	{"apparel", []string{"T-Shirt", "Hoodie", "Jacket", "Jeans", "Sweater"}, 1500, 12000},
	{"footwear", []string{"Sneakers", "Boots", "Sandals", "Loafers"}, 3000, 18000},
	{"accessories", []string{"Backpack", "Wallet", "Belt", "Scarf", "Cap"}, 800, 9000},
	{"home", []string{"Mug", "Lamp", "Cushion", "Throw Blanket", "Vase"}, 900, 15000},
	{"electronics", []string{"Headphones", "Charger", "Speaker", "Keyboard"}, 2000, 25000},
}

var adjectives = []string{
	"Classic", "Everyday", "Urban", "Vintage", "Essential",
	"Lightweight", "Premium", "Organic", "Compact", "Heritage",
}

var sellers = []string{
	domain.OwnerAdmin,
	"north.goods@example.com",
	"harbor.supply@example.com",
	"atelier.nine@example.com",
}

// --------------------------------------------------------------------------
// Generation
// --------------------------------------------------------------------------

// generateProducts builds count products from a fixed random source so that
// every run produces the same catalog.
func generateProducts(count int, now time.Time) []domain.Product {
	rng := rand.New(rand.NewPCG(42, 7))
	products := make([]domain.Product, 0, count)

	for i := 0; i < count; i++ {
		cat := categories[i%len(categories)]
		noun := cat.nouns[rng.IntN(len(cat.nouns))]
		title := fmt.Sprintf("%s %s", adjectives[rng.IntN(len(adjectives))], noun)
		id := uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "product:%d", i)).String()

		// Round prices to whole units minus one cent, e.g. 4999.
		price := cat.minPrice + rng.Int64N(cat.maxPrice-cat.minPrice)
		price = price - price%100 + 99

		status := domain.ProductStatusActive
		if rng.IntN(20) == 0 {
			status = domain.ProductStatusInactive
		}

		products = append(products, domain.Product{
			ID:          id,
			Title:       title,
			Description: fmt.Sprintf("%s from our %s collection.", title, cat.name),
			Code:        slug.WithSuffix(title, id[:8], 64),
			Price:       price,
			Stock:       rng.IntN(50),
			Category:    cat.name,
			Owner:       sellers[rng.IntN(len(sellers))],
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return products
}

func main() {
	count := flag.Int("count", 200, "number of products to seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("cart-seed", cfg.LogLevel)

	if err := run(cfg, *count, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, count int, log *slog.Logger) error {
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	repo := postgres.NewProductRepository(pool)
	products := generateProducts(count, time.Now().UTC())

	var created, updated int
	for i := range products {
		p := &products[i]
		err := repo.Create(ctx, p)
		switch {
		case err == nil:
			created++
		case errors.Is(err, apperrors.ErrAlreadyExists):
			if err := repo.Update(ctx, p); err != nil {
				return fmt.Errorf("update product %s: %w", p.ID, err)
			}
			updated++
		default:
			return fmt.Errorf("create product %s: %w", p.ID, err)
		}

		if (i+1)%100 == 0 {
			log.Info("seed progress", slog.Int("done", i+1), slog.Int("total", len(products)))
		}
	}

	log.Info("seed complete",
		slog.Int("created", created),
		slog.Int("updated", updated),
	)
	return nil
}
