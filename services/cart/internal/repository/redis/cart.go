package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

const (
	keyPrefix = "cart:"
	scanBatch = 100
)

// CartRepository implements repository.CartRepository using Redis. Each cart
// is a JSON document under cart:<id>.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository. A zero ttl
// keeps carts until they are deleted.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Create stores a new cart, failing if the ID is already taken.
func (r *CartRepository) Create(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	ok, err := r.client.SetNX(ctx, keyPrefix+cart.ID, data, r.ttl).Result()
	if err != nil {
		return apperrors.Persistence("redis create cart", err)
	}
	if !ok {
		return apperrors.AlreadyExists("cart", "id", cart.ID)
	}
	return nil
}

// Get retrieves a cart by ID from Redis.
func (r *CartRepository) Get(ctx context.Context, id string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundOf("cart", id, domain.ErrCartNotFound)
		}
		return nil, apperrors.Persistence("redis get cart", err)
	}
	return decodeCart(data)
}

// SaveIfVersion writes cart under WATCH so the version comparison and the
// write are atomic with respect to other writers.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int64) (bool, error) {
	key := keyPrefix + cart.ID
	saved := false

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return apperrors.NotFoundOf("cart", cart.ID, domain.ErrCartNotFound)
			}
			return err
		}
		current, err := decodeCart(data)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return nil
		}

		next := *cart
		next.Version = expectedVersion + 1
		payload, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		cart.Version = next.Version
		saved = true
		return nil
	}

	err := r.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, domain.ErrCartNotFound):
		return false, err
	default:
		return false, apperrors.Persistence("redis save cart", err)
	}
}

// Delete removes a cart from Redis by ID.
func (r *CartRepository) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, keyPrefix+id).Result()
	if err != nil {
		return apperrors.Persistence("redis delete cart", err)
	}
	if n == 0 {
		return apperrors.NotFoundOf("cart", id, domain.ErrCartNotFound)
	}
	return nil
}

// List returns the limit newest carts by creation time; a non-positive
// limit returns all of them. Every cart key is scanned and loaded before
// sorting, so the cost grows with the number of stored carts.
func (r *CartRepository) List(ctx context.Context, limit int) ([]*domain.Cart, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, apperrors.Persistence("redis scan carts", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	carts := make([]*domain.Cart, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		values, err := r.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, apperrors.Persistence("redis mget carts", err)
		}
		for _, v := range values {
			s, ok := v.(string)
			if !ok {
				// expired between SCAN and MGET
				continue
			}
			cart, err := decodeCart([]byte(s))
			if err != nil {
				return nil, err
			}
			carts = append(carts, cart)
		}
	}

	sort.Slice(carts, func(i, j int) bool {
		return carts[i].CreatedAt.After(carts[j].CreatedAt)
	})
	if limit > 0 && len(carts) > limit {
		carts = carts[:limit]
	}
	return carts, nil
}

// Ping checks the Redis connection.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func decodeCart(data []byte) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Products == nil {
		cart.Products = []domain.LineItem{}
	}
	return &cart, nil
}
