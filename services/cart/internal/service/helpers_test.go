package service

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/event"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, evt *pkgkafka.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func newTestProducer() (*event.Producer, *recordingPublisher) {
	pub := &recordingPublisher{}
	return event.NewProducer(pub, newTestLogger()), pub
}

// --- In-memory cart repository ---

type memoryCartRepo struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	saves int

	// saveErrs are returned by successive SaveIfVersion calls.
	saveErrs []error
	// beforeSave runs inside SaveIfVersion before the version comparison.
	beforeSave func(r *memoryCartRepo, id string)
}

func newMemoryCartRepo(carts ...*domain.Cart) *memoryCartRepo {
	r := &memoryCartRepo{carts: map[string]*domain.Cart{}}
	for _, c := range carts {
		r.carts[c.ID] = c.Clone()
	}
	return r
}

func (r *memoryCartRepo) Create(_ context.Context, cart *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[cart.ID]; ok {
		return apperrors.AlreadyExists("cart", "id", cart.ID)
	}
	r.carts[cart.ID] = cart.Clone()
	return nil
}

func (r *memoryCartRepo) Get(ctx context.Context, id string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Persistence("get cart", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[id]
	if !ok {
		return nil, apperrors.NotFoundOf("cart", id, domain.ErrCartNotFound)
	}
	return c.Clone(), nil
}

func (r *memoryCartRepo) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Persistence("save cart", err)
	}
	if r.beforeSave != nil {
		r.beforeSave(r, cart.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saveErrs) > 0 {
		err := r.saveErrs[0]
		r.saveErrs = r.saveErrs[1:]
		if err != nil {
			return false, err
		}
	}
	stored, ok := r.carts[cart.ID]
	if !ok {
		return false, apperrors.NotFoundOf("cart", cart.ID, domain.ErrCartNotFound)
	}
	if stored.Version != expectedVersion {
		return false, nil
	}
	next := cart.Clone()
	next.Version = expectedVersion + 1
	r.carts[cart.ID] = next
	cart.Version = next.Version
	r.saves++
	return true, nil
}

func (r *memoryCartRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[id]; !ok {
		return apperrors.NotFoundOf("cart", id, domain.ErrCartNotFound)
	}
	delete(r.carts, id)
	return nil
}

func (r *memoryCartRepo) List(_ context.Context, limit int) ([]*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Cart, 0, len(r.carts))
	for _, c := range r.carts {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// bump simulates another writer updating the stored cart.
func (r *memoryCartRepo) bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[id]; ok {
		c.Version++
	}
}

func (r *memoryCartRepo) stored(id string) *domain.Cart {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[id]; ok {
		return c.Clone()
	}
	return nil
}

func (r *memoryCartRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func newCart(id string, items ...domain.LineItem) *domain.Cart {
	now := time.Now().UTC()
	if items == nil {
		items = []domain.LineItem{}
	}
	return &domain.Cart{ID: id, Products: items, CreatedAt: now, UpdatedAt: now}
}

// --- Product lookup ---

type stubCatalog map[string]*domain.Product

func (c stubCatalog) GetByID(_ context.Context, ref string) (*domain.Product, error) {
	if p, ok := c[ref]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, apperrors.NotFoundOf("product", ref, domain.ErrProductNotFound)
}

func activeProduct(id, owner string, stock int) *domain.Product {
	return &domain.Product{
		ID:     id,
		Title:  "Product " + id,
		Price:  1000,
		Stock:  stock,
		Owner:  owner,
		Status: domain.ProductStatusActive,
	}
}

// --- Mock product repository ---

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

// --- Mock ticket repository ---

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

// --- Notifier ---

type stubNotifier struct {
	mu       sync.Mutex
	ok       bool
	confirms []string
	removals []string
}

func (n *stubNotifier) SendPurchaseConfirmation(_ context.Context, contact string, _ *domain.Ticket) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirms = append(n.confirms, contact)
	return n.ok
}

func (n *stubNotifier) SendProductRemoved(_ context.Context, owner string, _ *domain.Product) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removals = append(n.removals, owner)
	return n.ok
}

// blockingNotifier never delivers; it holds each call until the context ends.
type blockingNotifier struct {
	mu     sync.Mutex
	ended  []error
	onSend func()
}

func (n *blockingNotifier) SendPurchaseConfirmation(ctx context.Context, _ string, _ *domain.Ticket) bool {
	if n.onSend != nil {
		n.onSend()
	}
	<-ctx.Done()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, ctx.Err())
	return false
}

func (n *blockingNotifier) SendProductRemoved(ctx context.Context, _ string, _ *domain.Product) bool {
	<-ctx.Done()
	return false
}

func (n *blockingNotifier) endings() []error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]error(nil), n.ended...)
}
