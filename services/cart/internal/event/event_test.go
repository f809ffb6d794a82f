package event

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// --- Test helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type published struct {
	topic string
	event *pkgkafka.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, event: event})
	return nil
}

func newTestEvent(eventType string, data any) *pkgkafka.Event {
	dataBytes, _ := json.Marshal(data)
	return &pkgkafka.Event{
		EventID:       "evt-test-123",
		EventType:     eventType,
		AggregateID:   "tkt-1",
		AggregateType: AggregateTypeTicket,
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        "test-service",
		Data:          dataBytes,
	}
}

// --- Producer ---

func TestProducer_PublishCartUpdated(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())
	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	ctx = logger.WithUserID(ctx, "user-7")

	cart := &domain.Cart{ID: "c1", Version: 3, Products: []domain.LineItem{{ProductRef: "p1", Quantity: 2}}}
	require.NoError(t, p.PublishCartUpdated(ctx, cart))

	require.Len(t, pub.events, 1)
	got := pub.events[0]
	assert.Equal(t, TopicCartUpdated, got.topic)
	assert.Equal(t, "c1", got.event.AggregateID)
	assert.Equal(t, AggregateTypeCart, got.event.AggregateType)
	assert.Equal(t, SourceCartService, got.event.Source)
	assert.Equal(t, "corr-1", got.event.CorrelationID)
	assert.Equal(t, "user-7", got.event.Metadata["user_id"])

	var data CartUpdatedData
	require.NoError(t, got.event.UnmarshalData(&data))
	assert.Equal(t, 2, data.ItemCount)
	assert.Equal(t, int64(3), data.Version)
}

func TestProducer_PublishCartCleared(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())

	require.NoError(t, p.PublishCartCleared(context.Background(), "c1"))
	require.Len(t, pub.events, 1)
	assert.Equal(t, TopicCartCleared, pub.events[0].topic)
	assert.Empty(t, pub.events[0].event.CorrelationID)
	assert.Nil(t, pub.events[0].event.Metadata)
}

func TestProducer_PublishCartPurchased(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())

	ticket := &domain.Ticket{ID: "tkt-1", Code: "TKT-1", CartID: "c1", Amount: 2000}
	outcome := domain.NewPurchaseOutcome(ticket, false, true)
	require.NoError(t, p.PublishCartPurchased(context.Background(), ticket, outcome))

	require.Len(t, pub.events, 1)
	var data CartPurchasedData
	require.NoError(t, pub.events[0].event.UnmarshalData(&data))
	assert.Equal(t, "tkt-1", data.TicketID)
	assert.False(t, data.NotificationOK)
	assert.True(t, data.Reconciled)
}

func TestProducer_PublishReconciliationRequired(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewProducer(pub, newTestLogger())

	ticket := &domain.Ticket{ID: "tkt-1", CartID: "c1"}
	require.NoError(t, p.PublishReconciliationRequired(context.Background(), ticket, errors.New("redis down")))

	require.Len(t, pub.events, 1)
	got := pub.events[0]
	assert.Equal(t, TopicCartReconciliationRequired, got.topic)
	assert.Equal(t, "tkt-1", got.event.AggregateID)

	var data ReconciliationRequiredData
	require.NoError(t, got.event.UnmarshalData(&data))
	assert.Equal(t, "redis down", data.Reason)
}

func TestProducer_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	p := NewProducer(pub, newTestLogger())

	err := p.PublishCartCleared(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish ecommerce.cart.cleared event")
}

// --- Consumer ---

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) ReconcileTicket(ctx context.Context, ticketID string) error {
	return m.Called(ctx, ticketID).Error(0)
}

func TestConsumer_HandleReconciliationRequired(t *testing.T) {
	svc := new(mockReconciler)
	c := NewConsumer(svc, newTestLogger())
	ctx := context.Background()

	svc.On("ReconcileTicket", ctx, "tkt-1").Return(nil)

	err := c.HandleReconciliationRequired(ctx, newTestEvent(TopicCartReconciliationRequired,
		ReconciliationRequiredData{TicketID: "tkt-1", CartID: "c1"}))
	require.NoError(t, err)
	svc.AssertExpectations(t)
}

func TestConsumer_HandleReconciliationRequired_RetryableError(t *testing.T) {
	svc := new(mockReconciler)
	c := NewConsumer(svc, newTestLogger())
	ctx := context.Background()

	svc.On("ReconcileTicket", ctx, "tkt-1").Return(apperrors.Conflict("cart was modified concurrently"))

	err := c.HandleReconciliationRequired(ctx, newTestEvent(TopicCartReconciliationRequired,
		ReconciliationRequiredData{TicketID: "tkt-1"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestConsumer_HandleReconciliationRequired_TicketGone(t *testing.T) {
	svc := new(mockReconciler)
	c := NewConsumer(svc, newTestLogger())
	ctx := context.Background()

	svc.On("ReconcileTicket", ctx, "tkt-1").
		Return(apperrors.NotFoundOf("ticket", "tkt-1", domain.ErrTicketNotFound))

	err := c.HandleReconciliationRequired(ctx, newTestEvent(TopicCartReconciliationRequired,
		ReconciliationRequiredData{TicketID: "tkt-1"}))
	assert.NoError(t, err)
}

func TestConsumer_HandleReconciliationRequired_BadPayload(t *testing.T) {
	svc := new(mockReconciler)
	c := NewConsumer(svc, newTestLogger())

	evt := newTestEvent(TopicCartReconciliationRequired, nil)
	evt.Data = json.RawMessage(`{"ticket_id": 42}`)
	assert.Error(t, c.HandleReconciliationRequired(context.Background(), evt))

	empty := newTestEvent(TopicCartReconciliationRequired, ReconciliationRequiredData{})
	assert.Error(t, c.HandleReconciliationRequired(context.Background(), empty))

	svc.AssertNotCalled(t, "ReconcileTicket", mock.Anything, mock.Anything)
}
