package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

const (
	lockProductQuery = `SELECT price, stock, status FROM products WHERE id = $1 FOR UPDATE`

	decrementStockQuery = `UPDATE products SET stock = stock - $1, updated_at = $2 WHERE id = $3`

	insertTicketQuery = `
		INSERT INTO tickets (id, code, cart_id, cart_version, purchaser, amount, purchased, unfulfilled, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	cartVersionConstraint = "uq_tickets_cart_version"
	ticketCodeConstraint  = "tickets_code_key"
)

// TicketRepository implements repository.TicketRepository using PostgreSQL.
type TicketRepository struct {
	pool database.DBTX
}

// NewTicketRepository creates a new PostgreSQL-backed ticket repository.
func NewTicketRepository(pool database.DBTX) *TicketRepository {
	return &TicketRepository{pool: pool}
}

type lockedProduct struct {
	price  int64
	stock  int
	active bool
}

// CreateWithStock fills ticket.Purchased, ticket.Unfulfilled and
// ticket.Amount from lines and persists it. Product rows are locked in ID
// order so concurrent purchases cannot deadlock. Lines whose product is
// missing, inactive or short of stock are unfulfilled and leave stock as is.
// A second ticket for the same cart version is refused with a conflict
// matching domain.ErrCartAlreadyPurchased, and nothing is written.
func (r *TicketRepository) CreateWithStock(ctx context.Context, t *domain.Ticket, lines []domain.LineItem) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateTicket", insertTicketQuery)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apperrors.Persistence("begin ticket tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	refs := make([]string, 0, len(lines))
	for _, line := range lines {
		refs = append(refs, line.ProductRef)
	}
	sort.Strings(refs)

	locked := make(map[string]lockedProduct, len(refs))
	for _, ref := range refs {
		if _, seen := locked[ref]; seen {
			continue
		}
		var (
			lp     lockedProduct
			status string
		)
		err := tx.QueryRow(ctx, lockProductQuery, ref).Scan(&lp.price, &lp.stock, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return apperrors.Persistence("lock product "+ref, err)
		}
		lp.active = status == domain.ProductStatusActive
		locked[ref] = lp
	}

	t.Purchased = []domain.PurchasedItem{}
	t.Unfulfilled = []domain.LineItem{}
	t.Amount = 0

	for _, line := range lines {
		lp, ok := locked[line.ProductRef]
		if !ok || !lp.active || line.Quantity > lp.stock {
			t.Unfulfilled = append(t.Unfulfilled, line)
			continue
		}
		if _, err := tx.Exec(ctx, decrementStockQuery, line.Quantity, t.PurchasedAt, line.ProductRef); err != nil {
			return apperrors.Persistence("decrement stock "+line.ProductRef, err)
		}
		lp.stock -= line.Quantity
		locked[line.ProductRef] = lp

		t.Purchased = append(t.Purchased, domain.PurchasedItem{
			ProductRef: line.ProductRef,
			Quantity:   line.Quantity,
			Price:      lp.price,
		})
		t.Amount += lp.price * int64(line.Quantity)
	}

	purchasedJSON, err := json.Marshal(t.Purchased)
	if err != nil {
		return fmt.Errorf("marshal purchased: %w", err)
	}
	unfulfilledJSON, err := json.Marshal(t.Unfulfilled)
	if err != nil {
		return fmt.Errorf("marshal unfulfilled: %w", err)
	}

	_, err = tx.Exec(ctx, insertTicketQuery,
		t.ID, t.Code, t.CartID, t.CartVersion, t.Purchaser, t.Amount,
		purchasedJSON, unfulfilledJSON, t.PurchasedAt,
	)
	if err != nil {
		return ticketInsertError(t, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Persistence("commit ticket tx", err)
	}
	return nil
}

func ticketInsertError(t *domain.Ticket, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return apperrors.Persistence("insert ticket", err)
	}
	switch pgErr.ConstraintName {
	case cartVersionConstraint:
		return apperrors.ConflictOf(
			fmt.Sprintf("cart %s was already purchased at version %d", t.CartID, t.CartVersion),
			domain.ErrCartAlreadyPurchased,
		)
	case ticketCodeConstraint:
		return fmt.Errorf("insert ticket %s: %w", t.Code, domain.ErrTicketCodeTaken)
	default:
		return apperrors.Persistence("insert ticket", err)
	}
}

// GetByID retrieves a ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (_ *domain.Ticket, err error) {
	query := `
		SELECT id, code, cart_id, COALESCE(cart_version, 0), purchaser, amount,
			purchased, unfulfilled, purchased_at, reconciled_at
		FROM tickets
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetTicket", query)
	defer func() { end(err) }()

	var (
		t               domain.Ticket
		purchasedJSON   []byte
		unfulfilledJSON []byte
	)
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Code, &t.CartID, &t.CartVersion, &t.Purchaser, &t.Amount,
		&purchasedJSON, &unfulfilledJSON, &t.PurchasedAt, &t.ReconciledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundOf("ticket", id, domain.ErrTicketNotFound)
		}
		return nil, apperrors.Persistence("get ticket", err)
	}

	if err := json.Unmarshal(purchasedJSON, &t.Purchased); err != nil {
		return nil, fmt.Errorf("unmarshal purchased: %w", err)
	}
	if err := json.Unmarshal(unfulfilledJSON, &t.Unfulfilled); err != nil {
		return nil, fmt.Errorf("unmarshal unfulfilled: %w", err)
	}
	if t.Purchased == nil {
		t.Purchased = []domain.PurchasedItem{}
	}
	if t.Unfulfilled == nil {
		t.Unfulfilled = []domain.LineItem{}
	}

	return &t, nil
}

// MarkReconciled sets reconciled_at once.
func (r *TicketRepository) MarkReconciled(ctx context.Context, id string, at time.Time) (_ bool, err error) {
	query := `UPDATE tickets SET reconciled_at = $1 WHERE id = $2 AND reconciled_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "MarkTicketReconciled", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return false, apperrors.Persistence("mark ticket reconciled", err)
	}
	return ct.RowsAffected() > 0, nil
}
