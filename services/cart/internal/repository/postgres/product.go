package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

const productColumns = `id, title, description, code, price, stock, category, owner, status, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (p *domain.Product, err error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetProduct", query)
	defer func() { end(err) }()

	p, err = scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFoundOf("product", id, domain.ErrProductNotFound)
		}
		return nil, apperrors.Persistence("get product", err)
	}
	return p, nil
}

// List returns products matching filter, newest first unless a price sort
// is requested, with the total count of matches.
func (r *ProductRepository) List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) (_ []domain.Product, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argIndex))
		args = append(args, filter.Category)
		argIndex++
	}

	if filter.Available != nil {
		if *filter.Available {
			conditions = append(conditions, "stock > 0")
		} else {
			conditions = append(conditions, "stock = 0")
		}
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLike(q)+"%")
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "created_at DESC"
	switch filter.Sort {
	case domain.SortPriceAsc:
		orderBy = "price ASC, created_at DESC"
	case domain.SortPriceDesc:
		orderBy = "price DESC, created_at DESC"
	}

	query := fmt.Sprintf(`
		SELECT `+productColumns+`,
			   count(*) OVER() AS total_count
		FROM products
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d`,
		whereClause, orderBy, argIndex, argIndex+1,
	)
	args = append(args, page.Limit, page.Offset)

	ctx, end := database.TraceQuery(ctx, "ListProducts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperrors.Persistence("list products", err)
	}
	defer rows.Close()

	var (
		products   = []domain.Product{}
		totalCount int
	)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.Code, &p.Price, &p.Stock,
			&p.Category, &p.Owner, &p.Status, &p.CreatedAt, &p.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, totalCount, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateProduct", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.Title, p.Description, p.Code, p.Price, p.Stock,
		p.Category, p.Owner, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "code", p.Code)
		}
		return apperrors.Persistence("insert product", err)
	}
	return nil
}

// Update modifies an existing product. Owner and creation time are fixed.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) (err error) {
	query := `
		UPDATE products
		SET title = $1, description = $2, code = $3, price = $4, stock = $5,
		    category = $6, status = $7, updated_at = $8
		WHERE id = $9`

	ctx, end := database.TraceQuery(ctx, "UpdateProduct", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		p.Title, p.Description, p.Code, p.Price, p.Stock,
		p.Category, p.Status, p.UpdatedAt, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("product", "code", p.Code)
		}
		return apperrors.Persistence("update product", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFoundOf("product", p.ID, domain.ErrProductNotFound)
	}
	return nil
}

// Delete removes a product by its ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM products WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteProduct", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return apperrors.Persistence("delete product", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFoundOf("product", id, domain.ErrProductNotFound)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Code, &p.Price, &p.Stock,
		&p.Category, &p.Owner, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
