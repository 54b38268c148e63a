package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/platform/db"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const saleColumns = `id, code, product_id, boxes, kg, price_per_box, price_per_kg,
total, cost, profit, payment_method, payment_status, amount_paid, boxes_unboxed,
performed_by, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var method, status string
	err := row.Scan(&s.ID, &s.Code, &s.ProductID, &s.Boxes, &s.Kg, &s.PricePerBox, &s.PricePerKg,
		&s.Total, &s.Cost, &s.Profit, &method, &status, &s.AmountPaid, &s.BoxesUnboxed,
		&s.PerformedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	s.PaymentMethod = PaymentMethod(method)
	s.PaymentStatus = PaymentStatus(status)
	return s, nil
}

// GetSale fetches a sale by id.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id)
	return scanSale(row)
}

// ListSales returns sales matching the filter plus the unpaged total.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	where := `($1 = 0 OR product_id = $1)
AND created_at >= COALESCE($2, '-infinity'::timestamptz)
AND created_at <= COALESCE($3, 'infinity'::timestamptz)`
	args := []any{filter.ProductID, nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sales: count sales: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE `+where+`
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sales: list sales: %w", err)
	}
	defer rows.Close()

	sales := []Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, quantity_box, quantity_kg, box_to_kg_ratio,
cost_per_box, cost_per_kg, price_per_box, price_per_kg, boxed_low_stock_threshold, created_at, updated_at
FROM products WHERE id=$1 FOR UPDATE`, id).Scan(
		&p.ID, &p.Code, &p.Name, &p.QuantityBox, &p.QuantityKg, &p.BoxToKgRatio,
		&p.CostPerBox, &p.CostPerKg, &p.PricePerBox, &p.PricePerKg, &p.BoxedLowStockThreshold,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, catalog.ErrProductNotFound
		}
		return catalog.Product{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateProductQuantities(ctx context.Context, id int64, boxes int64, kg decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET quantity_box=$2, quantity_kg=$3, updated_at=NOW() WHERE id=$1`,
		id, boxes, kg)
	if err != nil {
		return fmt.Errorf("sales: update product quantities: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales
(code, product_id, boxes, kg, price_per_box, price_per_kg, total, cost, profit,
 payment_method, payment_status, amount_paid, boxes_unboxed, performed_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
RETURNING id`,
		s.Code, s.ProductID, s.Boxes, s.Kg, s.PricePerBox, s.PricePerKg, s.Total, s.Cost, s.Profit,
		string(s.PaymentMethod), string(s.PaymentStatus), s.AmountPaid, s.BoxesUnboxed, s.PerformedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("sales: insert sale: %w", err)
	}
	return id, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
