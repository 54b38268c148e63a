package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seastock/seastock/internal/platform/db"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, code, name, quantity_box, quantity_kg, box_to_kg_ratio,
cost_per_box, cost_per_kg, price_per_box, price_per_kg, boxed_low_stock_threshold,
created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.QuantityBox, &p.QuantityKg, &p.BoxToKgRatio,
		&p.CostPerBox, &p.CostPerKg, &p.PricePerBox, &p.PricePerKg, &p.BoxedLowStockThreshold,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// Insert creates a product row and returns its id.
func (r *Repository) Insert(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO products
(code, name, quantity_box, quantity_kg, box_to_kg_ratio, cost_per_box, cost_per_kg,
 price_per_box, price_per_kg, boxed_low_stock_threshold, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		p.Code, p.Name, p.QuantityBox, p.QuantityKg, p.BoxToKgRatio,
		p.CostPerBox, p.CostPerKg, p.PricePerBox, p.PricePerKg, p.BoxedLowStockThreshold).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateCode
		}
		return 0, fmt.Errorf("catalog: insert product: %w", err)
	}
	return id, nil
}

// Update rewrites a product's descriptive columns. quantity_box and
// quantity_kg are deliberately absent: only movement approvals and sale
// execution write them.
func (r *Repository) Update(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET
code=$2, name=$3, box_to_kg_ratio=$4,
cost_per_box=$5, cost_per_kg=$6, price_per_box=$7, price_per_kg=$8,
boxed_low_stock_threshold=$9, updated_at=NOW()
WHERE id=$1`,
		p.ID, p.Code, p.Name, p.BoxToKgRatio,
		p.CostPerBox, p.CostPerKg, p.PricePerBox, p.PricePerKg, p.BoxedLowStockThreshold)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("catalog: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// productHistoryTables lists the tables holding a product's history, in
// deletion order. movements must go first: its rows reference the addition,
// correction, and damage rows deleted after it.
var productHistoryTables = []string{
	"movements",
	"sales",
	"stock_additions",
	"stock_corrections",
	"damage_reports",
}

// Delete removes a product row together with its history. The direct delete
// keeps no tombstone; only the movement approval path preserves its deciding
// movement.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, table := range productHistoryTables {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE product_id=$1`, id); err != nil {
				return fmt.Errorf("catalog: delete %s for product: %w", table, err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
		if err != nil {
			return fmt.Errorf("catalog: delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrProductNotFound
		}
		return nil
	})
}

// Get fetches a product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row)
}

// List returns products matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	search := "%" + strings.TrimSpace(filter.Search) + "%"

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE ($1 = '%%' OR code ILIKE $1 OR name ILIKE $1)`,
		search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE ($1 = '%%' OR code ILIKE $1 OR name ILIKE $1)
ORDER BY name ASC, id ASC
LIMIT $2 OFFSET $3`, search, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// ListLowStock returns products whose equivalent-box total is at or below
// their threshold.
func (r *Repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products
WHERE box_to_kg_ratio > 0
  AND quantity_box + FLOOR(quantity_kg / box_to_kg_ratio) <= boxed_low_stock_threshold
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list low stock: %w", err)
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}
