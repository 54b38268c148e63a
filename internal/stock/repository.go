package stock

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
	"github.com/seastock/seastock/internal/shared"
)

// Repository persists the movement ledger in PostgreSQL.
type Repository struct {
	pool      *pgxpool.Pool
	approvals *shared.ApprovalRecorder
}

// NewRepository constructs Repository. approvals may be nil.
func NewRepository(pool *pgxpool.Pool, approvals *shared.ApprovalRecorder) *Repository {
	return &Repository{pool: pool, approvals: approvals}
}

type txRepository struct {
	tx        pgx.Tx
	approvals *shared.ApprovalRecorder
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, approvals: r.approvals})
	})
}

const movementColumns = `id, movement_type, status, product_id, box_change, kg_change,
stock_addition_id, damage_report_id, correction_id, field_changed, old_value, new_value,
performed_by, decided_by, decided_at, reject_reason, created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var mtype, status string
	err := row.Scan(&m.ID, &mtype, &status, &m.ProductID, &m.BoxChange, &m.KgChange,
		&m.StockAdditionID, &m.DamageReportID, &m.CorrectionID, &m.FieldChanged, &m.OldValue, &m.NewValue,
		&m.PerformedBy, &m.DecidedBy, &m.DecidedAt, &m.RejectReason, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	m.Type = MovementType(mtype)
	m.Status = MovementStatus(status)
	return m, nil
}

// GetMovement fetches a movement without locking.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=$1`, id)
	return scanMovement(row)
}

// ListMovements returns movements matching the filter plus the unpaged total.
func (r *Repository) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	where := `($1 = '' OR status = $1) AND ($2 = '' OR movement_type = $2) AND ($3 = 0 OR product_id = $3)`
	args := []any{string(filter.Status), string(filter.Type), filter.ProductID}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM movements WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("stock: count movements: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM movements WHERE `+where+`
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, append(args, perPage, (page-1)*perPage)...)
	if err != nil {
		return nil, 0, fmt.Errorf("stock: list movements: %w", err)
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// CountStalePending counts pending movements created before the cutoff.
func (r *Repository) CountStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM movements WHERE status=$1 AND created_at < $2`,
		string(StatusPending), cutoff).Scan(&count)
	return count, err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO movements
(movement_type, status, product_id, box_change, kg_change, stock_addition_id,
 damage_report_id, correction_id, field_changed, old_value, new_value, performed_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
RETURNING id`,
		string(m.Type), string(m.Status), m.ProductID, m.BoxChange, m.KgChange,
		m.StockAdditionID, m.DamageReportID, m.CorrectionID,
		m.FieldChanged, m.OldValue, m.NewValue, m.PerformedBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert movement: %w", err)
	}
	return id, nil
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM movements WHERE id=$1 FOR UPDATE`, id)
	return scanMovement(row)
}

func (r *txRepository) UpdateMovementDecision(ctx context.Context, id int64, status MovementStatus, decidedBy int64, reason string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE movements
SET status=$2, decided_by=$3, decided_at=NOW(), reject_reason=$4
WHERE id=$1`, id, string(status), decidedBy, reason)
	if err != nil {
		return fmt.Errorf("stock: update movement decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

func (r *txRepository) SetMovementProduct(ctx context.Context, movementID int64, productID *int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE movements SET product_id=$2 WHERE id=$1`, movementID, productID)
	return err
}

func (r *txRepository) InsertStockAddition(ctx context.Context, rec StockAddition) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_additions (product_id, boxes, kg, note, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		rec.ProductID, rec.Boxes, rec.Kg, rec.Note, rec.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertStockCorrection(ctx context.Context, rec StockCorrection) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_corrections (product_id, boxes, kg, reason, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING id`,
		rec.ProductID, rec.Boxes, rec.Kg, rec.Reason, rec.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertDamageReport(ctx context.Context, rec DamageReport) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO damage_reports (product_id, boxes, kg, reason, approved, created_by, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5, NOW()) RETURNING id`,
		rec.ProductID, rec.Boxes, rec.Kg, rec.Reason, rec.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) MarkDamageApproved(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE damage_reports SET approved=TRUE WHERE id=$1`, id)
	return err
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
		return fmt.Errorf("stock: update product quantities: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *txRepository) UpdateProduct(ctx context.Context, p catalog.Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET
code=$2, name=$3, quantity_box=$4, quantity_kg=$5, box_to_kg_ratio=$6,
cost_per_box=$7, cost_per_kg=$8, price_per_box=$9, price_per_kg=$10,
boxed_low_stock_threshold=$11, updated_at=NOW()
WHERE id=$1`,
		p.ID, p.Code, p.Name, p.QuantityBox, p.QuantityKg, p.BoxToKgRatio,
		p.CostPerBox, p.CostPerKg, p.PricePerBox, p.PricePerKg, p.BoxedLowStockThreshold)
	if err != nil {
		return fmt.Errorf("stock: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (r *txRepository) InsertProduct(ctx context.Context, p catalog.Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products
(code, name, quantity_box, quantity_kg, box_to_kg_ratio, cost_per_box, cost_per_kg,
 price_per_box, price_per_kg, boxed_low_stock_threshold, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		p.Code, p.Name, p.QuantityBox, p.QuantityKg, p.BoxToKgRatio,
		p.CostPerBox, p.CostPerKg, p.PricePerBox, p.PricePerKg, p.BoxedLowStockThreshold).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert product: %w", err)
	}
	return id, nil
}

// DeleteProductCascade removes the product row and every dependent record
// except the movement identified by keepMovementID, which survives as the
// tombstone for the approved deletion.
func (r *txRepository) DeleteProductCascade(ctx context.Context, productID, keepMovementID int64) error {
	if _, err := r.tx.Exec(ctx,
		`DELETE FROM movements WHERE product_id=$1 AND id<>$2`, productID, keepMovementID); err != nil {
		return fmt.Errorf("stock: cascade delete movements for product %d: %w", productID, err)
	}
	for _, table := range []string{"sales", "stock_additions", "stock_corrections", "damage_reports"} {
		if _, err := r.tx.Exec(ctx, `DELETE FROM `+table+` WHERE product_id=$1`, productID); err != nil {
			return fmt.Errorf("stock: cascade delete %s for product %d: %w", table, productID, err)
		}
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM products WHERE id=$1`, productID); err != nil {
		return fmt.Errorf("stock: cascade delete product %d: %w", productID, err)
	}
	return nil
}

func (r *txRepository) InsertApprovalLog(ctx context.Context, log shared.ApprovalLog) error {
	if r.approvals == nil {
		return nil
	}
	return r.approvals.Record(ctx, r.tx, log)
}
