package stock

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/shared"
)

type memRepo struct {
	movements   map[int64]Movement
	products    map[int64]catalog.Product
	additions   map[int64]StockAddition
	corrections map[int64]StockCorrection
	damages     map[int64]DamageReport
	approvals   []shared.ApprovalLog
	nextID      int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		movements:   map[int64]Movement{},
		products:    map[int64]catalog.Product{},
		additions:   map[int64]StockAddition{},
		corrections: map[int64]StockCorrection{},
		damages:     map[int64]DamageReport{},
	}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) clone() *memRepo {
	c := newMemRepo()
	c.nextID = r.nextID
	for k, v := range r.movements {
		c.movements[k] = v
	}
	for k, v := range r.products {
		c.products[k] = v
	}
	for k, v := range r.additions {
		c.additions[k] = v
	}
	for k, v := range r.corrections {
		c.corrections[k] = v
	}
	for k, v := range r.damages {
		c.damages[k] = v
	}
	c.approvals = append(c.approvals, r.approvals...)
	return c
}

// WithTx mimics rollback semantics: the callback runs against a copy and
// the copy replaces the live state only on success.
func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := r.clone()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	*r = *tx
	return nil
}

func (r *memRepo) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	return m, nil
}

func (r *memRepo) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	var out []Movement
	for _, m := range r.movements {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if filter.ProductID != 0 && (m.ProductID == nil || *m.ProductID != filter.ProductID) {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

func (r *memRepo) CountStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, m := range r.movements {
		if m.Status == StatusPending && m.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	m.ID = r.id()
	m.CreatedAt = time.Now().UTC()
	r.movements[m.ID] = m
	return m.ID, nil
}

func (r *memRepo) GetMovementForUpdate(ctx context.Context, id int64) (Movement, error) {
	return r.GetMovement(ctx, id)
}

func (r *memRepo) UpdateMovementDecision(ctx context.Context, id int64, status MovementStatus, decidedBy int64, reason string) error {
	m, ok := r.movements[id]
	if !ok {
		return ErrMovementNotFound
	}
	now := time.Now().UTC()
	m.Status = status
	m.DecidedBy = &decidedBy
	m.DecidedAt = &now
	m.RejectReason = reason
	r.movements[id] = m
	return nil
}

func (r *memRepo) SetMovementProduct(ctx context.Context, movementID int64, productID *int64) error {
	m, ok := r.movements[movementID]
	if !ok {
		return ErrMovementNotFound
	}
	m.ProductID = productID
	r.movements[movementID] = m
	return nil
}

func (r *memRepo) InsertStockAddition(ctx context.Context, rec StockAddition) (int64, error) {
	rec.ID = r.id()
	r.additions[rec.ID] = rec
	return rec.ID, nil
}

func (r *memRepo) InsertStockCorrection(ctx context.Context, rec StockCorrection) (int64, error) {
	rec.ID = r.id()
	r.corrections[rec.ID] = rec
	return rec.ID, nil
}

func (r *memRepo) InsertDamageReport(ctx context.Context, rec DamageReport) (int64, error) {
	rec.ID = r.id()
	r.damages[rec.ID] = rec
	return rec.ID, nil
}

func (r *memRepo) MarkDamageApproved(ctx context.Context, id int64) error {
	d, ok := r.damages[id]
	if !ok {
		return ErrMovementNotFound
	}
	d.Approved = true
	r.damages[id] = d
	return nil
}

func (r *memRepo) GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

func (r *memRepo) UpdateProductQuantities(ctx context.Context, id int64, boxes int64, kg decimal.Decimal) error {
	p, ok := r.products[id]
	if !ok {
		return catalog.ErrProductNotFound
	}
	p.QuantityBox = boxes
	p.QuantityKg = kg
	r.products[id] = p
	return nil
}

func (r *memRepo) UpdateProduct(ctx context.Context, p catalog.Product) error {
	if _, ok := r.products[p.ID]; !ok {
		return catalog.ErrProductNotFound
	}
	r.products[p.ID] = p
	return nil
}

func (r *memRepo) InsertProduct(ctx context.Context, p catalog.Product) (int64, error) {
	p.ID = r.id()
	r.products[p.ID] = p
	return p.ID, nil
}

func (r *memRepo) DeleteProductCascade(ctx context.Context, productID, keepMovementID int64) error {
	for id, m := range r.movements {
		if id != keepMovementID && m.ProductID != nil && *m.ProductID == productID {
			delete(r.movements, id)
		}
	}
	for id, a := range r.additions {
		if a.ProductID == productID {
			delete(r.additions, id)
		}
	}
	for id, c := range r.corrections {
		if c.ProductID == productID {
			delete(r.corrections, id)
		}
	}
	for id, d := range r.damages {
		if d.ProductID == productID {
			delete(r.damages, id)
		}
	}
	delete(r.products, productID)
	return nil
}

func (r *memRepo) InsertApprovalLog(ctx context.Context, log shared.ApprovalLog) error {
	log.ID = r.id()
	log.At = time.Now().UTC()
	r.approvals = append(r.approvals, log)
	return nil
}

func seedProduct(r *memRepo, boxes int64, kg string) int64 {
	id := r.id()
	r.products[id] = catalog.Product{
		ID:                     id,
		Code:                   "SALM-01",
		Name:                   "Atlantic Salmon",
		QuantityBox:            boxes,
		QuantityKg:             decimal.RequireFromString(kg),
		BoxToKgRatio:           decimal.RequireFromString("20"),
		CostPerBox:             decimal.RequireFromString("100"),
		CostPerKg:              decimal.RequireFromString("6"),
		PricePerBox:            decimal.RequireFromString("150"),
		PricePerKg:             decimal.RequireFromString("9"),
		BoxedLowStockThreshold: 2,
	}
	return id
}

func TestProposeNewStock(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		Note:      "morning delivery",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, m.Status)
	require.NotNil(t, m.StockAdditionID)
	require.Len(t, repo.additions, 1)

	// Product untouched until approval.
	require.Equal(t, int64(10), repo.products[pid].QuantityBox)

	require.Len(t, repo.approvals, 1)
	require.Equal(t, shared.ApprovalSubmit, repo.approvals[0].Action)
}

func TestProposeInvalidPersistsNothing(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	_, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		// zero delta
		ActorID: 7,
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Empty(t, repo.movements)
	require.Empty(t, repo.additions)
	require.Empty(t, repo.approvals)
}

func TestApproveNewStockAppliesQuantities(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		KgChange:  decimal.RequireFromString("2.5"),
		ActorID:   7,
	})
	require.NoError(t, err)

	out, err := svc.Approve(context.Background(), m.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, out.Status)
	require.NotNil(t, out.DecidedBy)
	require.Equal(t, int64(9), *out.DecidedBy)

	p := repo.products[pid]
	require.Equal(t, int64(15), p.QuantityBox)
	require.True(t, p.QuantityKg.Equal(decimal.RequireFromString("7.5")))
}

func TestApproveIsExactlyOnce(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		ActorID:   7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.ErrorIs(t, err, ErrNotPending)

	// Applied once: 10 + 5, not 10 + 5 + 5.
	require.Equal(t, int64(15), repo.products[pid].QuantityBox)
}

func TestApproveDamagedMarksReport(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementDamaged,
		ProductID: pid,
		BoxChange: -2,
		Note:      "crushed in transit",
		ActorID:   7,
	})
	require.NoError(t, err)
	require.NotNil(t, m.DamageReportID)
	require.False(t, repo.damages[*m.DamageReportID].Approved)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.NoError(t, err)
	require.Equal(t, int64(8), repo.products[pid].QuantityBox)
	require.True(t, repo.damages[*m.DamageReportID].Approved)
}

func TestApproveNegativeStockAborts(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 3, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementStockCorrection,
		ProductID: pid,
		BoxChange: -5,
		Note:      "recount",
		ActorID:   7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.ErrorIs(t, err, ErrNegativeStock)

	// Nothing moved; the movement is still pending and can be rejected.
	require.Equal(t, int64(3), repo.products[pid].QuantityBox)
	require.Equal(t, StatusPending, repo.movements[m.ID].Status)
}

func TestApproveProductEdit(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:         MovementProductEdit,
		ProductID:    pid,
		FieldChanged: "price_per_box",
		OldValue:     "150",
		NewValue:     "175.50",
		ActorID:      7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.NoError(t, err)
	require.True(t, repo.products[pid].PricePerBox.Equal(decimal.RequireFromString("175.50")))
}

func TestApproveProductEditBadPayload(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:         MovementProductEdit,
		ProductID:    pid,
		FieldChanged: "price_per_box",
		NewValue:     "not-a-number",
		ActorID:      7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.ErrorIs(t, err, ErrParsePayload)
	require.Equal(t, StatusPending, repo.movements[m.ID].Status)
}

func TestApproveProductDeleteLeavesTombstone(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	// Prior history for the product.
	first, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		ActorID:   7,
	})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), first.ID, 9)
	require.NoError(t, err)

	del, err := svc.Propose(context.Background(), ProposeInput{
		Type:         MovementProductDelete,
		ProductID:    pid,
		FieldChanged: "deleted",
		ActorID:      7,
	})
	require.NoError(t, err)

	out, err := svc.Approve(context.Background(), del.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, out.Status)
	require.Nil(t, out.ProductID)

	// Product and its older movements are gone; the delete movement survives.
	require.NotContains(t, repo.products, pid)
	require.NotContains(t, repo.movements, first.ID)
	tomb := repo.movements[del.ID]
	require.Equal(t, MovementProductDelete, tomb.Type)
	require.Nil(t, tomb.ProductID)

	// A second decision on the tombstone is refused.
	_, err = svc.Approve(context.Background(), del.ID, 9)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestApproveProductCreate(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	payload := `{"code":"TUNA-01","name":"Yellowfin Tuna","quantity_box":4,"quantity_kg":"10",` +
		`"box_to_kg_ratio":"25","cost_per_box":"200","cost_per_kg":"9",` +
		`"price_per_box":"280","price_per_kg":"13","boxed_low_stock_threshold":1}`
	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:         MovementProductCreate,
		FieldChanged: "created",
		NewValue:     payload,
		ActorID:      7,
	})
	require.NoError(t, err)
	require.Nil(t, m.ProductID)

	out, err := svc.Approve(context.Background(), m.ID, 9)
	require.NoError(t, err)
	require.NotNil(t, out.ProductID)

	p := repo.products[*out.ProductID]
	require.Equal(t, "TUNA-01", p.Code)
	require.Equal(t, int64(4), p.QuantityBox)
	require.True(t, p.BoxToKgRatio.Equal(decimal.RequireFromString("25")))
}

func TestApproveProductCreateBadPayload(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:         MovementProductCreate,
		FieldChanged: "created",
		NewValue:     `{"code":"","name":""}`,
		ActorID:      7,
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), m.ID, 9)
	require.ErrorIs(t, err, ErrParsePayload)
	require.Empty(t, repo.products)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		ActorID:   7,
	})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), m.ID, 9, "   ")
	require.ErrorIs(t, err, ErrReasonRequired)

	out, err := svc.Reject(context.Background(), m.ID, 9, "supplier invoice mismatch")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, "supplier invoice mismatch", out.RejectReason)

	// Rejection never touches stock.
	require.Equal(t, int64(10), repo.products[pid].QuantityBox)
}

func TestCancelOnlyByRequester(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		ActorID:   7,
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), m.ID, 99, false)
	require.ErrorIs(t, err, ErrNotRequester)

	out, err := svc.Cancel(context.Background(), m.ID, 7, false)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)

	_, err = svc.Cancel(context.Background(), m.ID, 7, false)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestCancelPrivileged(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo, 10, "5")
	svc := NewService(repo, nil, nil)

	m, err := svc.Propose(context.Background(), ProposeInput{
		Type:      MovementNewStock,
		ProductID: pid,
		BoxChange: 5,
		ActorID:   7,
	})
	require.NoError(t, err)

	out, err := svc.Cancel(context.Background(), m.ID, 99, true)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)
}
