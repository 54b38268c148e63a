package sales

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seastock/seastock/internal/allocation"
	"github.com/seastock/seastock/internal/catalog"
)

type memRepo struct {
	products map[int64]catalog.Product
	sales    map[int64]Sale
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[int64]catalog.Product{}, sales: map[int64]Sale{}}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) clone() *memRepo {
	c := newMemRepo()
	c.nextID = r.nextID
	for k, v := range r.products {
		c.products[k] = v
	}
	for k, v := range r.sales {
		c.sales[k] = v
	}
	return c
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := r.clone()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	*r = *tx
	return nil
}

func (r *memRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return s, nil
}

func (r *memRepo) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var out []Sale
	for _, s := range r.sales {
		if filter.ProductID != 0 && s.ProductID != filter.ProductID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
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

func (r *memRepo) InsertSale(ctx context.Context, s Sale) (int64, error) {
	s.ID = r.id()
	s.CreatedAt = time.Now().UTC()
	r.sales[s.ID] = s
	return s.ID, nil
}

// Get satisfies ProductGetter for dry-run planning.
func (r *memRepo) Get(ctx context.Context, id int64) (catalog.Product, error) {
	return r.GetProductForUpdate(ctx, id)
}

func seedProduct(r *memRepo) int64 {
	id := r.id()
	r.products[id] = catalog.Product{
		ID:                     id,
		Code:                   "SALM-01",
		Name:                   "Atlantic Salmon",
		QuantityBox:            10,
		QuantityKg:             decimal.RequireFromString("5"),
		BoxToKgRatio:           decimal.RequireFromString("20"),
		CostPerBox:             decimal.RequireFromString("100"),
		CostPerKg:              decimal.RequireFromString("6"),
		PricePerBox:            decimal.RequireFromString("150"),
		PricePerKg:             decimal.RequireFromString("9"),
		BoxedLowStockThreshold: 2,
	}
	return id
}

func TestExecuteSaleUnboxes(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	// 15 kg against 5 loose kg forces one box open.
	result, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Kg:            decimal.RequireFromString("15"),
		PaymentMethod: PaymentCash,
		PaymentStatus: PaymentPaid,
		ActorID:       7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Plan.BoxesToUnbox)
	require.Equal(t, int64(1), result.Sale.BoxesUnboxed)

	p := repo.products[pid]
	require.Equal(t, int64(9), p.QuantityBox)
	require.True(t, p.QuantityKg.Equal(decimal.RequireFromString("10")))

	// 15 kg * 9/kg, fully settled.
	require.True(t, result.Sale.Total.Equal(decimal.RequireFromString("135")))
	require.True(t, result.Sale.AmountPaid.Equal(result.Sale.Total))
	require.True(t, result.Sale.Profit.Equal(decimal.RequireFromString("45")))

	stored, err := svc.Get(context.Background(), result.Sale.ID)
	require.NoError(t, err)
	require.Equal(t, result.Sale.Code, stored.Code)
}

func TestExecuteSaleMixedUnits(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	result, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         2,
		Kg:            decimal.RequireFromString("5"),
		PaymentMethod: PaymentTransfer,
		PaymentStatus: PaymentPaid,
		ActorID:       7,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Sale.BoxesUnboxed)

	p := repo.products[pid]
	require.Equal(t, int64(8), p.QuantityBox)
	require.True(t, p.QuantityKg.IsZero())

	// 2 boxes * 150 + 5 kg * 9.
	require.True(t, result.Sale.Total.Equal(decimal.RequireFromString("345")))
}

func TestExecuteSaleInfeasibleMutatesNothing(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	// 10 boxes plus 25 loose kg cannot be served from 10 boxes and 5 kg.
	_, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         10,
		Kg:            decimal.RequireFromString("25"),
		PaymentMethod: PaymentCash,
		PaymentStatus: PaymentPaid,
		ActorID:       7,
	})
	require.ErrorIs(t, err, allocation.ErrInsufficientInventory)

	p := repo.products[pid]
	require.Equal(t, int64(10), p.QuantityBox)
	require.True(t, p.QuantityKg.Equal(decimal.RequireFromString("5")))
	require.Empty(t, repo.sales)
}

func TestExecuteSalePaymentRules(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	_, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         1,
		PaymentMethod: "barter",
		PaymentStatus: PaymentPaid,
		ActorID:       7,
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         1,
		PaymentMethod: PaymentCash,
		PaymentStatus: PaymentUnpaid,
		AmountPaid:    decimal.RequireFromString("10"),
		ActorID:       7,
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         1,
		PaymentMethod: PaymentCredit,
		PaymentStatus: PaymentPartial,
		AmountPaid:    decimal.RequireFromString("150"), // equals the total
		ActorID:       7,
	})
	require.ErrorIs(t, err, ErrInvalidPayment)

	result, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         1,
		PaymentMethod: PaymentCredit,
		PaymentStatus: PaymentPartial,
		AmountPaid:    decimal.RequireFromString("100"),
		ActorID:       7,
	})
	require.NoError(t, err)
	require.True(t, result.Sale.AmountPaid.Equal(decimal.RequireFromString("100")))
	require.Equal(t, PaymentPartial, result.Sale.PaymentStatus)
}

func TestExecuteSaleUnpaidZeroAmount(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	result, err := svc.ExecuteSale(context.Background(), ExecuteInput{
		ProductID:     pid,
		Boxes:         1,
		PaymentMethod: PaymentCredit,
		PaymentStatus: PaymentUnpaid,
		ActorID:       7,
	})
	require.NoError(t, err)
	require.True(t, result.Sale.AmountPaid.IsZero())
}

func TestPlanAllocationDoesNotMutate(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	result, err := svc.PlanAllocation(context.Background(), PlanInput{
		ProductID: pid,
		Kg:        decimal.RequireFromString("15"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Plan.BoxesToUnbox)
	require.Equal(t, int64(9), result.Plan.FinalBoxes)

	p := repo.products[pid]
	require.Equal(t, int64(10), p.QuantityBox)
	require.True(t, p.QuantityKg.Equal(decimal.RequireFromString("5")))
	require.Empty(t, repo.sales)
}

func TestPlanAllocationLowStockWarning(t *testing.T) {
	repo := newMemRepo()
	pid := seedProduct(repo)
	svc := NewService(repo, repo, nil, nil, nil)

	// Selling 8 boxes leaves 2 boxes, at the threshold.
	result, err := svc.PlanAllocation(context.Background(), PlanInput{
		ProductID: pid,
		Boxes:     8,
	})
	require.NoError(t, err)
	require.True(t, result.Plan.LowStock)
	require.NotEmpty(t, result.Warnings)
}
