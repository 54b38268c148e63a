package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	products map[int64]Product
	codes    map[string]int64
	loads    int
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{products: map[int64]Product{}, codes: map[string]int64{}}
}

func (r *memRepo) Insert(ctx context.Context, p Product) (int64, error) {
	if _, taken := r.codes[p.Code]; taken {
		return 0, ErrDuplicateCode
	}
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = p
	r.codes[p.Code] = p.ID
	return p.ID, nil
}

func (r *memRepo) Update(ctx context.Context, p Product) error {
	old, ok := r.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	if other, taken := r.codes[p.Code]; taken && other != p.ID {
		return ErrDuplicateCode
	}
	delete(r.codes, old.Code)
	r.codes[p.Code] = p.ID
	p.UpdatedAt = time.Now().UTC()
	r.products[p.ID] = p
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id int64) error {
	p, ok := r.products[id]
	if !ok {
		return ErrProductNotFound
	}
	delete(r.codes, p.Code)
	delete(r.products, id)
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (Product, error) {
	r.loads++
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memRepo) List(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memRepo) ListLowStock(ctx context.Context) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if p.LowStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

func validProduct() Product {
	return Product{
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
}

func TestCreateValidates(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	cases := []struct {
		name   string
		mutate func(*Product)
	}{
		{"empty code", func(p *Product) { p.Code = "  " }},
		{"empty name", func(p *Product) { p.Name = "" }},
		{"zero ratio", func(p *Product) { p.BoxToKgRatio = decimal.Zero }},
		{"negative boxes", func(p *Product) { p.QuantityBox = -1 }},
		{"negative kg", func(p *Product) { p.QuantityKg = decimal.RequireFromString("-1") }},
		{"negative price", func(p *Product) { p.PricePerKg = decimal.RequireFromString("-9") }},
		{"negative threshold", func(p *Product) { p.BoxedLowStockThreshold = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProduct()
			tc.mutate(&p)
			_, err := svc.Create(context.Background(), p, 7)
			require.ErrorIs(t, err, ErrInvalidProduct)
		})
	}

	created, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
}

func TestCreateDuplicateCode(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validProduct(), 7)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestUpdateAndDelete(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	created, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)

	created.Name = "Norwegian Salmon"
	updated, err := svc.Update(context.Background(), created, 7)
	require.NoError(t, err)
	require.Equal(t, "Norwegian Salmon", updated.Name)

	require.NoError(t, svc.Delete(context.Background(), created.ID, 7))
	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, ErrProductNotFound)

	err = svc.Delete(context.Background(), created.ID, 7)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestUpdateKeepsStoredQuantities(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)

	created, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)

	form := created
	form.Name = "Norwegian Salmon"
	form.QuantityBox = 999
	form.QuantityKg = decimal.RequireFromString("123.45")

	updated, err := svc.Update(context.Background(), form, 7)
	require.NoError(t, err)
	require.Equal(t, "Norwegian Salmon", updated.Name)
	require.EqualValues(t, 10, updated.QuantityBox)
	require.True(t, updated.QuantityKg.Equal(decimal.RequireFromString("5")))

	stored, err := repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, stored.QuantityBox)
	require.True(t, stored.QuantityKg.Equal(decimal.RequireFromString("5")))
}

func TestLowStock(t *testing.T) {
	p := validProduct()
	p.QuantityBox = 2
	p.QuantityKg = decimal.Zero
	require.True(t, p.LowStock())

	// 2 boxes plus 20 loose kg is 3 boxed equivalents, above the threshold.
	p.QuantityKg = decimal.RequireFromString("20")
	require.False(t, p.LowStock())
}

func TestCacheServesRepeatReads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	svc := NewService(repo, NewCache(client, time.Minute), nil)

	created, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)

	first, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	loadsAfterFirst := repo.loads

	second, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)
	require.Equal(t, loadsAfterFirst, repo.loads)
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	svc := NewService(repo, NewCache(client, time.Minute), nil)

	created, err := svc.Create(context.Background(), validProduct(), 7)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), created.ID)
	require.NoError(t, err)

	created.Name = "Norwegian Salmon"
	_, err = svc.Update(context.Background(), created, 7)
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "Norwegian Salmon", fresh.Name)
}
