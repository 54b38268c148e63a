package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func kg(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func coldRoom() Stock {
	return Stock{Boxes: 10, LooseKg: kg("5"), BoxToKgRatio: kg("20"), LowStockThreshold: 2}
}

func TestComputeUnboxesToCoverShortage(t *testing.T) {
	plan, err := Compute(coldRoom(), Request{Boxes: 0, Kg: kg("15")})
	require.NoError(t, err)
	require.EqualValues(t, 1, plan.BoxesToUnbox)
	require.EqualValues(t, 9, plan.FinalBoxes)
	require.True(t, plan.FinalKg.Equal(kg("10")), "final kg = %s", plan.FinalKg)
	require.False(t, plan.LowStock)
}

func TestComputeExactDrain(t *testing.T) {
	plan, err := Compute(coldRoom(), Request{Boxes: 10, Kg: kg("5")})
	require.NoError(t, err)
	require.EqualValues(t, 0, plan.BoxesToUnbox)
	require.EqualValues(t, 0, plan.FinalBoxes)
	require.True(t, plan.FinalKg.IsZero())
	require.True(t, plan.LowStock)
}

func TestComputeNoBoxesLeftForUnboxing(t *testing.T) {
	_, err := Compute(coldRoom(), Request{Boxes: 10, Kg: kg("25")})
	require.ErrorIs(t, err, ErrInsufficientInventory)
}

func TestComputeBoxRequestExceedsStock(t *testing.T) {
	_, err := Compute(coldRoom(), Request{Boxes: 11})
	require.ErrorIs(t, err, ErrInsufficientBoxes)
}

func TestComputeRejectsEmptyRequest(t *testing.T) {
	_, err := Compute(coldRoom(), Request{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Compute(coldRoom(), Request{Boxes: -1})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestComputeRejectsBadRatio(t *testing.T) {
	stock := coldRoom()
	stock.BoxToKgRatio = decimal.Zero
	_, err := Compute(stock, Request{Kg: kg("1")})
	require.ErrorIs(t, err, ErrInvalidRatio)
}

func TestComputeLooseStockCoversRequest(t *testing.T) {
	plan, err := Compute(coldRoom(), Request{Kg: kg("4.5")})
	require.NoError(t, err)
	require.EqualValues(t, 0, plan.BoxesToUnbox)
	require.EqualValues(t, 10, plan.FinalBoxes)
	require.True(t, plan.FinalKg.Equal(kg("0.5")))
}

func TestComputeFractionalRatio(t *testing.T) {
	stock := Stock{Boxes: 4, LooseKg: kg("1.2"), BoxToKgRatio: kg("12.5"), LowStockThreshold: 0}
	plan, err := Compute(stock, Request{Kg: kg("27")})
	require.NoError(t, err)
	// shortage 25.8 kg needs ceil(25.8/12.5) = 3 boxes.
	require.EqualValues(t, 3, plan.BoxesToUnbox)
	require.EqualValues(t, 1, plan.FinalBoxes)
	require.True(t, plan.FinalKg.Equal(kg("11.7")), "final kg = %s", plan.FinalKg)
}

func TestComputeConservesMass(t *testing.T) {
	stock := Stock{Boxes: 7, LooseKg: kg("13.75"), BoxToKgRatio: kg("18.2"), LowStockThreshold: 1}
	requests := []Request{
		{Boxes: 2, Kg: kg("30")},
		{Boxes: 0, Kg: kg("14")},
		{Boxes: 5, Kg: kg("0")},
		{Boxes: 1, Kg: kg("50.4")},
	}
	for _, req := range requests {
		plan, err := Compute(stock, req)
		require.NoError(t, err)
		before := stock.BoxToKgRatio.Mul(decimal.NewFromInt(stock.Boxes)).Add(stock.LooseKg)
		after := stock.BoxToKgRatio.Mul(decimal.NewFromInt(plan.FinalBoxes)).Add(plan.FinalKg)
		sold := stock.BoxToKgRatio.Mul(decimal.NewFromInt(req.Boxes)).Add(req.Kg)
		require.True(t, before.Equal(after.Add(sold)),
			"mass not conserved: before=%s after=%s sold=%s", before, after, sold)
	}
}

func TestComputeLowStockSignal(t *testing.T) {
	stock := Stock{Boxes: 3, LooseKg: kg("10"), BoxToKgRatio: kg("10"), LowStockThreshold: 2}
	plan, err := Compute(stock, Request{Boxes: 2})
	require.NoError(t, err)
	// 1 box + floor(10/10) = 2 equivalent boxes, at the threshold.
	require.True(t, plan.LowStock)
}
