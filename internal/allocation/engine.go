// Package allocation computes how a sale expressed in boxes and loose
// kilograms is satisfied from stock tracked in both units.
package allocation

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Stock is a snapshot of a product's sellable quantities.
type Stock struct {
	Boxes             int64
	LooseKg           decimal.Decimal
	BoxToKgRatio      decimal.Decimal
	LowStockThreshold int64
}

// Request is a sale request; at least one of Boxes or Kg must be positive.
type Request struct {
	Boxes int64
	Kg    decimal.Decimal
}

// Plan describes how a feasible request is fulfilled and the resulting stock.
type Plan struct {
	BoxesToUnbox int64
	FinalBoxes   int64
	FinalKg      decimal.Decimal
	LowStock     bool
}

// ErrInvalidRequest indicates a request without any positive quantity.
var ErrInvalidRequest = errors.New("allocation: request must include boxes or kg")

// ErrInvalidRatio indicates a product with a non-positive box-to-kg ratio.
var ErrInvalidRatio = errors.New("allocation: box-to-kg ratio must be positive")

// ErrInsufficientBoxes indicates the box request alone exceeds stock.
var ErrInsufficientBoxes = errors.New("allocation: not enough boxes in stock")

// ErrInsufficientInventory indicates the kg request cannot be covered even after unboxing.
var ErrInsufficientInventory = errors.New("allocation: not enough stock to cover requested kg")

// ErrInconsistentPlan flags an internal fault: a computed plan left stock negative.
var ErrInconsistentPlan = errors.New("allocation: computed plan violates stock invariants")

// Compute returns the minimal-unboxing fulfillment plan for req against stock.
// Boxes required by the request are removed from the pool before any box is
// considered for unboxing, so a request for every box plus extra kg fails.
func Compute(stock Stock, req Request) (Plan, error) {
	if req.Boxes < 0 || req.Kg.IsNegative() {
		return Plan{}, ErrInvalidRequest
	}
	if req.Boxes == 0 && !req.Kg.IsPositive() {
		return Plan{}, ErrInvalidRequest
	}
	if !stock.BoxToKgRatio.IsPositive() {
		return Plan{}, ErrInvalidRatio
	}
	if req.Boxes > stock.Boxes {
		return Plan{}, ErrInsufficientBoxes
	}

	var unbox int64
	shortage := req.Kg.Sub(stock.LooseKg)
	if shortage.IsPositive() {
		unbox = shortage.Div(stock.BoxToKgRatio).Ceil().IntPart()
		// Division rounds at a fixed precision; make sure the unboxed mass
		// really covers the shortage.
		for stock.BoxToKgRatio.Mul(decimal.NewFromInt(unbox)).LessThan(shortage) {
			unbox++
		}
		available := stock.Boxes - req.Boxes
		if unbox > available {
			return Plan{}, ErrInsufficientInventory
		}
	}

	finalBoxes := stock.Boxes - req.Boxes - unbox
	finalKg := stock.LooseKg.
		Add(stock.BoxToKgRatio.Mul(decimal.NewFromInt(unbox))).
		Sub(req.Kg)
	if finalBoxes < 0 || finalKg.IsNegative() {
		return Plan{}, ErrInconsistentPlan
	}

	equivalent := finalBoxes + finalKg.Div(stock.BoxToKgRatio).Floor().IntPart()
	return Plan{
		BoxesToUnbox: unbox,
		FinalBoxes:   finalBoxes,
		FinalKg:      finalKg,
		LowStock:     equivalent <= stock.LowStockThreshold,
	}, nil
}
