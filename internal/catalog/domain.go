// Package catalog manages the product master data for the wholesaler:
// stock quantities tracked in whole boxes plus loose kilograms, pricing in
// both units, and the low-stock threshold expressed in equivalent boxes.
package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a fish product tracked in boxes and loose kg.
type Product struct {
	ID                     int64           `json:"id"`
	Code                   string          `json:"code"`
	Name                   string          `json:"name"`
	QuantityBox            int64           `json:"quantity_box"`
	QuantityKg             decimal.Decimal `json:"quantity_kg"`
	BoxToKgRatio           decimal.Decimal `json:"box_to_kg_ratio"`
	CostPerBox             decimal.Decimal `json:"cost_per_box"`
	CostPerKg              decimal.Decimal `json:"cost_per_kg"`
	PricePerBox            decimal.Decimal `json:"price_per_box"`
	PricePerKg             decimal.Decimal `json:"price_per_kg"`
	BoxedLowStockThreshold int64           `json:"boxed_low_stock_threshold"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// LowStock reports whether the product's equivalent-box total is at or
// below its threshold. Products with a broken ratio never signal.
func (p Product) LowStock() bool {
	if !p.BoxToKgRatio.IsPositive() {
		return false
	}
	equivalent := p.QuantityBox + p.QuantityKg.Div(p.BoxToKgRatio).Floor().IntPart()
	return equivalent <= p.BoxedLowStockThreshold
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search  string
	Page    int
	PerPage int
}

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrDuplicateCode indicates a product code collision.
var ErrDuplicateCode = errors.New("catalog: product code already in use")
