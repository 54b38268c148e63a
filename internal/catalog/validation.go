package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProduct wraps all structural validation failures.
var ErrInvalidProduct = errors.New("catalog: invalid product")

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("%w: product code is required", ErrInvalidProduct)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidProduct)
	}
	if !p.BoxToKgRatio.IsPositive() {
		return fmt.Errorf("%w: box-to-kg ratio must be positive", ErrInvalidProduct)
	}
	if p.QuantityBox < 0 || p.QuantityKg.IsNegative() {
		return fmt.Errorf("%w: quantities cannot be negative", ErrInvalidProduct)
	}
	if p.CostPerBox.IsNegative() || p.CostPerKg.IsNegative() ||
		p.PricePerBox.IsNegative() || p.PricePerKg.IsNegative() {
		return fmt.Errorf("%w: prices cannot be negative", ErrInvalidProduct)
	}
	if p.BoxedLowStockThreshold < 0 {
		return fmt.Errorf("%w: low-stock threshold cannot be negative", ErrInvalidProduct)
	}
	return nil
}
