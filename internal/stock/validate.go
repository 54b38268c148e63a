package stock

import (
	"fmt"
	"strings"
)

// ValidationError reports the first structural rule a movement violates.
// It is raised at proposal time; an invalid movement is never persisted.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return "stock: invalid movement: " + e.Rule
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Rule: fmt.Sprintf(format, args...)}
}

// ValidateMovement checks the type-conditioned structure of a movement
// before it reaches pending: which reference id must be set, whether the
// quantity delta must be non-zero, and whether an edit payload is required.
// The switch is exhaustive over MovementType; a new type must be given its
// own rules here.
func ValidateMovement(m Movement) error {
	if m.PerformedBy == 0 {
		return invalid("performed_by is required")
	}

	switch m.Type {
	case MovementNewStock:
		if err := requireQuantityChange(m); err != nil {
			return err
		}
		if err := requireProduct(m); err != nil {
			return err
		}
		if m.StockAdditionID == nil {
			return invalid("new_stock requires stock_addition_id")
		}
		if m.DamageReportID != nil || m.CorrectionID != nil {
			return invalid("new_stock must not carry other reference ids")
		}
		if m.FieldChanged != "" {
			return invalid("new_stock must not carry field_changed")
		}
	case MovementStockCorrection:
		if err := requireQuantityChange(m); err != nil {
			return err
		}
		if err := requireProduct(m); err != nil {
			return err
		}
		if m.CorrectionID == nil {
			return invalid("stock_correction requires correction_id")
		}
		if m.DamageReportID != nil || m.StockAdditionID != nil {
			return invalid("stock_correction must not carry other reference ids")
		}
		if m.FieldChanged != "" {
			return invalid("stock_correction must not carry field_changed")
		}
	case MovementDamaged:
		if err := requireQuantityChange(m); err != nil {
			return err
		}
		if err := requireProduct(m); err != nil {
			return err
		}
		if m.DamageReportID == nil {
			return invalid("damaged requires damaged_id")
		}
		if m.StockAdditionID != nil || m.CorrectionID != nil {
			return invalid("damaged must not carry other reference ids")
		}
		if m.FieldChanged != "" {
			return invalid("damaged must not carry field_changed")
		}
	case MovementProductEdit:
		if err := requireNoQuantityChange(m); err != nil {
			return err
		}
		if err := requireProduct(m); err != nil {
			return err
		}
		if err := requireNoReferences(m); err != nil {
			return err
		}
		if strings.TrimSpace(m.FieldChanged) == "" {
			return invalid("product_edit requires field_changed")
		}
	case MovementProductDelete:
		if err := requireNoQuantityChange(m); err != nil {
			return err
		}
		if err := requireProduct(m); err != nil {
			return err
		}
		if err := requireNoReferences(m); err != nil {
			return err
		}
		if strings.TrimSpace(m.FieldChanged) == "" {
			return invalid("product_delete requires field_changed")
		}
	case MovementProductCreate:
		if err := requireNoQuantityChange(m); err != nil {
			return err
		}
		// The product does not exist yet; the reference stays empty until
		// approval fills it in.
		if m.ProductID != nil {
			return invalid("product_create must not reference a product")
		}
		if err := requireNoReferences(m); err != nil {
			return err
		}
		if strings.TrimSpace(m.FieldChanged) == "" {
			return invalid("product_create requires field_changed")
		}
		if strings.TrimSpace(m.NewValue) == "" {
			return invalid("product_create requires a creation payload in new_value")
		}
	default:
		return invalid("unknown movement type %q", m.Type)
	}
	return nil
}

func requireQuantityChange(m Movement) error {
	if m.BoxChange == 0 && m.KgChange.IsZero() {
		return invalid("%s requires a non-zero box or kg change", m.Type)
	}
	return nil
}

func requireNoQuantityChange(m Movement) error {
	if m.BoxChange != 0 || !m.KgChange.IsZero() {
		return invalid("%s must not carry a quantity change", m.Type)
	}
	return nil
}

func requireProduct(m Movement) error {
	if m.ProductID == nil || *m.ProductID == 0 {
		return invalid("%s requires product_id", m.Type)
	}
	return nil
}

func requireNoReferences(m Movement) error {
	if m.StockAdditionID != nil || m.DamageReportID != nil || m.CorrectionID != nil {
		return invalid("%s must not carry reference ids", m.Type)
	}
	return nil
}
