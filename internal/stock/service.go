package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/shared"
)

// approvalModule tags ledger rows in the shared approvals table.
const approvalModule = "stock"

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error)
	CountStalePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// TxRepository exposes the transactional operations the state machine needs.
// Reads of the movement and the product use row locks so concurrent
// decisions against the same rows serialise instead of losing updates.
type TxRepository interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	GetMovementForUpdate(ctx context.Context, id int64) (Movement, error)
	UpdateMovementDecision(ctx context.Context, id int64, status MovementStatus, decidedBy int64, reason string) error
	SetMovementProduct(ctx context.Context, movementID int64, productID *int64) error

	InsertStockAddition(ctx context.Context, rec StockAddition) (int64, error)
	InsertStockCorrection(ctx context.Context, rec StockCorrection) (int64, error)
	InsertDamageReport(ctx context.Context, rec DamageReport) (int64, error)
	MarkDamageApproved(ctx context.Context, id int64) error

	GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error)
	UpdateProductQuantities(ctx context.Context, id int64, boxes int64, kg decimal.Decimal) error
	UpdateProduct(ctx context.Context, p catalog.Product) error
	InsertProduct(ctx context.Context, p catalog.Product) (int64, error)
	DeleteProductCascade(ctx context.Context, productID, keepMovementID int64) error

	InsertApprovalLog(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached product snapshots after a committed mutation.
type CachePort interface {
	InvalidateCache(ctx context.Context, productID int64)
}

// Service runs the movement ledger and its approval state machine.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	cache CachePort
}

// NewService builds Service. audit and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, audit: audit, cache: cache}
}

// ProposeInput describes a new movement proposal. Note becomes the text of
// the reference record for quantity types.
type ProposeInput struct {
	Type         MovementType
	ProductID    int64
	BoxChange    int64
	KgChange     decimal.Decimal
	Note         string
	FieldChanged string
	OldValue     string
	NewValue     string
	ActorID      int64
}

// Propose validates and persists a movement as pending, creating its
// type-specific reference record in the same transaction. Nothing is
// persisted when validation fails.
func (s *Service) Propose(ctx context.Context, input ProposeInput) (Movement, error) {
	m := Movement{
		Type:         input.Type,
		Status:       StatusPending,
		BoxChange:    input.BoxChange,
		KgChange:     input.KgChange,
		FieldChanged: input.FieldChanged,
		OldValue:     input.OldValue,
		NewValue:     input.NewValue,
		PerformedBy:  input.ActorID,
	}
	if input.ProductID != 0 {
		productID := input.ProductID
		m.ProductID = &productID
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		switch input.Type {
		case MovementNewStock:
			id, err := tx.InsertStockAddition(ctx, StockAddition{
				ProductID: input.ProductID,
				Boxes:     input.BoxChange,
				Kg:        input.KgChange,
				Note:      input.Note,
				CreatedBy: input.ActorID,
			})
			if err != nil {
				return err
			}
			m.StockAdditionID = &id
		case MovementStockCorrection:
			id, err := tx.InsertStockCorrection(ctx, StockCorrection{
				ProductID: input.ProductID,
				Boxes:     input.BoxChange,
				Kg:        input.KgChange,
				Reason:    input.Note,
				CreatedBy: input.ActorID,
			})
			if err != nil {
				return err
			}
			m.CorrectionID = &id
		case MovementDamaged:
			id, err := tx.InsertDamageReport(ctx, DamageReport{
				ProductID: input.ProductID,
				Boxes:     absInt64(input.BoxChange),
				Kg:        input.KgChange.Abs(),
				Reason:    input.Note,
				CreatedBy: input.ActorID,
			})
			if err != nil {
				return err
			}
			m.DamageReportID = &id
		}

		if err := ValidateMovement(m); err != nil {
			return err
		}

		id, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		return tx.InsertApprovalLog(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   id,
			ActorID: input.ActorID,
			Action:  shared.ApprovalSubmit,
			Note:    input.Note,
		})
	})
	if err != nil {
		return Movement{}, err
	}

	s.recordAudit(ctx, input.ActorID, "stock:propose", m)
	return m, nil
}

// Approve applies a pending movement's side effect and marks it completed,
// both in one transaction. Approving a terminal movement returns
// ErrNotPending and changes nothing.
func (s *Service) Approve(ctx context.Context, movementID, approverID int64) (Movement, error) {
	if approverID == 0 {
		return Movement{}, fmt.Errorf("stock: approver id is required")
	}
	var out Movement
	var touchedProduct *int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != StatusPending {
			return ErrNotPending
		}
		if m.ProductID != nil {
			pid := *m.ProductID
			touchedProduct = &pid
		}

		switch m.Type {
		case MovementNewStock, MovementStockCorrection, MovementDamaged:
			if err := s.applyQuantityChange(ctx, tx, &m); err != nil {
				return err
			}
		case MovementProductEdit:
			if err := s.applyProductEdit(ctx, tx, m); err != nil {
				return err
			}
		case MovementProductDelete:
			if err := s.applyProductDelete(ctx, tx, &m); err != nil {
				return err
			}
		case MovementProductCreate:
			if err := s.applyProductCreate(ctx, tx, &m); err != nil {
				return err
			}
		default:
			return invalid("unknown movement type %q", m.Type)
		}

		if err := tx.UpdateMovementDecision(ctx, m.ID, StatusCompleted, approverID, ""); err != nil {
			return err
		}
		if err := tx.InsertApprovalLog(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   m.ID,
			ActorID: approverID,
			Action:  shared.ApprovalApprove,
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		m.Status = StatusCompleted
		m.DecidedBy = &approverID
		m.DecidedAt = &now
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	if touchedProduct == nil {
		touchedProduct = out.ProductID
	}
	if touchedProduct != nil && s.cache != nil {
		s.cache.InvalidateCache(ctx, *touchedProduct)
	}
	s.recordAudit(ctx, approverID, "stock:approve", out)
	return out, nil
}

// Reject marks a pending movement rejected with a mandatory reason. The
// product is never touched.
func (s *Service) Reject(ctx context.Context, movementID, approverID int64, reason string) (Movement, error) {
	if strings.TrimSpace(reason) == "" {
		return Movement{}, ErrReasonRequired
	}
	var out Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != StatusPending {
			return ErrNotPending
		}
		if err := tx.UpdateMovementDecision(ctx, m.ID, StatusRejected, approverID, reason); err != nil {
			return err
		}
		if err := tx.InsertApprovalLog(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   m.ID,
			ActorID: approverID,
			Action:  shared.ApprovalReject,
			Note:    reason,
		}); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.Status = StatusRejected
		m.DecidedBy = &approverID
		m.DecidedAt = &now
		m.RejectReason = reason
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, approverID, "stock:reject", out)
	return out, nil
}

// Cancel withdraws a pending movement. Only the original requester or a
// privileged actor may cancel.
func (s *Service) Cancel(ctx context.Context, movementID, requesterID int64, privileged bool) (Movement, error) {
	var out Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != StatusPending {
			return ErrNotPending
		}
		if !privileged && m.PerformedBy != requesterID {
			return ErrNotRequester
		}
		if err := tx.UpdateMovementDecision(ctx, m.ID, StatusCancelled, requesterID, ""); err != nil {
			return err
		}
		if err := tx.InsertApprovalLog(ctx, shared.ApprovalLog{
			Module:  approvalModule,
			RefID:   m.ID,
			ActorID: requesterID,
			Action:  shared.ApprovalCancel,
		}); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.Status = StatusCancelled
		m.DecidedBy = &requesterID
		m.DecidedAt = &now
		out = m
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	s.recordAudit(ctx, requesterID, "stock:cancel", out)
	return out, nil
}

// Get returns a single movement.
func (s *Service) Get(ctx context.Context, id int64) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

// List returns movements plus the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	return s.repo.ListMovements(ctx, filter)
}

// CountStalePending reports pending movements older than the cutoff; the
// reminder job uses it.
func (s *Service) CountStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.repo.CountStalePending(ctx, olderThan)
}

func (s *Service) applyQuantityChange(ctx context.Context, tx TxRepository, m *Movement) error {
	if m.ProductID == nil {
		return invalid("%s movement has no product reference", m.Type)
	}
	p, err := tx.GetProductForUpdate(ctx, *m.ProductID)
	if err != nil {
		return err
	}
	newBoxes := p.QuantityBox + m.BoxChange
	newKg := p.QuantityKg.Add(m.KgChange)
	if newBoxes < 0 || newKg.IsNegative() {
		return fmt.Errorf("%w: product %d would have %d boxes, %s kg",
			ErrNegativeStock, p.ID, newBoxes, newKg)
	}
	if err := tx.UpdateProductQuantities(ctx, p.ID, newBoxes, newKg); err != nil {
		return err
	}
	if m.Type == MovementDamaged && m.DamageReportID != nil {
		return tx.MarkDamageApproved(ctx, *m.DamageReportID)
	}
	return nil
}

func (s *Service) applyProductEdit(ctx context.Context, tx TxRepository, m Movement) error {
	if m.ProductID == nil {
		return invalid("product_edit movement has no product reference")
	}
	p, err := tx.GetProductForUpdate(ctx, *m.ProductID)
	if err != nil {
		return err
	}
	if err := applyEdit(&p, m.FieldChanged, m.NewValue); err != nil {
		return err
	}
	return tx.UpdateProduct(ctx, p)
}

func (s *Service) applyProductDelete(ctx context.Context, tx TxRepository, m *Movement) error {
	if m.ProductID == nil {
		return invalid("product_delete movement has no product reference")
	}
	// The approved delete movement survives as the tombstone; everything
	// else referencing the product goes with the product row. The tombstone's
	// product reference is cleared first so the cascade can drop the row it
	// pointed at, and re-approval stays deterministic.
	productID := *m.ProductID
	if err := tx.SetMovementProduct(ctx, m.ID, nil); err != nil {
		return err
	}
	if err := tx.DeleteProductCascade(ctx, productID, m.ID); err != nil {
		return err
	}
	m.ProductID = nil
	return nil
}

// creationPayload is the serialized product carried in a product_create
// movement's new_value.
type creationPayload struct {
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
}

func (s *Service) applyProductCreate(ctx context.Context, tx TxRepository, m *Movement) error {
	var payload creationPayload
	if err := json.Unmarshal([]byte(m.NewValue), &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrParsePayload, err)
	}
	if strings.TrimSpace(payload.Code) == "" || strings.TrimSpace(payload.Name) == "" {
		return fmt.Errorf("%w: creation payload needs code and name", ErrParsePayload)
	}
	if !payload.BoxToKgRatio.IsPositive() {
		return fmt.Errorf("%w: creation payload needs a positive box_to_kg_ratio", ErrParsePayload)
	}
	if payload.QuantityBox < 0 || payload.QuantityKg.IsNegative() {
		return fmt.Errorf("%w: creation payload quantities cannot be negative", ErrParsePayload)
	}
	id, err := tx.InsertProduct(ctx, catalog.Product{
		Code:                   payload.Code,
		Name:                   payload.Name,
		QuantityBox:            payload.QuantityBox,
		QuantityKg:             payload.QuantityKg,
		BoxToKgRatio:           payload.BoxToKgRatio,
		CostPerBox:             payload.CostPerBox,
		CostPerKg:              payload.CostPerKg,
		PricePerBox:            payload.PricePerBox,
		PricePerKg:             payload.PricePerKg,
		BoxedLowStockThreshold: payload.BoxedLowStockThreshold,
	})
	if err != nil {
		return err
	}
	if err := tx.SetMovementProduct(ctx, m.ID, &id); err != nil {
		return err
	}
	m.ProductID = &id
	return nil
}

// applyEdit parses new_value for the named field and applies it to the
// product. Unknown fields and unparsable values surface as ErrParsePayload.
func applyEdit(p *catalog.Product, field, newValue string) error {
	switch field {
	case "code":
		if strings.TrimSpace(newValue) == "" {
			return fmt.Errorf("%w: code cannot be empty", ErrParsePayload)
		}
		p.Code = newValue
	case "name":
		if strings.TrimSpace(newValue) == "" {
			return fmt.Errorf("%w: name cannot be empty", ErrParsePayload)
		}
		p.Name = newValue
	case "cost_per_box":
		return setDecimalField(&p.CostPerBox, field, newValue, false)
	case "cost_per_kg":
		return setDecimalField(&p.CostPerKg, field, newValue, false)
	case "price_per_box":
		return setDecimalField(&p.PricePerBox, field, newValue, false)
	case "price_per_kg":
		return setDecimalField(&p.PricePerKg, field, newValue, false)
	case "box_to_kg_ratio":
		return setDecimalField(&p.BoxToKgRatio, field, newValue, true)
	case "boxed_low_stock_threshold":
		v, err := strconv.ParseInt(strings.TrimSpace(newValue), 10, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrParsePayload, field)
		}
		p.BoxedLowStockThreshold = v
	default:
		return fmt.Errorf("%w: field %q is not editable", ErrParsePayload, field)
	}
	return nil
}

func setDecimalField(dst *decimal.Decimal, field, newValue string, requirePositive bool) error {
	v, err := decimal.NewFromString(strings.TrimSpace(newValue))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrParsePayload, field, err)
	}
	if requirePositive && !v.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrParsePayload, field)
	}
	if !requirePositive && v.IsNegative() {
		return fmt.Errorf("%w: %s cannot be negative", ErrParsePayload, field)
	}
	*dst = v
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"movement_type": string(m.Type),
		"status":        string(m.Status),
		"box_change":    m.BoxChange,
		"kg_change":     m.KgChange.String(),
	}
	if m.ProductID != nil {
		meta["product_id"] = *m.ProductID
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "movement",
		EntityID: strconv.FormatInt(m.ID, 10),
		Meta:     meta,
	})
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
