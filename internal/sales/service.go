package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seastock/seastock/internal/allocation"
	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// TxRepository exposes the transactional operations a sale needs. The
// product row is locked for the duration so concurrent sales and approvals
// against the same product serialise.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, id int64) (catalog.Product, error)
	UpdateProductQuantities(ctx context.Context, id int64, boxes int64, kg decimal.Decimal) error
	InsertSale(ctx context.Context, s Sale) (int64, error)
}

// ProductGetter reads product snapshots for dry-run planning.
type ProductGetter interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CachePort invalidates cached product snapshots after a committed sale.
type CachePort interface {
	InvalidateCache(ctx context.Context, productID int64)
}

// Service executes and queries sales.
type Service struct {
	repo        RepositoryPort
	products    ProductGetter
	idempotency *shared.IdempotencyStore
	audit       AuditPort
	cache       CachePort
}

// NewService builds Service. idempotency, audit and cache may be nil.
func NewService(repo RepositoryPort, products ProductGetter, idem *shared.IdempotencyStore, audit AuditPort, cache CachePort) *Service {
	return &Service{repo: repo, products: products, idempotency: idem, audit: audit, cache: cache}
}

// PlanInput is a dry-run allocation request.
type PlanInput struct {
	ProductID int64
	Boxes     int64
	Kg        decimal.Decimal
}

// PlanResult is the computed allocation plus any non-blocking warnings.
type PlanResult struct {
	Plan     allocation.Plan `json:"plan"`
	Warnings []string        `json:"warnings"`
}

// PlanAllocation computes a fulfillment plan without mutating anything.
func (s *Service) PlanAllocation(ctx context.Context, input PlanInput) (PlanResult, error) {
	p, err := s.products.Get(ctx, input.ProductID)
	if err != nil {
		return PlanResult{}, err
	}
	plan, err := allocation.Compute(stockOf(p), allocation.Request{Boxes: input.Boxes, Kg: input.Kg})
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Plan: plan, Warnings: planWarnings(plan)}, nil
}

// ExecuteInput describes a sale to execute. IdempotencyKey is optional; a
// repeated key is rejected before any work happens.
type ExecuteInput struct {
	ProductID      int64
	Boxes          int64
	Kg             decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentStatus  PaymentStatus
	AmountPaid     decimal.Decimal
	ActorID        int64
	IdempotencyKey string
}

// SaleResult is the committed sale plus the plan that produced it.
type SaleResult struct {
	Sale     Sale            `json:"sale"`
	Plan     allocation.Plan `json:"plan"`
	Warnings []string        `json:"warnings"`
}

// ExecuteSale plans the allocation and commits the resulting quantities
// plus the sale record in one transaction. Any infeasibility aborts before
// any mutation.
func (s *Service) ExecuteSale(ctx context.Context, input ExecuteInput) (SaleResult, error) {
	if err := validatePaymentKinds(input.PaymentMethod, input.PaymentStatus); err != nil {
		return SaleResult{}, err
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "sales"); err != nil {
			return SaleResult{}, err
		}
		insertedKey = true
	}

	var result SaleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		plan, err := allocation.Compute(stockOf(p), allocation.Request{Boxes: input.Boxes, Kg: input.Kg})
		if err != nil {
			return err
		}

		total := p.PricePerBox.Mul(decimal.NewFromInt(input.Boxes)).
			Add(p.PricePerKg.Mul(input.Kg))
		cost := p.CostPerBox.Mul(decimal.NewFromInt(input.Boxes)).
			Add(p.CostPerKg.Mul(input.Kg))
		amountPaid, err := settleAmount(input.PaymentStatus, input.AmountPaid, total)
		if err != nil {
			return err
		}

		if err := tx.UpdateProductQuantities(ctx, p.ID, plan.FinalBoxes, plan.FinalKg); err != nil {
			return err
		}

		sale := Sale{
			Code:          fmt.Sprintf("SALE-%s", uuid.NewString()),
			ProductID:     p.ID,
			Boxes:         input.Boxes,
			Kg:            input.Kg,
			PricePerBox:   p.PricePerBox,
			PricePerKg:    p.PricePerKg,
			Total:         total,
			Cost:          cost,
			Profit:        total.Sub(cost),
			PaymentMethod: input.PaymentMethod,
			PaymentStatus: input.PaymentStatus,
			AmountPaid:    amountPaid,
			BoxesUnboxed:  plan.BoxesToUnbox,
			PerformedBy:   input.ActorID,
		}
		id, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = id
		result = SaleResult{Sale: sale, Plan: plan, Warnings: planWarnings(plan)}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return SaleResult{}, err
	}

	if s.cache != nil {
		s.cache.InvalidateCache(ctx, input.ProductID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "sales:execute",
			Entity:   "sale",
			EntityID: strconv.FormatInt(result.Sale.ID, 10),
			Meta: map[string]any{
				"product_id": input.ProductID,
				"boxes":      input.Boxes,
				"kg":         input.Kg.String(),
				"total":      result.Sale.Total.String(),
				"unboxed":    result.Sale.BoxesUnboxed,
			},
		})
	}
	return result, nil
}

// Get returns a single sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// List returns sales plus the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, filter)
}

func stockOf(p catalog.Product) allocation.Stock {
	return allocation.Stock{
		Boxes:             p.QuantityBox,
		LooseKg:           p.QuantityKg,
		BoxToKgRatio:      p.BoxToKgRatio,
		LowStockThreshold: p.BoxedLowStockThreshold,
	}
}

func planWarnings(plan allocation.Plan) []string {
	var warnings []string
	if plan.LowStock {
		warnings = append(warnings, "product at or below its low-stock threshold")
	}
	return warnings
}

func validatePaymentKinds(method PaymentMethod, status PaymentStatus) error {
	switch method {
	case PaymentCash, PaymentTransfer, PaymentCredit:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidPayment, method)
	}
	switch status {
	case PaymentPaid, PaymentPartial, PaymentUnpaid:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPayment, status)
	}
	return nil
}

// settleAmount reconciles the declared status with the amount received.
func settleAmount(status PaymentStatus, declared, total decimal.Decimal) (decimal.Decimal, error) {
	switch status {
	case PaymentPaid:
		return total, nil
	case PaymentUnpaid:
		if declared.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: unpaid sale cannot carry an amount", ErrInvalidPayment)
		}
		return decimal.Zero, nil
	case PaymentPartial:
		if !declared.IsPositive() || declared.GreaterThanOrEqual(total) {
			return decimal.Zero, fmt.Errorf("%w: partial amount must be between zero and the total", ErrInvalidPayment)
		}
		return declared, nil
	}
	return decimal.Zero, errors.New("sales: unreachable payment status")
}
