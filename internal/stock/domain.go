// Package stock implements the movement ledger and its approval state
// machine. Every inventory-affecting change is proposed as a pending
// movement; it mutates product quantities only when an authorised actor
// approves it, inside the same transaction as the status change.
package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates the supported proposal kinds.
type MovementType string

const (
	// MovementNewStock records stock arriving from a supplier.
	MovementNewStock MovementType = "new_stock"
	// MovementStockCorrection records a manual count correction.
	MovementStockCorrection MovementType = "stock_correction"
	// MovementDamaged records stock written off as damaged.
	MovementDamaged MovementType = "damaged"
	// MovementProductEdit records a single attribute change on a product.
	MovementProductEdit MovementType = "product_edit"
	// MovementProductDelete records a request to remove a product entirely.
	MovementProductDelete MovementType = "product_delete"
	// MovementProductCreate records a deferred product creation proposal.
	MovementProductCreate MovementType = "product_create"
)

// MovementStatus enumerates the lifecycle states. Only pending is
// non-terminal.
type MovementStatus string

const (
	// StatusPending awaits an approve/reject/cancel decision.
	StatusPending MovementStatus = "pending"
	// StatusCompleted means the movement was approved and applied.
	StatusCompleted MovementStatus = "completed"
	// StatusCancelled means the requester withdrew the movement.
	StatusCancelled MovementStatus = "cancelled"
	// StatusRejected means an approver declined the movement.
	StatusRejected MovementStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s MovementStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// Movement is one ledger entry. ProductID is optional only because a
// product_create movement has no product until it is approved.
type Movement struct {
	ID              int64           `json:"id"`
	Type            MovementType    `json:"movement_type"`
	Status          MovementStatus  `json:"status"`
	ProductID       *int64          `json:"product_id,omitempty"`
	BoxChange       int64           `json:"box_change"`
	KgChange        decimal.Decimal `json:"kg_change"`
	StockAdditionID *int64          `json:"stock_addition_id,omitempty"`
	DamageReportID  *int64          `json:"damaged_id,omitempty"`
	CorrectionID    *int64          `json:"correction_id,omitempty"`
	FieldChanged    string          `json:"field_changed,omitempty"`
	OldValue        string          `json:"old_value,omitempty"`
	NewValue        string          `json:"new_value,omitempty"`
	PerformedBy     int64           `json:"performed_by"`
	DecidedBy       *int64          `json:"decided_by,omitempty"`
	DecidedAt       *time.Time      `json:"decided_at,omitempty"`
	RejectReason    string          `json:"reject_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StockAddition is the reference record behind a new_stock movement.
type StockAddition struct {
	ID        int64
	ProductID int64
	Boxes     int64
	Kg        decimal.Decimal
	Note      string
	CreatedBy int64
	CreatedAt time.Time
}

// StockCorrection is the reference record behind a stock_correction movement.
type StockCorrection struct {
	ID        int64
	ProductID int64
	Boxes     int64
	Kg        decimal.Decimal
	Reason    string
	CreatedBy int64
	CreatedAt time.Time
}

// DamageReport is the reference record behind a damaged movement. It carries
// its own approval flag, flipped when the linked movement is approved.
type DamageReport struct {
	ID        int64
	ProductID int64
	Boxes     int64
	Kg        decimal.Decimal
	Reason    string
	Approved  bool
	CreatedBy int64
	CreatedAt time.Time
}

// ListFilter narrows movement listings.
type ListFilter struct {
	Status    MovementStatus
	Type      MovementType
	ProductID int64
	Page      int
	PerPage   int
}

// ErrMovementNotFound indicates a missing ledger entry.
var ErrMovementNotFound = errors.New("stock: movement not found")

// ErrNotPending is returned when a terminal movement is acted on again.
// Callers should treat it as "already handled", not as a hard failure.
var ErrNotPending = errors.New("stock: movement is not pending")

// ErrNegativeStock flags an approval whose delta would leave a quantity
// negative. It aborts the transaction and is logged as a fault.
var ErrNegativeStock = errors.New("stock: movement would make stock negative")

// ErrNotRequester is returned when someone other than the original
// requester (or a privileged actor) tries to cancel.
var ErrNotRequester = errors.New("stock: only the requester may cancel")

// ErrReasonRequired is returned when a rejection carries no reason.
var ErrReasonRequired = errors.New("stock: rejection reason is required")

// ErrParsePayload flags an approval that could not decode its edit or
// creation payload.
var ErrParsePayload = errors.New("stock: movement payload could not be parsed")
