// Package sales executes box/kg sales against product stock. Sales apply
// immediately; only corrective and creative operations go through the
// movement approval ledger.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	// PaymentCash is settled in cash on the spot.
	PaymentCash PaymentMethod = "cash"
	// PaymentTransfer is settled by bank transfer.
	PaymentTransfer PaymentMethod = "transfer"
	// PaymentCredit is settled later on the customer's account.
	PaymentCredit PaymentMethod = "credit"
)

// PaymentStatus enumerates settlement states.
type PaymentStatus string

const (
	// PaymentPaid means the full amount was received.
	PaymentPaid PaymentStatus = "paid"
	// PaymentPartial means part of the amount was received.
	PaymentPartial PaymentStatus = "partial"
	// PaymentUnpaid means nothing was received yet.
	PaymentUnpaid PaymentStatus = "unpaid"
)

// Sale is an executed sale with prices captured at sale time.
type Sale struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	ProductID     int64           `json:"product_id"`
	Boxes         int64           `json:"boxes"`
	Kg            decimal.Decimal `json:"kg"`
	PricePerBox   decimal.Decimal `json:"price_per_box"`
	PricePerKg    decimal.Decimal `json:"price_per_kg"`
	Total         decimal.Decimal `json:"total"`
	Cost          decimal.Decimal `json:"cost"`
	Profit        decimal.Decimal `json:"profit"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	BoxesUnboxed  int64           `json:"boxes_unboxed"`
	PerformedBy   int64           `json:"performed_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ListFilter narrows sale listings.
type ListFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

// ErrSaleNotFound indicates a missing sale row.
var ErrSaleNotFound = errors.New("sales: sale not found")

// ErrInvalidPayment indicates an unknown method/status or an amount that
// contradicts the status.
var ErrInvalidPayment = errors.New("sales: invalid payment")
