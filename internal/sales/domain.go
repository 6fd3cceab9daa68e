package sales

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/money"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

var (
	// ErrEmptySale rejects a sale without lines.
	ErrEmptySale = fmt.Errorf("sales: sale has no items: %w", shared.ErrValidation)
	// ErrNoPayment rejects a sale without payments.
	ErrNoPayment = fmt.Errorf("sales: sale has no payments: %w", shared.ErrValidation)
	// ErrNotFound indicates the sale does not exist.
	ErrNotFound = fmt.Errorf("sales: sale %w", shared.ErrNotFound)
)

// InsufficientStockError reports a line asking for more units than are on hand.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("sales: insufficient stock of %s (%s): available %d, requested %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return shared.ErrValidation }

// PaymentMismatchError reports payments that do not add up to the sale total.
type PaymentMismatchError struct {
	Paid  decimal.Decimal
	Total decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("sales: paid %s does not match total %s",
		e.Paid.StringFixed(money.Scale), e.Total.StringFixed(money.Scale))
}

func (e *PaymentMismatchError) Unwrap() error { return shared.ErrValidation }

// Method enumerates accepted payment instruments.
type Method string

const (
	MethodCash     Method = "cash"
	MethodDebit    Method = "debit"
	MethodCredit   Method = "credit"
	MethodTransfer Method = "transfer"
)

// ItemRequest is one sale line as submitted by the point of sale.
type ItemRequest struct {
	ProductID uuid.UUID       `json:"productId" validate:"required"`
	Qty       int             `json:"qty" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
	VAT       decimal.Decimal `json:"vat"`
}

// PaymentRequest is one tender applied to the sale.
type PaymentRequest struct {
	Method Method          `json:"method" validate:"required,oneof=cash debit credit transfer"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateSaleRequest is the body accepted when recording a sale.
type CreateSaleRequest struct {
	Items    []ItemRequest    `json:"items" validate:"dive"`
	Payments []PaymentRequest `json:"payments" validate:"dive"`
	// IdempotencyKey is taken from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// Result acknowledges a committed sale.
type Result struct {
	SaleID uuid.UUID       `json:"saleId"`
	Total  decimal.Decimal `json:"total"`
	// Replayed marks a result returned for an already committed key.
	Replayed bool `json:"-"`
}

// Item is a persisted sale line with its price and VAT snapshot.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	Line      int             `json:"line"`
	ProductID uuid.UUID       `json:"productId"`
	Qty       int             `json:"qty"`
	Price     decimal.Decimal `json:"price"`
	VAT       decimal.Decimal `json:"vat"`
}

// Payment is a persisted tender.
type Payment struct {
	ID     uuid.UUID       `json:"id"`
	Line   int             `json:"line"`
	Method Method          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// Sale is a committed stock outflow.
type Sale struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Total     decimal.Decimal `json:"total"`
	Items     []Item          `json:"items"`
	Payments  []Payment       `json:"payments"`
}

// ProductRef is the locked product state a sale line needs.
type ProductRef struct {
	ID       uuid.UUID
	Name     string
	Price    decimal.Decimal
	VAT      decimal.Decimal
	StockQty int
	MinStock int
}

// LowStockAlert describes a product that a sale left at or under its minimum.
type LowStockAlert struct {
	ProductID uuid.UUID
	Name      string
	StockQty  int
	MinStock  int
}
