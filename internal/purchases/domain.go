package purchases

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

var (
	// ErrEmptyPurchase rejects a purchase without lines.
	ErrEmptyPurchase = fmt.Errorf("purchases: purchase has no items: %w", shared.ErrValidation)
	// ErrNotFound indicates the purchase does not exist.
	ErrNotFound = fmt.Errorf("purchases: purchase %w", shared.ErrNotFound)
)

// ItemRequest is one purchase line as submitted. An absent cost keeps the
// product's current cost.
type ItemRequest struct {
	ProductID uuid.UUID        `json:"productId" validate:"required"`
	Qty       int              `json:"qty" validate:"gt=0"`
	Cost      *decimal.Decimal `json:"cost"`
}

// CreatePurchaseRequest is the body accepted when recording stock inflow.
type CreatePurchaseRequest struct {
	Items []ItemRequest `json:"items" validate:"dive"`
	// IdempotencyKey is taken from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// Result acknowledges a committed purchase.
type Result struct {
	PurchaseID uuid.UUID       `json:"purchaseId"`
	Total      decimal.Decimal `json:"total"`
	// Replayed marks a result served from an earlier request with the same key.
	Replayed bool `json:"-"`
}

// Item is a persisted purchase line.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	Line      int             `json:"line"`
	ProductID uuid.UUID       `json:"productId"`
	Qty       int             `json:"qty"`
	Cost      decimal.Decimal `json:"cost"`
}

// Purchase is a committed stock inflow with its lines.
type Purchase struct {
	ID        uuid.UUID       `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Total     decimal.Decimal `json:"total"`
	Items     []Item          `json:"items"`
}

// ProductRef is the locked product state a purchase line needs.
type ProductRef struct {
	ID       uuid.UUID
	Name     string
	Cost     decimal.Decimal
	StockQty int
}
