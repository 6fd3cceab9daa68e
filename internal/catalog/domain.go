package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// Status enumerates product availability.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	// StatusAll disables the status filter on searches.
	StatusAll Status = "ALL"
)

const (
	DefaultUnit = "UN"

	searchDefaultLimit   = 20
	searchMaxLimit       = 100
	lowStockDefaultLimit = 50
	lowStockMaxLimit     = 200
)

var (
	// DefaultVAT applies when a product is created without a rate.
	DefaultVAT = decimal.NewFromInt(21)

	vatRates = []decimal.Decimal{
		decimal.Zero,
		decimal.RequireFromString("10.5"),
		decimal.NewFromInt(21),
		decimal.NewFromInt(27),
	}
)

// ValidVAT reports whether rate is one of the fixed VAT percentages.
func ValidVAT(rate decimal.Decimal) bool {
	for _, r := range vatRates {
		if rate.Equal(r) {
			return true
		}
	}
	return false
}

// Product is a catalog entry.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	NameLower   string          `json:"-"`
	SKU         string          `json:"sku"`
	SKULower    string          `json:"-"`
	Barcode     *string         `json:"barcode"`
	Unit        string          `json:"unit"`
	Category    *string         `json:"category,omitempty"`
	Description *string         `json:"description,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
	Price       decimal.Decimal `json:"price"`
	VAT         decimal.Decimal `json:"vat"`
	StockQty    int             `json:"stockQty"`
	MinStock    int             `json:"minStock"`
	Status      Status          `json:"status"`
	Slug        string          `json:"slug"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
	Version     int             `json:"version"`
}

// Live reports whether the product is not soft-deleted.
func (p Product) Live() bool { return p.DeletedAt == nil }

// BelowMinimum reports whether stock sits at or under the alert threshold.
func (p Product) BelowMinimum() bool { return p.StockQty <= p.MinStock }

// SearchQuery filters the product listing.
type SearchQuery struct {
	Query  string
	Status Status
	Page   int
	Limit  int
}

// SearchResult is one page of products.
type SearchResult struct {
	Items []Product `json:"items"`
	shared.Pagination
}

// LowStockResult lists products at or under their minimum stock.
type LowStockResult struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
}

// DeleteResult acknowledges a soft delete.
type DeleteResult struct {
	OK bool `json:"ok"`
}
