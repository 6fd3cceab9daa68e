package catalog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

var (
	// ErrNotFound indicates the product is absent or soft-deleted.
	ErrNotFound = fmt.Errorf("catalog: product %w", shared.ErrNotFound)
	// ErrDuplicate is matched by every DuplicateFieldError.
	ErrDuplicate = fmt.Errorf("catalog: %w", shared.ErrDuplicate)
	// ErrVersionConflict indicates the row changed after it was read.
	ErrVersionConflict = fmt.Errorf("catalog: product was modified concurrently: %w", shared.ErrConflict)
	// ErrInvalidBarcode rejects barcodes with a bad length or check digit.
	ErrInvalidBarcode error = &shared.ValidationError{Fields: []shared.FieldError{{
		Field:   "barcode",
		Message: "must be an EAN-8, UPC-A or EAN-13 code with a valid check digit",
	}}}
)

// Field names a uniqueness-constrained product column.
type Field string

const (
	FieldName    Field = "name"
	FieldSKU     Field = "sku"
	FieldBarcode Field = "barcode"
)

// DuplicateFieldError reports which live product already holds a value.
type DuplicateFieldError struct {
	Field Field
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("catalog: a product with that %s already exists", e.Field)
}

func (e *DuplicateFieldError) Unwrap() error { return ErrDuplicate }

// DuplicateField extracts the colliding field from err, if any.
func DuplicateField(err error) (Field, bool) {
	var dup *DuplicateFieldError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}

// UnknownProductError reports a ledger line referencing a product that is
// absent or soft-deleted.
type UnknownProductError struct {
	ProductID uuid.UUID
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("unknown product %s", e.ProductID)
}

func (e *UnknownProductError) Unwrap() error { return shared.ErrValidation }
