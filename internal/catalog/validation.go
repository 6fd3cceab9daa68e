package catalog

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/money"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// CreateProductRequest is the body accepted when creating a product.
type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,max=120"`
	SKU         string           `json:"sku" validate:"required"`
	Barcode     *string          `json:"barcode"`
	Unit        string           `json:"unit" validate:"max=8"`
	Category    *string          `json:"category" validate:"omitempty,max=40"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Cost        *decimal.Decimal `json:"cost"`
	Price       decimal.Decimal  `json:"price"`
	VAT         *decimal.Decimal `json:"vat"`
	StockQty    int              `json:"stockQty" validate:"gte=0"`
	MinStock    int              `json:"minStock" validate:"gte=0"`
	Status      Status           `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	Slug        *string          `json:"slug" validate:"omitempty,max=140"`
}

// UpdateProductRequest is a partial update. Absent fields are left untouched;
// an empty barcode, category or description clears the stored value.
type UpdateProductRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=120"`
	SKU         *string          `json:"sku"`
	Barcode     *string          `json:"barcode"`
	Unit        *string          `json:"unit" validate:"omitempty,max=8"`
	Category    *string          `json:"category" validate:"omitempty,max=40"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Cost        *decimal.Decimal `json:"cost"`
	Price       *decimal.Decimal `json:"price"`
	VAT         *decimal.Decimal `json:"vat"`
	StockQty    *int             `json:"stockQty" validate:"omitempty,gte=0"`
	MinStock    *int             `json:"minStock" validate:"omitempty,gte=0"`
	Status      *Status          `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	Slug        *string          `json:"slug" validate:"omitempty,max=140"`
	Version     *int             `json:"version"`
}

// ProductPatch is a validated, normalised UpdateProductRequest.
type ProductPatch struct {
	Name        *string
	SKU         *string
	Barcode     *string
	Unit        *string
	Category    *string
	Description *string
	Cost        *decimal.Decimal
	Price       *decimal.Decimal
	VAT         *decimal.Decimal
	StockQty    *int
	MinStock    *int
	Status      *Status
	Slug        *string
	Version     *int
}

type fieldErrors []shared.FieldError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, shared.FieldError{Field: field, Message: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &shared.ValidationError{Fields: f}
}

func structErrors(s any) (fieldErrors, error) {
	err := shared.ValidateStruct(s)
	if err == nil {
		return nil, nil
	}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields, nil
	}
	return nil, err
}

// ParseCreateProduct validates req and returns the product to persist.
func ParseCreateProduct(req CreateProductRequest) (Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.TrimSpace(req.SKU)
	req.Unit = strings.TrimSpace(req.Unit)
	req.Category = trimmed(req.Category)
	req.Description = trimmed(req.Description)

	errs, err := structErrors(req)
	if err != nil {
		return Product{}, err
	}
	if req.SKU != "" && !skuPattern.MatchString(req.SKU) {
		errs.add("sku", "must be 3-32 letters, digits, '_', '-' or '.'")
	}

	cost := decimal.Zero
	if req.Cost != nil {
		cost = money.Round(*req.Cost)
	}
	price := money.Round(req.Price)
	vat := DefaultVAT
	if req.VAT != nil {
		vat = *req.VAT
	}
	checkAmounts(&errs, price, cost, vat)
	if err := errs.err(); err != nil {
		return Product{}, err
	}

	var barcode *string
	if req.Barcode != nil {
		barcode = NormalizeBarcode(*req.Barcode)
	}
	if barcode != nil && !IsValidBarcode(*barcode) {
		return Product{}, ErrInvalidBarcode
	}

	p := Product{
		Name:        req.Name,
		NameLower:   strings.ToLower(req.Name),
		SKU:         req.SKU,
		SKULower:    strings.ToLower(req.SKU),
		Barcode:     barcode,
		Unit:        req.Unit,
		Category:    req.Category,
		Description: req.Description,
		Cost:        cost,
		Price:       price,
		VAT:         vat,
		StockQty:    req.StockQty,
		MinStock:    req.MinStock,
		Status:      req.Status,
	}
	if p.Unit == "" {
		p.Unit = DefaultUnit
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	p.Slug = deriveSlug(req.Slug, p.Name, p.SKU)
	return p, nil
}

// ParseUpdateProduct validates the supplied fields of req.
func ParseUpdateProduct(req UpdateProductRequest) (ProductPatch, error) {
	req.Name = trimmedKeep(req.Name)
	req.SKU = trimmedKeep(req.SKU)
	req.Unit = trimmedKeep(req.Unit)
	req.Category = trimmedKeep(req.Category)
	req.Description = trimmedKeep(req.Description)

	errs, err := structErrors(req)
	if err != nil {
		return ProductPatch{}, err
	}
	if req.Name != nil && *req.Name == "" {
		errs.add("name", "is required")
	}
	if req.SKU != nil && !skuPattern.MatchString(*req.SKU) {
		errs.add("sku", "must be 3-32 letters, digits, '_', '-' or '.'")
	}

	patch := ProductPatch{
		Name:        req.Name,
		SKU:         req.SKU,
		Unit:        req.Unit,
		Category:    req.Category,
		Description: req.Description,
		StockQty:    req.StockQty,
		MinStock:    req.MinStock,
		Status:      req.Status,
		Slug:        req.Slug,
		Version:     req.Version,
	}
	if req.Price != nil {
		price := money.Round(*req.Price)
		if !price.IsPositive() {
			errs.add("price", "must be greater than 0")
		}
		patch.Price = &price
	}
	if req.Cost != nil {
		cost := money.Round(*req.Cost)
		if cost.IsNegative() {
			errs.add("cost", "must be greater than or equal to 0")
		}
		patch.Cost = &cost
	}
	if req.VAT != nil {
		if !ValidVAT(*req.VAT) {
			errs.add("vat", "must be one of 0, 10.5, 21, 27")
		}
		vat := *req.VAT
		patch.VAT = &vat
	}
	if err := errs.err(); err != nil {
		return ProductPatch{}, err
	}

	if req.Barcode != nil {
		barcode := NormalizeBarcode(*req.Barcode)
		if barcode != nil && !IsValidBarcode(*barcode) {
			return ProductPatch{}, ErrInvalidBarcode
		}
		cleared := ""
		if barcode == nil {
			barcode = &cleared
		}
		patch.Barcode = barcode
	}
	return patch, nil
}

// Apply merges the patch into p and refreshes the derived columns.
func (patch ProductPatch) Apply(p *Product) {
	if patch.Name != nil {
		p.Name = *patch.Name
		p.NameLower = strings.ToLower(p.Name)
	}
	if patch.SKU != nil {
		p.SKU = *patch.SKU
		p.SKULower = strings.ToLower(p.SKU)
	}
	if patch.Barcode != nil {
		p.Barcode = nonEmpty(*patch.Barcode)
	}
	if patch.Unit != nil {
		p.Unit = *patch.Unit
		if p.Unit == "" {
			p.Unit = DefaultUnit
		}
	}
	if patch.Category != nil {
		p.Category = nonEmpty(*patch.Category)
	}
	if patch.Description != nil {
		p.Description = nonEmpty(*patch.Description)
	}
	if patch.Cost != nil {
		p.Cost = *patch.Cost
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.VAT != nil {
		p.VAT = *patch.VAT
	}
	if patch.StockQty != nil {
		p.StockQty = *patch.StockQty
	}
	if patch.MinStock != nil {
		p.MinStock = *patch.MinStock
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	switch {
	case patch.Slug != nil:
		p.Slug = deriveSlug(patch.Slug, p.Name, p.SKU)
	case patch.Name != nil:
		p.Slug = deriveSlug(nil, p.Name, p.SKU)
	}
}

func checkAmounts(errs *fieldErrors, price, cost, vat decimal.Decimal) {
	if !price.IsPositive() {
		errs.add("price", "must be greater than 0")
	}
	if cost.IsNegative() {
		errs.add("cost", "must be greater than or equal to 0")
	}
	if !ValidVAT(vat) {
		errs.add("vat", "must be one of 0, 10.5, 21, 27")
	}
}

func deriveSlug(explicit *string, name, sku string) string {
	if explicit != nil {
		if s := Slugify(*explicit); s != "" {
			return s
		}
	}
	if s := Slugify(name); s != "" {
		return s
	}
	return Slugify(sku)
}

// trimmed trims s and maps an empty result to nil.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return nonEmpty(strings.TrimSpace(*s))
}

// trimmedKeep trims s but keeps an empty result so patches can clear a field.
func trimmedKeep(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
