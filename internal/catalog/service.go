package catalog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	Search(ctx context.Context, q SearchQuery, offset int) ([]Product, int, error)
	LowStock(ctx context.Context, limit int) ([]Product, int, error)
}

// CachePort fronts single-product reads.
type CachePort interface {
	Fetch(ctx context.Context, id uuid.UUID, load func(context.Context) (Product, error)) (Product, error)
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// Service enforces catalog invariants.
type Service struct {
	repo   RepositoryPort
	cache  CachePort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. cache may be nil.
func NewService(repo RepositoryPort, cache CachePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// UniqueFields holds the candidate values checked against live products.
type UniqueFields struct {
	Name    *string
	SKU     *string
	Barcode *string
}

// AssertUniqueFields fails with a DuplicateFieldError naming the first of
// name, sku and barcode already held by another live product. It must run in
// the transaction of the write it guards.
func AssertUniqueFields(ctx context.Context, tx TxRepository, fields UniqueFields, excludeID *uuid.UUID) error {
	checks := []struct {
		field Field
		value *string
	}{
		{FieldName, lowered(fields.Name)},
		{FieldSKU, lowered(fields.SKU)},
		{FieldBarcode, normalizedBarcode(fields.Barcode)},
	}
	for _, c := range checks {
		if c.value == nil || *c.value == "" {
			continue
		}
		taken, err := tx.FieldTaken(ctx, c.field, *c.value, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return &DuplicateFieldError{Field: c.field}
		}
	}
	return nil
}

func uniqueFieldsOf(p Product) UniqueFields {
	return UniqueFields{Name: &p.Name, SKU: &p.SKU, Barcode: p.Barcode}
}

// Create validates and inserts a product.
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (Product, error) {
	draft, err := ParseCreateProduct(req)
	if err != nil {
		return Product{}, err
	}
	var created Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := AssertUniqueFields(ctx, tx, uniqueFieldsOf(draft), nil); err != nil {
			return err
		}
		created, err = tx.Insert(ctx, draft)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", slog.String("id", created.ID.String()), slog.String("sku", created.SKU))
	return created, nil
}

// Update applies a partial update to a live product. When the patch carries
// a version it must match the stored one.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateProductRequest) (Product, error) {
	patch, err := ParseUpdateProduct(req)
	if err != nil {
		return Product{}, err
	}
	var updated Product
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if !current.Live() {
			return ErrNotFound
		}
		if patch.Version != nil && *patch.Version != current.Version {
			return ErrVersionConflict
		}
		next := current
		patch.Apply(&next)
		if err := AssertUniqueFields(ctx, tx, uniqueFieldsOf(next), &id); err != nil {
			return err
		}
		updated, err = tx.Update(ctx, next, current.Version)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// SoftDelete marks a live product deleted. Stock and ledger history are untouched.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) (DeleteResult, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if !current.Live() {
			return ErrNotFound
		}
		at := s.now().UTC()
		next := current
		next.DeletedAt = &at
		_, err = tx.Update(ctx, next, current.Version)
		return err
	})
	if err != nil {
		return DeleteResult{}, err
	}
	s.invalidate(ctx, id)
	s.logger.Info("product deleted", slog.String("id", id.String()))
	return DeleteResult{OK: true}, nil
}

// Restore clears the soft-delete marker. Unknown ids fail with ErrNotFound;
// restoring a live product returns it unchanged.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (Product, error) {
	var restored Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockProduct(ctx, id)
		if err != nil {
			return err
		}
		if current.Live() {
			restored = current
			return nil
		}
		if err := AssertUniqueFields(ctx, tx, uniqueFieldsOf(current), &id); err != nil {
			return err
		}
		next := current
		next.DeletedAt = nil
		restored, err = tx.Update(ctx, next, current.Version)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.invalidate(ctx, id)
	return restored, nil
}

// Get returns a live product.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	if s.cache == nil {
		return s.repo.Get(ctx, id)
	}
	return s.cache.Fetch(ctx, id, func(ctx context.Context) (Product, error) {
		return s.repo.Get(ctx, id)
	})
}

// Search pages through live products.
func (s *Service) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	q.Query = strings.TrimSpace(q.Query)
	q.Status = Status(strings.ToUpper(strings.TrimSpace(string(q.Status))))
	switch q.Status {
	case "", StatusAll, StatusActive, StatusInactive:
	default:
		return SearchResult{}, shared.Invalid("status", "must be one of ALL ACTIVE INACTIVE")
	}
	q.Limit = shared.ClampLimit(q.Limit, searchDefaultLimit, searchMaxLimit)
	if q.Page <= 0 {
		q.Page = 1
	}

	page := shared.NewPagination(q.Page, q.Limit, 0)
	items, total, err := s.repo.Search(ctx, q, page.Offset())
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Items: items, Pagination: shared.NewPagination(q.Page, q.Limit, total)}, nil
}

// LowStock lists live products at or under their minimum stock, lowest first.
func (s *Service) LowStock(ctx context.Context, limit int) (LowStockResult, error) {
	limit = shared.ClampLimit(limit, lowStockDefaultLimit, lowStockMaxLimit)
	items, total, err := s.repo.LowStock(ctx, limit)
	if err != nil {
		return LowStockResult{}, err
	}
	return LowStockResult{Items: items, Total: total}, nil
}

// Invalidate drops cached copies of the given products. Ledgers call it after commit.
func (s *Service) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	s.invalidate(ctx, ids...)
}

func (s *Service) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(ctx, ids...)
}

func lowered(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	return &v
}

func normalizedBarcode(s *string) *string {
	if s == nil {
		return nil
	}
	return NormalizeBarcode(*s)
}
