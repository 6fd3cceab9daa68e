package purchases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	"github.com/odyssey-erp/odyssey-retail/internal/money"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

const ledgerName = "purchase"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByKey(ctx context.Context, key string) (Result, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Purchase, error)
}

// Invalidator drops cached catalog reads once stock changed.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// Recorder receives ledger outcomes.
type Recorder interface {
	ObserveLedger(ledger string, total decimal.Decimal, err error)
}

// Service records stock inflows.
type Service struct {
	repo    RepositoryPort
	catalog Invalidator
	metrics Recorder
	logger  *slog.Logger
}

// NewService builds Service. catalog and metrics may be nil.
func NewService(repo RepositoryPort, catalog Invalidator, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, metrics: metrics, logger: logger}
}

// Create records a purchase: every line adds to stock and, when it carries a
// cost, overwrites the product cost. Nothing is persisted unless all lines apply.
// A repeated idempotency key returns the purchase it first committed.
func (s *Service) Create(ctx context.Context, req CreatePurchaseRequest) (Result, error) {
	key, err := checkRequest(req)
	if err != nil {
		s.observe(Result{}, err)
		return Result{}, err
	}
	if key != nil {
		if prior, ok, err := s.replay(ctx, *key); err != nil || ok {
			return prior, err
		}
	}

	res, err := s.create(ctx, req, key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		if prior, ok, findErr := s.replay(ctx, *key); findErr == nil && ok {
			return prior, nil
		}
	}
	s.observe(res, err)
	return res, err
}

func checkRequest(req CreatePurchaseRequest) (*string, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyPurchase
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	return shared.NormalizeIdempotencyKey(req.IdempotencyKey)
}

func (s *Service) observe(res Result, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLedger(ledgerName, res.Total, err)
	}
}

func (s *Service) replay(ctx context.Context, key string) (Result, bool, error) {
	prior, ok, err := s.repo.FindByKey(ctx, key)
	if err != nil || !ok {
		return Result{}, false, err
	}
	prior.Replayed = true
	s.logger.Info("purchase replayed", slog.String("purchase_id", prior.PurchaseID.String()), slog.String("idempotency_key", key))
	return prior, true, nil
}

func (s *Service) create(ctx context.Context, req CreatePurchaseRequest, key *string) (Result, error) {
	ids := productIDs(req.Items)

	var res Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		for _, it := range req.Items {
			if _, ok := products[it.ProductID]; !ok {
				return &catalog.UnknownProductError{ProductID: it.ProductID}
			}
		}

		purchaseID, err := tx.InsertPurchase(ctx, key)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for i, it := range req.Items {
			unit := products[it.ProductID].Cost
			var override *decimal.Decimal
			if it.Cost != nil {
				c := money.Round(*it.Cost)
				unit, override = c, &c
			}
			line := Item{Line: i + 1, ProductID: it.ProductID, Qty: it.Qty, Cost: unit}
			if err := tx.InsertItem(ctx, purchaseID, line); err != nil {
				return err
			}
			if err := tx.IncrementStock(ctx, it.ProductID, it.Qty, override); err != nil {
				return err
			}
			total = total.Add(money.LineTotal(unit, it.Qty))
		}
		total = money.Round(total)
		if err := tx.SetTotal(ctx, purchaseID, total); err != nil {
			return err
		}
		res = Result{PurchaseID: purchaseID, Total: total}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if s.catalog != nil {
		s.catalog.Invalidate(ctx, ids...)
	}
	s.logger.Info("purchase recorded",
		slog.String("purchase_id", res.PurchaseID.String()),
		slog.Int("lines", len(req.Items)),
		slog.String("total", res.Total.StringFixed(money.Scale)))
	return res, nil
}

// Get returns a committed purchase.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

func validateItems(items []ItemRequest) error {
	if err := shared.ValidateStruct(CreatePurchaseRequest{Items: items}); err != nil {
		return err
	}
	for i, it := range items {
		if it.Cost != nil && it.Cost.IsNegative() {
			return shared.Invalid(fmt.Sprintf("items[%d].cost", i), "must be greater than or equal to 0")
		}
	}
	return nil
}

func productIDs(items []ItemRequest) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}
