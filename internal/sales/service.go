package sales

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

const ledgerName = "sale"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindByKey(ctx context.Context, key string) (Result, bool, error)
	Get(ctx context.Context, id uuid.UUID) (Sale, error)
}

// Invalidator drops cached catalog reads once stock changed.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...uuid.UUID)
}

// Recorder receives ledger outcomes.
type Recorder interface {
	ObserveLedger(ledger string, total decimal.Decimal, err error)
}

// Alerter is told about products a committed sale left at or under minimum stock.
type Alerter interface {
	LowStock(ctx context.Context, alerts []LowStockAlert) error
}

// ServiceConfig tunes pricing behaviour.
type ServiceConfig struct {
	// EnforceCatalogPrice charges the stored price and VAT instead of the
	// values sent by the point of sale.
	EnforceCatalogPrice bool
}

// Service records stock outflows paid in full.
type Service struct {
	repo    RepositoryPort
	catalog Invalidator
	metrics Recorder
	alerts  Alerter
	cfg     ServiceConfig
	logger  *slog.Logger
}

// NewService builds Service. catalog, metrics and alerts may be nil.
func NewService(repo RepositoryPort, cfg ServiceConfig, catalog Invalidator, metrics Recorder, alerts Alerter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, metrics: metrics, alerts: alerts, cfg: cfg, logger: logger}
}

// Create records a sale. Stock is decremented for every line and payments
// must cover the total exactly; otherwise nothing is persisted. A request
// carrying an idempotency key that already committed returns the stored result.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (Result, error) {
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

	res, alerts, err := s.create(ctx, req, key)
	if errors.Is(err, shared.ErrIdempotencyConflict) {
		// A concurrent request with the same key won the insert.
		if prior, ok, findErr := s.replay(ctx, *key); findErr == nil && ok {
			return prior, nil
		}
	}
	s.observe(res, err)
	if err != nil {
		return Result{}, err
	}
	s.notifyLowStock(ctx, res.SaleID, alerts)
	return res, nil
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
	s.logger.Info("sale replayed", slog.String("sale_id", prior.SaleID.String()), slog.String("idempotency_key", key))
	return prior, true, nil
}

func (s *Service) create(ctx context.Context, req CreateSaleRequest, key *string) (Result, []LowStockAlert, error) {
	ids, requested := aggregate(req.Items)

	var (
		res    Result
		alerts []LowStockAlert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			p, ok := products[id]
			if !ok {
				return &catalog.UnknownProductError{ProductID: id}
			}
			if p.StockQty < requested[id] {
				return &InsufficientStockError{ProductID: id, Name: p.Name, Available: p.StockQty, Requested: requested[id]}
			}
		}

		lines := make([]Item, len(req.Items))
		subtotal := decimal.Zero
		for i, it := range req.Items {
			price, vat := money.Round(it.Price), it.VAT
			if s.cfg.EnforceCatalogPrice {
				price, vat = products[it.ProductID].Price, products[it.ProductID].VAT
			}
			lines[i] = Item{Line: i + 1, ProductID: it.ProductID, Qty: it.Qty, Price: price, VAT: vat}
			subtotal = subtotal.Add(money.LineTotal(price, it.Qty))
		}
		subtotal = money.Round(subtotal)
		total := subtotal

		amounts := make([]decimal.Decimal, len(req.Payments))
		for i, p := range req.Payments {
			amounts[i] = p.Amount
		}
		paid := money.Sum(amounts...)
		if !money.Equal(paid, total) {
			return &PaymentMismatchError{Paid: money.Round(paid), Total: total}
		}

		saleID, err := tx.InsertSale(ctx, subtotal, total, key)
		if err != nil {
			return err
		}
		remaining := make(map[uuid.UUID]int, len(ids))
		for _, line := range lines {
			if err := tx.InsertItem(ctx, saleID, line); err != nil {
				return err
			}
			left, err := tx.DecrementStock(ctx, line.ProductID, line.Qty)
			if err != nil {
				return err
			}
			remaining[line.ProductID] = left
		}
		for i, p := range req.Payments {
			payment := Payment{Line: i + 1, Method: p.Method, Amount: money.Round(p.Amount)}
			if err := tx.InsertPayment(ctx, saleID, payment); err != nil {
				return err
			}
		}

		for _, id := range ids {
			p := products[id]
			if left := remaining[id]; left <= p.MinStock {
				alerts = append(alerts, LowStockAlert{ProductID: id, Name: p.Name, StockQty: left, MinStock: p.MinStock})
			}
		}
		res = Result{SaleID: saleID, Total: total}
		return nil
	})
	if err != nil {
		return Result{}, nil, err
	}

	if s.catalog != nil {
		s.catalog.Invalidate(ctx, ids...)
	}
	s.logger.Info("sale recorded",
		slog.String("sale_id", res.SaleID.String()),
		slog.Int("lines", len(req.Items)),
		slog.Int("payments", len(req.Payments)),
		slog.String("total", res.Total.StringFixed(money.Scale)))
	return res, alerts, nil
}

// notifyLowStock is best effort: the sale is already committed.
func (s *Service) notifyLowStock(ctx context.Context, saleID uuid.UUID, alerts []LowStockAlert) {
	if s.alerts == nil || len(alerts) == 0 {
		return
	}
	if err := s.alerts.LowStock(ctx, alerts); err != nil {
		s.logger.Warn("low stock alert not queued",
			slog.String("sale_id", saleID.String()),
			slog.Int("products", len(alerts)),
			slog.Any("error", err))
	}
}

// Get returns a committed sale.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// checkRequest rejects malformed input before any store access and returns
// the normalized idempotency key.
func checkRequest(req CreateSaleRequest) (*string, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptySale
	}
	if len(req.Payments) == 0 {
		return nil, ErrNoPayment
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return shared.NormalizeIdempotencyKey(req.IdempotencyKey)
}

func validateRequest(req CreateSaleRequest) error {
	if err := shared.ValidateStruct(req); err != nil {
		return err
	}
	for i, it := range req.Items {
		if it.Price.IsNegative() {
			return shared.Invalid(fmt.Sprintf("items[%d].price", i), "must be greater than or equal to 0")
		}
		if !catalog.ValidVAT(it.VAT) {
			return shared.Invalid(fmt.Sprintf("items[%d].vat", i), "must be one of 0 10.5 21 27")
		}
	}
	for i, p := range req.Payments {
		// Amounts are stored to the cent, so a sub-cent payment would persist as zero.
		if !money.Round(p.Amount).IsPositive() {
			return shared.Invalid(fmt.Sprintf("payments[%d].amount", i), "must be at least 0.01")
		}
	}
	return nil
}

// aggregate returns the distinct products in first-seen order and the total
// quantity each one is asked for across lines.
func aggregate(items []ItemRequest) ([]uuid.UUID, map[uuid.UUID]int) {
	requested := make(map[uuid.UUID]int, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if _, ok := requested[it.ProductID]; !ok {
			ids = append(ids, it.ProductID)
		}
		requested[it.ProductID] += it.Qty
	}
	return ids, requested
}
