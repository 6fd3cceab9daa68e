package purchases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-retail/internal/catalog"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

type memoryProduct struct {
	ref     ProductRef
	deleted bool
	version int
}

type memoryRepo struct {
	mu        sync.Mutex
	products  map[uuid.UUID]memoryProduct
	purchases map[uuid.UUID]Purchase
	keys      map[string]uuid.UUID
	txCount   int
	failOn    string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[uuid.UUID]memoryProduct{}, purchases: map[uuid.UUID]Purchase{}, keys: map[string]uuid.UUID{}}
}

func (m *memoryRepo) addProduct(name, cost string, stock int) uuid.UUID {
	id := uuid.New()
	m.products[id] = memoryProduct{ref: ProductRef{ID: id, Name: name, Cost: decimal.RequireFromString(cost), StockQty: stock}, version: 1}
	return id
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++
	products := make(map[uuid.UUID]memoryProduct, len(m.products))
	for k, v := range m.products {
		products[k] = v
	}
	purchases := make(map[uuid.UUID]Purchase, len(m.purchases))
	for k, v := range m.purchases {
		purchases[k] = v
	}
	keys := make(map[string]uuid.UUID, len(m.keys))
	for k, v := range m.keys {
		keys[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.products, m.purchases, m.keys = products, purchases, keys
		return err
	}
	return nil
}

func (m *memoryRepo) FindByKey(ctx context.Context, key string) (Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	if !ok {
		return Result{}, false, nil
	}
	return Result{PurchaseID: id, Total: m.purchases[id].Total}, true, nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return Purchase{}, ErrNotFound
	}
	return p, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductRef, error) {
	out := map[uuid.UUID]ProductRef{}
	for _, id := range ids {
		if p, ok := tx.repo.products[id]; ok && !p.deleted {
			out[id] = p.ref
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertPurchase(ctx context.Context, key *string) (uuid.UUID, error) {
	id := uuid.New()
	if key != nil {
		if _, taken := tx.repo.keys[*key]; taken {
			return uuid.Nil, shared.ErrIdempotencyConflict
		}
		tx.repo.keys[*key] = id
	}
	tx.repo.purchases[id] = Purchase{ID: id, Items: []Item{}}
	return id, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, purchaseID uuid.UUID, item Item) error {
	if tx.repo.failOn == "item" && item.Line > 1 {
		return errors.New("insert failed")
	}
	p := tx.repo.purchases[purchaseID]
	item.ID = uuid.New()
	p.Items = append(append([]Item{}, p.Items...), item)
	tx.repo.purchases[purchaseID] = p
	return nil
}

func (tx *memoryTx) IncrementStock(ctx context.Context, productID uuid.UUID, qty int, cost *decimal.Decimal) error {
	p := tx.repo.products[productID]
	p.ref.StockQty += qty
	if cost != nil {
		p.ref.Cost = *cost
	}
	p.version++
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) SetTotal(ctx context.Context, purchaseID uuid.UUID, total decimal.Decimal) error {
	p := tx.repo.purchases[purchaseID]
	p.Total = total
	tx.repo.purchases[purchaseID] = p
	return nil
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	r.ids = append(r.ids, ids...)
}

type recordingMetrics struct {
	outcomes []error
}

func (r *recordingMetrics) ObserveLedger(ledger string, total decimal.Decimal, err error) {
	r.outcomes = append(r.outcomes, err)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreatePurchaseIncrementsStockAndOverwritesCost(t *testing.T) {
	repo := newMemoryRepo()
	productID := repo.addProduct("Harina 000", "8.00", 3)
	inv := &recordingInvalidator{}
	metrics := &recordingMetrics{}
	svc := NewService(repo, inv, metrics, nil)

	res, err := svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{
		{ProductID: productID, Qty: 5, Cost: dec("10.00")},
	}})
	require.NoError(t, err)
	require.Equal(t, "50.00", res.Total.StringFixed(2))

	p := repo.products[productID]
	require.Equal(t, 8, p.ref.StockQty)
	require.Equal(t, "10.00", p.ref.Cost.StringFixed(2))
	require.Equal(t, 2, p.version)
	require.Equal(t, []uuid.UUID{productID}, inv.ids)
	require.Equal(t, []error{nil}, metrics.outcomes)

	stored, err := svc.Get(context.Background(), res.PurchaseID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.Equal(t, 1, stored.Items[0].Line)
	require.True(t, stored.Total.Equal(res.Total))
}

func TestCreatePurchaseDefaultsToCurrentCost(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.addProduct("Yerba", "12.50", 0)
	b := repo.addProduct("Azucar", "3.10", 4)
	svc := NewService(repo, nil, nil, nil)

	res, err := svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{
		{ProductID: a, Qty: 2},
		{ProductID: b, Qty: 3, Cost: dec("3.333")},
		{ProductID: a, Qty: 1},
	}})
	require.NoError(t, err)
	// 2*12.50 + 3*3.33 + 1*12.50
	require.Equal(t, "47.49", res.Total.StringFixed(2))
	require.Equal(t, 3, repo.products[a].ref.StockQty)
	require.Equal(t, "12.50", repo.products[a].ref.Cost.StringFixed(2))
	require.Equal(t, 7, repo.products[b].ref.StockQty)
	require.Equal(t, "3.33", repo.products[b].ref.Cost.StringFixed(2))
}

func TestCreatePurchaseEmptyDoesNotTouchStore(t *testing.T) {
	repo := newMemoryRepo()
	metrics := &recordingMetrics{}
	svc := NewService(repo, nil, metrics, nil)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{})
	require.ErrorIs(t, err, ErrEmptyPurchase)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, repo.txCount)
	require.Len(t, metrics.outcomes, 1)
}

func TestCreatePurchaseValidatesLines(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Sal", "1", 0)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{{ProductID: id, Qty: 0}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{{ProductID: id, Qty: 1, Cost: dec("-1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{{Qty: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, repo.txCount)
}

func TestCreatePurchaseUnknownProductRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	known := repo.addProduct("Aceite", "20", 1)
	deleted := repo.addProduct("Viejo", "1", 0)
	p := repo.products[deleted]
	p.deleted = true
	repo.products[deleted] = p
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv, nil, nil)

	missing := uuid.New()
	_, err := svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{
		{ProductID: known, Qty: 1},
		{ProductID: missing, Qty: 1},
	}})
	var unknown *catalog.UnknownProductError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, missing, unknown.ProductID)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{{ProductID: deleted, Qty: 1}}})
	require.ErrorAs(t, err, &unknown)

	require.Equal(t, 1, repo.products[known].ref.StockQty)
	require.Empty(t, repo.purchases)
	require.Empty(t, inv.ids)
}

func TestCreatePurchaseFailureMidwayRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	a := repo.addProduct("Arroz", "5", 2)
	b := repo.addProduct("Fideos", "4", 2)
	repo.failOn = "item"
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{Items: []ItemRequest{
		{ProductID: a, Qty: 1, Cost: dec("6")},
		{ProductID: b, Qty: 1},
	}})
	require.Error(t, err)
	require.Equal(t, 2, repo.products[a].ref.StockQty)
	require.Equal(t, "5", repo.products[a].ref.Cost.String())
	require.Empty(t, repo.purchases)
}

func TestCreatePurchaseReplaysIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Aceite", "4.00", 1)
	metrics := &recordingMetrics{}
	svc := NewService(repo, nil, metrics, nil)
	req := CreatePurchaseRequest{
		Items:          []ItemRequest{{ProductID: id, Qty: 6, Cost: dec("4.20")}},
		IdempotencyKey: "remito-0042",
	}

	first, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.PurchaseID, second.PurchaseID)
	require.Equal(t, "25.20", second.Total.StringFixed(2))
	require.Equal(t, 7, repo.products[id].ref.StockQty)
	require.Len(t, repo.purchases, 1)
	require.Len(t, metrics.outcomes, 1)
}

func TestCreatePurchaseRejectsMalformedKey(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Sal", "1.00", 0)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreatePurchaseRequest{
		Items:          []ItemRequest{{ProductID: id, Qty: 1}},
		IdempotencyKey: "no spaces allowed",
	})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "idempotencyKey", verr.Fields[0].Field)
	require.Zero(t, repo.txCount)
}
