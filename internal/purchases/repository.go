package purchases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-retail/internal/platform/db"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

const idempotencyIndex = "uq_purchases_idempotency_key"

// Repository persists purchases in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductRef, error)
	InsertPurchase(ctx context.Context, key *string) (uuid.UUID, error)
	InsertItem(ctx context.Context, purchaseID uuid.UUID, item Item) error
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int, cost *decimal.Decimal) error
	SetTotal(ctx context.Context, purchaseID uuid.UUID, total decimal.Decimal) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn at read committed; LockProducts serialises writers per product.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// FindByKey returns the committed purchase recorded under an idempotency key.
func (r *Repository) FindByKey(ctx context.Context, key string) (Result, bool, error) {
	var (
		res   Result
		total pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT id, total FROM purchases WHERE idempotency_key = $1`, key).Scan(&res.PurchaseID, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("purchases: find by key: %w", err)
	}
	res.Total = db.Decimal(total)
	return res, true, nil
}

// Get loads a purchase with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Purchase, error) {
	var (
		p     Purchase
		total pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT id, created_at, total FROM purchases WHERE id = $1`, id).
		Scan(&p.ID, &p.CreatedAt, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrNotFound
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("purchases: get: %w", err)
	}
	p.Total = db.Decimal(total)

	rows, err := r.pool.Query(ctx,
		`SELECT id, line_no, product_id, qty, cost FROM purchase_items WHERE purchase_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Purchase{}, fmt.Errorf("purchases: get items: %w", err)
	}
	defer rows.Close()
	p.Items = []Item{}
	for rows.Next() {
		var (
			it   Item
			cost pgtype.Numeric
		)
		if err := rows.Scan(&it.ID, &it.Line, &it.ProductID, &it.Qty, &cost); err != nil {
			return Purchase{}, err
		}
		it.Cost = db.Decimal(cost)
		p.Items = append(p.Items, it)
	}
	return p, rows.Err()
}

func (r *txRepo) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, cost, stock_qty FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("purchases: lock products: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ProductRef, len(ids))
	for rows.Next() {
		var (
			ref  ProductRef
			cost pgtype.Numeric
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &cost, &ref.StockQty); err != nil {
			return nil, err
		}
		ref.Cost = db.Decimal(cost)
		out[ref.ID] = ref
	}
	return out, rows.Err()
}

func (r *txRepo) InsertPurchase(ctx context.Context, key *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.tx.QueryRow(ctx, `INSERT INTO purchases (total, idempotency_key) VALUES (0, $1) RETURNING id`, key).Scan(&id)
	if constraint, ok := db.UniqueViolation(err); ok && constraint == idempotencyIndex {
		return uuid.Nil, shared.ErrIdempotencyConflict
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("purchases: insert header: %w", err)
	}
	return id, nil
}

func (r *txRepo) InsertItem(ctx context.Context, purchaseID uuid.UUID, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_items (purchase_id, line_no, product_id, qty, cost) VALUES ($1, $2, $3, $4, $5)`,
		purchaseID, item.Line, item.ProductID, item.Qty, db.Numeric(item.Cost))
	if err != nil {
		return fmt.Errorf("purchases: insert item: %w", err)
	}
	return nil
}

// IncrementStock adds qty in the store and, when cost is given, overwrites the product cost.
func (r *txRepo) IncrementStock(ctx context.Context, productID uuid.UUID, qty int, cost *decimal.Decimal) error {
	var newCost pgtype.Numeric
	if cost != nil {
		newCost = db.Numeric(*cost)
	}
	tag, err := r.tx.Exec(ctx, `UPDATE products
		SET stock_qty = stock_qty + $2, cost = COALESCE($3, cost), version = version + 1, updated_at = NOW()
		WHERE id = $1`, productID, qty, newCost)
	if err != nil {
		return fmt.Errorf("purchases: increment stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("purchases: product %s vanished during purchase", productID)
	}
	return nil
}

func (r *txRepo) SetTotal(ctx context.Context, purchaseID uuid.UUID, total decimal.Decimal) error {
	if _, err := r.tx.Exec(ctx, `UPDATE purchases SET total = $2 WHERE id = $1`, purchaseID, db.Numeric(total)); err != nil {
		return fmt.Errorf("purchases: set total: %w", err)
	}
	return nil
}
