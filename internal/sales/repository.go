package sales

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

const idempotencyIndex = "uq_sales_idempotency_key"

// Repository persists sales in PostgreSQL.
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
	InsertSale(ctx context.Context, subtotal, total decimal.Decimal, key *string) (uuid.UUID, error)
	InsertItem(ctx context.Context, saleID uuid.UUID, item Item) error
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	InsertPayment(ctx context.Context, saleID uuid.UUID, payment Payment) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn at read committed. Product rows are taken FOR UPDATE in id
// order so concurrent sales of the same product queue instead of overselling.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// FindByKey returns the committed sale recorded under an idempotency key.
func (r *Repository) FindByKey(ctx context.Context, key string) (Result, bool, error) {
	var (
		res   Result
		total pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT id, total FROM sales WHERE idempotency_key = $1`, key).Scan(&res.SaleID, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("sales: find by key: %w", err)
	}
	res.Total = db.Decimal(total)
	return res, true, nil
}

// Get loads a sale with its lines and payments.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Sale, error) {
	var (
		s               Sale
		subtotal, total pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `SELECT id, created_at, subtotal, total FROM sales WHERE id = $1`, id).
		Scan(&s.ID, &s.CreatedAt, &subtotal, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, ErrNotFound
	}
	if err != nil {
		return Sale{}, fmt.Errorf("sales: get: %w", err)
	}
	s.Subtotal = db.Decimal(subtotal)
	s.Total = db.Decimal(total)

	if s.Items, err = r.items(ctx, id); err != nil {
		return Sale{}, err
	}
	if s.Payments, err = r.payments(ctx, id); err != nil {
		return Sale{}, err
	}
	return s, nil
}

func (r *Repository) items(ctx context.Context, saleID uuid.UUID) ([]Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, line_no, product_id, qty, price, vat FROM sale_items WHERE sale_id = $1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sales: get items: %w", err)
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var (
			it         Item
			price, vat pgtype.Numeric
		)
		if err := rows.Scan(&it.ID, &it.Line, &it.ProductID, &it.Qty, &price, &vat); err != nil {
			return nil, err
		}
		it.Price = db.Decimal(price)
		it.VAT = db.Decimal(vat)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repository) payments(ctx context.Context, saleID uuid.UUID) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, line_no, method, amount FROM payments WHERE sale_id = $1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, fmt.Errorf("sales: get payments: %w", err)
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		var (
			p      Payment
			method string
			amount pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.Line, &method, &amount); err != nil {
			return nil, err
		}
		p.Method = Method(method)
		p.Amount = db.Decimal(amount)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *txRepo) LockProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductRef, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, name, price, vat, stock_qty, min_stock FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: lock products: %w", err)
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ProductRef, len(ids))
	for rows.Next() {
		var (
			ref        ProductRef
			price, vat pgtype.Numeric
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &price, &vat, &ref.StockQty, &ref.MinStock); err != nil {
			return nil, err
		}
		ref.Price = db.Decimal(price)
		ref.VAT = db.Decimal(vat)
		out[ref.ID] = ref
	}
	return out, rows.Err()
}

func (r *txRepo) InsertSale(ctx context.Context, subtotal, total decimal.Decimal, key *string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (subtotal, total, idempotency_key) VALUES ($1, $2, $3) RETURNING id`,
		db.Numeric(subtotal), db.Numeric(total), key).Scan(&id)
	if constraint, ok := db.UniqueViolation(err); ok && constraint == idempotencyIndex {
		return uuid.Nil, shared.ErrIdempotencyConflict
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("sales: insert header: %w", err)
	}
	return id, nil
}

func (r *txRepo) InsertItem(ctx context.Context, saleID uuid.UUID, item Item) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO sale_items (sale_id, line_no, product_id, qty, price, vat)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		saleID, item.Line, item.ProductID, item.Qty, db.Numeric(item.Price), db.Numeric(item.VAT))
	if err != nil {
		return fmt.Errorf("sales: insert item: %w", err)
	}
	return nil
}

// DecrementStock subtracts qty in the store and returns the remaining stock.
// The guard keeps stock_qty from going negative even if the row was not locked.
func (r *txRepo) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	var remaining int
	err := r.tx.QueryRow(ctx, `UPDATE products
		SET stock_qty = stock_qty - $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND stock_qty >= $2
		RETURNING stock_qty`, productID, qty).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		var (
			name      string
			available int
		)
		if err := r.tx.QueryRow(ctx, `SELECT name, stock_qty FROM products WHERE id = $1`, productID).
			Scan(&name, &available); err != nil {
			return 0, fmt.Errorf("sales: reread stock: %w", err)
		}
		return 0, &InsufficientStockError{ProductID: productID, Name: name, Available: available, Requested: qty}
	}
	if err != nil {
		return 0, fmt.Errorf("sales: decrement stock: %w", err)
	}
	return remaining, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, saleID uuid.UUID, payment Payment) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO payments (sale_id, line_no, method, amount) VALUES ($1, $2, $3, $4)`,
		saleID, payment.Line, string(payment.Method), db.Numeric(payment.Amount))
	if err != nil {
		return fmt.Errorf("sales: insert payment: %w", err)
	}
	return nil
}
