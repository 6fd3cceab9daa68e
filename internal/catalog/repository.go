package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-retail/internal/platform/db"
)

const productColumns = `id, name, name_lower, sku, sku_lower, barcode, unit, category, description,
	cost, price, vat, stock_qty, min_stock, status, slug, created_at, updated_at, deleted_at, version`

// unique index name -> field, used to translate races that slip past FieldTaken.
var uniqueIndexes = map[string]Field{
	"uq_products_name_lower_live": FieldName,
	"uq_products_sku_lower_live":  FieldSKU,
	"uq_products_barcode_live":    FieldBarcode,
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// TxRepository exposes the writes that must share one transaction.
type TxRepository interface {
	LockProduct(ctx context.Context, id uuid.UUID) (Product, error)
	FieldTaken(ctx context.Context, field Field, value string, excludeID *uuid.UUID) (bool, error)
	Insert(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product, expectedVersion int) (Product, error)
}

type txRepo struct {
	db dbtx
}

// WithTx executes the callback at read committed. Writes lock the row with
// LockProduct first, so a ledger committing on the same product is waited for
// and its version bump is seen.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return translateTxError(db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{db: tx})
	}))
}

// Get loads a live product.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 AND deleted_at IS NULL`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Search lists live products matching q, most recently updated first.
func (r *Repository) Search(ctx context.Context, q SearchQuery, offset int) ([]Product, int, error) {
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	if q.Query != "" {
		args = append(args, "%"+escapeLike(q.Query)+"%")
		n := strconv.Itoa(len(args))
		where = append(where, "(name ILIKE $"+n+" OR sku ILIKE $"+n+" OR barcode ILIKE $"+n+")")
	}
	if q.Status != "" && q.Status != StatusAll {
		args = append(args, string(q.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}

	args = append(args, q.Limit, offset)
	query := "SELECT " + productColumns + " FROM products WHERE " + clause +
		" ORDER BY updated_at DESC, id LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	items, err := r.queryProducts(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: search products: %w", err)
	}
	return items, total, nil
}

// LowStock lists live products whose stock is at or under min_stock.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]Product, int, error) {
	const where = `deleted_at IS NULL AND stock_qty >= 0 AND stock_qty <= min_stock`
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count low stock: %w", err)
	}
	items, err := r.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+where+` ORDER BY stock_qty ASC, name ASC LIMIT $1`, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: low stock: %w", err)
	}
	return items, total, nil
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...interface{}) ([]Product, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *txRepo) LockProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *txRepo) FieldTaken(ctx context.Context, field Field, value string, excludeID *uuid.UUID) (bool, error) {
	var column string
	switch field {
	case FieldName:
		column = "name_lower"
	case FieldSKU:
		column = "sku_lower"
	case FieldBarcode:
		column = "barcode"
	default:
		return false, fmt.Errorf("catalog: unknown unique field %q", field)
	}
	var exclude pgtype.UUID
	if excludeID != nil {
		exclude = pgtype.UUID{Bytes: *excludeID, Valid: true}
	}
	query := `SELECT EXISTS (SELECT 1 FROM products WHERE ` + column + ` = $1 AND deleted_at IS NULL
		AND ($2::uuid IS NULL OR id <> $2))`
	var taken bool
	if err := r.db.QueryRow(ctx, query, value, exclude).Scan(&taken); err != nil {
		return false, fmt.Errorf("catalog: check %s: %w", field, err)
	}
	return taken, nil
}

func (r *txRepo) Insert(ctx context.Context, p Product) (Product, error) {
	const query = `INSERT INTO products (name, name_lower, sku, sku_lower, barcode, unit, category, description,
		cost, price, vat, stock_qty, min_stock, status, slug)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + productColumns
	row := r.db.QueryRow(ctx, query,
		p.Name, p.NameLower, p.SKU, p.SKULower, p.Barcode, p.Unit, p.Category, p.Description,
		db.Numeric(p.Cost), db.Numeric(p.Price), db.Numeric(p.VAT), p.StockQty, p.MinStock, string(p.Status), p.Slug)
	created, err := scanProduct(row)
	if err != nil {
		return Product{}, translateWriteError(err)
	}
	return created, nil
}

func (r *txRepo) Update(ctx context.Context, p Product, expectedVersion int) (Product, error) {
	const query = `UPDATE products SET name = $3, name_lower = $4, sku = $5, sku_lower = $6, barcode = $7,
		unit = $8, category = $9, description = $10, cost = $11, price = $12, vat = $13,
		stock_qty = $14, min_stock = $15, status = $16, slug = $17, deleted_at = $18,
		updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING ` + productColumns
	var deletedAt pgtype.Timestamptz
	if p.DeletedAt != nil {
		deletedAt = pgtype.Timestamptz{Time: p.DeletedAt.UTC(), Valid: true}
	}
	row := r.db.QueryRow(ctx, query,
		p.ID, expectedVersion,
		p.Name, p.NameLower, p.SKU, p.SKULower, p.Barcode,
		p.Unit, p.Category, p.Description, db.Numeric(p.Cost), db.Numeric(p.Price), db.Numeric(p.VAT),
		p.StockQty, p.MinStock, string(p.Status), p.Slug, deletedAt)
	updated, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrVersionConflict
	}
	if err != nil {
		return Product{}, translateWriteError(err)
	}
	return updated, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row scanner) (Product, error) {
	var (
		p                Product
		cost, price, vat pgtype.Numeric
		status           string
	)
	err := row.Scan(&p.ID, &p.Name, &p.NameLower, &p.SKU, &p.SKULower, &p.Barcode, &p.Unit, &p.Category,
		&p.Description, &cost, &price, &vat, &p.StockQty, &p.MinStock, &status, &p.Slug,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt, &p.Version)
	if err != nil {
		return Product{}, err
	}
	p.Cost = db.Decimal(cost)
	p.Price = db.Decimal(price)
	p.VAT = db.Decimal(vat)
	p.Status = Status(status)
	return p, nil
}

func translateWriteError(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok {
		if field, known := uniqueIndexes[constraint]; known {
			return &DuplicateFieldError{Field: field}
		}
		return fmt.Errorf("catalog: %s: %w", constraint, ErrDuplicate)
	}
	return err
}

func translateTxError(err error) error {
	if db.SerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrVersionConflict, err)
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
