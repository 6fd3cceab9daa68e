package purchases

import (
	"context"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-retail/internal/platform/db"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

type capturedQuery struct {
	sql  string
	args []any
}

type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// scriptedTx records statements and answers QueryRow from rows in order.
type scriptedTx struct {
	pgx.Tx
	queries []capturedQuery
	rows    []scriptedRow
	tag     string
}

func (tx *scriptedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	tx.queries = append(tx.queries, capturedQuery{sql: sql, args: args})
	row := tx.rows[0]
	tx.rows = tx.rows[1:]
	return row
}

func (tx *scriptedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.queries = append(tx.queries, capturedQuery{sql: sql, args: args})
	return pgconn.NewCommandTag(tx.tag), nil
}

func TestInsertPurchaseStoresIdempotencyKey(t *testing.T) {
	id := uuid.New()
	tx := &scriptedTx{rows: []scriptedRow{{values: []any{id}}}}
	key := "retry-1"

	got, err := (&txRepo{tx: tx}).InsertPurchase(context.Background(), &key)
	require.NoError(t, err)
	require.Equal(t, id, got)
	require.Len(t, tx.queries, 1)
	require.Contains(t, tx.queries[0].sql, "idempotency_key")
	require.Equal(t, []any{&key}, tx.queries[0].args)
}

func TestInsertPurchaseWithoutKeyStoresNull(t *testing.T) {
	tx := &scriptedTx{rows: []scriptedRow{{values: []any{uuid.New()}}}}

	_, err := (&txRepo{tx: tx}).InsertPurchase(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tx.queries[0].args, 1)
	require.Nil(t, tx.queries[0].args[0])
}

func TestInsertPurchaseKeyTakenIsConflict(t *testing.T) {
	tx := &scriptedTx{rows: []scriptedRow{{err: &pgconn.PgError{Code: "23505", ConstraintName: idempotencyIndex}}}}
	key := "retry-1"

	_, err := (&txRepo{tx: tx}).InsertPurchase(context.Background(), &key)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestIncrementStockCostOverride(t *testing.T) {
	productID := uuid.New()

	tx := &scriptedTx{tag: "UPDATE 1"}
	require.NoError(t, (&txRepo{tx: tx}).IncrementStock(context.Background(), productID, 5, nil))
	args := tx.queries[0].args
	require.Equal(t, productID, args[0])
	require.Equal(t, 5, args[1])
	cost, ok := args[2].(pgtype.Numeric)
	require.True(t, ok)
	require.False(t, cost.Valid, "no override must keep the stored cost")

	tx = &scriptedTx{tag: "UPDATE 1"}
	require.NoError(t, (&txRepo{tx: tx}).IncrementStock(context.Background(), productID, 5, dec("10.00")))
	cost = tx.queries[0].args[2].(pgtype.Numeric)
	require.True(t, cost.Valid)
	require.Equal(t, "10.00", db.Decimal(cost).StringFixed(2))
}

func TestIncrementStockMissingRow(t *testing.T) {
	tx := &scriptedTx{tag: "UPDATE 0"}
	err := (&txRepo{tx: tx}).IncrementStock(context.Background(), uuid.New(), 1, nil)
	require.Error(t, err)
}
