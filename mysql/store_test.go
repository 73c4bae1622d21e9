package mysql

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/velmie/ecsync"
)

type fakeResult struct{ id int64 }

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (fakeResult) RowsAffected() (int64, error)   { return 1, nil }

type fakeExecutor struct {
	query string
	args  []any
	err   error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{id: 17}, nil
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(&sql.DB{}, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestStoreEnqueueStock(t *testing.T) {
	store := newTestStore(t)
	entry := ecsync.Entry{
		Kind:       ecsync.KindStock,
		StoreID:    3,
		ProductID:  100,
		Refs:       ecsync.Refs{OchanokoProductID: 555},
		Value:      4,
		ItemCount:  -1,
		SourceKind: "transaction_sell",
	}
	fakeExec := &fakeExecutor{}

	id, err := store.Enqueue(context.Background(), fakeExec, entry)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != 17 {
		t.Fatalf("expected insert id to be returned, got %d", id)
	}
	if !strings.HasPrefix(fakeExec.query, "INSERT INTO outbox_ec_product_stock_history ") {
		t.Fatalf("unexpected query: %s", fakeExec.query)
	}
	want := []any{int64(3), int64(100), int64(555), nil, nil, nil, int64(-1), int64(4), "transaction_sell", nil, nil}
	if !reflect.DeepEqual(fakeExec.args, want) {
		t.Fatalf("unexpected args: %#v", fakeExec.args)
	}
	if got := strings.Count(fakeExec.query, "?"); got != len(want) {
		t.Fatalf("expected %d placeholders, got %d", len(want), got)
	}
}

func TestStoreEnqueuePrice(t *testing.T) {
	store := newTestStore(t, WithPriceTable("shop.outbox_product"))
	entry := ecsync.Entry{
		Kind:      ecsync.KindPrice,
		StoreID:   3,
		ProductID: 100,
		Refs:      ecsync.Refs{ShopifyProductID: "gid-1", ShopifyVariantID: "gid-2"},
		Value:     1980,
	}
	fakeExec := &fakeExecutor{}

	if _, err := store.Enqueue(context.Background(), fakeExec, entry); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.HasPrefix(fakeExec.query, "INSERT INTO shop.outbox_product ") {
		t.Fatalf("unexpected query: %s", fakeExec.query)
	}
	want := []any{int64(3), int64(100), nil, "gid-1", "gid-2", int64(1980)}
	if !reflect.DeepEqual(fakeExec.args, want) {
		t.Fatalf("unexpected args: %#v", fakeExec.args)
	}
	if got := strings.Count(fakeExec.query, "?"); got != len(want) {
		t.Fatalf("expected %d placeholders, got %d", len(want), got)
	}
}

func TestStoreEnqueueValidation(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Enqueue(context.Background(), nil, ecsync.Entry{}); err != ErrExecutorRequired {
		t.Fatalf("expected ErrExecutorRequired, got %v", err)
	}

	fakeExec := &fakeExecutor{}
	_, err := store.Enqueue(context.Background(), fakeExec, ecsync.Entry{Kind: ecsync.KindStock, StoreID: 1, ProductID: 1})
	if !errors.Is(err, ecsync.ErrRefsRequired) {
		t.Fatalf("expected ErrRefsRequired, got %v", err)
	}
	if fakeExec.query != "" {
		t.Fatalf("expected no insert for invalid entry")
	}

	fakeExec.err = errors.New("deadlock")
	_, err = store.Enqueue(context.Background(), fakeExec, ecsync.Entry{
		Kind: ecsync.KindStock, StoreID: 1, ProductID: 1, Refs: ecsync.Refs{OchanokoProductID: 1},
	})
	if !errors.Is(err, fakeExec.err) {
		t.Fatalf("expected insert error to be wrapped, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil); err != ErrDBRequired {
		t.Fatalf("expected ErrDBRequired, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithStockTable("stock-history")); !errors.Is(err, ErrInvalidTableName) {
		t.Fatalf("expected ErrInvalidTableName, got %v", err)
	}
	if _, err := NewStore(&sql.DB{}, WithFetchLimit(-1)); err != ErrFetchLimitInvalid {
		t.Fatalf("expected ErrFetchLimitInvalid, got %v", err)
	}
}

func TestStoreUnknownKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.FetchPending(ctx, ecsync.Kind("rank")); !errors.Is(err, ecsync.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if err := store.DeleteByIDs(ctx, ecsync.Kind("rank"), []int64{1}); !errors.Is(err, ecsync.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := store.PendingCount(ctx, ecsync.Kind("rank")); !errors.Is(err, ecsync.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if err := store.DeleteByIDs(ctx, ecsync.KindStock, nil); err != nil {
		t.Fatalf("expected empty delete to be a no-op, got %v", err)
	}
}

func TestQueriesSelectOrder(t *testing.T) {
	stock := newQueries(ecsync.KindStock, DefaultStockTable)
	if !strings.HasSuffix(stock.selectPending, "FROM outbox_ec_product_stock_history ORDER BY id ASC") {
		t.Fatalf("unexpected select: %s", stock.selectPending)
	}
	if !strings.Contains(stock.selectPending, "result_stock_number") {
		t.Fatalf("expected stock value column: %s", stock.selectPending)
	}

	price := newQueries(ecsync.KindPrice, DefaultPriceTable)
	if !strings.Contains(price.selectPending, "NULL AS shopify_inventory_item_id, actual_ec_sell_price") {
		t.Fatalf("unexpected price select: %s", price.selectPending)
	}
}

func TestBuildDeleteQuery(t *testing.T) {
	query, args := buildDeleteQuery("outbox_product", []int64{4, 9})
	if query != "DELETE FROM outbox_product WHERE id IN (?,?)" {
		t.Fatalf("unexpected query: %s", query)
	}
	if !reflect.DeepEqual(args, []any{int64(4), int64(9)}) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestChunkIDs(t *testing.T) {
	chunks := chunkIDs([]int64{1, 2, 3, 4, 5}, 2)
	want := [][]int64{{1, 2}, {3, 4}, {5}}
	if !reflect.DeepEqual(chunks, want) {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}
