package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/sqlname"
)

// maxDeleteChunk keeps each DELETE well below the 65535 placeholder limit of the protocol.
const maxDeleteChunk = 10000

// Executor allows enqueuing within an existing transaction.
type Executor interface {
	// ExecContext executes a statement with the provided context.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store implements the relay's Source on MySQL outbox tables.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries map[ecsync.Kind]queries
}

var _ ecsync.Source = (*Store)(nil)
var _ ecsync.PendingCounter = (*Store)(nil)

// NewStore constructs a MySQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()
	if cfg.FetchLimit < 0 {
		return nil, ErrFetchLimitInvalid
	}

	qs := make(map[ecsync.Kind]queries, len(ecsync.Kinds))
	for kind, name := range cfg.tables() {
		table, err := sqlname.Sanitize(name)
		if err != nil {
			return nil, fmt.Errorf("ecsync mysql: %s table: %w", kind, err)
		}
		qs[kind] = newQueries(kind, table)
	}

	return &Store{db: db, cfg: cfg, queries: qs}, nil
}

// MustNewStore constructs a MySQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

func (s *Store) queriesFor(kind ecsync.Kind) (queries, error) {
	q, ok := s.queries[kind]
	if !ok {
		return queries{}, fmt.Errorf("ecsync mysql: %w: %q", ecsync.ErrUnknownKind, string(kind))
	}

	return q, nil
}

// Enqueue inserts an outbox row using the provided executor, normally the transaction
// of the business mutation that produced entry. It returns the row id.
func (s *Store) Enqueue(ctx context.Context, exec Executor, entry ecsync.Entry) (int64, error) {
	if exec == nil {
		return 0, ErrExecutorRequired
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	q, err := s.queriesFor(entry.Kind)
	if err != nil {
		return 0, err
	}

	res, err := exec.ExecContext(ctx, q.insert, insertArgs(entry)...)
	if err != nil {
		return 0, fmt.Errorf("ecsync mysql: insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ecsync mysql: insert id failed: %w", err)
	}

	return id, nil
}

func insertArgs(entry ecsync.Entry) []any {
	args := []any{
		entry.StoreID,
		entry.ProductID,
		nullInt(entry.Refs.OchanokoProductID),
		nullString(entry.Refs.ShopifyProductID),
		nullString(entry.Refs.ShopifyVariantID),
	}
	if entry.Kind == ecsync.KindStock {
		return append(args,
			nullString(entry.Refs.ShopifyInventoryItemID),
			entry.ItemCount,
			entry.Value,
			nullString(entry.SourceKind),
			nullInt(entry.SourceID),
			nullString(entry.Description),
		)
	}

	return append(args, entry.Value)
}

// FetchPending returns pending rows of kind ordered by ascending id.
func (s *Store) FetchPending(ctx context.Context, kind ecsync.Kind) ([]ecsync.Record, error) {
	q, err := s.queriesFor(kind)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if s.cfg.FetchLimit > 0 {
		rows, err = s.db.QueryContext(ctx, q.selectPending+" LIMIT ?", s.cfg.FetchLimit)
	} else {
		rows, err = s.db.QueryContext(ctx, q.selectPending)
	}
	if err != nil {
		return nil, fmt.Errorf("ecsync mysql: select failed: %w", err)
	}
	defer rows.Close()

	var records []ecsync.Record
	for rows.Next() {
		var (
			rec            ecsync.Record
			ochanoko       sql.NullInt64
			shopifyProduct sql.NullString
			shopifyVariant sql.NullString
			inventoryItem  sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.StoreID,
			&rec.ProductID,
			&ochanoko,
			&shopifyProduct,
			&shopifyVariant,
			&inventoryItem,
			&rec.Value,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ecsync mysql: scan failed: %w", err)
		}

		rec.Kind = kind
		rec.Refs = ecsync.Refs{
			OchanokoProductID:      ochanoko.Int64,
			ShopifyProductID:       shopifyProduct.String,
			ShopifyVariantID:       shopifyVariant.String,
			ShopifyInventoryItemID: inventoryItem.String,
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ecsync mysql: rows failed: %w", err)
	}

	return records, nil
}

// DeleteByIDs removes the given rows of kind in one transaction. Large id sets are split
// into several statements inside that transaction.
func (s *Store) DeleteByIDs(ctx context.Context, kind ecsync.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q, err := s.queriesFor(kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("ecsync mysql: begin tx failed: %w", err)
	}

	for _, chunk := range chunkIDs(ids, maxDeleteChunk) {
		query, args := buildDeleteQuery(q.table, chunk)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			rollbackErr := tx.Rollback()

			return errors.Join(fmt.Errorf("ecsync mysql: delete failed: %w", err), rollbackErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ecsync mysql: commit failed: %w", err)
	}

	return nil
}

// PendingCount returns the number of pending rows of kind.
func (s *Store) PendingCount(ctx context.Context, kind ecsync.Kind) (int, error) {
	q, err := s.queriesFor(kind)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, q.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("ecsync mysql: pending count failed: %w", err)
	}

	return count, nil
}

func buildDeleteQuery(table string, ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	// #nosec G201 -- table name is sanitized.
	return fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, sqlname.Placeholders(len(ids), sqlname.Question)), args
}

func chunkIDs(ids []int64, size int) [][]int64 {
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}

	return chunks
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}

	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}

	return v
}
