package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/sqlname"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Executor allows enqueuing within an existing transaction. pgx.Tx, *pgx.Conn and
// *pgxpool.Pool satisfy it.
type Executor interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the relay's Source on PostgreSQL outbox tables.
type Store struct {
	db      DB
	cfg     Config
	queries map[ecsync.Kind]queries
}

var _ ecsync.Source = (*Store)(nil)
var _ ecsync.PendingCounter = (*Store)(nil)

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db DB, opts ...Option) (*Store, error) {
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
			return nil, fmt.Errorf("ecsync postgres: %s table: %w", kind, err)
		}
		qs[kind] = newQueries(kind, table)
	}

	return &Store{db: db, cfg: cfg, queries: qs}, nil
}

func (s *Store) queriesFor(kind ecsync.Kind) (queries, error) {
	q, ok := s.queries[kind]
	if !ok {
		return queries{}, fmt.Errorf("ecsync postgres: %w: %q", ecsync.ErrUnknownKind, string(kind))
	}

	return q, nil
}

// Enqueue inserts an outbox row using the provided executor and returns its id.
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

	var id int64
	if err := exec.QueryRow(ctx, q.insert, insertArgs(entry)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("ecsync postgres: insert failed: %w", err)
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

	var rows pgx.Rows
	if s.cfg.FetchLimit > 0 {
		rows, err = s.db.Query(ctx, q.selectLimited, s.cfg.FetchLimit)
	} else {
		rows, err = s.db.Query(ctx, q.selectPending)
	}
	if err != nil {
		return nil, fmt.Errorf("ecsync postgres: select failed: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ecsync.Record, error) {
		var (
			rec            = ecsync.Record{Kind: kind}
			ochanoko       *int64
			shopifyProduct *string
			shopifyVariant *string
			inventoryItem  *string
		)
		if err := row.Scan(
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
			return ecsync.Record{}, err
		}
		rec.Refs = ecsync.Refs{
			OchanokoProductID:      deref(ochanoko),
			ShopifyProductID:       deref(shopifyProduct),
			ShopifyVariantID:       deref(shopifyVariant),
			ShopifyInventoryItemID: deref(inventoryItem),
		}

		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ecsync postgres: scan failed: %w", err)
	}

	return records, nil
}

// DeleteByIDs removes the given rows of kind with a single statement.
func (s *Store) DeleteByIDs(ctx context.Context, kind ecsync.Kind, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q, err := s.queriesFor(kind)
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, q.deleteByIDs, ids); err != nil {
		return fmt.Errorf("ecsync postgres: delete failed: %w", err)
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
	if err := s.db.QueryRow(ctx, q.countPending).Scan(&count); err != nil {
		return 0, fmt.Errorf("ecsync postgres: pending count failed: %w", err)
	}

	return count, nil
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

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}

	return *v
}
