package ecsync

import "context"

// Source is the outbox store read and cleaned by the relay.
type Source interface {
	// FetchPending returns every pending record of kind ordered by ascending id.
	FetchPending(ctx context.Context, kind Kind) ([]Record, error)
	// DeleteByIDs removes relayed records of kind in a single operation.
	DeleteByIDs(ctx context.Context, kind Kind, ids []int64) error
}

// PendingCounter provides the number of pending records of a kind.
type PendingCounter interface {
	// PendingCount returns the current number of pending records.
	PendingCount(ctx context.Context, kind Kind) (int, error)
}
