package ecsync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for an outbox kind that is not registered.
	ErrUnknownKind = errors.New("ecsync: unknown outbox kind")
	// ErrStoreIDRequired is returned when Entry.StoreID is not positive.
	ErrStoreIDRequired = errors.New("ecsync: store id is required")
	// ErrProductIDRequired is returned when Entry.ProductID is not positive.
	ErrProductIDRequired = errors.New("ecsync: product id is required")
	// ErrRefsRequired is returned when an entry is not linked to any platform.
	ErrRefsRequired = errors.New("ecsync: at least one platform ref is required")
	// ErrNegativeStock is returned when a stock entry carries a negative stock number.
	ErrNegativeStock = errors.New("ecsync: stock number must be non-negative")
	// ErrNegativePrice is returned when a price entry carries a negative price.
	ErrNegativePrice = errors.New("ecsync: price must be non-negative")
	// ErrEmptyBatch is returned when publishing a batch without payloads.
	ErrEmptyBatch = errors.New("ecsync: task batch has no payloads")
	// ErrBatchMismatch is returned when a batch has a different number of record ids and payloads.
	ErrBatchMismatch = errors.New("ecsync: task batch record ids do not match payloads")
	// ErrMessageTooLarge is returned when a single task item does not fit the message size cap.
	ErrMessageTooLarge = errors.New("ecsync: message exceeds size cap")
	// ErrWorkerPanic indicates a panic while fetching or inside a kind pipeline.
	ErrWorkerPanic = errors.New("ecsync: pipeline panic")
)

// FetchError indicates that pending rows could not be read. The whole cycle is skipped.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("ecsync: fetch %s outbox: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PipelineError indicates that a kind could not be published or committed in a cycle.
// Its rows stay pending and are retried on the next cycle.
type PipelineError struct {
	Kind Kind
	// GroupID is set when a publish failed, empty for delete failures.
	GroupID string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.GroupID == "" {
		return fmt.Sprintf("ecsync: %s pipeline: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("ecsync: %s pipeline, group %s: %v", e.Kind, e.GroupID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
