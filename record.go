package ecsync

import (
	"fmt"
	"time"
)

// Kind identifies an outbox table and the field it changes downstream.
type Kind string

const (
	// KindStock rows carry the resulting EC stock number of a product.
	KindStock Kind = "stock"
	// KindPrice rows carry the resulting EC sell price of a product.
	KindPrice Kind = "price"
)

// Kinds lists every registered outbox kind in processing order.
var Kinds = []Kind{KindStock, KindPrice}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Field returns the partition field used in queue group ids.
func (k Kind) Field() string {
	switch k {
	case KindStock:
		return "stock-number"
	case KindPrice:
		return "price"
	default:
		return string(k)
	}
}

// Validate reports whether k is a known kind.
func (k Kind) Validate() error {
	switch k {
	case KindStock, KindPrice:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Refs holds the platform identifiers attached to a product when the row was written.
// A zero value means the product is not linked to that platform.
type Refs struct {
	OchanokoProductID      int64
	ShopifyProductID       string
	ShopifyVariantID       string
	ShopifyInventoryItemID string
}

// IsZero reports whether no platform ref is set.
func (r Refs) IsZero() bool {
	return r == Refs{}
}

// Record is a pending outbox row.
type Record struct {
	// ID is the auto-increment insertion id, it defines FIFO order within a kind.
	ID        int64
	Kind      Kind
	StoreID   int64
	ProductID int64
	Refs      Refs
	// Value is the absolute resulting value (stock number or price), never a delta.
	Value     int64
	CreatedAt time.Time
}
