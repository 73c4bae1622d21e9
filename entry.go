package ecsync

// Entry describes a new outbox row to be written in the same transaction as the
// business mutation that produced it.
type Entry struct {
	Kind      Kind
	StoreID   int64
	ProductID int64
	Refs      Refs
	// Value is the resulting stock number or price after the mutation.
	Value int64

	// ItemCount is the stock delta that produced Value, kept for auditing only.
	ItemCount int64
	// SourceKind names the business operation (e.g. "transaction_sell").
	SourceKind string
	// SourceID optionally references the originating business row.
	SourceID    int64
	Description string
}

// Validate checks required fields.
func (e Entry) Validate() error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	if e.StoreID <= 0 {
		return ErrStoreIDRequired
	}
	if e.ProductID <= 0 {
		return ErrProductIDRequired
	}
	if e.Refs.IsZero() {
		return ErrRefsRequired
	}
	if e.Kind == KindStock && e.Value < 0 {
		return ErrNegativeStock
	}
	if e.Kind == KindPrice && e.Value < 0 {
		return ErrNegativePrice
	}

	return nil
}
