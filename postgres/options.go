package postgres

import "github.com/velmie/ecsync"

const (
	// DefaultStockTable is the stock outbox table name.
	DefaultStockTable = "outbox_ec_product_stock_history"
	// DefaultPriceTable is the price outbox table name.
	DefaultPriceTable = "outbox_product"
)

// Config defines PostgreSQL store behavior.
type Config struct {
	StockTable string
	PriceTable string
	// FetchLimit caps rows read per kind and cycle. Zero reads the whole backlog.
	FetchLimit int
}

func (c Config) withDefaults() Config {
	if c.StockTable == "" {
		c.StockTable = DefaultStockTable
	}
	if c.PriceTable == "" {
		c.PriceTable = DefaultPriceTable
	}

	return c
}

// Option configures the PostgreSQL store.
type Option func(*Config)

// WithStockTable sets the stock outbox table name.
func WithStockTable(name string) Option {
	return func(c *Config) {
		c.StockTable = name
	}
}

// WithPriceTable sets the price outbox table name.
func WithPriceTable(name string) Option {
	return func(c *Config) {
		c.PriceTable = name
	}
}

// WithFetchLimit caps the rows read per kind and cycle, oldest first.
func WithFetchLimit(limit int) Option {
	return func(c *Config) {
		c.FetchLimit = limit
	}
}

func (c Config) tables() map[ecsync.Kind]string {
	return map[ecsync.Kind]string{
		ecsync.KindStock: c.StockTable,
		ecsync.KindPrice: c.PriceTable,
	}
}
