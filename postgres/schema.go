package postgres

import (
	"fmt"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/sqlname"
)

const stockSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	store_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	ochanoko_product_id BIGINT NULL,
	shopify_product_id TEXT NULL,
	shopify_product_variant_id TEXT NULL,
	shopify_inventory_item_id TEXT NULL,
	item_count BIGINT NOT NULL DEFAULT 0,
	result_stock_number BIGINT NOT NULL,
	source_kind TEXT NULL,
	source_id BIGINT NULL,
	description TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const priceSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	store_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	ochanoko_product_id BIGINT NULL,
	shopify_product_id TEXT NULL,
	shopify_product_variant_id TEXT NULL,
	actual_ec_sell_price BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Schema returns the DDL of the outbox table for kind.
func Schema(kind ecsync.Kind, table string) (string, error) {
	name, err := sqlname.Sanitize(table)
	if err != nil {
		return "", err
	}

	switch kind {
	case ecsync.KindStock:
		return fmt.Sprintf(stockSchemaTemplate, name), nil
	case ecsync.KindPrice:
		return fmt.Sprintf(priceSchemaTemplate, name), nil
	default:
		return "", fmt.Errorf("ecsync postgres: %w: %q", ecsync.ErrUnknownKind, string(kind))
	}
}
