package mysql

import (
	"fmt"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/sqlname"
)

const stockSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	store_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	ochanoko_product_id BIGINT NULL,
	shopify_product_id VARCHAR(64) NULL,
	shopify_product_variant_id VARCHAR(64) NULL,
	shopify_inventory_item_id VARCHAR(64) NULL,
	item_count BIGINT NOT NULL DEFAULT 0,
	result_stock_number BIGINT NOT NULL,
	source_kind VARCHAR(64) NULL,
	source_id BIGINT NULL,
	description VARCHAR(255) NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
);`

const priceSchemaTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	store_id BIGINT NOT NULL,
	product_id BIGINT NOT NULL,
	ochanoko_product_id BIGINT NULL,
	shopify_product_id VARCHAR(64) NULL,
	shopify_product_variant_id VARCHAR(64) NULL,
	actual_ec_sell_price BIGINT NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
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
		return "", fmt.Errorf("ecsync mysql: %w: %q", ecsync.ErrUnknownKind, string(kind))
	}
}
