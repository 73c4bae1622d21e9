package mysql

import (
	"fmt"

	"github.com/velmie/ecsync"
)

const refColumns = "ochanoko_product_id, shopify_product_id, shopify_product_variant_id"

type queries struct {
	table         string
	insert        string
	selectPending string
	countPending  string
}

func newQueries(kind ecsync.Kind, table string) queries {
	var (
		insert string
		cols   string
	)
	switch kind {
	case ecsync.KindStock:
		insert = fmt.Sprintf(
			"INSERT INTO %s (store_id, product_id, %s, shopify_inventory_item_id, item_count, result_stock_number, source_kind, source_id, description) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			table,
			refColumns,
		)
		cols = "id, store_id, product_id, " + refColumns + ", shopify_inventory_item_id, result_stock_number, created_at"
	default:
		insert = fmt.Sprintf(
			"INSERT INTO %s (store_id, product_id, %s, actual_ec_sell_price) VALUES (?, ?, ?, ?, ?, ?)",
			table,
			refColumns,
		)
		cols = "id, store_id, product_id, " + refColumns + ", NULL AS shopify_inventory_item_id, actual_ec_sell_price, created_at"
	}

	return queries{
		table:         table,
		insert:        insert,
		selectPending: fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC", cols, table),
		countPending:  fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
	}
}
