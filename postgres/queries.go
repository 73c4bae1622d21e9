package postgres

import (
	"fmt"

	"github.com/velmie/ecsync"
	"github.com/velmie/ecsync/internal/sqlname"
)

const refColumns = "ochanoko_product_id, shopify_product_id, shopify_product_variant_id"

type queries struct {
	insert        string
	selectPending string
	selectLimited string
	deleteByIDs   string
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
				"VALUES (%s) RETURNING id",
			table,
			refColumns,
			sqlname.Placeholders(11, sqlname.Dollar),
		)
		cols = "id, store_id, product_id, " + refColumns + ", shopify_inventory_item_id, result_stock_number, created_at"
	default:
		insert = fmt.Sprintf(
			"INSERT INTO %s (store_id, product_id, %s, actual_ec_sell_price) VALUES (%s) RETURNING id",
			table,
			refColumns,
			sqlname.Placeholders(6, sqlname.Dollar),
		)
		cols = "id, store_id, product_id, " + refColumns + ", NULL::text AS shopify_inventory_item_id, actual_ec_sell_price, created_at"
	}

	selectPending := fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC", cols, table)

	return queries{
		insert:        insert,
		selectPending: selectPending,
		selectLimited: selectPending + " LIMIT $1",
		deleteByIDs:   fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", table),
		countPending:  fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
	}
}
