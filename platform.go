package ecsync

// Platform names.
const (
	PlatformOchanoko = "ochanoko"
	PlatformShopify  = "shopify"
)

// Payload is a platform-specific task item. Implementations are JSON encoded into the
// queue message body.
type Payload interface {
	// PlatformRef returns the external identifier the payload targets.
	PlatformRef() string
}

// PayloadFunc builds a payload for a record. It returns false when the record does not
// carry the refs the platform needs, in which case nothing is relayed to that platform.
type PayloadFunc func(Record) (Payload, bool)

// Route describes how one kind is relayed to a platform.
type Route struct {
	// TaskKind is the downstream worker task name.
	TaskKind string
	Build    PayloadFunc
}

// Platform is a row of the relay table. Adding a storefront is appending a Platform.
type Platform struct {
	Name   string
	Routes map[Kind]Route
}

// DefaultPlatforms are the storefronts the back office integrates with.
var DefaultPlatforms = []Platform{
	{
		Name: PlatformOchanoko,
		Routes: map[Kind]Route{
			KindStock: {TaskKind: "ochanokoUpdateStockNumber", Build: ochanokoStock},
			KindPrice: {TaskKind: "ochanokoUpdatePrice", Build: ochanokoPrice},
		},
	},
	{
		Name: PlatformShopify,
		Routes: map[Kind]Route{
			KindStock: {TaskKind: "shopifyUpdateStockNumber", Build: shopifyStock},
			KindPrice: {TaskKind: "shopifyUpdatePrice", Build: shopifyPrice},
		},
	},
}

// OchanokoStockPayload sets the stock number of an ochanoko product.
type OchanokoStockPayload struct {
	StoreID     int64 `json:"store_id"`
	ProductID   int64 `json:"product_id"`
	StockNumber int64 `json:"stock_number"`
}

// PlatformRef implements Payload.
func (p OchanokoStockPayload) PlatformRef() string { return formatInt(p.ProductID) }

// OchanokoPricePayload sets the price of an ochanoko product.
type OchanokoPricePayload struct {
	StoreID   int64 `json:"store_id"`
	ProductID int64 `json:"product_id"`
	Price     int64 `json:"price"`
}

// PlatformRef implements Payload.
func (p OchanokoPricePayload) PlatformRef() string { return formatInt(p.ProductID) }

// ShopifyStockPayload sets the available quantity of a shopify inventory item.
type ShopifyStockPayload struct {
	StoreID         int64  `json:"store_id"`
	InventoryItemID string `json:"inventory_item_id"`
	StockNumber     int64  `json:"stock_number"`
}

// PlatformRef implements Payload.
func (p ShopifyStockPayload) PlatformRef() string { return p.InventoryItemID }

// ShopifyPricePayload sets the price of a shopify product variant.
type ShopifyPricePayload struct {
	StoreID   int64  `json:"store_id"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Price     int64  `json:"price"`
}

// PlatformRef implements Payload.
func (p ShopifyPricePayload) PlatformRef() string { return p.ProductID + "/" + p.VariantID }

func ochanokoStock(r Record) (Payload, bool) {
	if r.Refs.OchanokoProductID == 0 {
		return nil, false
	}

	return OchanokoStockPayload{StoreID: r.StoreID, ProductID: r.Refs.OchanokoProductID, StockNumber: r.Value}, true
}

func ochanokoPrice(r Record) (Payload, bool) {
	if r.Refs.OchanokoProductID == 0 {
		return nil, false
	}

	return OchanokoPricePayload{StoreID: r.StoreID, ProductID: r.Refs.OchanokoProductID, Price: r.Value}, true
}

func shopifyStock(r Record) (Payload, bool) {
	if r.Refs.ShopifyInventoryItemID == "" {
		return nil, false
	}

	return ShopifyStockPayload{StoreID: r.StoreID, InventoryItemID: r.Refs.ShopifyInventoryItemID, StockNumber: r.Value}, true
}

// shopify variant prices are addressed by product and variant, both are required.
func shopifyPrice(r Record) (Payload, bool) {
	if r.Refs.ShopifyProductID == "" || r.Refs.ShopifyVariantID == "" {
		return nil, false
	}

	return ShopifyPricePayload{
		StoreID:   r.StoreID,
		ProductID: r.Refs.ShopifyProductID,
		VariantID: r.Refs.ShopifyVariantID,
		Price:     r.Value,
	}, true
}
