package projection

import (
	"strings"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
)

// ItemFields is the allow-list of upstream order item fields.
var ItemFields = []string{
	"itemId",

	"productName",
	"productImageUrl",
	"variationName",

	"spu",
	"sku",
	"masterSku",
	"masterSkuType",

	"quantity",
	"actualPrice",
	"actualTotalPrice",
	"originalPrice",
	"originalTotalPrice",
	"discountedPrice",

	"externalItemId",
	"externalVariationId",
	"externalProductId",
	"externalOrderItemStatus",

	"isGift",
	"isFulfilByPlatform",

	"bundleSkus",
}

// DetailFields is the allow-list of per-order documents kept as JSON.
var DetailFields = []string{
	"orderId",
	"items",
	"invoiceInfo",
	"shippingDocumentInfo",
	"shipInfo",
	"printInfo",
	"extraInfo",
	"cancelInfo",
	"logisticsInfos",
	"shippingAddressInfo",
	"paymentInfo",
	"customerInfo",
}

var (
	itemAllowed   = keySet(ItemFields)
	detailAllowed = keySet(DetailFields)
)

// Flattened is a batch of detail records split into storable rows.
type Flattened struct {
	Items   []domain.OrderItem
	Details []domain.OrderDetail

	// Skipped counts records or items that could not be keyed.
	Skipped int
	// Dropped lists allow-listed keys whose values failed coercion.
	Dropped []string
}

// FlattenDetails turns a detail payload into item rows and one detail row per
// order, all owned by unitID.
func FlattenDetails(rs RecordSet, unitID *int64) Flattened {
	var out Flattened
	for _, rec := range rs {
		r := newReader(rec, detailAllowed)

		id := r.str("orderId")
		if id == nil || strings.TrimSpace(*id) == "" {
			out.Skipped++
			continue
		}
		orderID := *id

		out.Details = append(out.Details, domain.OrderDetail{
			OrderID:              orderID,
			SyncUnitID:           unitID,
			InvoiceInfo:          r.blob("invoiceInfo"),
			ShippingDocumentInfo: r.blob("shippingDocumentInfo"),
			ShipInfo:             r.blob("shipInfo"),
			PrintInfo:            r.blob("printInfo"),
			ExtraInfo:            r.blob("extraInfo"),
			CancelInfo:           r.blob("cancelInfo"),
			LogisticsInfos:       r.blob("logisticsInfos"),
			ShippingAddressInfo:  r.blob("shippingAddressInfo"),
			PaymentInfo:          r.blob("paymentInfo"),
			CustomerInfo:         r.blob("customerInfo"),
		})

		rawItems, _ := r.raw("items")
		items, _ := rawItems.([]interface{})
		for _, el := range items {
			obj, ok := el.(map[string]interface{})
			if !ok {
				out.Skipped++
				continue
			}
			item, ok := projectItem(Record(obj), orderID, unitID, &out.Dropped)
			if !ok {
				out.Skipped++
				continue
			}
			out.Items = append(out.Items, item)
		}
		out.Dropped = append(out.Dropped, r.dropped...)
	}
	return out
}

func projectItem(rec Record, orderID string, unitID *int64, dropped *[]string) (domain.OrderItem, bool) {
	r := newReader(rec, itemAllowed)
	id := r.str("itemId")
	if id == nil || strings.TrimSpace(*id) == "" {
		return domain.OrderItem{}, false
	}
	item := domain.OrderItem{
		OrderID:                 orderID,
		ItemID:                  *id,
		SyncUnitID:              unitID,
		ProductName:             r.str("productName"),
		ProductImageURL:         r.str("productImageUrl"),
		VariationName:           r.str("variationName"),
		Spu:                     r.str("spu"),
		Sku:                     r.str("sku"),
		MasterSku:               r.str("masterSku"),
		MasterSkuType:           r.str("masterSkuType"),
		Quantity:                r.integer("quantity"),
		ActualPrice:             r.float("actualPrice"),
		ActualTotalPrice:        r.float("actualTotalPrice"),
		OriginalPrice:           r.float("originalPrice"),
		OriginalTotalPrice:      r.float("originalTotalPrice"),
		DiscountedPrice:         r.float("discountedPrice"),
		ExternalItemID:          r.str("externalItemId"),
		ExternalVariationID:     r.str("externalVariationId"),
		ExternalProductID:       r.str("externalProductId"),
		ExternalOrderItemStatus: r.str("externalOrderItemStatus"),
		IsGift:                  r.boolean("isGift"),
		IsFulfilByPlatform:      r.boolean("isFulfilByPlatform"),
		BundleSkus:              r.blob("bundleSkus"),
	}
	*dropped = append(*dropped, r.dropped...)
	return item, true
}
