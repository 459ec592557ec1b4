package projection

import (
	"errors"
	"strings"

	"github.com/onchainyaotoshi/sync-ginee-orders-server/internal/domain"
)

// ErrMissingOrderID rejects a record that cannot be keyed.
var ErrMissingOrderID = errors.New("record has no orderId")

// OrderFields is the allow-list of upstream order fields that are stored.
var OrderFields = []string{
	"orderId",
	"country",
	"channel",
	"shopId",
	"orderType",
	"orderStatus",
	"currency",
	"totalAmount",
	"paymentMethod",
	"isCod",

	"externalShopId",
	"externalOrderId",
	"externalOrderSn",
	"externalBookingSn",
	"externalOrderStatus",
	"externalCreateAt",
	"externalUpdateAt",

	"problemOrderTypes",

	"createAt",
	"payAt",
	"purchasedOn",
	"closeAt",
	"lastUpdateAt",
	"promisedToShipBefore",
	"totalQuantity",

	"customerName",
}

var orderAllowed = keySet(OrderFields)

// ProjectOrder maps one upstream record onto domain.Order. The second return
// value lists allow-listed keys whose values could not be coerced and were
// dropped.
func ProjectOrder(rec Record) (domain.Order, []string, error) {
	r := newReader(rec, orderAllowed)

	id := r.str("orderId")
	if id == nil || strings.TrimSpace(*id) == "" {
		return domain.Order{}, nil, ErrMissingOrderID
	}

	o := domain.Order{
		OrderID:              *id,
		Country:              r.str("country"),
		Channel:              r.str("channel"),
		ShopID:               r.str("shopId"),
		OrderType:            r.str("orderType"),
		OrderStatus:          r.str("orderStatus"),
		Currency:             r.str("currency"),
		TotalAmount:          r.float("totalAmount"),
		PaymentMethod:        r.str("paymentMethod"),
		IsCod:                r.boolean("isCod"),
		ExternalShopID:       r.str("externalShopId"),
		ExternalOrderID:      r.str("externalOrderId"),
		ExternalOrderSn:      r.str("externalOrderSn"),
		ExternalBookingSn:    r.str("externalBookingSn"),
		ExternalOrderStatus:  r.str("externalOrderStatus"),
		ExternalCreateAt:     r.timestamp("externalCreateAt"),
		ExternalUpdateAt:     r.timestamp("externalUpdateAt"),
		ProblemOrderTypes:    r.stringSlice("problemOrderTypes"),
		CreateAt:             r.timestamp("createAt"),
		PayAt:                r.timestamp("payAt"),
		PurchasedOn:          r.timestamp("purchasedOn"),
		CloseAt:              r.timestamp("closeAt"),
		LastUpdateAt:         r.timestamp("lastUpdateAt"),
		PromisedToShipBefore: r.timestamp("promisedToShipBefore"),
		TotalQuantity:        r.integer("totalQuantity"),
		CustomerName:         r.str("customerName"),
	}
	return o, r.dropped, nil
}

// DedupOrders keeps one order per OrderID, preferring the newest
// LastUpdateAt; a missing LastUpdateAt loses to any present one. The result
// is ordered by OrderID.
func DedupOrders(orders []domain.Order) []domain.Order {
	best := make(map[string]int, len(orders))
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		i, seen := best[o.OrderID]
		if !seen {
			best[o.OrderID] = len(out)
			out = append(out, o)
			continue
		}
		if newer(o.LastUpdateAt, out[i].LastUpdateAt) {
			out[i] = o
		}
	}
	sortOrders(out)
	return out
}
