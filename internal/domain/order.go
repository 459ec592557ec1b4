package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Order is the stored projection of an upstream order. OrderID is the
// external key; LastUpdateAt is the upstream version marker that decides
// which of two writes wins.
type Order struct {
	OrderID              string                      `gorm:"type:varchar(64);primaryKey" json:"orderId"`
	SyncUnitID           *int64                      `gorm:"index" json:"syncUnitId,omitempty"`
	Country              *string                     `gorm:"type:varchar(8)" json:"country,omitempty"`
	Channel              *string                     `gorm:"type:varchar(64)" json:"channel,omitempty"`
	ShopID               *string                     `gorm:"type:varchar(64)" json:"shopId,omitempty"`
	OrderType            *string                     `gorm:"type:varchar(64)" json:"orderType,omitempty"`
	OrderStatus          *string                     `gorm:"type:varchar(64)" json:"orderStatus,omitempty"`
	Currency             *string                     `gorm:"type:varchar(8)" json:"currency,omitempty"`
	TotalAmount          *float64                    `gorm:"type:decimal(20,4)" json:"totalAmount,omitempty"`
	PaymentMethod        *string                     `gorm:"type:varchar(64)" json:"paymentMethod,omitempty"`
	IsCod                *bool                       `json:"isCod,omitempty"`
	ExternalShopID       *string                     `gorm:"type:varchar(128)" json:"externalShopId,omitempty"`
	ExternalOrderID      *string                     `gorm:"type:varchar(128)" json:"externalOrderId,omitempty"`
	ExternalOrderSn      *string                     `gorm:"type:varchar(128)" json:"externalOrderSn,omitempty"`
	ExternalBookingSn    *string                     `gorm:"type:varchar(128)" json:"externalBookingSn,omitempty"`
	ExternalOrderStatus  *string                     `gorm:"type:varchar(64)" json:"externalOrderStatus,omitempty"`
	ExternalCreateAt     *time.Time                  `json:"externalCreateAt,omitempty"`
	ExternalUpdateAt     *time.Time                  `json:"externalUpdateAt,omitempty"`
	ProblemOrderTypes    datatypes.JSONSlice[string] `json:"problemOrderTypes,omitempty"`
	CreateAt             *time.Time                  `json:"createAt,omitempty"`
	PayAt                *time.Time                  `json:"payAt,omitempty"`
	PurchasedOn          *time.Time                  `json:"purchasedOn,omitempty"`
	CloseAt              *time.Time                  `json:"closeAt,omitempty"`
	LastUpdateAt         *time.Time                  `gorm:"index" json:"lastUpdateAt,omitempty"`
	PromisedToShipBefore *time.Time                  `json:"promisedToShipBefore,omitempty"`
	TotalQuantity        *int64                      `json:"totalQuantity,omitempty"`
	CustomerName         *string                     `gorm:"type:text" json:"customerName,omitempty"`
	CreatedAt            time.Time                   `json:"-"`
	UpdatedAt            time.Time                   `json:"-"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderImmutableColumns are written on insert and never changed by a later
// newer-wins update.
var OrderImmutableColumns = []string{
	"order_id",
	"sync_unit_id",
	"country",
	"channel",
	"shop_id",
	"currency",
	"external_shop_id",
	"external_create_at",
	"create_at",
	"customer_name",
	"created_at",
}

// OrderItem is one line of an order, keyed by (OrderID, ItemID).
type OrderItem struct {
	OrderID                 string         `gorm:"type:varchar(64);primaryKey" json:"orderId"`
	ItemID                  string         `gorm:"type:varchar(128);primaryKey" json:"itemId"`
	SyncUnitID              *int64         `gorm:"index" json:"syncUnitId,omitempty"`
	ProductName             *string        `gorm:"type:text" json:"productName,omitempty"`
	ProductImageURL         *string        `gorm:"type:text" json:"productImageUrl,omitempty"`
	VariationName           *string        `gorm:"type:text" json:"variationName,omitempty"`
	Spu                     *string        `gorm:"type:varchar(128)" json:"spu,omitempty"`
	Sku                     *string        `gorm:"type:varchar(128)" json:"sku,omitempty"`
	MasterSku               *string        `gorm:"type:varchar(128)" json:"masterSku,omitempty"`
	MasterSkuType           *string        `gorm:"type:varchar(64)" json:"masterSkuType,omitempty"`
	Quantity                *int64         `json:"quantity,omitempty"`
	ActualPrice             *float64       `gorm:"type:decimal(20,4)" json:"actualPrice,omitempty"`
	ActualTotalPrice        *float64       `gorm:"type:decimal(20,4)" json:"actualTotalPrice,omitempty"`
	OriginalPrice           *float64       `gorm:"type:decimal(20,4)" json:"originalPrice,omitempty"`
	OriginalTotalPrice      *float64       `gorm:"type:decimal(20,4)" json:"originalTotalPrice,omitempty"`
	DiscountedPrice         *float64       `gorm:"type:decimal(20,4)" json:"discountedPrice,omitempty"`
	ExternalItemID          *string        `gorm:"type:varchar(128)" json:"externalItemId,omitempty"`
	ExternalVariationID     *string        `gorm:"type:varchar(128)" json:"externalVariationId,omitempty"`
	ExternalProductID       *string        `gorm:"type:varchar(128)" json:"externalProductId,omitempty"`
	ExternalOrderItemStatus *string        `gorm:"type:varchar(64)" json:"externalOrderItemStatus,omitempty"`
	IsGift                  *bool          `json:"isGift,omitempty"`
	IsFulfilByPlatform      *bool          `json:"isFulfilByPlatform,omitempty"`
	BundleSkus              datatypes.JSON `json:"bundleSkus,omitempty"`
	CreatedAt               time.Time      `json:"-"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// OrderDetail holds the nested documents of an order, one row per order.
type OrderDetail struct {
	OrderID              string         `gorm:"type:varchar(64);primaryKey" json:"orderId"`
	SyncUnitID           *int64         `gorm:"index" json:"syncUnitId,omitempty"`
	InvoiceInfo          datatypes.JSON `json:"invoiceInfo,omitempty"`
	ShippingDocumentInfo datatypes.JSON `json:"shippingDocumentInfo,omitempty"`
	ShipInfo             datatypes.JSON `json:"shipInfo,omitempty"`
	PrintInfo            datatypes.JSON `json:"printInfo,omitempty"`
	ExtraInfo            datatypes.JSON `json:"extraInfo,omitempty"`
	CancelInfo           datatypes.JSON `json:"cancelInfo,omitempty"`
	LogisticsInfos       datatypes.JSON `json:"logisticsInfos,omitempty"`
	ShippingAddressInfo  datatypes.JSON `json:"shippingAddressInfo,omitempty"`
	PaymentInfo          datatypes.JSON `json:"paymentInfo,omitempty"`
	CustomerInfo         datatypes.JSON `json:"customerInfo,omitempty"`
	CreatedAt            time.Time      `json:"-"`
}

func (OrderDetail) TableName() string {
	return "order_details"
}
