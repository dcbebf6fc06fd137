package model

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status refresh job should stop polling the
// order.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// Order is the normalized record extracted from a vendor order email.
// OrderNumber is the natural key: upserts merge, never duplicate.
type Order struct {
	ID          uint64      `gorm:"primaryKey" json:"id"`
	OrderNumber string      `gorm:"size:32;uniqueIndex" json:"order_number"`
	OrderDate   *time.Time  `json:"order_date"`
	Status      OrderStatus `gorm:"size:16;default:pending;index" json:"status"`

	Subtotal    float64 `json:"subtotal"`
	ShippingFee float64 `json:"shipping_fee"`
	Tax         float64 `json:"tax"`
	Total       float64 `json:"total"`

	ShippingName    string `gorm:"size:128" json:"shipping_name"`
	ShippingAddress string `gorm:"size:255" json:"shipping_address"`
	ShippingCity    string `gorm:"size:64" json:"shipping_city"`
	ShippingState   string `gorm:"size:8" json:"shipping_state"`
	ShippingZipCode string `gorm:"size:16" json:"shipping_zip_code"`
	ShippingMethod  string `gorm:"size:64" json:"shipping_method"`

	BillingName    string `gorm:"size:128" json:"billing_name"`
	BillingAddress string `gorm:"size:255" json:"billing_address"`
	BillingCity    string `gorm:"size:64" json:"billing_city"`
	BillingState   string `gorm:"size:8" json:"billing_state"`
	BillingZipCode string `gorm:"size:16" json:"billing_zip_code"`

	TrackingNumber   string     `gorm:"size:64" json:"tracking_number"`
	EstimatedArrival string     `gorm:"size:64" json:"estimated_arrival"`
	DeliveredAt      *time.Time `json:"delivered_at"`

	AccountID *uint64 `gorm:"index" json:"account_id"`
	EmailID   *uint64 `gorm:"index" json:"email_id"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID        uint64  `gorm:"primaryKey" json:"id"`
	OrderID   uint64  `gorm:"index" json:"order_id"`
	Name      string  `gorm:"size:255" json:"name"`
	SKU       string  `gorm:"size:64" json:"sku"`
	Quantity  int     `gorm:"default:1" json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

func (OrderItem) TableName() string { return "order_items" }
