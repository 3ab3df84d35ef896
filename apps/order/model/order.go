package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 订单状态
const (
	StatusPendingPayment = "PENDING_PAYMENT"
	StatusProcessing     = "PROCESSING"
	StatusShipped        = "SHIPPED"
	StatusCompleted      = "COMPLETED"
	StatusCanceled       = "CANCELED"
)

// 支付状态
const (
	PaymentUnpaid = "UNPAID"
	PaymentPaid   = "PAID"
)

// ValidStatus 是否为已知订单状态
func ValidStatus(s string) bool {
	switch s {
	case StatusPendingPayment, StatusProcessing, StatusShipped, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Order 订单主表，收货信息是下单时的快照
type Order struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"index;not null" json:"user_id"`
	AddressID      *uint           `json:"address_id"`
	SubtotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal_amount"`
	ShippingAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"shipping_amount"`
	GrandTotal     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"grand_total"`
	Status         string          `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentStatus  string          `gorm:"type:varchar(10);not null" json:"payment_status"`
	RecipientName  string          `gorm:"type:varchar(100)" json:"recipient_name"`
	Phone          string          `gorm:"type:varchar(20)" json:"phone"`
	Street         string          `gorm:"type:varchar(255)" json:"street"`
	City           string          `gorm:"type:varchar(100)" json:"city"`
	Province       string          `gorm:"type:varchar(100)" json:"province"`
	PostalCode     string          `gorm:"type:varchar(10)" json:"postal_code"`
	CourierName    string          `gorm:"type:varchar(50)" json:"courier_name"`
	CourierService string          `gorm:"type:varchar(50)" json:"courier_service"`
	TrackingNumber string          `gorm:"type:varchar(100)" json:"tracking_number"`
	ExternalID     string          `gorm:"type:varchar(100)" json:"external_id"`
	PaymentLink    string          `gorm:"type:varchar(255)" json:"payment_link"`
	Notes          string          `gorm:"type:text" json:"notes"`
	Items          []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt      time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem 订单明细，名称/价格/尺码为快照
type OrderItem struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	OrderID      uint            `gorm:"index;not null" json:"order_id"`
	ProductID    *uint           `gorm:"index" json:"product_id"` // 商品删除后置空
	NameSnapshot string          `gorm:"type:varchar(191)" json:"name_snapshot"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	SizeSnapshot string          `gorm:"type:varchar(20)" json:"size_snapshot"`
	Qty          int             `gorm:"not null" json:"qty"`
	LineTotal    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
}

func (Order) TableName() string {
	return "orders"
}

func (OrderItem) TableName() string {
	return "order_items"
}
