package model

import (
	"time"

	productModel "oldmarket/apps/product/model"
)

// CartItem 购物车条目，(user_id, product_id) 唯一
type CartItem struct {
	ID        uint                  `gorm:"primaryKey" json:"id"`
	UserID    uint                  `gorm:"uniqueIndex:idx_cart_user_product;not null" json:"user_id"`
	ProductID uint                  `gorm:"uniqueIndex:idx_cart_user_product;not null" json:"product_id"`
	Qty       int                   `gorm:"not null" json:"qty"`
	Product   *productModel.Product `json:"product,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
