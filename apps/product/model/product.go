package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWeightGrams 未填写重量时按 250g 估算运费
const DefaultWeightGrams = 250

// LowStockThreshold 库存低于该值视为低库存
const LowStockThreshold = 5

// Product 商品
type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	BrandID       *uint           `gorm:"index" json:"brand_id"`
	Brand         *Brand          `json:"brand,omitempty"`
	Name          string          `gorm:"type:varchar(191);not null" json:"name"`
	Description   string          `gorm:"type:text" json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"` // 不能小于 0
	Size          string          `gorm:"type:varchar(20)" json:"size"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	ImageURL      string          `gorm:"type:varchar(500)" json:"image_url"` // 缩略图冗余
	WeightGrams   int             `gorm:"not null;default:250" json:"weight_grams"`
	Images        []ProductImage  `gorm:"foreignKey:ProductID" json:"images,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Brand 品牌
type Brand struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
}

// ProductImage 商品图片
type ProductImage struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProductID   uint   `gorm:"index;not null" json:"product_id"`
	ImageURL    string `gorm:"type:varchar(500);not null" json:"image_url"`
	IsThumbnail bool   `gorm:"not null;default:false" json:"is_thumbnail"`
}

// Thumbnail 优先返回缩略图，否则第一张，再否则 image_url
func (p *Product) Thumbnail() string {
	for _, img := range p.Images {
		if img.IsThumbnail {
			return img.ImageURL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].ImageURL
	}
	return p.ImageURL
}

func (Product) TableName() string {
	return "products"
}

func (Brand) TableName() string {
	return "brands"
}

func (ProductImage) TableName() string {
	return "product_images"
}
