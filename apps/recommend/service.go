package recommend

import (
	"context"

	orderModel "oldmarket/apps/order/model"
	productModel "oldmarket/apps/product/model"
	"oldmarket/pkg/logger"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

const fallbackLimit = 8

type Service struct {
	db  *gorm.DB
	rec Recommender
}

// NewService rec 为 nil 时只返回库存最多的商品
func NewService(db *gorm.DB, rec Recommender) *Service {
	return &Service{db: db, rec: rec}
}

// Recommend 没有购买记录或推荐服务不可用时，退回库存最多的 8 个商品
func (s *Service) Recommend(ctx context.Context, userID uint) ([]productModel.Product, error) {
	db := s.db.WithContext(ctx)

	// 1. 用户的购买记录，已删除商品的明细跳过
	var items []orderModel.OrderItem
	err := db.Model(&orderModel.OrderItem{}).
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.user_id = ? AND order_items.product_id IS NOT NULL", userID).
		Find(&items).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load purchase history: %v", err)
	}
	if len(items) == 0 || s.rec == nil {
		return s.fallback(db)
	}

	// 2. 调用推荐服务
	req := Request{UserID: userID, OrderItems: make([]OrderItem, 0, len(items))}
	for _, it := range items {
		req.OrderItems = append(req.OrderItems, OrderItem{UserID: userID, ProductID: *it.ProductID, Quantity: it.Qty})
	}
	ids, err := s.rec.Recommend(ctx, req)
	if err != nil {
		logger.Warn(ctx, "recommender failed, using fallback", "user_id", userID, "err", err)
		return s.fallback(db)
	}
	if len(ids) == 0 {
		return s.fallback(db)
	}

	// 3. 按推荐顺序返回，下架或不存在的忽略
	var products []productModel.Product
	if err := db.Preload("Images").Where("id IN ? AND is_active = ?", ids, true).Find(&products).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "load recommended products: %v", err)
	}
	byID := make(map[uint]productModel.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]productModel.Product, 0, len(products))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	if len(ordered) == 0 {
		return s.fallback(db)
	}
	return ordered, nil
}

func (s *Service) fallback(db *gorm.DB) ([]productModel.Product, error) {
	products := []productModel.Product{}
	err := db.Preload("Images").
		Where("is_active = ?", true).
		Order("stock_quantity DESC").Order("id ASC").
		Limit(fallbackLimit).
		Find(&products).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "load fallback products: %v", err)
	}
	return products, nil
}
