// Package cart 购物车，所有查询都带 user_id
package cart

import (
	"context"
	"errors"
	"time"

	"oldmarket/apps/cart/model"
	productModel "oldmarket/apps/product/model"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Add 已存在则累加数量 (ON CONFLICT / ON DUPLICATE KEY)
func (s *Service) Add(ctx context.Context, userID, productID uint, qty int) (*model.CartItem, error) {
	if qty <= 0 {
		return nil, status.Error(codes.InvalidArgument, "quantity must be greater than 0")
	}

	var p productModel.Product
	err := s.db.WithContext(ctx).Select("id", "is_active").First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get product: %v", err)
	}
	if !p.IsActive {
		return nil, status.Error(codes.FailedPrecondition, "product is not available")
	}

	item := model.CartItem{UserID: userID, ProductID: productID, Qty: qty}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qty":        gorm.Expr("qty + ?", qty),
			"updated_at": time.Now(),
		}),
	}).Create(&item).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "upsert cart item: %v", err)
	}

	return s.get(ctx, userID, productID)
}

// List 带商品、品牌、图片，最近加入的在前
func (s *Service) List(ctx context.Context, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Preload("Product").Preload("Product.Brand").Preload("Product.Images").
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list cart: %v", err)
	}
	return items, nil
}

// Update 设置绝对数量，<=0 视为删除，此时返回 nil
func (s *Service) Update(ctx context.Context, userID, productID uint, qty int) (*model.CartItem, error) {
	if qty <= 0 {
		return nil, s.Remove(ctx, userID, productID)
	}

	if _, err := s.get(ctx, userID, productID); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Model(&model.CartItem{}).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Update("qty", qty).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "update cart item: %v", err)
	}
	return s.get(ctx, userID, productID)
}

func (s *Service) Remove(ctx context.Context, userID, productID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&model.CartItem{})
	if result.Error != nil {
		return status.Errorf(codes.Internal, "delete cart item: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return status.Error(codes.NotFound, "cart item not found")
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{}).Error; err != nil {
		return status.Errorf(codes.Internal, "clear cart: %v", err)
	}
	return nil
}

func (s *Service) get(ctx context.Context, userID, productID uint) (*model.CartItem, error) {
	var item model.CartItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Preload("Product").Preload("Product.Brand").Preload("Product.Images").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "cart item not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get cart item: %v", err)
	}
	return &item, nil
}
