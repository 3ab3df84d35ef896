// Package product 商品目录：列表/详情/后台增删改/品牌
package product

import (
	"context"
	"errors"
	"slices"
	"strings"

	cartModel "oldmarket/apps/cart/model"
	orderModel "oldmarket/apps/order/model"
	"oldmarket/apps/product/model"
	"oldmarket/pkg/logger"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

const searchLimit = 100

type Service struct {
	db       *gorm.DB
	searcher Searcher // 可为 nil，此时走数据库 LIKE
}

func NewService(db *gorm.DB, searcher Searcher) *Service {
	return &Service{db: db, searcher: searcher}
}

type ListFilter struct {
	Query      string
	BrandID    uint
	ActiveOnly bool
}

type ImageInput struct {
	ImageURL    string `json:"image_url"`
	IsThumbnail bool   `json:"is_thumbnail"`
}

// Input 创建/更新商品的参数
type Input struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Size          string
	BrandID       *uint
	WeightGrams   int
	IsActive      *bool
	Images        []ImageInput
}

func (in *Input) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return status.Error(codes.InvalidArgument, "name is required")
	}
	if in.Price.IsNegative() {
		return status.Error(codes.InvalidArgument, "price must not be negative")
	}
	if in.StockQuantity < 0 {
		return status.Error(codes.InvalidArgument, "stock_quantity must not be negative")
	}
	if in.WeightGrams <= 0 {
		in.WeightGrams = model.DefaultWeightGrams
	}
	for _, img := range in.Images {
		if strings.TrimSpace(img.ImageURL) == "" {
			return status.Error(codes.InvalidArgument, "image_url is required")
		}
	}
	return nil
}

// thumbnailURL 优先 is_thumbnail，否则第一张
func thumbnailURL(images []ImageInput) string {
	for _, img := range images {
		if img.IsThumbnail {
			return img.ImageURL
		}
	}
	if len(images) > 0 {
		return images[0].ImageURL
	}
	return ""
}

func toImages(in []ImageInput) []model.ProductImage {
	images := make([]model.ProductImage, 0, len(in))
	for _, img := range in {
		images = append(images, model.ProductImage{ImageURL: img.ImageURL, IsThumbnail: img.IsThumbnail})
	}
	return images
}

// likeEscaper 转义 LIKE 通配符，配合 ESCAPE '!' 使用，MySQL 和 SQLite 都认
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// List 新品在前，带品牌和图片；走检索服务时保持检索结果的相关度顺序
func (s *Service) List(ctx context.Context, f ListFilter) ([]model.Product, error) {
	query := s.db.WithContext(ctx).Model(&model.Product{}).Preload("Brand").Preload("Images")
	if f.BrandID > 0 {
		query = query.Where("brand_id = ?", f.BrandID)
	}
	if f.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var ranked []uint
	if q := strings.TrimSpace(f.Query); q != "" {
		ids, ok := s.search(ctx, q)
		if ok {
			if len(ids) == 0 {
				return []model.Product{}, nil
			}
			ranked = ids
			query = query.Where("id IN ?", ids)
		} else {
			like := "%" + likeEscaper.Replace(q) + "%"
			query = query.Where("name LIKE ? ESCAPE '!' OR description LIKE ? ESCAPE '!'", like, like)
		}
	}

	if ranked == nil {
		query = query.Order("created_at DESC").Order("id DESC")
	}
	var products []model.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "list products: %v", err)
	}
	if ranked != nil {
		sortByRank(products, ranked)
	}
	return products, nil
}

func sortByRank(products []model.Product, ids []uint) {
	rank := make(map[uint]int, len(ids))
	for i, id := range ids {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	slices.SortStableFunc(products, func(a, b model.Product) int {
		return rank[a.ID] - rank[b.ID]
	})
}

// search 检索失败时返回 ok=false，调用方退回数据库查询
func (s *Service) search(ctx context.Context, q string) ([]uint, bool) {
	if s.searcher == nil {
		return nil, false
	}
	ids, err := s.searcher.Search(ctx, q, searchLimit)
	if err != nil {
		logger.Warn(ctx, "product search failed, falling back to database", "query", q, "error", err)
		return nil, false
	}
	return ids, true
}

func (s *Service) Get(ctx context.Context, id uint) (*model.Product, error) {
	var p model.Product
	err := s.db.WithContext(ctx).Preload("Brand").Preload("Images").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "product not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get product: %v", err)
	}
	return &p, nil
}

func (s *Service) checkBrand(tx *gorm.DB, brandID *uint) error {
	if brandID == nil {
		return nil
	}
	var cnt int64
	if err := tx.Model(&model.Brand{}).Where("id = ?", *brandID).Count(&cnt).Error; err != nil {
		return status.Errorf(codes.Internal, "check brand: %v", err)
	}
	if cnt == 0 {
		return status.Error(codes.InvalidArgument, "brand not found")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := model.Product{
		BrandID:       in.BrandID,
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		StockQuantity: in.StockQuantity,
		Size:          in.Size,
		IsActive:      true,
		ImageURL:      thumbnailURL(in.Images),
		WeightGrams:   in.WeightGrams,
		Images:        toImages(in.Images),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkBrand(tx, in.BrandID); err != nil {
			return err
		}
		// GORM 级联创建：创建 Product 时会自动创建 Images
		if err := tx.Create(&p).Error; err != nil {
			return status.Errorf(codes.Internal, "create product: %v", err)
		}
		// is_active 带 default:true，false 需要单独写
		if in.IsActive != nil && !*in.IsActive {
			if err := tx.Model(&p).Update("is_active", false).Error; err != nil {
				return status.Errorf(codes.Internal, "update product: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndIndex(ctx, p.ID)
}

// Update 覆盖字段并整体替换图片
func (s *Service) Update(ctx context.Context, id uint, in Input) (*model.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Error(codes.NotFound, "product not found")
			}
			return status.Errorf(codes.Internal, "get product: %v", err)
		}
		if err := s.checkBrand(tx, in.BrandID); err != nil {
			return err
		}

		active := p.IsActive
		if in.IsActive != nil {
			active = *in.IsActive
		}
		updates := map[string]interface{}{
			"brand_id":       in.BrandID,
			"name":           in.Name,
			"description":    in.Description,
			"price":          in.Price,
			"stock_quantity": in.StockQuantity,
			"size":           in.Size,
			"is_active":      active,
			"image_url":      thumbnailURL(in.Images),
			"weight_grams":   in.WeightGrams,
		}
		if err := tx.Model(&p).Updates(updates).Error; err != nil {
			return status.Errorf(codes.Internal, "update product: %v", err)
		}

		if err := tx.Where("product_id = ?", id).Delete(&model.ProductImage{}).Error; err != nil {
			return status.Errorf(codes.Internal, "delete images: %v", err)
		}
		if images := toImages(in.Images); len(images) > 0 {
			for i := range images {
				images[i].ProductID = id
			}
			if err := tx.Create(&images).Error; err != nil {
				return status.Errorf(codes.Internal, "create images: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.reloadAndIndex(ctx, id)
}

// Delete 删除图片、置空历史订单明细的 product_id、清理购物车，然后删除商品
func (s *Service) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Error(codes.NotFound, "product not found")
			}
			return status.Errorf(codes.Internal, "get product: %v", err)
		}

		// 1. 图片
		if err := tx.Where("product_id = ?", id).Delete(&model.ProductImage{}).Error; err != nil {
			return status.Errorf(codes.Internal, "delete images: %v", err)
		}
		// 2. 历史订单保留快照，只断开引用
		if err := tx.Model(&orderModel.OrderItem{}).Where("product_id = ?", id).Update("product_id", nil).Error; err != nil {
			return status.Errorf(codes.Internal, "detach order items: %v", err)
		}
		// 3. 购物车
		if err := tx.Where("product_id = ?", id).Delete(&cartModel.CartItem{}).Error; err != nil {
			return status.Errorf(codes.Internal, "delete cart items: %v", err)
		}
		// 4. 商品本身
		if err := tx.Delete(&p).Error; err != nil {
			return status.Errorf(codes.Internal, "delete product: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.searcher != nil {
		if err := s.searcher.Delete(ctx, id); err != nil {
			logger.Warn(ctx, "remove product from search index failed", "product_id", id, "error", err)
		}
	}
	return nil
}

// reloadAndIndex 重新读取商品并同步索引，索引失败只记录日志
func (s *Service) reloadAndIndex(ctx context.Context, id uint) (*model.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.searcher != nil {
		if err := s.searcher.Index(ctx, p); err != nil {
			logger.Warn(ctx, "index product failed", "product_id", id, "error", err)
		}
	}
	return p, nil
}

// Reindex 全量重建索引，启动时调用
func (s *Service) Reindex(ctx context.Context) (int, error) {
	if s.searcher == nil {
		return 0, nil
	}
	var products []model.Product
	if err := s.db.WithContext(ctx).Preload("Brand").Find(&products).Error; err != nil {
		return 0, err
	}
	for i := range products {
		if err := s.searcher.Index(ctx, &products[i]); err != nil {
			return i, err
		}
	}
	return len(products), nil
}

func (s *Service) ListBrands(ctx context.Context) ([]model.Brand, error) {
	var brands []model.Brand
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&brands).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "list brands: %v", err)
	}
	return brands, nil
}

func (s *Service) CreateBrand(ctx context.Context, name string) (*model.Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	var cnt int64
	if err := s.db.WithContext(ctx).Model(&model.Brand{}).Where("name = ?", name).Count(&cnt).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "count brands: %v", err)
	}
	if cnt > 0 {
		return nil, status.Error(codes.AlreadyExists, "brand already exists")
	}

	b := model.Brand{Name: name}
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "create brand: %v", err)
	}
	return &b, nil
}
