// Package admin 后台看板与销售报表，每次请求实时聚合
package admin

import (
	"context"
	"time"

	orderModel "oldmarket/apps/order/model"
	productModel "oldmarket/apps/product/model"
	userModel "oldmarket/apps/user/model"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

const (
	topSellerLimit   = 5
	recentOrderLimit = 5
	DefaultRange     = "month"
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type BestSeller struct {
	ProductID *uint  `json:"product_id"`
	Name      string `json:"name"`
	TotalSold int64  `json:"total_sold"`
	Image     string `json:"image"`
}

type RecentOrder struct {
	ID       uint            `json:"id"`
	Customer string          `json:"customer"`
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
}

type Dashboard struct {
	Range               string          `json:"range"`
	From                time.Time       `json:"from"`
	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	TotalOrders         int64           `json:"totalOrders"`
	TotalProducts       int64           `json:"totalProducts"`
	LowStockCount       int64           `json:"lowStockCount"`
	BestSellingProducts []BestSeller    `json:"bestSellingProducts"`
	RecentOrders        []RecentOrder   `json:"recentOrders"`
}

// RangeStart day/week/month/year 对应 now 往前 24 小时/7 天/1 个月/1 年
func RangeStart(r string, now time.Time) (time.Time, error) {
	switch r {
	case "day":
		return now.Add(-24 * time.Hour), nil
	case "week":
		return now.AddDate(0, 0, -7), nil
	case "", "month":
		return now.AddDate(0, -1, 0), nil
	case "year":
		return now.AddDate(-1, 0, 0), nil
	}
	return time.Time{}, status.Errorf(codes.InvalidArgument, "invalid range %q, expected day|week|month|year", r)
}

func (s *Service) Dashboard(ctx context.Context, r string) (*Dashboard, error) {
	if r == "" {
		r = DefaultRange
	}
	from, err := RangeStart(r, s.now())
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	d := &Dashboard{Range: r, From: from}

	// 1. 区间内已完成订单的营收和数量
	if err := db.Model(&orderModel.Order{}).
		Where("status = ? AND created_at >= ?", orderModel.StatusCompleted, from).
		Select("COUNT(*), COALESCE(SUM(grand_total), 0)").
		Row().Scan(&d.TotalOrders, &d.TotalRevenue); err != nil {
		return nil, status.Errorf(codes.Internal, "sum completed orders: %v", err)
	}

	// 2. 商品总数和低库存
	if err := db.Model(&productModel.Product{}).Count(&d.TotalProducts).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "count products: %v", err)
	}
	if err := db.Model(&productModel.Product{}).
		Where("stock_quantity < ?", productModel.LowStockThreshold).
		Count(&d.LowStockCount).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "count low stock: %v", err)
	}

	// 3. 销量前五
	if d.BestSellingProducts, err = s.bestSellers(db, from); err != nil {
		return nil, err
	}

	// 4. 最近订单，不限状态
	if d.RecentOrders, err = s.recentOrders(db); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) bestSellers(db *gorm.DB, from time.Time) ([]BestSeller, error) {
	rows := []BestSeller{}
	err := db.Table("order_items").
		Select("order_items.product_id AS product_id, MAX(order_items.name_snapshot) AS name, SUM(order_items.qty) AS total_sold").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status = ? AND orders.created_at >= ?", orderModel.StatusCompleted, from).
		Group("order_items.product_id").
		Order("total_sold DESC").
		Limit(topSellerLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "best sellers: %v", err)
	}

	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		if r.ProductID != nil {
			ids = append(ids, *r.ProductID)
		}
	}
	if len(ids) == 0 {
		return rows, nil
	}

	var products []productModel.Product
	if err := db.Preload("Images").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "best seller images: %v", err)
	}
	thumbs := make(map[uint]string, len(products))
	for i := range products {
		thumbs[products[i].ID] = products[i].Thumbnail()
	}
	for i := range rows {
		if rows[i].ProductID != nil {
			rows[i].Image = thumbs[*rows[i].ProductID]
		}
	}
	return rows, nil
}

func (s *Service) recentOrders(db *gorm.DB) ([]RecentOrder, error) {
	var orders []orderModel.Order
	if err := db.Order("created_at DESC").Order("id DESC").Limit(recentOrderLimit).Find(&orders).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "recent orders: %v", err)
	}

	userIDs := make([]uint, 0, len(orders))
	for _, o := range orders {
		userIDs = append(userIDs, o.UserID)
	}
	names := make(map[uint]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []userModel.User
		if err := db.Select("id", "name").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "recent order customers: %v", err)
		}
		for _, u := range users {
			names[u.ID] = u.Name
		}
	}

	recent := make([]RecentOrder, 0, len(orders))
	for _, o := range orders {
		recent = append(recent, RecentOrder{
			ID:       o.ID,
			Customer: names[o.UserID],
			Date:     o.CreatedAt,
			Amount:   o.GrandTotal,
			Status:   o.Status,
		})
	}
	return recent, nil
}

type SalesRow struct {
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// SalesReport 已完成订单按商品名汇总；to 包含当天 23:59:59
func (s *Service) SalesReport(ctx context.Context, from, to *time.Time) ([]SalesRow, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, status.Error(codes.InvalidArgument, "dateTo must not be before dateFrom")
	}

	query := s.db.WithContext(ctx).Table("order_items").
		Select("order_items.name_snapshot AS product_name, MAX(order_items.unit_price) AS price, " +
			"SUM(order_items.qty) AS quantity, SUM(order_items.line_total) AS total").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status = ?", orderModel.StatusCompleted)
	if from != nil {
		start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
		query = query.Where("orders.created_at >= ?", start)
	}
	if to != nil {
		end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
		query = query.Where("orders.created_at <= ?", end)
	}

	rows := []SalesRow{}
	if err := query.Group("order_items.name_snapshot").Order("total DESC").Scan(&rows).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "sales report: %v", err)
	}
	return rows, nil
}
