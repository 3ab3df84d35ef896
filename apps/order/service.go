// Package order 下单事务与订单生命周期
package order

import (
	"context"
	"errors"
	"time"

	addressModel "oldmarket/apps/address/model"
	cartModel "oldmarket/apps/cart/model"
	"oldmarket/apps/order/model"
	productModel "oldmarket/apps/product/model"
	userModel "oldmarket/apps/user/model"
	"oldmarket/pkg/logger"
	"oldmarket/pkg/metrics"
	"oldmarket/pkg/mq"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// 订单来源
const (
	TypeCart   = "cart"
	TypeBuyNow = "buy_now"
)

type Line struct {
	ProductID uint `json:"product_id"`
	Qty       int  `json:"qty"`
}

type PlaceOrderInput struct {
	UserID         uint
	Lines          []Line
	Subtotal       *decimal.Decimal // 客户端计算的小计，可选，只用于校验
	ShippingFee    decimal.Decimal
	AddressID      uint
	Notes          string
	CourierName    string
	CourierService string
	OrderType      string
}

type Service struct {
	db        *gorm.DB
	publisher mq.Publisher
	metrics   *metrics.Metrics
}

func NewService(db *gorm.DB, publisher mq.Publisher, m *metrics.Metrics) *Service {
	if publisher == nil {
		publisher = mq.NopPublisher{}
	}
	return &Service{db: db, publisher: publisher, metrics: m}
}

// normalize 校验参数并合并重复商品行
func (in *PlaceOrderInput) normalize() ([]Line, error) {
	if in.AddressID == 0 {
		return nil, status.Error(codes.InvalidArgument, "addressId is required")
	}
	if len(in.Lines) == 0 {
		return nil, status.Error(codes.InvalidArgument, "cartItems must not be empty")
	}
	if in.ShippingFee.IsNegative() {
		return nil, status.Error(codes.InvalidArgument, "shippingFee must not be negative")
	}
	switch in.OrderType {
	case "":
		in.OrderType = TypeCart
	case TypeCart, TypeBuyNow:
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown orderType %q", in.OrderType)
	}

	merged := make([]Line, 0, len(in.Lines))
	index := make(map[uint]int, len(in.Lines))
	for _, l := range in.Lines {
		if l.ProductID == 0 {
			return nil, status.Error(codes.InvalidArgument, "product_id is required")
		}
		if l.Qty <= 0 {
			return nil, status.Errorf(codes.InvalidArgument, "qty for product %d must be greater than 0", l.ProductID)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Qty += l.Qty
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

// PlaceOrder 在一个事务里完成：校验地址和商品、扣减库存、写订单与明细、清理购物车。
// 任一步失败整体回滚。
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*model.Order, error) {
	lines, err := in.normalize()
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}

	var order model.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 收货地址，必须属于下单用户
		var addr addressModel.Address
		if err := tx.Where("id = ? AND user_id = ?", in.AddressID, in.UserID).First(&addr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Error(codes.NotFound, "address not found")
			}
			return status.Errorf(codes.Internal, "get address: %v", err)
		}

		// 2. 批量查询商品
		ids := make([]uint, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		var products []productModel.Product
		if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
			return status.Errorf(codes.Internal, "get products: %v", err)
		}
		byID := make(map[uint]*productModel.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		// 3. 预检查库存，计算小计
		subtotal := decimal.Zero
		items := make([]model.OrderItem, 0, len(lines))
		for _, l := range lines {
			p, ok := byID[l.ProductID]
			if !ok {
				return status.Errorf(codes.NotFound, "product %d not found", l.ProductID)
			}
			if !p.IsActive {
				return status.Errorf(codes.FailedPrecondition, "product %s is not available", p.Name)
			}
			if l.Qty > p.StockQuantity {
				return insufficientStock(p.Name)
			}

			lineTotal := p.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
			subtotal = subtotal.Add(lineTotal)
			productID := p.ID
			items = append(items, model.OrderItem{
				ProductID:    &productID,
				NameSnapshot: p.Name,
				UnitPrice:    p.Price,
				SizeSnapshot: p.Size,
				Qty:          l.Qty,
				LineTotal:    lineTotal,
			})
		}
		if in.Subtotal != nil && !in.Subtotal.Equal(subtotal) {
			return status.Errorf(codes.InvalidArgument, "subtotal mismatch: expected %s", subtotal.StringFixed(2))
		}

		// 4. 条件扣减：stock_quantity >= qty 才更新，影响行数为 0 说明被并发请求抢先
		for _, l := range lines {
			result := tx.Model(&productModel.Product{}).
				Where("id = ? AND stock_quantity >= ?", l.ProductID, l.Qty).
				Update("stock_quantity", gorm.Expr("stock_quantity - ?", l.Qty))
			if result.Error != nil {
				return status.Errorf(codes.Internal, "decrease stock: %v", result.Error)
			}
			if result.RowsAffected == 0 {
				return insufficientStock(byID[l.ProductID].Name)
			}
		}

		// 5. 订单 + 明细，收货信息取快照
		addressID := addr.ID
		order = model.Order{
			UserID:         in.UserID,
			AddressID:      &addressID,
			SubtotalAmount: subtotal,
			ShippingAmount: in.ShippingFee,
			GrandTotal:     subtotal.Add(in.ShippingFee),
			Status:         model.StatusPendingPayment,
			PaymentStatus:  model.PaymentUnpaid,
			RecipientName:  addr.RecipientName,
			Phone:          addr.Phone,
			Street:         addr.Street,
			City:           addr.City,
			Province:       addr.Province,
			PostalCode:     addr.PostalCode,
			CourierName:    in.CourierName,
			CourierService: in.CourierService,
			Notes:          in.Notes,
			Items:          items,
		}
		if err := tx.Create(&order).Error; err != nil {
			return status.Errorf(codes.Internal, "create order: %v", err)
		}

		// 6. 购物车下单才清理对应条目，立即购买保留购物车
		if in.OrderType == TypeCart {
			if err := tx.Where("user_id = ? AND product_id IN ?", in.UserID, ids).Delete(&cartModel.CartItem{}).Error; err != nil {
				return status.Errorf(codes.Internal, "clear cart: %v", err)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}

	s.metrics.OrderPlaced()
	s.publishCreated(ctx, &order, in.OrderType)
	logger.Info(ctx, "order placed", "order_id", order.ID, "user_id", order.UserID, "grand_total", order.GrandTotal.String())
	return &order, nil
}

func insufficientStock(name string) error {
	return status.Errorf(codes.FailedPrecondition, "insufficient stock for product %s", name)
}

func rejectReason(err error) string {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return "invalid"
	case codes.NotFound:
		return "not_found"
	case codes.FailedPrecondition:
		return "unavailable"
	default:
		return "error"
	}
}

// GetOrder 本人或管理员可查看
func (s *Service) GetOrder(ctx context.Context, userID uint, isAdmin bool, id uint) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get order: %v", err)
	}
	if o.UserID != userID && !isAdmin {
		return nil, status.Error(codes.PermissionDenied, "order belongs to another user")
	}
	return &o, nil
}

// ListMyOrders 最新的在前
func (s *Service) ListMyOrders(ctx context.Context, userID uint) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Find(&orders).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list orders: %v", err)
	}
	return orders, nil
}

// ConfirmReceived 用户确认收货，只允许 SHIPPED -> COMPLETED
func (s *Service) ConfirmReceived(ctx context.Context, userID, id uint) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get order: %v", err)
	}
	if o.Status != model.StatusShipped {
		return nil, status.Error(codes.FailedPrecondition, "order has not been shipped")
	}

	result := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, model.StatusShipped).
		Update("status", model.StatusCompleted)
	if result.Error != nil {
		return nil, status.Errorf(codes.Internal, "update order: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, status.Error(codes.Aborted, "order status changed concurrently")
	}

	o.Status = model.StatusCompleted
	PublishStatusChanged(ctx, s.publisher, &o, model.StatusShipped, "customer")
	return &o, nil
}

type AdminFilter struct {
	Status string
	Date   *time.Time // 按下单日期筛选，取当天 00:00 ~ 24:00
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AdminOrder 后台订单列表行
type AdminOrder struct {
	model.Order
	User Customer `json:"user"`
}

func (s *Service) ListOrders(ctx context.Context, f AdminFilter) ([]AdminOrder, error) {
	query := s.db.WithContext(ctx).Model(&model.Order{})
	if f.Status != "" {
		if !model.ValidStatus(f.Status) {
			return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", f.Status)
		}
		query = query.Where("status = ?", f.Status)
	}
	if f.Date != nil {
		start := time.Date(f.Date.Year(), f.Date.Month(), f.Date.Day(), 0, 0, 0, 0, f.Date.Location())
		query = query.Where("created_at >= ? AND created_at < ?", start, start.AddDate(0, 0, 1))
	}

	var orders []model.Order
	if err := query.Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "list orders: %v", err)
	}

	// 批量查客户信息
	userIDs := make([]uint, 0, len(orders))
	for _, o := range orders {
		userIDs = append(userIDs, o.UserID)
	}
	customers := make(map[uint]Customer, len(userIDs))
	if len(userIDs) > 0 {
		var users []userModel.User
		if err := s.db.WithContext(ctx).Select("id", "name", "email").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "get customers: %v", err)
		}
		for _, u := range users {
			customers[u.ID] = Customer{Name: u.Name, Email: u.Email}
		}
	}

	rows := make([]AdminOrder, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, AdminOrder{Order: o, User: customers[o.UserID]})
	}
	return rows, nil
}

// UpdateOrderStatus 后台修改状态，SHIPPED 必须带运单号
func (s *Service) UpdateOrderStatus(ctx context.Context, id uint, newStatus, trackingNumber string) (*model.Order, error) {
	if !model.ValidStatus(newStatus) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", newStatus)
	}
	if newStatus == model.StatusShipped && trackingNumber == "" {
		return nil, status.Error(codes.InvalidArgument, "tracking_number is required for SHIPPED")
	}

	var (
		o    model.Order
		from string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Error(codes.NotFound, "order not found")
			}
			return status.Errorf(codes.Internal, "get order: %v", err)
		}
		from = o.Status

		updates := map[string]interface{}{"status": newStatus}
		if trackingNumber != "" {
			updates["tracking_number"] = trackingNumber
		}
		if err := tx.Model(&o).Updates(updates).Error; err != nil {
			return status.Errorf(codes.Internal, "update order: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != newStatus {
		o.Status = newStatus
		PublishStatusChanged(ctx, s.publisher, &o, from, "admin")
	}
	return s.GetOrder(ctx, 0, true, id)
}
