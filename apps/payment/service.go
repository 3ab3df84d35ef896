// Package payment Snap 支付创建与支付回调处理
package payment

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"oldmarket/apps/order"
	orderModel "oldmarket/apps/order/model"
	userModel "oldmarket/apps/user/model"
	"oldmarket/pkg/logger"
	"oldmarket/pkg/metrics"
	"oldmarket/pkg/mq"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// OrderIDPrefix 网关侧订单号 ORDER-<id>-<毫秒时间戳>
const OrderIDPrefix = "ORDER-"

type Service struct {
	db        *gorm.DB
	snap      SnapCreator
	serverKey string
	finishURL string
	publisher mq.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Options struct {
	ServerKey string
	FinishURL string
	Publisher mq.Publisher
	Metrics   *metrics.Metrics
}

func NewService(db *gorm.DB, snap SnapCreator, opts Options) *Service {
	pub := opts.Publisher
	if pub == nil {
		pub = mq.NopPublisher{}
	}
	return &Service{
		db:        db,
		snap:      snap,
		serverKey: opts.ServerKey,
		finishURL: opts.FinishURL,
		publisher: pub,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// CreateTransaction 为未支付订单创建 Snap 交易，token 写入 payment_link
func (s *Service) CreateTransaction(ctx context.Context, userID, orderID uint) (*SnapResponse, error) {
	var o orderModel.Order
	err := s.db.WithContext(ctx).First(&o, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, status.Error(codes.NotFound, "order not found")
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get order: %v", err)
	}
	if o.UserID != userID {
		return nil, status.Error(codes.PermissionDenied, "order belongs to another user")
	}
	if o.PaymentStatus == orderModel.PaymentPaid {
		return nil, status.Error(codes.FailedPrecondition, "order is already paid")
	}
	if o.Status == orderModel.StatusCanceled {
		return nil, status.Error(codes.FailedPrecondition, "order is canceled")
	}

	var u userModel.User
	if err := s.db.WithContext(ctx).First(&u, o.UserID).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "get customer: %v", err)
	}

	req := SnapRequest{
		TransactionDetails: TransactionDetails{
			OrderID:     fmt.Sprintf("%s%d-%d", OrderIDPrefix, o.ID, s.now().UnixMilli()),
			GrossAmount: o.GrandTotal.Round(0).IntPart(), // IDR 不支持小数
		},
		CustomerDetails: &CustomerDetails{FirstName: u.Name, Email: u.Email, Phone: o.Phone},
	}
	if s.finishURL != "" {
		req.Callbacks = &Callbacks{Finish: s.finishURL}
	}

	resp, err := s.snap.CreateTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&o).Update("payment_link", resp.Token).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "save payment link: %v", err)
	}
	logger.Info(ctx, "payment transaction created", "order_id", o.ID, "gateway_order_id", req.TransactionDetails.OrderID)
	return resp, nil
}

// Notification 支付网关异步通知
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	FraudStatus       string `json:"fraud_status"`
}

// Signature hex(sha512(order_id + status_code + gross_amount + server_key))
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// mapTransactionStatus 返回 (支付状态, 订单状态)，ok=false 表示不改状态
func mapTransactionStatus(ts string) (string, string, bool) {
	switch ts {
	case "capture", "settlement":
		return orderModel.PaymentPaid, orderModel.StatusProcessing, true
	case "cancel", "expire", "deny":
		return orderModel.PaymentUnpaid, orderModel.StatusCanceled, true
	}
	return "", "", false
}

// parseOrderID 从 ORDER-<id>-<ts> 中取出数字 ID
func parseOrderID(gatewayID string) (uint, bool) {
	parts := strings.Split(gatewayID, "-")
	if len(parts) < 2 {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// HandleNotification 处理支付回调。
// received=false 表示通知被忽略 (测试通知、无法识别的订单)，仍应返回 200 避免网关重试；
// 签名错误返回 PermissionDenied 且不写库。重复通知只会覆盖成相同的值。
func (s *Service) HandleNotification(ctx context.Context, n Notification) (bool, error) {
	// 1. 非本系统订单号 (测试通知) 直接忽略
	if n.OrderID == "" || !strings.HasPrefix(n.OrderID, OrderIDPrefix) {
		logger.Info(ctx, "ignoring payment notification", "order_id", n.OrderID)
		s.metrics.PaymentNotification("ignored")
		return false, nil
	}

	// 2. 验签，常数时间比较
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, s.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		logger.Warn(ctx, "payment notification signature mismatch", "order_id", n.OrderID)
		s.metrics.PaymentNotification("invalid_signature")
		return false, status.Error(codes.PermissionDenied, "invalid signature")
	}

	// 3. 解析订单 ID
	id, ok := parseOrderID(n.OrderID)
	if !ok {
		logger.Warn(ctx, "payment notification has malformed order id", "order_id", n.OrderID)
		s.metrics.PaymentNotification("ignored")
		return false, nil
	}

	var (
		o       orderModel.Order
		from    string
		changed bool
		found   = true
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				found = false
				return nil
			}
			return err
		}
		from = o.Status

		if gross, err := decimal.NewFromString(n.GrossAmount); err == nil && !gross.Equal(o.GrandTotal) {
			logger.Warn(ctx, "payment gross amount differs from order total",
				"order_id", o.ID, "gross_amount", n.GrossAmount, "grand_total", o.GrandTotal.String())
		}

		// 4. 状态映射，未知状态只记录外部单号
		updates := map[string]interface{}{"external_id": n.OrderID}
		if paymentStatus, orderStatus, ok := mapTransactionStatus(n.TransactionStatus); ok {
			updates["payment_status"] = paymentStatus
			updates["status"] = orderStatus
			changed = orderStatus != o.Status || paymentStatus != o.PaymentStatus
			o.PaymentStatus = paymentStatus
			o.Status = orderStatus
		}
		return tx.Model(&orderModel.Order{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		s.metrics.PaymentNotification("error")
		return false, status.Errorf(codes.Internal, "apply payment notification: %v", err)
	}
	if !found {
		logger.Warn(ctx, "payment notification for unknown order", "order_id", n.OrderID)
		s.metrics.PaymentNotification("ignored")
		return false, nil
	}

	if changed {
		order.PublishStatusChanged(ctx, s.publisher, &o, from, "payment")
		s.metrics.PaymentNotification("applied")
	} else {
		s.metrics.PaymentNotification("unchanged")
	}
	logger.Info(ctx, "payment notification applied",
		"order_id", o.ID, "transaction_status", n.TransactionStatus, "status", o.Status, "payment_status", o.PaymentStatus)
	return true, nil
}
