package order

import (
	"context"
	"time"

	"oldmarket/apps/order/model"
	"oldmarket/pkg/logger"
	"oldmarket/pkg/mq"

	"github.com/shopspring/decimal"
)

// 路由键
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

type CreatedEvent struct {
	OrderID    uint            `json:"order_id"`
	UserID     uint            `json:"user_id"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	ItemCount  int             `json:"item_count"`
	OrderType  string          `json:"order_type"`
	CreatedAt  time.Time       `json:"created_at"`
}

type StatusChangedEvent struct {
	OrderID       uint      `json:"order_id"`
	UserID        uint      `json:"user_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	PaymentStatus string    `json:"payment_status"`
	Source        string    `json:"source"` // customer / admin / payment
	At            time.Time `json:"at"`
}

// PublishStatusChanged 事务提交后调用，发布失败只记日志，不影响已提交的状态
func PublishStatusChanged(ctx context.Context, pub mq.Publisher, o *model.Order, from, source string) {
	ev := StatusChangedEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		From:          from,
		To:            o.Status,
		PaymentStatus: o.PaymentStatus,
		Source:        source,
		At:            time.Now(),
	}
	if err := pub.Publish(ctx, EventOrderStatusChanged, ev); err != nil {
		logger.Warn(ctx, "publish order event failed", "event", EventOrderStatusChanged, "order_id", o.ID, "error", err)
	}
}

func (s *Service) publishCreated(ctx context.Context, o *model.Order, orderType string) {
	ev := CreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		GrandTotal: o.GrandTotal,
		ItemCount:  len(o.Items),
		OrderType:  orderType,
		CreatedAt:  o.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, EventOrderCreated, ev); err != nil {
		logger.Warn(ctx, "publish order event failed", "event", EventOrderCreated, "order_id", o.ID, "error", err)
	}
}
