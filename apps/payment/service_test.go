package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	orderModel "oldmarket/apps/order/model"
	userModel "oldmarket/apps/user/model"
	"oldmarket/pkg/database/dbtest"
	"oldmarket/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

const serverKey = "SB-Mid-server-test"

type fakeSnap struct {
	req  SnapRequest
	resp *SnapResponse
	err  error
}

func (f *fakeSnap) CreateTransaction(_ context.Context, req SnapRequest) (*SnapResponse, error) {
	f.req = req
	return f.resp, f.err
}

type countingPublisher struct {
	mu sync.Mutex
	n  int
}

func (c *countingPublisher) Publish(context.Context, string, any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

type fixture struct {
	svc   *Service
	db    *gorm.DB
	snap  *fakeSnap
	pub   *countingPublisher
	m     *metrics.Metrics
	user  userModel.User
	order orderModel.Order
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t, &userModel.User{}, &orderModel.Order{}, &orderModel.OrderItem{})
	f := &fixture{
		db:   db,
		snap: &fakeSnap{resp: &SnapResponse{Token: "snap-token", RedirectURL: "https://pay/redirect"}},
		pub:  &countingPublisher{},
		m:    metrics.New("test"),
	}
	f.svc = NewService(db, f.snap, Options{ServerKey: serverKey, FinishURL: "https://shop/profile", Publisher: f.pub, Metrics: f.m})
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000123) }

	f.user = userModel.User{Name: "Dewi", Email: "dewi@example.com", Password: "x"}
	require.NoError(t, db.Create(&f.user).Error)
	f.order = orderModel.Order{
		UserID:         f.user.ID,
		SubtotalAmount: decimal.NewFromInt(200000),
		ShippingAmount: decimal.NewFromInt(15000),
		GrandTotal:     decimal.NewFromInt(215000),
		Status:         orderModel.StatusPendingPayment,
		PaymentStatus:  orderModel.PaymentUnpaid,
		Phone:          "0813",
	}
	require.NoError(t, db.Create(&f.order).Error)
	return f
}

func (f *fixture) reload(t *testing.T) orderModel.Order {
	var o orderModel.Order
	require.NoError(t, f.db.First(&o, f.order.ID).Error)
	return o
}

func signed(orderID, transactionStatus string) Notification {
	n := Notification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       "215000.00",
		TransactionStatus: transactionStatus,
	}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return n
}

func gatewayID(id uint) string {
	return fmt.Sprintf("ORDER-%d-1700000000123", id)
}

func TestCreateTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CreateTransaction(ctx, f.user.ID, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "snap-token", resp.Token)

	assert.Equal(t, gatewayID(f.order.ID), f.snap.req.TransactionDetails.OrderID)
	assert.Equal(t, int64(215000), f.snap.req.TransactionDetails.GrossAmount)
	assert.Equal(t, "Dewi", f.snap.req.CustomerDetails.FirstName)
	assert.Equal(t, "https://shop/profile", f.snap.req.Callbacks.Finish)
	assert.Equal(t, "snap-token", f.reload(t).PaymentLink)
}

func TestCreateTransactionRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, f.user.ID, 999)
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.svc.CreateTransaction(ctx, f.user.ID+1, f.order.ID)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	f.snap.err = status.Error(codes.Unavailable, "payment gateway unreachable")
	_, err = f.svc.CreateTransaction(ctx, f.user.ID, f.order.ID)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Empty(t, f.reload(t).PaymentLink)

	require.NoError(t, f.db.Model(&f.order).Update("payment_status", orderModel.PaymentPaid).Error)
	_, err = f.svc.CreateTransaction(ctx, f.user.ID, f.order.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestNotificationSettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	received, err := f.svc.HandleNotification(ctx, signed(gatewayID(f.order.ID), "settlement"))
	require.NoError(t, err)
	assert.True(t, received)

	o := f.reload(t)
	assert.Equal(t, orderModel.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orderModel.StatusProcessing, o.Status)
	assert.Equal(t, gatewayID(f.order.ID), o.ExternalID)
	assert.Equal(t, 1, f.pub.n)

	// 重放同一通知：状态不变，不再发事件
	received, err = f.svc.HandleNotification(ctx, signed(gatewayID(f.order.ID), "settlement"))
	require.NoError(t, err)
	assert.True(t, received)
	again := f.reload(t)
	assert.Equal(t, o.Status, again.Status)
	assert.Equal(t, o.PaymentStatus, again.PaymentStatus)
	assert.Equal(t, o.ExternalID, again.ExternalID)
	assert.Equal(t, 1, f.pub.n)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.PaymentNotifications.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.PaymentNotifications.WithLabelValues("unchanged")))
}

func TestNotificationExpire(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.HandleNotification(context.Background(), signed(gatewayID(f.order.ID), "expire"))
	require.NoError(t, err)

	o := f.reload(t)
	assert.Equal(t, orderModel.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, orderModel.StatusCanceled, o.Status)
}

func TestNotificationUnknownStatusOnlyRecordsExternalID(t *testing.T) {
	f := newFixture(t)

	received, err := f.svc.HandleNotification(context.Background(), signed(gatewayID(f.order.ID), "pending"))
	require.NoError(t, err)
	assert.True(t, received)

	o := f.reload(t)
	assert.Equal(t, orderModel.StatusPendingPayment, o.Status)
	assert.Equal(t, orderModel.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, gatewayID(f.order.ID), o.ExternalID)
	assert.Zero(t, f.pub.n)
}

func TestNotificationInvalidSignature(t *testing.T) {
	f := newFixture(t)
	n := signed(gatewayID(f.order.ID), "settlement")
	n.GrossAmount = "1.00" // 篡改金额后签名不再匹配

	received, err := f.svc.HandleNotification(context.Background(), n)
	assert.False(t, received)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Equal(t, "invalid signature", status.Convert(err).Message())

	o := f.reload(t)
	assert.Equal(t, orderModel.StatusPendingPayment, o.Status)
	assert.Empty(t, o.ExternalID)
}

func TestNotificationIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, n := range []Notification{
		{},
		signed("payment-test-123", "settlement"),
		signed("ORDER-abc-1", "settlement"),
		signed("ORDER-", "settlement"),
		signed(gatewayID(f.order.ID+50), "settlement"),
	} {
		received, err := f.svc.HandleNotification(ctx, n)
		require.NoError(t, err, n.OrderID)
		assert.False(t, received, n.OrderID)
	}

	o := f.reload(t)
	assert.Equal(t, orderModel.StatusPendingPayment, o.Status)
	assert.Empty(t, o.ExternalID)
}

func TestMapTransactionStatus(t *testing.T) {
	cases := map[string][2]string{
		"capture":    {orderModel.PaymentPaid, orderModel.StatusProcessing},
		"settlement": {orderModel.PaymentPaid, orderModel.StatusProcessing},
		"cancel":     {orderModel.PaymentUnpaid, orderModel.StatusCanceled},
		"expire":     {orderModel.PaymentUnpaid, orderModel.StatusCanceled},
		"deny":       {orderModel.PaymentUnpaid, orderModel.StatusCanceled},
	}
	for ts, want := range cases {
		p, o, ok := mapTransactionStatus(ts)
		assert.True(t, ok, ts)
		assert.Equal(t, want[0], p, ts)
		assert.Equal(t, want[1], o, ts)
	}
	_, _, ok := mapTransactionStatus("pending")
	assert.False(t, ok)
}

func TestFakeSnapErrorPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.snap.err = errors.New("boom")
	_, err := f.svc.CreateTransaction(context.Background(), f.user.ID, f.order.ID)
	assert.EqualError(t, err, "boom")
}
