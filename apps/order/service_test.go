package order

import (
	"context"
	"sync"
	"testing"

	addressModel "oldmarket/apps/address/model"
	cartModel "oldmarket/apps/cart/model"
	"oldmarket/apps/order/model"
	productModel "oldmarket/apps/product/model"
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

type recordedEvent struct {
	key     string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingPublisher) Publish(_ context.Context, key string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{key: key, payload: payload})
	return nil
}

func (r *recordingPublisher) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.events))
	for _, e := range r.events {
		keys = append(keys, e.key)
	}
	return keys
}

type fixture struct {
	svc  *Service
	db   *gorm.DB
	pub  *recordingPublisher
	m    *metrics.Metrics
	user userModel.User
	addr addressModel.Address
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.New(t,
		&userModel.User{}, &addressModel.Address{},
		&productModel.Brand{}, &productModel.Product{}, &productModel.ProductImage{},
		&cartModel.CartItem{}, &model.Order{}, &model.OrderItem{},
	)
	f := &fixture{db: db, pub: &recordingPublisher{}, m: metrics.New("test")}
	f.svc = NewService(db, f.pub, f.m)

	f.user = userModel.User{Name: "Rina", Email: "rina@example.com", Password: "x", Role: userModel.RoleUser}
	require.NoError(t, db.Create(&f.user).Error)
	f.addr = addressModel.Address{
		UserID: f.user.ID, RecipientName: "Rina", Phone: "0812", Street: "Jl. Melati 5",
		City: "Jakarta Selatan", Province: "DKI Jakarta", PostalCode: "12160", IsDefault: true,
	}
	require.NoError(t, db.Create(&f.addr).Error)
	return f
}

func (f *fixture) product(t *testing.T, name string, price int64, stock int) productModel.Product {
	p := productModel.Product{Name: name, Price: decimal.NewFromInt(price), StockQuantity: stock, Size: "M", IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) stock(t *testing.T, id uint) int {
	var p productModel.Product
	require.NoError(t, f.db.First(&p, id).Error)
	return p.StockQuantity
}

func (f *fixture) count(t *testing.T, m interface{}) int64 {
	var n int64
	require.NoError(t, f.db.Model(m).Count(&n).Error)
	return n
}

func TestPlaceOrderFromCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 100000, 10)
	require.NoError(t, f.db.Create(&cartModel.CartItem{UserID: f.user.ID, ProductID: a.ID, Qty: 2}).Error)

	subtotal := decimal.NewFromInt(200000)
	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		UserID:         f.user.ID,
		Lines:          []Line{{ProductID: a.ID, Qty: 2}},
		Subtotal:       &subtotal,
		ShippingFee:    decimal.NewFromInt(15000),
		AddressID:      f.addr.ID,
		CourierName:    "JNE",
		CourierService: "REG",
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(215000).Equal(o.GrandTotal), o.GrandTotal.String())
	assert.Equal(t, model.StatusPendingPayment, o.Status)
	assert.Equal(t, model.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, "Jl. Melati 5", o.Street)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Product A", o.Items[0].NameSnapshot)
	assert.Equal(t, "M", o.Items[0].SizeSnapshot)
	assert.True(t, decimal.NewFromInt(200000).Equal(o.Items[0].LineTotal))

	assert.Equal(t, 8, f.stock(t, a.ID))
	assert.Zero(t, f.count(t, &cartModel.CartItem{}))
	assert.Equal(t, []string{EventOrderCreated}, f.pub.keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.OrdersPlaced))

	// 快照不受之后改价影响
	require.NoError(t, f.db.Model(&productModel.Product{}).Where("id = ?", a.ID).Update("price", decimal.NewFromInt(1)).Error)
	got, err := f.svc.GetOrder(ctx, f.user.ID, false, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100000).Equal(got.Items[0].UnitPrice))
}

func TestPlaceOrderInsufficientStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 50000, 5)
	b := f.product(t, "Product B", 70000, 1)
	require.NoError(t, f.db.Create(&cartModel.CartItem{UserID: f.user.ID, ProductID: b.ID, Qty: 3}).Error)

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		UserID:    f.user.ID,
		Lines:     []Line{{ProductID: a.ID, Qty: 2}, {ProductID: b.ID, Qty: 3}},
		AddressID: f.addr.ID,
	})
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "insufficient stock for product Product B")

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	assert.Zero(t, f.count(t, &model.Order{}))
	assert.Zero(t, f.count(t, &model.OrderItem{}))
	assert.Equal(t, int64(1), f.count(t, &cartModel.CartItem{}))
	assert.Empty(t, f.pub.keys())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.OrdersRejected.WithLabelValues("unavailable")))
}

func TestPlaceOrderLookupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 50000, 5)

	other := userModel.User{Name: "Other", Email: "other@example.com", Password: "x"}
	require.NoError(t, f.db.Create(&other).Error)
	foreign := addressModel.Address{UserID: other.ID, RecipientName: "O", Phone: "1", Street: "x"}
	require.NoError(t, f.db.Create(&foreign).Error)

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: 999})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, "address not found", status.Convert(err).Message())

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: foreign.ID})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}, {777, 1}}, AddressID: f.addr.ID})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, "product 777 not found", status.Convert(err).Message())

	require.NoError(t, f.db.Model(&productModel.Product{}).Where("id = ?", a.ID).Update("is_active", false).Error)
	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Zero(t, f.count(t, &model.Order{}))
}

func TestPlaceOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 50000, 5)

	cases := []PlaceOrderInput{
		{UserID: f.user.ID, AddressID: f.addr.ID},
		{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}},
		{UserID: f.user.ID, Lines: []Line{{a.ID, 0}}, AddressID: f.addr.ID},
		{UserID: f.user.ID, Lines: []Line{{a.ID, -2}}, AddressID: f.addr.ID},
		{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID, ShippingFee: decimal.NewFromInt(-1)},
		{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID, OrderType: "gift"},
	}
	for i, in := range cases {
		_, err := f.svc.PlaceOrder(ctx, in)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), "case %d", i)
	}

	wrong := decimal.NewFromInt(1)
	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID, Subtotal: &wrong})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Zero(t, f.count(t, &model.Order{}))
}

func TestPlaceOrderBuyNowKeepsCartAndMergesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 25000, 10)
	require.NoError(t, f.db.Create(&cartModel.CartItem{UserID: f.user.ID, ProductID: a.ID, Qty: 1}).Error)

	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		UserID:    f.user.ID,
		Lines:     []Line{{a.ID, 1}, {a.ID, 2}},
		AddressID: f.addr.ID,
		OrderType: TypeBuyNow,
	})
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Qty)
	assert.True(t, decimal.NewFromInt(75000).Equal(o.GrandTotal))
	assert.Equal(t, 7, f.stock(t, a.ID))
	assert.Equal(t, int64(1), f.count(t, &cartModel.CartItem{}))
}

// 预检查之后库存被别的请求抢光，条件扣减影响 0 行，已扣的 A 也要回滚
func TestPlaceOrderStockDrainedAfterReadRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 50000, 5)
	b := f.product(t, "Product B", 70000, 5)

	drained := false
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:drain_stock", func(db *gorm.DB) {
		if drained || db.Statement.Table != "products" {
			return
		}
		drained = true
		// 同一个事务连接上执行，避免和 MaxOpenConns(1) 互相等待
		db.Session(&gorm.Session{NewDB: true}).Exec("UPDATE products SET stock_quantity = 0 WHERE id = ?", b.ID)
	}))

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		UserID:    f.user.ID,
		Lines:     []Line{{ProductID: a.ID, Qty: 2}, {ProductID: b.ID, Qty: 1}},
		AddressID: f.addr.ID,
		OrderType: TypeBuyNow,
	})
	require.True(t, drained)
	require.Error(t, err)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "insufficient stock for product Product B")

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Zero(t, f.count(t, &model.Order{}))
	assert.Zero(t, f.count(t, &model.OrderItem{}))
	assert.Empty(t, f.pub.keys())
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Limited Tee", 100000, 5)

	const buyers = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
				UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID, OrderType: TypeBuyNow,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.Equal(t, codes.FailedPrecondition, status.Code(err))
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, buyers-5, fail)
	assert.Equal(t, 0, f.stock(t, a.ID))
	assert.Equal(t, int64(5), f.count(t, &model.Order{}))
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 10000, 10)

	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID})
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, f.user.ID+100, false, o.ID)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	_, err = f.svc.GetOrder(ctx, f.user.ID+100, true, o.ID)
	assert.NoError(t, err)

	// 未发货不能确认收货
	_, err = f.svc.ConfirmReceived(ctx, f.user.ID, o.ID)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, model.StatusShipped, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = f.svc.UpdateOrderStatus(ctx, o.ID, "LOST", "x")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = f.svc.UpdateOrderStatus(ctx, 999, model.StatusProcessing, "")
	assert.Equal(t, codes.NotFound, status.Code(err))

	shipped, err := f.svc.UpdateOrderStatus(ctx, o.ID, model.StatusShipped, "JNE123")
	require.NoError(t, err)
	assert.Equal(t, model.StatusShipped, shipped.Status)
	assert.Equal(t, "JNE123", shipped.TrackingNumber)

	_, err = f.svc.ConfirmReceived(ctx, f.user.ID+100, o.ID)
	assert.Equal(t, codes.NotFound, status.Code(err))

	done, err := f.svc.ConfirmReceived(ctx, f.user.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)

	assert.Equal(t, []string{EventOrderCreated, EventOrderStatusChanged, EventOrderStatusChanged}, f.pub.keys())

	mine, err := f.svc.ListMyOrders(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 1)
}

func TestListOrdersForAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "Product A", 10000, 10)

	first, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID})
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: f.user.ID, Lines: []Line{{a.ID, 1}}, AddressID: f.addr.ID})
	require.NoError(t, err)
	_, err = f.svc.UpdateOrderStatus(ctx, first.ID, model.StatusCanceled, "")
	require.NoError(t, err)

	all, err := f.svc.ListOrders(ctx, AdminFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, "Rina", all[0].User.Name)
	assert.Equal(t, "rina@example.com", all[0].User.Email)

	canceled, err := f.svc.ListOrders(ctx, AdminFilter{Status: model.StatusCanceled})
	require.NoError(t, err)
	require.Len(t, canceled, 1)
	assert.Equal(t, first.ID, canceled[0].ID)

	today := first.CreatedAt
	byDate, err := f.svc.ListOrders(ctx, AdminFilter{Date: &today})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	yesterday := today.AddDate(0, 0, -1)
	byDate, err = f.svc.ListOrders(ctx, AdminFilter{Date: &yesterday})
	require.NoError(t, err)
	assert.Empty(t, byDate)

	_, err = f.svc.ListOrders(ctx, AdminFilter{Status: "nope"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
