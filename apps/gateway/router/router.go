// Package router 注册网关全部 HTTP 路由
package router

import (
	"net/http"
	"strconv"

	"oldmarket/apps/address"
	"oldmarket/apps/admin"
	"oldmarket/apps/cart"
	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/order"
	"oldmarket/apps/payment"
	"oldmarket/apps/product"
	"oldmarket/apps/recommend"
	"oldmarket/apps/region"
	"oldmarket/apps/user"
	"oldmarket/pkg/jwt"
	"oldmarket/pkg/metrics"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps 路由依赖的服务，由 main 组装
type Deps struct {
	ServiceName    string
	JWT            *jwt.Manager
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	RateLimit      bool // 是否对下单接口启用 Sentinel 埋点
	Tracing        bool

	Users     *user.Service
	Addresses *address.Service
	Products  *product.Service
	Cart      *cart.Service
	Orders    *order.Service
	Payments  *payment.Service
	Admin     *admin.Service
	Regions   *region.Service
	Recommend *recommend.Service
}

type handler struct {
	Deps
}

func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())
	if d.Tracing {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	if d.Metrics != nil {
		r.Use(d.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if len(d.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(d.AllowedOrigins))
	}

	h := &handler{Deps: d}
	auth := middleware.AuthMiddleware(d.JWT)
	adminOnly := middleware.AdminOnly()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	api := r.Group("/api")

	// 公开接口
	{
		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)

		api.GET("/products", h.listProducts)
		api.GET("/products/:id", h.getProduct)
		api.GET("/brands", h.listBrands)

		api.GET("/regions/provinces", h.provinces)
		api.GET("/regions/regencies/:provinceCode", h.regencies)
		api.GET("/regions/districts/:regencyCode", h.districts)
		api.GET("/regions/villages/:districtCode", h.villages)
		api.GET("/shipping", h.shippingCost)

		// 支付网关回调，靠签名校验
		api.POST("/payment/notification", h.paymentNotification)
		api.GET("/payment/notification", h.notificationProbe)
		api.HEAD("/payment/notification", h.notificationProbe)
	}

	// 需要登录
	authed := api.Group("")
	authed.Use(auth)
	{
		authed.GET("/auth/me", h.me)
		authed.GET("/user/profile", h.me)
		authed.PATCH("/user/profile", h.updateProfile)
		authed.PATCH("/user/password", h.updatePassword)

		authed.GET("/user/addresses", h.listAddresses)
		authed.POST("/user/addresses", h.createAddress)
		authed.PATCH("/user/addresses", h.updateAddress)
		authed.DELETE("/user/addresses/:id", h.deleteAddress)
		authed.PUT("/user/addresses/:id/default", h.setDefaultAddress)

		authed.GET("/cart", h.listCart)
		authed.POST("/cart", h.addToCart)
		authed.PATCH("/cart", h.updateCart)
		authed.DELETE("/cart", h.removeFromCart)

		checkout := []gin.HandlerFunc{h.placeOrder}
		if d.RateLimit {
			checkout = append([]gin.HandlerFunc{middleware.Sentinel(middleware.ResCheckout)}, checkout...)
		}
		authed.POST("/orders", checkout...)
		authed.GET("/orders/my", h.myOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.PATCH("/orders/:id", h.confirmReceived)

		authed.POST("/payment", h.createPayment)
		authed.GET("/recommendations", h.recommendations)
	}

	// 后台管理
	adm := api.Group("")
	adm.Use(auth, adminOnly)
	{
		adm.POST("/products", h.createProduct)
		adm.PUT("/products/:id", h.updateProduct)
		adm.DELETE("/products/:id", h.deleteProduct)
		adm.POST("/brands", h.createBrand)

		adm.GET("/admin/products", h.adminProducts)
		adm.GET("/admin/dashboard", h.dashboard)
		adm.GET("/admin/sales", h.salesReport)
		adm.GET("/admin/orders", h.adminOrders)
		adm.PATCH("/admin/orders/:id", h.updateOrderStatus)
		adm.POST("/admin/products/reindex", h.reindexProducts)
	}

	return r
}

// pathID 解析路径里的数字 id，失败时已写入 400
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
