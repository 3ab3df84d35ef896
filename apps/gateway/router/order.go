package router

import (
	"net/http"
	"time"

	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/order"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type placeOrderRequest struct {
	UserID         *uint            `json:"userId"`
	CartItems      []order.Line     `json:"cartItems"`
	Subtotal       *decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal  `json:"shippingFee"`
	AddressID      uint             `json:"addressId"`
	Notes          string           `json:"notes"`
	CourierName    string           `json:"courierName"`
	CourierService string           `json:"courierService"`
	OrderType      string           `json:"orderType"`
}

func (h *handler) placeOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid order payload: "+err.Error())
		return
	}

	// 下单用户以 token 为准，body 里的 userId 只能是自己
	userID := middleware.UserID(c)
	if req.UserID != nil && *req.UserID != userID {
		response.Error(c, http.StatusForbidden, "cannot place an order for another user")
		return
	}

	o, err := h.Orders.PlaceOrder(c.Request.Context(), order.PlaceOrderInput{
		UserID:         userID,
		Lines:          req.CartItems,
		Subtotal:       req.Subtotal,
		ShippingFee:    req.ShippingFee,
		AddressID:      req.AddressID,
		Notes:          req.Notes,
		CourierName:    req.CourierName,
		CourierService: req.CourierService,
		OrderType:      req.OrderType,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "order placed", o)
}

func (h *handler) myOrders(c *gin.Context) {
	orders, err := h.Orders.ListMyOrders(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, orders)
}

func (h *handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.Orders.GetOrder(c.Request.Context(), middleware.UserID(c), middleware.IsAdmin(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, o)
}

// confirmReceived 买家确认收货 SHIPPED -> COMPLETED
func (h *handler) confirmReceived(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.Orders.ConfirmReceived(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, o)
}

func (h *handler) adminOrders(c *gin.Context) {
	f := order.AdminFilter{Status: c.Query("status")}
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		f.Date = &d
	}
	orders, err := h.Orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, orders)
}

func (h *handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status         string `json:"status" binding:"required"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	o, err := h.Orders.UpdateOrderStatus(c.Request.Context(), id, req.Status, req.TrackingNumber)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, o)
}
