package router

import (
	"net/http"

	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/payment"
	"oldmarket/pkg/logger"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (h *handler) createPayment(c *gin.Context) {
	var req struct {
		OrderID uint `json:"orderId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.Payments.CreateTransaction(c.Request.Context(), middleware.UserID(c), req.OrderID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, snap)
}

// paymentNotification 支付网关回调。网关收到非 2xx 会重试，
// 所以无法处理的通知统一回 200，只有签名错误回 403。
func (h *handler) paymentNotification(c *gin.Context) {
	ctx := c.Request.Context()

	var n payment.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		logger.Warn(ctx, "malformed payment notification", "error", err)
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
		return
	}

	received, err := h.Payments.HandleNotification(ctx, n)
	if err != nil {
		if status.Code(err) == codes.PermissionDenied {
			c.JSON(http.StatusForbidden, gin.H{"error": status.Convert(err).Message()})
			return
		}
		response.FromError(c, err)
		return
	}
	if !received {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// notificationProbe 网关配置回调地址时会先探测
func (h *handler) notificationProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}
