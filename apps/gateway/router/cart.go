package router

import (
	"net/http"
	"strconv"

	"oldmarket/apps/gateway/middleware"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

type cartRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

func (h *handler) listCart(c *gin.Context) {
	items, err := h.Cart.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *handler) addToCart(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.Cart.Add(c.Request.Context(), middleware.UserID(c), req.ProductID, req.Quantity)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "added to cart", item)
}

// updateCart quantity 为绝对值，<=0 删除该商品
func (h *handler) updateCart(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.Cart.Update(c.Request.Context(), middleware.UserID(c), req.ProductID, req.Quantity)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if item == nil {
		response.Success(c, gin.H{"message": "item removed"})
		return
	}
	response.Success(c, item)
}

// removeFromCart 带 product_id 删除单个商品，否则清空购物车
func (h *handler) removeFromCart(c *gin.Context) {
	userID := middleware.UserID(c)
	raw := c.Query("product_id")
	if raw == "" {
		if err := h.Cart.Clear(c.Request.Context(), userID); err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, gin.H{"message": "cart cleared"})
		return
	}

	productID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || productID == 0 {
		response.Error(c, http.StatusBadRequest, "invalid product_id")
		return
	}
	if err := h.Cart.Remove(c.Request.Context(), userID, uint(productID)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "item removed"})
}
