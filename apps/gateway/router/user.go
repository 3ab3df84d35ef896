package router

import (
	"net/http"

	"oldmarket/apps/address"
	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/user"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *handler) register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.Users.Register(c.Request.Context(), user.RegisterInput{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Password: req.Password,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "registered", u)
}

func (h *handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	token, u, err := h.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "user": u})
}

func (h *handler) me(c *gin.Context) {
	u, err := h.Users.Me(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, u)
}

func (h *handler) updateProfile(c *gin.Context) {
	var req struct {
		Name  string `json:"name" binding:"required"`
		Phone string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), middleware.UserID(c), req.Name, req.Phone)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, u)
}

func (h *handler) updatePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Users.UpdatePassword(c.Request.Context(), middleware.UserID(c), req.OldPassword, req.NewPassword); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "password updated"})
}

// 收货地址

func (h *handler) listAddresses(c *gin.Context) {
	addrs, err := h.Addresses.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, addrs)
}

func (h *handler) createAddress(c *gin.Context) {
	var in address.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.Addresses.Create(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "address created", a)
}

// updateAddress 地址 id 放在 body 里
func (h *handler) updateAddress(c *gin.Context) {
	var req struct {
		ID uint `json:"id" binding:"required"`
		address.Input
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.Addresses.Update(c.Request.Context(), middleware.UserID(c), req.ID, req.Input)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, a)
}

func (h *handler) deleteAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Addresses.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "address deleted"})
}

func (h *handler) setDefaultAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Addresses.SetDefault(c.Request.Context(), middleware.UserID(c), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "default address updated"})
}
