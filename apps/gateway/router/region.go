package router

import (
	"encoding/json"
	"net/http"
	"strconv"

	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

// 区划和运费接口原样透传 api.co.id 的响应

func writeRaw(c *gin.Context, data json.RawMessage, err error) {
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

func (h *handler) provinces(c *gin.Context) {
	data, err := h.Regions.Provinces(c.Request.Context())
	writeRaw(c, data, err)
}

func (h *handler) regencies(c *gin.Context) {
	data, err := h.Regions.Regencies(c.Request.Context(), c.Param("provinceCode"))
	writeRaw(c, data, err)
}

func (h *handler) districts(c *gin.Context) {
	data, err := h.Regions.Districts(c.Request.Context(), c.Param("regencyCode"))
	writeRaw(c, data, err)
}

func (h *handler) villages(c *gin.Context) {
	data, err := h.Regions.Villages(c.Request.Context(), c.Param("districtCode"))
	writeRaw(c, data, err)
}

func (h *handler) shippingCost(c *gin.Context) {
	destination := c.Query("destination")
	weight, err := strconv.Atoi(c.Query("weight"))
	if destination == "" || err != nil {
		response.Error(c, http.StatusBadRequest, "destination and weight are required")
		return
	}
	data, err := h.Regions.ShippingCost(c.Request.Context(), destination, weight)
	writeRaw(c, data, err)
}
