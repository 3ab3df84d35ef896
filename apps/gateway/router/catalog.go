package router

import (
	"net/http"
	"strconv"

	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/product"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name          string               `json:"name" binding:"required"`
	Description   string               `json:"description"`
	Price         decimal.Decimal      `json:"price"`
	StockQuantity int                  `json:"stock_quantity"`
	Size          string               `json:"size"`
	BrandID       *uint                `json:"brand_id"`
	WeightGrams   int                  `json:"weight_grams"`
	IsActive      *bool                `json:"is_active"`
	Images        []product.ImageInput `json:"images"`
}

func (r productRequest) input() product.Input {
	return product.Input{
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		StockQuantity: r.StockQuantity,
		Size:          r.Size,
		BrandID:       r.BrandID,
		WeightGrams:   r.WeightGrams,
		IsActive:      r.IsActive,
		Images:        r.Images,
	}
}

func listFilter(c *gin.Context) product.ListFilter {
	brandID, _ := strconv.ParseUint(c.Query("brand_id"), 10, 64)
	return product.ListFilter{Query: c.Query("q"), BrandID: uint(brandID)}
}

// listProducts 前台只展示上架商品
func (h *handler) listProducts(c *gin.Context) {
	f := listFilter(c)
	f.ActiveOnly = true
	products, err := h.Products.List(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, products)
}

func (h *handler) adminProducts(c *gin.Context) {
	products, err := h.Products.List(c.Request.Context(), listFilter(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, products)
}

func (h *handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.Products.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *handler) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.Products.Create(c.Request.Context(), req.input())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "product created", p)
}

func (h *handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.Products.Update(c.Request.Context(), id, req.input())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Products.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "product deleted"})
}

func (h *handler) reindexProducts(c *gin.Context) {
	n, err := h.Products.Reindex(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"indexed": n})
}

func (h *handler) listBrands(c *gin.Context) {
	brands, err := h.Products.ListBrands(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, brands)
}

func (h *handler) createBrand(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	b, err := h.Products.CreateBrand(c.Request.Context(), req.Name)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, "brand created", b)
}

func (h *handler) recommendations(c *gin.Context) {
	products, err := h.Recommend.Recommend(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"products": products})
}
