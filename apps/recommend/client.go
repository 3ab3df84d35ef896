// Package recommend 基于购买记录的商品推荐，模型在外部 ML 服务
package recommend

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type OrderItem struct {
	UserID    uint `json:"user_id"`
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type Request struct {
	UserID     uint        `json:"user_id"`
	OrderItems []OrderItem `json:"order_items"`
}

type Response struct {
	RecommendedProductIDs []uint `json:"recommended_product_ids"`
}

// Recommender 根据购买记录返回推荐商品 id，按推荐度排序
type Recommender interface {
	Recommend(ctx context.Context, req Request) ([]uint, error)
}

type MLClient struct {
	http *resty.Client
}

func NewMLClient(baseURL string) *MLClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(5 * time.Second)
	return &MLClient{http: client}
}

func (c *MLClient) Recommend(ctx context.Context, req Request) ([]uint, error) {
	var out Response
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/recommend")
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "recommender unreachable: %v", err)
	}
	if resp.IsError() {
		return nil, status.Errorf(codes.Unavailable, "recommender error: %s", resp.Status())
	}
	return out.RecommendedProductIDs, nil
}
