// Package region 印尼行政区划与运费查询，代理 api.co.id
package region

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultBaseURL = "https://use.api.co.id"

const (
	provincesPath = "/regional/indonesia/provinces"
	regenciesPath = "/regional/indonesia/regencies"
	districtsPath = "/regional/indonesia/districts"
	villagesPath  = "/regional/indonesia/villages"
	shippingPath  = "/expedition/shipping-cost"
)

// envelope api.co.id 的公共外层，is_success 缺省视为成功
type envelope struct {
	IsSuccess *bool  `json:"is_success"`
	Message   string `json:"message"`
}

// Client api.co.id 客户端，返回原始 JSON 直接透传给前端
type Client struct {
	http *resty.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("x-api-co-id", apiKey).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	return &Client{http: client}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "api.co.id unreachable: %v", err)
	}
	if resp.IsError() {
		return nil, status.Errorf(codes.Unavailable, "api.co.id error: %d", resp.StatusCode())
	}

	body := resp.Body()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, status.Errorf(codes.Unavailable, "api.co.id returned invalid json: %v", err)
	}
	if env.IsSuccess != nil && !*env.IsSuccess {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, status.Errorf(codes.Unavailable, "api.co.id: %s", msg)
	}
	return json.RawMessage(body), nil
}

func (c *Client) Provinces(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, provincesPath, nil)
}

func (c *Client) Regencies(ctx context.Context, provinceCode string) (json.RawMessage, error) {
	return c.get(ctx, regenciesPath, url.Values{"province_code": {provinceCode}})
}

func (c *Client) Districts(ctx context.Context, regencyCode string) (json.RawMessage, error) {
	return c.get(ctx, districtsPath, url.Values{"regency_code": {regencyCode}})
}

func (c *Client) Villages(ctx context.Context, districtCode string) (json.RawMessage, error) {
	return c.get(ctx, villagesPath, url.Values{"district_code": {districtCode}})
}

func (c *Client) ShippingCost(ctx context.Context, origin, destination string, weightGrams int) (json.RawMessage, error) {
	return c.get(ctx, shippingPath, url.Values{
		"origin_village_code":      {origin},
		"destination_village_code": {destination},
		"weight":                   {strconv.Itoa(weightGrams)},
	})
}
