package payment

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	SandboxSnapURL    = "https://app.sandbox.midtrans.com"
	ProductionSnapURL = "https://app.midtrans.com"
)

func SnapBaseURL(production bool) string {
	if production {
		return ProductionSnapURL
	}
	return SandboxSnapURL
}

type TransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type Callbacks struct {
	Finish string `json:"finish"`
}

type SnapRequest struct {
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CustomerDetails    *CustomerDetails   `json:"customer_details,omitempty"`
	Callbacks          *Callbacks         `json:"callbacks,omitempty"`
}

type SnapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

type snapError struct {
	ErrorMessages []string `json:"error_messages"`
}

// SnapCreator 创建支付交易，测试里可以替换
type SnapCreator interface {
	CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error)
}

// SnapClient Midtrans Snap API，server key 作为 Basic Auth 用户名
type SnapClient struct {
	http *resty.Client
}

func NewSnapClient(baseURL, serverKey string) *SnapClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(serverKey, "").
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	return &SnapClient{http: client}
}

func (c *SnapClient) CreateTransaction(ctx context.Context, req SnapRequest) (*SnapResponse, error) {
	var (
		out    SnapResponse
		apiErr snapError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/snap/v1/transactions")
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "payment gateway unreachable: %v", err)
	}
	if resp.IsError() {
		msg := strings.Join(apiErr.ErrorMessages, "; ")
		if msg == "" {
			msg = resp.Status()
		}
		return nil, status.Errorf(codes.Unavailable, "payment gateway rejected transaction: %s", msg)
	}
	if out.Token == "" {
		return nil, status.Error(codes.Unavailable, "payment gateway returned no token")
	}
	return &out, nil
}
