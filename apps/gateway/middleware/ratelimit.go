package middleware

import (
	"net/http"

	"oldmarket/pkg/response"

	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/gin-gonic/gin"
)

// 限流资源名称
const ResCheckout = "checkout_api"

// InitSentinel 初始化 Sentinel 并加载下单接口的 QPS 规则
func InitSentinel(checkoutQPS float64) error {
	if err := sentinel.InitDefault(); err != nil {
		return err
	}

	// 配置流控规则
	_, err := flow.LoadRules([]*flow.Rule{
		{
			Resource:               ResCheckout,
			TokenCalculateStrategy: flow.Direct, // 直接计数
			ControlBehavior:        flow.Reject, // 直接拒绝
			Threshold:              checkoutQPS,
			StatIntervalInMs:       1000, // 统计周期 1秒
		},
	})
	return err
}

// Sentinel 资源埋点，被限流返回 429
func Sentinel(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, b := sentinel.Entry(resource, sentinel.WithTrafficType(base.Inbound))
		if b != nil {
			response.Error(c, http.StatusTooManyRequests, "too many requests, please try again later")
			c.Abort()
			return
		}
		defer e.Exit() // 务必退出

		c.Next()
	}
}
