// Package metrics 提供 Prometheus 指标和 Gin 中间件
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "oldmarket"

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 业务指标
	OrdersPlaced         prometheus.Counter
	OrdersRejected       *prometheus.CounterVec
	PaymentNotifications *prometheus.CounterVec
}

// New 创建指标实例，每个实例有自己的 Registry，测试中可以重复创建
func New(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route"}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "orders_placed_total",
			Help:        "Orders committed by the checkout transaction",
			ConstLabels: labels,
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "orders_rejected_total",
			Help:        "Checkout attempts rolled back, by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		PaymentNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "payment_notifications_total",
			Help:        "Payment gateway notifications, by outcome",
			ConstLabels: labels,
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OrdersPlaced,
		m.OrdersRejected,
		m.PaymentNotifications,
	)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware 记录请求数和耗时，route 使用路由模板避免标签爆炸
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// 下面的方法允许 nil 接收者，服务层不强制依赖指标

func (m *Metrics) OrderPlaced() {
	if m != nil {
		m.OrdersPlaced.Inc()
	}
}

func (m *Metrics) OrderRejected(reason string) {
	if m != nil {
		m.OrdersRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PaymentNotification(result string) {
	if m != nil {
		m.PaymentNotifications.WithLabelValues(result).Inc()
	}
}
