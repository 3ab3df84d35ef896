package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("test")

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/products/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/products/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestBusinessCounters(t *testing.T) {
	m := New("test")
	m.OrderPlaced()
	m.OrderPlaced()
	m.OrderRejected("insufficient_stock")
	m.PaymentNotification("paid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersRejected.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentNotifications.WithLabelValues("paid")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderPlaced()
		m.OrderRejected("x")
		m.PaymentNotification("y")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test")
	m.OrderPlaced()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "oldmarket_orders_placed_total")
}
