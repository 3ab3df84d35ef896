package router

import (
	"net/http"
	"time"

	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

func (h *handler) dashboard(c *gin.Context) {
	d, err := h.Admin.Dashboard(c.Request.Context(), c.Query("range"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, d)
}

func (h *handler) salesReport(c *gin.Context) {
	from, ok := queryDate(c, "dateFrom")
	if !ok {
		return
	}
	to, ok := queryDate(c, "dateTo")
	if !ok {
		return
	}
	rows, err := h.Admin.SalesReport(c.Request.Context(), from, to)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, rows)
}

// queryDate 可选的 YYYY-MM-DD 参数，格式错误时已写入 400
func queryDate(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	d, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		response.Error(c, http.StatusBadRequest, name+" must be YYYY-MM-DD")
		return nil, false
	}
	return &d, true
}
