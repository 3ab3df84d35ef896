package product

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"oldmarket/apps/product/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeES 只实现测试用到的几个接口
func fakeES(t *testing.T, bodies map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies[r.Method+" "+r.URL.Path] = string(body)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/_search"):
			io.WriteString(w, `{"took":1,"hits":{"total":{"value":2,"relation":"eq"},"hits":[
				{"_index":"products","_id":"7","_score":2.0},
				{"_index":"products","_id":"3","_score":1.0}]}}`)
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/_doc/"):
			io.WriteString(w, `{"_index":"products","_id":"5","_version":1,"result":"created"}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"_index":"products","_id":"9","result":"not_found"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestESSearcher(t *testing.T) {
	bodies := map[string]string{}
	srv := fakeES(t, bodies)
	defer srv.Close()

	s, err := NewESSearcher(srv.URL, "products")
	require.NoError(t, err)
	ctx := context.Background()

	ids, err := s.Search(ctx, "jacket", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 3}, ids)
	assert.Contains(t, bodies["POST /products/_search"], "jacket")

	p := &model.Product{ID: 5, Name: "Jacket", Brand: &model.Brand{Name: "Levi's"}}
	require.NoError(t, s.Index(ctx, p))
	var doc searchDoc
	require.NoError(t, json.Unmarshal([]byte(bodies["PUT /products/_doc/5"]), &doc))
	assert.Equal(t, "Jacket", doc.Name)
	assert.Equal(t, "Levi's", doc.Brand)

	// 索引里没有的文档视为已删除
	assert.NoError(t, s.Delete(ctx, 9))
}
