// checkout_load 并发下单压测：同一商品同时发起 N 个 buy_now 订单，
// 成功数不应超过库存
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "gateway base url")
		email     = flag.String("email", "buyer@example.com", "buyer email")
		password  = flag.String("password", "secret123", "buyer password")
		productID = flag.Uint("product", 1, "product id")
		addressID = flag.Uint("address", 1, "buyer address id")
		total     = flag.Int("n", 50, "concurrent orders")
	)
	flag.Parse()

	client := resty.New().SetBaseURL(*baseURL).SetTimeout(10 * time.Second)

	// 1. 登录拿 Token
	var login struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	resp, err := client.R().
		SetBody(map[string]string{"email": *email, "password": *password}).
		SetResult(&login).
		Post("/api/auth/login")
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		log.Fatalf("login failed: HTTP %d %s", resp.StatusCode(), resp.String())
	}
	client.SetAuthToken(login.Data.Token)

	fmt.Printf("🚀 开始下单压测！商品: %d, 并发数: %d\n", *productID, *total)
	fmt.Println("------------------------------------------------")

	var (
		wg       sync.WaitGroup
		success  atomic.Int32
		rejected atomic.Int32
		failed   atomic.Int32
	)
	startTime := time.Now()

	// 2. 同时发起 total 个订单
	wg.Add(*total)
	for i := 0; i < *total; i++ {
		go func(n int) {
			defer wg.Done()

			var result apiResponse
			resp, err := client.R().
				SetBody(map[string]any{
					"orderType":   "buy_now",
					"addressId":   *addressID,
					"shippingFee": 0,
					"cartItems":   []map[string]any{{"product_id": *productID, "qty": 1}},
				}).
				SetResult(&result).
				SetError(&result).
				Post("/api/orders")
			if err != nil {
				fmt.Printf("[#%d] 请求失败: %v\n", n, err)
				failed.Add(1)
				return
			}

			switch resp.StatusCode() {
			case http.StatusCreated:
				fmt.Printf("🟢 [#%d] 下单成功\n", n)
				success.Add(1)
			case http.StatusBadRequest, http.StatusTooManyRequests:
				fmt.Printf("🔴 [#%d] 被拒绝: %s\n", n, result.Error)
				rejected.Add(1)
			default:
				fmt.Printf("⚠️ [#%d] HTTP %d: %s\n", n, resp.StatusCode(), result.Error)
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	fmt.Println("------------------------------------------------")
	fmt.Printf("🏁 测试结束，耗时: %v\n", time.Since(startTime))
	fmt.Printf("✅ 下单成功: %d\n", success.Load())
	fmt.Printf("❌ 库存不足/限流: %d\n", rejected.Load())
	fmt.Printf("⚠️ 其它错误: %d\n", failed.Load())
}
