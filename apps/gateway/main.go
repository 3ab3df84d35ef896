package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"oldmarket/apps/address"
	addressModel "oldmarket/apps/address/model"
	"oldmarket/apps/admin"
	"oldmarket/apps/cart"
	cartModel "oldmarket/apps/cart/model"
	"oldmarket/apps/gateway/middleware"
	"oldmarket/apps/gateway/router"
	"oldmarket/apps/order"
	orderModel "oldmarket/apps/order/model"
	"oldmarket/apps/payment"
	"oldmarket/apps/product"
	productModel "oldmarket/apps/product/model"
	"oldmarket/apps/recommend"
	"oldmarket/apps/region"
	"oldmarket/apps/user"
	userModel "oldmarket/apps/user/model"
	"oldmarket/pkg/config"
	"oldmarket/pkg/database"
	"oldmarket/pkg/discovery"
	"oldmarket/pkg/jwt"
	"oldmarket/pkg/logger"
	"oldmarket/pkg/metrics"
	"oldmarket/pkg/mq"
	"oldmarket/pkg/tracer"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. 加载配置
	c, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if v := os.Getenv("SERVICE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Service.Port = p
		}
	}
	if err := logger.Init(c.Log); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	ctx := context.Background()

	// 金额按数字输出，不带引号
	decimal.MarshalJSONWithoutQuotes = true

	// 2. 数据库
	db, err := database.InitMySQL(c.Mysql)
	if err != nil {
		log.Fatalf("Failed to connect mysql: %v", err)
	}
	if err := db.AutoMigrate(
		&userModel.User{}, &addressModel.Address{},
		&productModel.Brand{}, &productModel.Product{}, &productModel.ProductImage{},
		&cartModel.CartItem{}, &orderModel.Order{}, &orderModel.OrderItem{},
	); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}

	rdb, err := database.InitRedis(c.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}

	// 3. 可选的外部组件：RabbitMQ / Elasticsearch / Tracing
	var publisher mq.Publisher = mq.NopPublisher{}
	if c.RabbitMQ.Url != "" {
		rp, err := mq.NewRabbitPublisher(c.RabbitMQ.Url, c.RabbitMQ.Exchange)
		if err != nil {
			log.Fatalf("Failed to connect rabbitmq: %v", err)
		}
		defer rp.Close()
		publisher = rp
	}

	var searcher product.Searcher
	if c.Elastic.Url != "" {
		es, err := product.NewESSearcher(c.Elastic.Url, c.Elastic.Index)
		if err != nil {
			log.Fatalf("Failed to connect elasticsearch: %v", err)
		}
		if err := es.EnsureIndex(ctx); err != nil {
			log.Fatalf("Failed to create search index: %v", err)
		}
		searcher = es
	}

	if c.Tracing.Endpoint != "" {
		tp, err := tracer.InitTracer(c.Tracing.Endpoint, tracer.Options{
			ServiceName:   c.Service.Name,
			Version:       c.Service.Version,
			Environment:   c.Service.Env,
			OriginVillage: c.ApiCo.OriginVillageCode,
			SampleRatio:   c.Tracing.SampleRatio,
		})
		if err != nil {
			log.Fatalf("Failed to init tracer: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	// 4. 下单接口限流
	rateLimit := c.RateLimit.CheckoutQPS > 0
	if rateLimit {
		if err := middleware.InitSentinel(c.RateLimit.CheckoutQPS); err != nil {
			log.Fatalf("Failed to init sentinel: %v", err)
		}
		logger.Info(ctx, "sentinel rule loaded", "resource", middleware.ResCheckout, "qps", c.RateLimit.CheckoutQPS)
	}

	// 5. 组装服务
	jm := jwt.NewManager(c.Jwt.Secret, time.Duration(c.Jwt.ExpireHours)*time.Hour)
	m := metrics.New(c.Service.Name)

	var rec recommend.Recommender
	if c.ML.RecommenderURL != "" {
		rec = recommend.NewMLClient(c.ML.RecommenderURL)
	}

	products := product.NewService(db, searcher)
	if searcher != nil {
		go func() {
			n, err := products.Reindex(ctx)
			if err != nil {
				logger.Warn(ctx, "initial product reindex failed", "error", err)
				return
			}
			logger.Info(ctx, "products indexed", "count", n)
		}()
	}

	engine := router.New(router.Deps{
		ServiceName:    c.Service.Name,
		JWT:            jm,
		Metrics:        m,
		AllowedOrigins: c.Cors.AllowedOrigins,
		RateLimit:      rateLimit,
		Tracing:        c.Tracing.Endpoint != "",

		Users:     user.NewService(db, jm),
		Addresses: address.NewService(db),
		Products:  products,
		Cart:      cart.NewService(db),
		Orders:    order.NewService(db, publisher, m),
		Payments: payment.NewService(db,
			payment.NewSnapClient(payment.SnapBaseURL(c.Midtrans.Production), c.Midtrans.ServerKey),
			payment.Options{
				ServerKey: c.Midtrans.ServerKey,
				FinishURL: c.Midtrans.FinishURL,
				Publisher: publisher,
				Metrics:   m,
			}),
		Admin:     admin.NewService(db),
		Regions:   region.NewService(region.NewClient(c.ApiCo.BaseURL, c.ApiCo.ApiKey), rdb, c.ApiCo.OriginVillageCode),
		Recommend: recommend.NewService(db, rec),
	})

	// 6. 注册到 Consul
	var reg *discovery.Registration
	if c.Consul.Address != "" {
		reg, err = discovery.RegisterService(c.Service.Name, c.Service.Port, c.Consul.Address)
		if err != nil {
			logger.Warn(ctx, "consul registration failed", "error", err)
		}
	}

	// 7. 启动 HTTP，收到信号后优雅退出
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Service.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info(ctx, "gateway running", "addr", srv.Addr, "gin_mode", gin.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "shutting down gateway")

	if err := reg.Deregister(); err != nil {
		logger.Warn(ctx, "consul deregister failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown failed", "error", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
