package region

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"oldmarket/pkg/logger"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	cacheTTL    = 24 * time.Hour
	cachePrefix = "region:"
)

// Service 区划列表走 Redis 缓存 (rdb 为 nil 时直连)，运费不缓存
type Service struct {
	client *Client
	rdb    *redis.Client
	origin string
}

func NewService(client *Client, rdb *redis.Client, originVillageCode string) *Service {
	return &Service{client: client, rdb: rdb, origin: originVillageCode}
}

func (s *Service) Provinces(ctx context.Context) (json.RawMessage, error) {
	return s.cached(ctx, "provinces", s.client.Provinces)
}

func (s *Service) Regencies(ctx context.Context, provinceCode string) (json.RawMessage, error) {
	if provinceCode == "" {
		return nil, status.Error(codes.InvalidArgument, "province code is required")
	}
	return s.cached(ctx, "regencies:"+provinceCode, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Regencies(ctx, provinceCode)
	})
}

func (s *Service) Districts(ctx context.Context, regencyCode string) (json.RawMessage, error) {
	if regencyCode == "" {
		return nil, status.Error(codes.InvalidArgument, "regency code is required")
	}
	return s.cached(ctx, "districts:"+regencyCode, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Districts(ctx, regencyCode)
	})
}

func (s *Service) Villages(ctx context.Context, districtCode string) (json.RawMessage, error) {
	if districtCode == "" {
		return nil, status.Error(codes.InvalidArgument, "district code is required")
	}
	return s.cached(ctx, "villages:"+districtCode, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Villages(ctx, districtCode)
	})
}

// ShippingCost 从店铺所在村到 destination 的运费报价
func (s *Service) ShippingCost(ctx context.Context, destination string, weightGrams int) (json.RawMessage, error) {
	if destination == "" || weightGrams <= 0 {
		return nil, status.Error(codes.InvalidArgument, "destination and a positive weight are required")
	}
	return s.client.ShippingCost(ctx, s.origin, destination, weightGrams)
}

func (s *Service) cached(ctx context.Context, key string, fetch func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if s.rdb == nil {
		return fetch(ctx)
	}
	key = cachePrefix + key

	// 1. 命中缓存直接返回
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		return json.RawMessage(val), nil
	}
	if !errors.Is(err, redis.Nil) {
		logger.Warn(ctx, "region cache read failed", "key", key, "err", err)
	}

	// 2. 回源
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	// 3. 写缓存失败不影响返回
	if err := s.rdb.Set(ctx, key, []byte(data), cacheTTL).Err(); err != nil {
		logger.Warn(ctx, "region cache write failed", "key", key, "err", err)
	}
	return data, nil
}
