package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ycliao/daigou-storefront/internal/api"
	"github.com/ycliao/daigou-storefront/internal/domain"
)

const cacheTTL = 5 * time.Minute

// Service serves the read-heavy catalog pages. Reads go through an
// optional short-TTL Redis cache; cart and order state is never cached
// here, only the product listing the whole storefront shares. A Redis
// outage degrades to direct API reads without surfacing to the user.
type Service struct {
	client *api.Client
	cache  *redis.Client
	logger *slog.Logger
}

// NewService builds a catalog service. cache may be nil, in which case
// every read hits the marketplace API.
func NewService(client *api.Client, cache *redis.Client, logger *slog.Logger) *Service {
	return &Service{
		client: client,
		cache:  cache,
		logger: logger,
	}
}

func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	if cached, ok := s.fromCache(ctx, "products:all"); ok {
		var products []domain.Product
		if err := json.Unmarshal(cached, &products); err == nil {
			return products, nil
		}
	}

	products, err := s.client.Products(ctx)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, "products:all", products)
	return products, nil
}

func (s *Service) Product(ctx context.Context, id int64) (*domain.Product, error) {
	key := "product:" + strconv.FormatInt(id, 10)

	if cached, ok := s.fromCache(ctx, key); ok {
		var product domain.Product
		if err := json.Unmarshal(cached, &product); err == nil {
			return &product, nil
		}
	}

	product, err := s.client.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	s.toCache(ctx, key, product)
	return product, nil
}

// Invalidate drops a product from the cache, e.g. after a stock-changing
// action made the cached quantity stale.
func (s *Service) Invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	keys := []string{"products:all", "product:" + strconv.FormatInt(id, 10)}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("failed to invalidate catalog cache", "error", err, "product_id", id)
	}
}

func (s *Service) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("catalog cache read failed", "error", err, "key", key)
		}
		return nil, false
	}
	return data, true
}

func (s *Service) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal for catalog cache", "error", err, "key", key)
		return
	}
	if err := s.cache.Set(ctx, key, data, cacheTTL).Err(); err != nil {
		s.logger.Warn("catalog cache write failed", "error", err, "key", key)
	}
}
