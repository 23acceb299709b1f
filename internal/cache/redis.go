package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"bazaar/internal/domain"
)

// RedisCache stores cart views as JSON. Calls go through a circuit breaker so an
// unreachable Redis fails fast instead of adding latency to every cart request.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
	cb      *gobreaker.CircuitBreaker[[]byte]
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "cart-cache",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &RedisCache{client: client, baseTTL: ttl, cb: cb}
}

func (r *RedisCache) Get(ctx context.Context, kind domain.CartKind, owner string) (domain.CartView, error) {
	data, err := r.cb.Execute(func() ([]byte, error) {
		data, err := r.client.Get(ctx, cacheKey(kind, owner)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		if err != nil {
			return nil, fmt.Errorf("redis get failed: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.CartView{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return view, nil
}

// Set stores the view without its change reports, with TTL = base + up to 20% jitter.
func (r *RedisCache) Set(ctx context.Context, view domain.CartView) error {
	data, err := json.Marshal(view.WithoutReports())
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := r.baseTTL + time.Duration(rand.Int64N(int64(r.baseTTL)/5+1))
	_, err = r.cb.Execute(func() ([]byte, error) {
		if err := r.client.Set(ctx, cacheKey(view.Kind, view.OwnerKey), data, ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set failed: %w", err)
		}
		return nil, nil
	})
	return err
}

func (r *RedisCache) Delete(ctx context.Context, kind domain.CartKind, owner string) error {
	_, err := r.cb.Execute(func() ([]byte, error) {
		if err := r.client.Del(ctx, cacheKey(kind, owner)).Err(); err != nil {
			return nil, fmt.Errorf("redis delete failed: %w", err)
		}
		return nil, nil
	})
	return err
}
