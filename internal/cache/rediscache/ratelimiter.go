// Package rediscache implementa el límite de frecuencia de altas de registro
// sobre Redis.
package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (rl *RateLimiter) Close() error {
	return rl.c.Close()
}

// Allow incrementa el contador de la clave y fija el TTL de la ventana.
// Devuelve (permitido, conteo actual). El EXPIRE se reaplica en cada INCR,
// así que la ventana es deslizante desde el último intento.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}
