package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Fixed-window limiter shared across replicas. INCR + EXPIRE on first hit;
// the key carries the window so counts reset cleanly.
type RedisRateLimiter struct {
	rdb    *redis.Client
	window time.Duration
	limit  int
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
	}
}

func (rl *RedisRateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			key = clientIP(c)
		}

		now := time.Now()
		windowID := now.UnixNano() / int64(rl.window)
		redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(windowID, 10)

		ctx := c.Request.Context()

		count, err := rl.rdb.Incr(ctx, redisKey).Result()

		if err != nil {
			// Redis being down must not take the API with it
			c.Next()
			return
		}

		if count == 1 {
			rl.rdb.Expire(ctx, redisKey, rl.window)
		}

		if count > int64(rl.limit) {
			windowEnd := time.Unix(0, (windowID+1)*int64(rl.window))
			retryAfter := int(time.Until(windowEnd).Seconds())

			if retryAfter < 0 {
				retryAfter = 0
			}

			abortRateLimited(c, retryAfter)
			return
		}

		c.Next()
	}
}
