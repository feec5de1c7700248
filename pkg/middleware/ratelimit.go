package middleware

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// RateLimit はクライアントIPごとに、rateの期間あたりlimit回までリクエストを許可する
// Ginミドルウェアを返す。limitが0なら何もしない。
func RateLimit(rate time.Duration, limit uint) gin.HandlerFunc {
	if limit == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  rate,
		Limit: limit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "リクエストが多すぎます",
				"retry_after": time.Until(info.ResetTime).Round(time.Second).String(),
			})
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
