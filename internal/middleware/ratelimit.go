package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/models"
	"github.com/taoshinakamoto/VOLTAGEGPU/internal/utils"
	"golang.org/x/time/rate"
)

// RateLimiter keeps a token bucket per account. Buckets are created
// lazily and live for the process lifetime; account IDs are dense
// integers so the map stays small.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[uint]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[uint]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (r *RateLimiter) limiterFor(accountID uint) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[accountID] = l
	}
	return l
}

// Middleware must run after AuthMiddleware so the account is resolved.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("account")
		if !exists {
			c.JSON(http.StatusUnauthorized, utils.NewErrorResponse("AUTH_ERROR", "Authentication required"))
			c.Abort()
			return
		}
		account := value.(*models.Account)

		if !r.limiterFor(account.ID).Allow() {
			c.JSON(http.StatusTooManyRequests, utils.NewErrorResponse("RATE_LIMIT_EXCEEDED", "Too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
