package ratelimit

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/restitch/marketplace/internal/httperr"
	mwauth "github.com/restitch/marketplace/internal/middleware/auth"
)

// visitor holds the rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func New(rps float64, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
	go l.cleanup()
	return l
}

func (l *Limiter) getVisitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup evicts idle buckets so the visitor map does not grow unbounded.
func (l *Limiter) cleanup() {
	for {
		time.Sleep(time.Minute)

		l.mu.Lock()
		for key, v := range l.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, key)
			}
		}
		l.mu.Unlock()
	}
}

func (l *Limiter) Allow(key string) bool {
	return l.getVisitor(key).Allow()
}

// Middleware identifies the caller by user ID when authenticated, falling
// back to the remote IP, and rejects with 429 once the bucket is drained.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if userID, err := mwauth.UserID(c); err == nil {
				key = fmt.Sprintf("user:%d", userID)
			}

			if !l.Allow(key) {
				retry := 1
				if l.limit > 0 && l.limit < 1 {
					retry = int(1/float64(l.limit)) + 1
				}
				return httperr.RateLimited(c, strconv.Itoa(retry))
			}

			return next(c)
		}
	}
}
