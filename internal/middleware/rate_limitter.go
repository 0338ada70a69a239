package middleware

import (
	"VisionProxy/pkg/handlerUtil"
	"VisionProxy/pkg/response"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

var (
	ErrTooManyRequests = response.NewError(http.StatusTooManyRequests, response.KindRateLimited, "too many requests")
)

type rateLimiter struct {
	bucket    map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
	mutex     *sync.Mutex
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		bucket:    make(map[string]*rate.Limiter),
		rate:      reqRate,
		burstSize: burstSize,
		mutex:     &sync.Mutex{},
	}
}

func (r *rateLimiter) GetLimiterFrom(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exist := r.bucket[ip]; !exist {
		r.bucket[ip] = rate.NewLimiter(r.rate, r.burstSize)
	}

	return r.bucket[ip]
}

// Allow spends one token from the client's bucket. Long-lived connections call
// it per message so they share the budget of the HTTP endpoints.
func (m *middleware) Allow(ip string) bool {
	if m.rateLimitter.GetLimiterFrom(ip).Allow() {
		return true
	}
	m.log.Warnf("too many requests for IP %s", ip)
	return false
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	if !m.Allow(ctx.IP()) {
		status, body := handlerUtil.Resolve(ErrTooManyRequests)
		return ctx.Status(status).JSON(body)
	}

	return ctx.Next()
}
