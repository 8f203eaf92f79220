package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

// RateLimit returns middleware that admits at most rps requests per
// second with the given burst, shared across all clients. Inference is
// serialized behind one engine, so a global limiter keeps the queue
// from growing without bound.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !limiter.Allow() {
				return writeError(c, http.StatusTooManyRequests, "rate_limit_error",
					"request rate limit exceeded, retry later")
			}
			return next(c)
		}
	}
}
