package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RateLimitMiddleware rejects requests beyond the client's per-minute
// quota before any other handler logic runs. The client key is the
// remote address as echo resolves it.
func (c *Controller) RateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !c.limiter.Allow(ctx.RealIP()) {
				return c.HandleError(ctx, nil, "Rate limit exceeded", http.StatusTooManyRequests)
			}
			return next(ctx)
		}
	}
}

// AuthMiddleware checks the shared access key, supplied either in the
// X-API-Key header or the api_key query parameter. An empty configured
// key disables authentication entirely.
func (c *Controller) AuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			accessKey := c.Settings.Security.AccessKey
			if accessKey == "" {
				return next(ctx)
			}

			supplied := ctx.Request().Header.Get("X-API-Key")
			if supplied == "" {
				supplied = ctx.QueryParam("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(accessKey)) != 1 {
				return c.HandleError(ctx, nil, "Unauthorized", http.StatusUnauthorized)
			}

			return next(ctx)
		}
	}
}
