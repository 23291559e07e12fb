// Package api exposes the result store and the on-demand inference
// engine over HTTP.
package api

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdcam-go/internal/conf"
	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/errors"
	"github.com/tphakala/birdcam-go/internal/logging"
	"github.com/tphakala/birdcam-go/internal/resultstore"
	"github.com/tphakala/birdcam-go/internal/securefs"
)

// apiPrefix routes get machine-readable JSON errors; everything else
// gets a minimal rendered page.
const apiPrefix = "/api"

// statsCacheTTL bounds how stale the cached aggregate may get. Stats
// scans the whole index, so list endpoints reuse a recent value instead
// of recomputing per request.
const statsCacheTTL = 15 * time.Second

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Store    resultstore.Interface
	Engine   detection.Engine
	Settings *conf.Settings

	imagesFS    *securefs.SecureFS
	annotatedFS *securefs.SecureFS
	uploadsFS   *securefs.SecureFS

	limiter    *RateLimiter
	statsCache *cache.Cache
	startTime  time.Time

	log            *slog.Logger
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller, registers all routes on e and
// installs the API-aware error handler. The rate limiter is injected so
// tests can drive its clock; nil disables rate limiting.
func New(e *echo.Echo, store resultstore.Interface, engine detection.Engine,
	settings *conf.Settings, limiter *RateLimiter) (*Controller, error) {

	base := settings.Storage.BasePath

	imagesFS, err := securefs.New(filepath.Join(base, "images"))
	if err != nil {
		return nil, fmt.Errorf("initializing images sandbox: %w", err)
	}
	annotatedFS, err := securefs.New(filepath.Join(base, "annotated"))
	if err != nil {
		return nil, fmt.Errorf("initializing annotated sandbox: %w", err)
	}
	uploadsFS, err := securefs.New(filepath.Join(base, "uploads"))
	if err != nil {
		return nil, fmt.Errorf("initializing uploads sandbox: %w", err)
	}

	c := &Controller{
		Echo:        e,
		Store:       store,
		Engine:      engine,
		Settings:    settings,
		imagesFS:    imagesFS,
		annotatedFS: annotatedFS,
		uploadsFS:   uploadsFS,
		limiter:     limiter,
		statsCache:  cache.New(statsCacheTTL, time.Minute),
		startTime:   time.Now(),
		log:         logging.ForService("api"),
	}

	// Structured request log to its own file, level adjustable at runtime.
	c.apiLevelVar = new(slog.LevelVar)
	if settings.WebServer.Debug {
		c.apiLevelVar.Set(slog.LevelDebug)
	} else {
		c.apiLevelVar.Set(slog.LevelInfo)
	}

	logPath := settings.WebServer.Log.Path
	if logPath == "" {
		logPath = "logs/web.log"
	}
	apiLogger, closeFunc, err := logging.NewFileLogger(logPath, "api", c.apiLevelVar)
	if err != nil {
		c.log.Warn("failed to initialize API file logger, request logging disabled", "path", logPath, "error", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	e.HTTPErrorHandler = c.httpErrorHandler

	c.Group = e.Group(apiPrefix)
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("16M"))
	c.Group.Use(c.LoggingMiddleware())

	c.initRoutes()

	return c, nil
}

// initRoutes registers all endpoints. The health check is public; the
// data routes go through rate limiting first, then authentication, the
// same order every client-facing failure is reported in.
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	protected := []echo.MiddlewareFunc{c.RateLimitMiddleware(), c.AuthMiddleware()}

	c.Group.GET("/results", c.GetResults, protected...)
	c.Group.GET("/results/:id", c.GetResult, protected...)
	c.Group.GET("/search", c.Search, protected...)
	c.Group.GET("/stats", c.GetStats, protected...)
	c.Group.POST("/upload", c.Upload, protected...)

	// Image serving bypasses auth so annotated thumbnails render in
	// plain <img> tags; the sandbox roots are the protection here.
	c.Echo.GET("/images/*", c.ServeImage)
}

// LoggingMiddleware logs every API request to the structured file log.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			req := ctx.Request()
			res := ctx.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}
			c.apiLogger.LogAttrs(req.Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// Shutdown releases the controller's file handles. The echo server
// itself is shut down by the caller.
func (c *Controller) Shutdown() {
	for _, sfs := range []*securefs.SecureFS{c.imagesFS, c.annotatedFS, c.uploadsFS} {
		if err := sfs.Close(); err != nil {
			c.log.Warn("error closing filesystem sandbox", "error", err)
		}
	}
	if err := c.apiLoggerClose(); err != nil {
		c.log.Warn("error closing API log file", "error", err)
	}
}

// ErrorResponse is the JSON error body of API routes.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an API error response with a fresh
// correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier used to match
// a client-visible error with its server-side log entry.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs a handler failure with full context and returns the
// structured response. Internal details never reach the client beyond
// the error string itself.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	c.apiLogger.Error("API Error",
		"correlation_id", errorResp.CorrelationID,
		"message", message,
		"error", errorStr,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}

// httpErrorHandler translates uncaught errors: API-prefixed paths get a
// JSON body, everything else a minimal page. Internal file paths are
// never leaked either way.
func (c *Controller) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Server error"
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	if strings.HasPrefix(ctx.Request().URL.Path, apiPrefix) {
		_ = c.HandleError(ctx, nil, message, code)
		return
	}

	c.apiLogger.Error("unhandled error",
		"path", ctx.Request().URL.Path,
		"code", code,
		"error", err.Error(),
	)
	page := fmt.Sprintf("<html><body><h1>%d</h1><p>%s</p></body></html>", code, message)
	_ = ctx.HTML(code, page)
}
