package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/metrics"
)

type MiddlewareManager struct {
	logger        *slog.Logger
	webhookSecret string
	now           func() time.Time
}

func NewMiddlewareManager(logger *slog.Logger, webhookSecret string) *MiddlewareManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MiddlewareManager{
		logger:        logger.With("component", "http"),
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// RequestLogger logs every request and counts it by matched route
func (m *MiddlewareManager) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		case route == "/health" || route == "/metrics":
			level = slog.LevelDebug
		}
		m.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

// Recovery turns a handler panic into a 500 envelope
func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		m.logger.Error("handler panicked", "path", c.Request.URL.Path, "panic", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal server error",
		})
	})
}
