package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	"smartgateway/internal/metrics"
	"smartgateway/internal/switchbot"
	"smartgateway/internal/web/api"
	"smartgateway/internal/web/middleware"
)

// quotaReporter is implemented by device services with a request budget
type quotaReporter interface {
	Stats() switchbot.LimiterStats
}

type WebServer struct {
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

func NewWebServer(eng *engine.Engine, webhookSecret string, logger *slog.Logger) *WebServer {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	middlewareManager := middleware.NewMiddlewareManager(logger, webhookSecret)
	logger = logger.With("component", "http")
	router.Use(middlewareManager.RequestLogger(), middlewareManager.Recovery())

	router.GET("/health", func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"time":      eng.Evaluator().Now(),
			"rules":     len(eng.Scheduler().GetRules()),
			"scheduled": eng.Scheduler().ScheduledCount(),
		}
		if q, ok := eng.Devices().(quotaReporter); ok {
			health["quota"] = q.Stats()
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": health})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	group := router.Group("/api")
	api.RegisterWorkflowRoutes(group, eng, logger)
	api.RegisterAutomationRoutes(group, eng)
	api.RegisterSceneRoutes(group, eng, logger)
	api.RegisterDeviceRoutes(group, eng, logger)
	api.RegisterWebhookRoutes(group, eng, middlewareManager, logger)

	return &WebServer{
		router: router,
		server: &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves on addr until Shutdown is called
func (ws *WebServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ws.logger.Info("http server listening", "addr", ln.Addr().String())
	if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}
