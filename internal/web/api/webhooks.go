package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/automation"
	"smartgateway/internal/engine"
	"smartgateway/internal/switchbot"
	"smartgateway/internal/web/middleware"
)

func RegisterWebhookRoutes(r gin.IRouter, eng *engine.Engine, mw *middleware.MiddlewareManager, logger *slog.Logger) {
	webhooks := r.Group("/webhooks")
	webhooks.Use(mw.RequireWebhookSignature())
	{
		webhooks.POST("/switchbot", func(c *gin.Context) {
			body, err := rawBody(c)
			if err != nil {
				fail(c, http.StatusBadRequest, "unreadable body")
				return
			}
			ev, err := switchbot.ParseWebhookEvent(body)
			if err != nil {
				fail(c, http.StatusBadRequest, "invalid webhook payload")
				return
			}
			if ev.DeviceMac == "" {
				fail(c, http.StatusBadRequest, "context.deviceMac is required")
				return
			}

			logger.Info("webhook received", "event", ev.EventType, "device", ev.DeviceMac, "deviceType", ev.DeviceType)
			event := automation.ProcessDeviceUpdate(ev.DeviceMac, ev.DeviceType, ev.Data, nil)
			respond(c, http.StatusOK, eng.HandleDeviceEvent(c.Request.Context(), event))
		})
	}
}

func rawBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(middleware.RawBodyKey); ok {
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return io.ReadAll(c.Request.Body)
}
