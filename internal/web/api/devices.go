package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	"smartgateway/internal/models"
	webModels "smartgateway/internal/web/models"
)

// statusRefresher is implemented by device services that cache status reads
type statusRefresher interface {
	RefreshDeviceStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error)
}

func RegisterDeviceRoutes(r gin.IRouter, eng *engine.Engine, logger *slog.Logger) {
	switchbot := r.Group("/switchbot")
	{
		switchbot.GET("/devices", func(c *gin.Context) {
			list, err := eng.Devices().GetDevices(c.Request.Context())
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, list)
		})

		switchbot.GET("/devices/:id/status", func(c *gin.Context) {
			var (
				status models.DeviceStatus
				err    error
			)
			refresher, canRefresh := eng.Devices().(statusRefresher)
			if canRefresh && c.Query("refresh") == "true" {
				status, err = refresher.RefreshDeviceStatus(c.Request.Context(), c.Param("id"))
			} else {
				status, err = eng.Devices().GetDeviceStatus(c.Request.Context(), c.Param("id"))
			}
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, status)
		})

		switchbot.POST("/devices/:id/commands", func(c *gin.Context) {
			var req webModels.CommandRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "command is required")
				return
			}
			if req.UserID == "" {
				req.UserID = defaultUserID
			}
			res, err := eng.SendDeviceCommand(c.Request.Context(), c.Param("id"), req.Command, req.Parameter, req.UserID)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, res)
		})

		switchbot.GET("/scenes", func(c *gin.Context) {
			list, err := eng.Devices().GetScenes(c.Request.Context())
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, list)
		})

		switchbot.POST("/scenes/:id/execute", func(c *gin.Context) {
			res, err := eng.Devices().ExecuteScene(c.Request.Context(), c.Param("id"))
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, res)
		})
	}
}
