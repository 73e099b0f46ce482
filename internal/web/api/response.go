package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	"smartgateway/internal/scenes"
	"smartgateway/internal/scheduler"
	"smartgateway/internal/switchbot"
)

const defaultUserID = "default-user"

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// failErr maps a component error onto the envelope. Client errors carry the
// error text; server errors are logged and answered generically.
func failErr(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		fail(c, status, err.Error())
		return
	}
	logger.Error("request failed", "path", c.FullPath(), "error", err)
	if status == http.StatusBadGateway {
		fail(c, status, "device service error")
		return
	}
	fail(c, status, "internal server error")
}

func statusFor(err error) int {
	var apiErr *switchbot.APIError
	switch {
	case errors.Is(err, scheduler.ErrRuleNotFound),
		errors.Is(err, scenes.ErrSceneNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrMissingRule),
		errors.Is(err, scheduler.ErrMissingID),
		errors.Is(err, scenes.ErrConfidenceTooLow),
		errors.Is(err, switchbot.ErrMissingDeviceID),
		errors.Is(err, switchbot.ErrMissingCommand),
		errors.Is(err, switchbot.ErrMissingSceneID):
		return http.StatusBadRequest
	case errors.Is(err, switchbot.ErrDailyQuota):
		return http.StatusTooManyRequests
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
