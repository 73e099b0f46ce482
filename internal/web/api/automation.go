package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	"smartgateway/internal/models"
)

func RegisterAutomationRoutes(r gin.IRouter, eng *engine.Engine) {
	automation := r.Group("/automation")
	{
		automation.POST("/analyze", func(c *gin.Context) {
			var event models.AutomationEvent
			if err := c.ShouldBindJSON(&event); err != nil {
				fail(c, http.StatusBadRequest, "invalid event")
				return
			}
			respond(c, http.StatusOK, eng.HandleDeviceEvent(c.Request.Context(), event))
		})

		automation.POST("/propose", func(c *gin.Context) {
			var actx models.AutomationContext
			if err := c.ShouldBindJSON(&actx); err != nil {
				fail(c, http.StatusBadRequest, "invalid context")
				return
			}
			respond(c, http.StatusOK, eng.Proposals().GenerateProposal(actx))
		})

		automation.POST("/validate", func(c *gin.Context) {
			var suggestion models.AutomationSuggestion
			if err := c.ShouldBindJSON(&suggestion); err != nil {
				fail(c, http.StatusBadRequest, "invalid suggestion")
				return
			}
			respond(c, http.StatusOK, eng.Proposals().ValidateProposal(c.Request.Context(), suggestion))
		})
	}
}
