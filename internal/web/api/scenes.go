package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	"smartgateway/internal/models"
	"smartgateway/internal/utils"
	webModels "smartgateway/internal/web/models"
)

func RegisterSceneRoutes(r gin.IRouter, eng *engine.Engine, logger *slog.Logger) {
	scenes := r.Group("/scenes")
	{
		scenes.POST("/record", func(c *gin.Context) {
			var op models.OperationRecord
			if err := c.ShouldBindJSON(&op); err != nil || op.DeviceID == "" || op.Command == "" {
				fail(c, http.StatusBadRequest, "deviceId and command are required")
				return
			}
			if op.UserID == "" {
				op.UserID = defaultUserID
			}
			eng.Scenes().RecordOperation(op)
			respond(c, http.StatusCreated, gin.H{"recorded": true})
		})

		scenes.GET("/patterns", func(c *gin.Context) {
			respond(c, http.StatusOK, eng.Scenes().OperationPatterns())
		})

		scenes.GET("/sequential-patterns", func(c *gin.Context) {
			respond(c, http.StatusOK, eng.Scenes().DetectPatterns())
		})

		scenes.GET("/time-patterns", func(c *gin.Context) {
			respond(c, http.StatusOK, eng.Scenes().DetectTimeBasedPatterns())
		})

		scenes.GET("/candidates", func(c *gin.Context) {
			respond(c, http.StatusOK, eng.Scenes().GenerateSceneCandidates())
		})

		scenes.POST("/create", func(c *gin.Context) {
			var candidate models.SceneCandidate
			if err := c.ShouldBindJSON(&candidate); err != nil {
				fail(c, http.StatusBadRequest, "invalid scene candidate")
				return
			}
			scene, err := eng.Scenes().CreateSceneFromCandidate(candidate)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusCreated, scene)
		})

		scenes.POST("/suggestions", func(c *gin.Context) {
			var sctx models.SceneLearningContext
			if err := c.ShouldBindJSON(&sctx); err != nil {
				fail(c, http.StatusBadRequest, "invalid context")
				return
			}
			if sctx.Time == "" {
				sctx.Time = utils.FormatClock(eng.Evaluator().Now())
			}
			respond(c, http.StatusOK, eng.Scenes().GetSceneSuggestions(sctx))
		})

		scenes.GET("/learned", func(c *gin.Context) {
			respond(c, http.StatusOK, eng.Scenes().LearnedScenes())
		})

		scenes.POST("/learned/:id/execute", func(c *gin.Context) {
			id := c.Param("id")
			results, err := eng.Scenes().ExecuteLearnedScene(c.Request.Context(), id)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, webModels.SceneExecutionResponse{
				SceneID: id,
				Status:  models.DetermineExecutionStatus(results),
				Results: results,
			})
		})
	}
}
