package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"smartgateway/internal/engine"
	webModels "smartgateway/internal/web/models"
)

const defaultHistoryLimit = 20

func RegisterWorkflowRoutes(r gin.IRouter, eng *engine.Engine, logger *slog.Logger) {
	workflow := r.Group("/workflow")
	{
		workflow.POST("/parse", func(c *gin.Context) {
			var req webModels.ParseWorkflowRequest
			if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.NaturalLanguage) == "" {
				fail(c, http.StatusBadRequest, "naturalLanguage is required")
				return
			}
			if req.UserID == "" {
				req.UserID = defaultUserID
			}
			respond(c, http.StatusOK, eng.ParseWorkflow(c.Request.Context(), req.NaturalLanguage, req.UserID))
		})

		workflow.POST("/save", func(c *gin.Context) {
			var req webModels.SaveWorkflowRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "workflow is required")
				return
			}
			rule, err := eng.SaveWorkflow(*req.Workflow)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusCreated, rule)
		})

		workflow.GET("/rules", func(c *gin.Context) {
			rules := eng.Scheduler().GetRules()
			respond(c, http.StatusOK, webModels.RuleListResponse{Rules: rules, Count: len(rules)})
		})

		workflow.GET("/rules/:id", func(c *gin.Context) {
			rule, ok := eng.Scheduler().GetRule(c.Param("id"))
			if !ok {
				fail(c, http.StatusNotFound, "rule not found")
				return
			}
			respond(c, http.StatusOK, rule)
		})

		workflow.PUT("/rules/:id", func(c *gin.Context) {
			var req webModels.UpdateRuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "rule is required")
				return
			}
			rule, err := eng.UpdateRule(c.Param("id"), req.Rule)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, rule)
		})

		workflow.DELETE("/rules/:id", func(c *gin.Context) {
			id := c.Param("id")
			if !eng.Scheduler().RemoveRule(id) {
				fail(c, http.StatusNotFound, "rule not found")
				return
			}
			respond(c, http.StatusOK, gin.H{"id": id})
		})

		workflow.PATCH("/rules/:id/toggle", func(c *gin.Context) {
			var req webModels.ToggleRuleRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "enabled is required")
				return
			}
			rule, err := eng.Scheduler().ToggleRule(c.Param("id"), *req.Enabled)
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, rule)
		})

		workflow.POST("/rules/:id/execute", func(c *gin.Context) {
			exec, err := eng.Scheduler().ManualExecuteRule(c.Request.Context(), c.Param("id"))
			if err != nil {
				failErr(c, logger, err)
				return
			}
			respond(c, http.StatusOK, exec)
		})

		workflow.GET("/rules/:id/history", func(c *gin.Context) {
			limit := defaultHistoryLimit
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					fail(c, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				limit = n
			}
			history := eng.Scheduler().GetExecutionHistory(c.Param("id"))
			total := len(history)
			if limit < total {
				history = history[:limit]
			}
			respond(c, http.StatusOK, webModels.HistoryResponse{History: history, Count: len(history), Total: total})
		})

		workflow.POST("/conditions/evaluate", func(c *gin.Context) {
			var req webModels.EvaluateConditionsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, "conditions array is required")
				return
			}
			respond(c, http.StatusOK, eng.Evaluator().EvaluateConditions(c.Request.Context(), req.Conditions))
		})
	}
}
