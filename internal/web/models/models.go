package models

import "smartgateway/internal/models"

type ParseWorkflowRequest struct {
	NaturalLanguage string `json:"naturalLanguage"`
	UserID          string `json:"userId"`
}

type SaveWorkflowRequest struct {
	Workflow *models.AutomationWorkflow `json:"workflow" binding:"required"`
}

type UpdateRuleRequest struct {
	Rule *models.AutomationRule `json:"rule" binding:"required"`
}

type ToggleRuleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type EvaluateConditionsRequest struct {
	Conditions []models.Condition `json:"conditions" binding:"required"`
}

// CommandRequest is a device command sent through the gateway. Parameter is
// forwarded as-is: a string, a number or an object depending on the command.
type CommandRequest struct {
	Command   string `json:"command" binding:"required"`
	Parameter any    `json:"parameter"`
	UserID    string `json:"userId"`
}

type HistoryResponse struct {
	History []models.RuleExecution `json:"history"`
	Count   int                    `json:"count"`
	Total   int                    `json:"total"`
}

type RuleListResponse struct {
	Rules []*models.AutomationRule `json:"rules"`
	Count int                      `json:"count"`
}

type SceneExecutionResponse struct {
	SceneID string                    `json:"sceneId"`
	Status  models.ExecutionStatus    `json:"status"`
	Results []models.RuleActionResult `json:"results"`
}
