package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartgateway/internal/llm"
	"smartgateway/internal/metrics"
	"smartgateway/internal/models"
)

const (
	llmTemperature = 0.1
	llmMaxTokens   = 1000
	llmConfidence  = 0.9
)

var errEmptyResponse = errors.New("empty llm response")

// Parser turns Japanese instructions into automation rules
type Parser struct {
	llm    llm.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewParser creates a parser. A nil client uses pattern matching only.
func NewParser(client llm.Client, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		llm:    client,
		now:    time.Now,
		logger: logger.With("component", "workflow"),
	}
}

// ParseWorkflow never fails: any LLM problem degrades to the pattern parser
func (p *Parser) ParseWorkflow(ctx context.Context, text, userID string) models.AutomationWorkflow {
	if p.llm != nil {
		wf, err := p.parseWithLLM(ctx, text, userID)
		if err == nil {
			metrics.WorkflowParses.WithLabelValues("llm").Inc()
			return wf
		}
		p.logger.Warn("llm parse failed, using fallback", "error", err)
	}
	metrics.WorkflowParses.WithLabelValues("fallback").Inc()
	return Fallback(text, userID, p.now())
}

func (p *Parser) parseWithLLM(ctx context.Context, text, userID string) (models.AutomationWorkflow, error) {
	resp, err := p.llm.Chat(ctx, llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: Prompt(text)}},
		Temperature: llmTemperature,
		MaxTokens:   llmMaxTokens,
	})
	if err != nil {
		return models.AutomationWorkflow{}, err
	}
	content := stripFence(resp.Content)
	if content == "" {
		return models.AutomationWorkflow{}, errEmptyResponse
	}

	var parsed llmRule
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.AutomationWorkflow{}, fmt.Errorf("decode llm rule: %w", err)
	}
	now := p.now()
	rule, err := parsed.toRule(text, userID, now)
	if err != nil {
		return models.AutomationWorkflow{}, err
	}
	suggestions := parsed.SuggestedModifications
	if suggestions == nil {
		suggestions = []string{}
	}
	return models.AutomationWorkflow{
		NaturalLanguage:        text,
		ParsedRule:             rule,
		Confidence:             llmConfidence,
		SuggestedModifications: suggestions,
	}, nil
}

// Models often quote numbers, so tolerance and interval are decoded loosely.
type llmCondition struct {
	Type      models.ConditionType `json:"type"`
	Operator  models.Operator      `json:"operator"`
	Value     any                  `json:"value"`
	DeviceID  string               `json:"deviceId"`
	Tolerance any                  `json:"tolerance"`
}

type llmSchedule struct {
	Type     models.ScheduleType `json:"type"`
	Time     string              `json:"time"`
	Days     []int               `json:"days"`
	Interval any                 `json:"interval"`
}

type llmRule struct {
	Name                   string              `json:"name"`
	Description            string              `json:"description"`
	Conditions             []llmCondition      `json:"conditions"`
	Actions                []models.RuleAction `json:"actions"`
	Schedule               *llmSchedule        `json:"schedule"`
	SuggestedModifications []string            `json:"suggestedModifications"`
}

func (r llmRule) toRule(text, userID string, now time.Time) (*models.AutomationRule, error) {
	rule := &models.AutomationRule{
		Name:        r.Name,
		Description: r.Description,
		IsEnabled:   true,
		Conditions:  make([]models.Condition, 0, len(r.Conditions)),
		Actions:     make([]models.RuleAction, 0, len(r.Actions)),
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      userID,
	}
	if rule.Name == "" {
		rule.Name = RuleName(text, now)
	}
	if rule.Description == "" {
		rule.Description = text
	}

	for i, c := range r.Conditions {
		if !c.Type.Valid() {
			return nil, fmt.Errorf("condition %d: unknown type %q", i, c.Type)
		}
		tolerance, _ := models.ToFloat(c.Tolerance)
		rule.Conditions = append(rule.Conditions, models.Condition{
			Type:      c.Type,
			Operator:  c.Operator,
			Value:     c.Value,
			DeviceID:  c.DeviceID,
			Tolerance: tolerance,
		})
	}
	for i, a := range r.Actions {
		if !a.Type.Valid() {
			return nil, fmt.Errorf("action %d: unknown type %q", i, a.Type)
		}
		rule.Actions = append(rule.Actions, a)
	}
	if s := r.Schedule; s != nil && s.Type != "" {
		if !s.Type.Valid() {
			return nil, fmt.Errorf("unknown schedule type %q", s.Type)
		}
		interval, _ := models.ToFloat(s.Interval)
		rule.Schedule = &models.RuleSchedule{
			Type:     s.Type,
			Time:     s.Time,
			Days:     s.Days,
			Interval: int(interval),
		}
	}
	return rule, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
