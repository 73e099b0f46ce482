package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"smartgateway/internal/automation"
	"smartgateway/internal/models"
	"smartgateway/internal/utils"
)

const (
	validReason   = "実行可能"
	invalidPrefix = "問題があります: "
)

// Engine turns device events into automation suggestions
type Engine struct {
	devices automation.StatusReader
	rules   []suggestionRule
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone used for the default event time
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a proposal engine. devices is only used by ValidateProposal.
func NewEngine(devices automation.StatusReader, opts ...Option) *Engine {
	e := &Engine{
		devices: devices,
		rules:   defaultRules,
		now:     time.Now,
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "proposal")
	return e
}

// AnalyzeEvent matches the event against the rule table. The proposal
// confidence is the mean of the matched suggestions, or 0 with none.
func (e *Engine) AnalyzeEvent(event models.AutomationEvent) models.AutomationProposal {
	actx := e.buildContext(event)
	suggestions := []models.AutomationSuggestion{}

	for _, r := range e.rules {
		if !r.matches(event, actx) {
			continue
		}
		s := cloneSuggestion(r.Suggestion)
		s.Reasoning = fmt.Sprintf("ルール「%s」に基づく提案", r.Name)
		suggestions = append(suggestions, s)
	}

	var confidence float64
	if len(suggestions) > 0 {
		var sum float64
		for _, s := range suggestions {
			sum += s.Confidence
		}
		confidence = sum / float64(len(suggestions))
	}

	e.logger.Debug("event analyzed", "eventType", event.EventType, "deviceId", event.DeviceID, "suggestions", len(suggestions))
	return models.AutomationProposal{
		Suggestions: suggestions,
		Confidence:  confidence,
		Context:     actx,
	}
}

// GenerateProposal picks a single suggestion from the context. The first
// matching branch wins.
func (e *Engine) GenerateProposal(actx models.AutomationContext) models.AutomationSuggestion {
	if isEvening(actx.Time) && actx.Location == "entrance" && slices.Contains(actx.RecentEvents, "door_unlock") {
		return models.AutomationSuggestion{
			Type:        "lighting",
			Description: "帰宅時の照明点灯を提案します",
			Confidence:  0.85,
			Actions: []models.AutomationAction{
				{DeviceID: FindDevice(actx.AvailableDevices, "light"), Command: "turnOn", Parameters: map[string]any{}},
			},
			Reasoning: "夕方の帰宅時に玄関の照明を点灯することで、安全で快適な入室をサポートします",
		}
	}

	if isHot(actx.SensorData) && actx.Location == "living_room" {
		return models.AutomationSuggestion{
			Type:        "climate",
			Description: "室温が高いためエアコンの運転を提案します",
			Confidence:  0.75,
			Actions: []models.AutomationAction{
				{DeviceID: FindDevice(actx.AvailableDevices, "aircon"), Command: "turnOn", Parameters: map[string]any{"temperature": 25}},
			},
			Reasoning: "室温が28度を超えているため、快適な温度に調整します",
		}
	}

	return models.AutomationSuggestion{
		Type:        "comfort",
		Description: "現在の状況に基づく自動化提案",
		Confidence:  0.5,
		Actions:     []models.AutomationAction{},
		Reasoning:   "現在の状況では特別な自動化は必要ありません",
	}
}

// ValidateProposal checks every action against live device status. Status
// failures become issues; nothing is returned as an error.
func (e *Engine) ValidateProposal(ctx context.Context, s models.AutomationSuggestion) models.ProposalValidation {
	var issues []string
	for _, action := range s.Actions {
		status, err := e.devices.GetDeviceStatus(ctx, action.DeviceID)
		if err != nil {
			e.logger.Warn("status check failed", "deviceId", action.DeviceID, "error", err)
			issues = append(issues, fmt.Sprintf("デバイス %s の状態確認に失敗しました", action.DeviceID))
			continue
		}
		if !status.Online() {
			issues = append(issues, fmt.Sprintf("デバイス %s がオフラインです", action.DeviceID))
		}
		if action.Command == "turnOn" && strings.EqualFold(status.Power(), "on") {
			issues = append(issues, fmt.Sprintf("デバイス %s は既にオンになっています", action.DeviceID))
		}
	}

	if len(issues) == 0 {
		return models.ProposalValidation{IsValid: true, Reason: validReason}
	}
	return models.ProposalValidation{
		IsValid: false,
		Reason:  invalidPrefix + strings.Join(issues, ", "),
		Issues:  issues,
	}
}

func (e *Engine) buildContext(event models.AutomationEvent) models.AutomationContext {
	actx := models.AutomationContext{
		Time:             utils.FormatClock(e.now().In(e.loc)),
		Location:         "unknown",
		RecentEvents:     []string{event.EventType},
		AvailableDevices: []string{},
		SensorData:       event.State,
	}
	if c := event.Context; c != nil {
		if c.Time != "" {
			actx.Time = c.Time
		}
		if c.Location != "" {
			actx.Location = c.Location
		}
	}
	return actx
}

// FindDevice returns the first id containing keyword, else the first id, else ""
func FindDevice(ids []string, keyword string) string {
	for _, id := range ids {
		if strings.Contains(id, keyword) {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func isEvening(clock string) bool {
	h := utils.ClockHour(clock)
	return h >= 17 && h <= 21
}

func isHot(sensorData any) bool {
	data, ok := sensorData.(map[string]any)
	if !ok {
		return false
	}
	t, ok := models.ToFloat(data["temperature"])
	return ok && t > 28
}

func cloneSuggestion(s models.AutomationSuggestion) models.AutomationSuggestion {
	actions := make([]models.AutomationAction, len(s.Actions))
	for i, a := range s.Actions {
		a.Parameters = maps.Clone(a.Parameters)
		actions[i] = a
	}
	s.Actions = actions
	return s
}
