package proposal

import (
	"smartgateway/internal/models"
	"smartgateway/internal/utils"
)

// ruleConditions are ANDed; zero-valued fields match anything
type ruleConditions struct {
	EventType       string
	DeviceType      string
	State           string
	TimeRange       *models.TimeRange
	SensorThreshold map[string]float64
}

type suggestionRule struct {
	Name       string
	Conditions ruleConditions
	Suggestion models.AutomationSuggestion
}

var defaultRules = []suggestionRule{
	{
		Name: "帰宅照明",
		Conditions: ruleConditions{
			EventType:  "deviceStateChange",
			DeviceType: "Lock",
			State:      "unlocked",
			TimeRange:  &models.TimeRange{Start: "17:00", End: "21:00"},
		},
		Suggestion: models.AutomationSuggestion{
			Type:        "lighting",
			Description: "帰宅時の照明点灯",
			Confidence:  0.9,
			Actions: []models.AutomationAction{
				{DeviceID: "light_entrance", Command: "turnOn", Parameters: map[string]any{}},
			},
		},
	},
	{
		Name: "高温エアコン",
		Conditions: ruleConditions{
			EventType:       "sensorData",
			DeviceType:      "Meter",
			SensorThreshold: map[string]float64{"temperature": 28},
		},
		Suggestion: models.AutomationSuggestion{
			Type:        "climate",
			Description: "室温調整のためのエアコン運転",
			Confidence:  0.8,
			Actions: []models.AutomationAction{
				{DeviceID: "aircon_living", Command: "turnOn", Parameters: map[string]any{"temperature": 25}},
			},
		},
	},
}

func (r suggestionRule) matches(event models.AutomationEvent, actx models.AutomationContext) bool {
	c := r.Conditions
	if c.EventType != "" && event.EventType != c.EventType {
		return false
	}
	if c.DeviceType != "" && event.DeviceType != c.DeviceType {
		return false
	}
	if c.State != "" {
		if s, ok := event.State.(string); !ok || s != c.State {
			return false
		}
	}
	if c.TimeRange != nil && !InTimeRange(actx.Time, *c.TimeRange) {
		return false
	}
	if c.SensorThreshold != nil && !aboveThreshold(event.State, c.SensorThreshold) {
		return false
	}
	return true
}

// InTimeRange reports whether clock lies in r, both ends inclusive. A range
// whose start is after its end wraps past midnight.
func InTimeRange(clock string, r models.TimeRange) bool {
	current := utils.ClockMinutes(clock)
	start := utils.ClockMinutes(r.Start)
	end := utils.ClockMinutes(r.End)
	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// aboveThreshold requires every key to be present and strictly greater
func aboveThreshold(state any, thresholds map[string]float64) bool {
	data, ok := state.(map[string]any)
	if !ok {
		return false
	}
	for key, limit := range thresholds {
		v, ok := models.ToFloat(data[key])
		if !ok || v <= limit {
			return false
		}
	}
	return true
}
