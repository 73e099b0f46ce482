package models

import "time"

// OperationRecord is a single observed device operation
type OperationRecord struct {
	DeviceID   string         `json:"deviceId"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	UserID     string         `json:"userId"`
}

// OperationPattern aggregates identical (device, command, parameters) operations
type OperationPattern struct {
	DeviceID   string         `json:"deviceId"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Frequency  int            `json:"frequency"`
	LastUsed   time.Time      `json:"lastUsed"`
}

// SequentialPattern is an ordered operation pair observed inside a time window
type SequentialPattern struct {
	Operations []OperationRecord `json:"operations"`
	Frequency  int               `json:"frequency"`
	TimeWindow int               `json:"timeWindow"` // minutes
	Confidence float64           `json:"confidence"`
}

// TimeRange is an HH:MM interval; End may be "24:00"
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TimeBasedPattern groups operations falling into one day-part
type TimeBasedPattern struct {
	TimeRange  TimeRange         `json:"timeRange"`
	Operations []OperationRecord `json:"operations"`
	Frequency  int               `json:"frequency"`
	Confidence float64           `json:"confidence"`
}

// PatternType names the miner that produced a scene candidate
type PatternType string

const (
	PatternFrequent   PatternType = "frequent"
	PatternSequential PatternType = "sequential"
	PatternTimeBased  PatternType = "time_based"
)

// AutomationAction is a device command without scheduling metadata
type AutomationAction struct {
	DeviceID   string         `json:"deviceId"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// SceneCandidate is a proposed scene derived from a usage pattern
type SceneCandidate struct {
	Name        string             `json:"name"`
	Operations  []AutomationAction `json:"operations"`
	Confidence  float64            `json:"confidence"`
	Frequency   int                `json:"frequency"`
	PatternType PatternType        `json:"patternType"`
	Reasoning   string             `json:"reasoning"`
}

// LearnedScene is a committed scene created from a candidate
type LearnedScene struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Operations      []AutomationAction `json:"operations"`
	Confidence      float64            `json:"confidence"`
	IsAutoGenerated bool               `json:"isAutoGenerated"`
	CreatedAt       time.Time          `json:"createdAt"`
	UsageCount      int                `json:"usageCount"`
}

// SceneLearningContext is the live context scenes are ranked against
type SceneLearningContext struct {
	Time             string   `json:"time"` // HH:MM
	RecentEvents     []string `json:"recentEvents"`
	AvailableDevices []string `json:"availableDevices"`
}

const (
	SuggestionLearnedScene     = "learned_scene"
	SuggestionRecommendedScene = "recommended_scene"
)

// SceneSuggestion is a ranked scene proposal
type SceneSuggestion struct {
	Type        string             `json:"type"`
	SceneID     string             `json:"sceneId,omitempty"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
	Actions     []AutomationAction `json:"actions"`
	Reasoning   string             `json:"reasoning"`
}
