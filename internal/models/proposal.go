package models

// EventContext carries optional where/when information for an event
type EventContext struct {
	Time     string `json:"time,omitempty"` // HH:MM
	Location string `json:"location,omitempty"`
}

// AutomationEvent is one observed device event
type AutomationEvent struct {
	EventType  string        `json:"eventType"`
	DeviceID   string        `json:"deviceId"`
	DeviceType string        `json:"deviceType"`
	State      any           `json:"state,omitempty"`
	Context    *EventContext `json:"context,omitempty"`
}

// AutomationContext is a snapshot of the home used for proposals
type AutomationContext struct {
	Time             string   `json:"time"`
	Location         string   `json:"location"`
	RecentEvents     []string `json:"recentEvents"`
	AvailableDevices []string `json:"availableDevices"`
	SensorData       any      `json:"sensorData,omitempty"`
}

// AutomationSuggestion is one proposed automation
type AutomationSuggestion struct {
	Type        string             `json:"type"`
	Description string             `json:"description"`
	Confidence  float64            `json:"confidence"`
	Actions     []AutomationAction `json:"actions"`
	Reasoning   string             `json:"reasoning"`
}

// AutomationProposal groups suggestions produced for one event
type AutomationProposal struct {
	Suggestions []AutomationSuggestion `json:"suggestions"`
	Confidence  float64                `json:"confidence"`
	Context     AutomationContext      `json:"context"`
}

// ProposalValidation reports whether a suggestion can be executed now
type ProposalValidation struct {
	IsValid bool     `json:"isValid"`
	Reason  string   `json:"reason"`
	Issues  []string `json:"issues,omitempty"`
}
