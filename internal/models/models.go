package models

import "time"

// ConditionType selects how a condition is evaluated
type ConditionType string

const (
	ConditionTime        ConditionType = "time"
	ConditionTemperature ConditionType = "temperature"
	ConditionHumidity    ConditionType = "humidity"
	ConditionDeviceState ConditionType = "device_state"
)

// Valid reports whether t is one of the known condition types
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionTime, ConditionTemperature, ConditionHumidity, ConditionDeviceState:
		return true
	}
	return false
}

// Operator compares an observed value against a condition value
type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
	OpContains    Operator = "contains"
)

// Condition represents one evaluable predicate of a rule
type Condition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    any           `json:"value"`              // scalar, or [low, high] for between
	DeviceID string        `json:"deviceId,omitempty"` // required for temperature, humidity and device_state
	// Tolerance is the slack for equals; zero selects the per-type default.
	Tolerance float64 `json:"tolerance,omitempty"`
}

// ActionType selects what a rule action does
type ActionType string

const (
	ActionDeviceControl  ActionType = "device_control"
	ActionSceneExecution ActionType = "scene_execution"
	ActionNotification   ActionType = "notification"
)

// Valid reports whether t is one of the known action types
func (t ActionType) Valid() bool {
	switch t {
	case ActionDeviceControl, ActionSceneExecution, ActionNotification:
		return true
	}
	return false
}

// RuleAction represents one effect performed when a rule fires
type RuleAction struct {
	Type       ActionType     `json:"type"`
	DeviceID   string         `json:"deviceId,omitempty"`
	Command    string         `json:"command,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	SceneID    string         `json:"sceneId,omitempty"`
	Message    string         `json:"message,omitempty"`
	Delay      float64        `json:"delay,omitempty"` // seconds to wait before the action
}

// ScheduleType selects the re-evaluation cadence of a rule
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "once"
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleInterval ScheduleType = "interval"
)

// Valid reports whether t is one of the known schedule types
func (t ScheduleType) Valid() bool {
	switch t {
	case ScheduleOnce, ScheduleDaily, ScheduleWeekly, ScheduleInterval:
		return true
	}
	return false
}

// RuleSchedule represents when a rule is eligible to run
type RuleSchedule struct {
	Type     ScheduleType `json:"type"`
	Time     string       `json:"time,omitempty"`     // HH:MM local time
	Days     []int        `json:"days,omitempty"`     // 0 = Sunday
	Interval int          `json:"interval,omitempty"` // minutes
}

// AutomationRule represents a user-owned automation definition
type AutomationRule struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	IsEnabled      bool          `json:"isEnabled"`
	Conditions     []Condition   `json:"conditions"`
	Actions        []RuleAction  `json:"actions"`
	Schedule       *RuleSchedule `json:"schedule,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	UserID         string        `json:"userId"`
	LastExecuted   *time.Time    `json:"lastExecuted,omitempty"`
	ExecutionCount int           `json:"executionCount"`
}

// Clone returns a deep copy of the rule
func (r *AutomationRule) Clone() *AutomationRule {
	if r == nil {
		return nil
	}
	c := *r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	c.Actions = make([]RuleAction, len(r.Actions))
	for i, a := range r.Actions {
		if a.Parameters != nil {
			params := make(map[string]any, len(a.Parameters))
			for k, v := range a.Parameters {
				params[k] = v
			}
			a.Parameters = params
		}
		c.Actions[i] = a
	}
	if r.Schedule != nil {
		s := *r.Schedule
		s.Days = append([]int(nil), r.Schedule.Days...)
		c.Schedule = &s
	}
	if r.LastExecuted != nil {
		t := *r.LastExecuted
		c.LastExecuted = &t
	}
	return &c
}

// RuleConditionResult is the outcome of evaluating one condition
type RuleConditionResult struct {
	ConditionIndex int       `json:"conditionIndex"`
	Matched        bool      `json:"matched"`
	ActualValue    any       `json:"actualValue"`
	ExpectedValue  any       `json:"expectedValue"`
	EvaluatedAt    time.Time `json:"evaluatedAt"`
}

// ConditionEvaluation aggregates the results of one evaluation pass
type ConditionEvaluation struct {
	AllMet  bool                  `json:"allMet"`
	Results []RuleConditionResult `json:"results"`
}

// ActionStatus is the outcome of a single action
type ActionStatus string

const (
	ActionSuccess ActionStatus = "success"
	ActionFailure ActionStatus = "failure"
	ActionSkipped ActionStatus = "skipped"
)

// RuleActionResult is the outcome of executing one action
type RuleActionResult struct {
	ActionIndex int          `json:"actionIndex"`
	Status      ActionStatus `json:"status"`
	Result      any          `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	ExecutedAt  time.Time    `json:"executedAt"`
}

// ExecutionStatus is the aggregate outcome of a rule execution
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
	ExecutionPartial ExecutionStatus = "partial"
)

// DetermineExecutionStatus derives the aggregate status from action results.
// Skipped actions count as neither success nor failure.
func DetermineExecutionStatus(results []RuleActionResult) ExecutionStatus {
	var successes, failures int
	for _, r := range results {
		switch r.Status {
		case ActionSuccess:
			successes++
		case ActionFailure:
			failures++
		}
	}
	if failures == 0 {
		return ExecutionSuccess
	}
	if successes == 0 {
		return ExecutionFailure
	}
	return ExecutionPartial
}

// RuleExecution is an immutable record of one firing attempt
type RuleExecution struct {
	ID         string                `json:"id"`
	RuleID     string                `json:"ruleId"`
	ExecutedAt time.Time             `json:"executedAt"`
	Status     ExecutionStatus       `json:"status"`
	Results    []RuleActionResult    `json:"results"`
	Conditions []RuleConditionResult `json:"conditions"`
}

// AutomationWorkflow is the result of parsing a natural-language instruction
type AutomationWorkflow struct {
	NaturalLanguage        string          `json:"naturalLanguage"`
	ParsedRule             *AutomationRule `json:"parsedRule"`
	Confidence             float64         `json:"confidence"`
	SuggestedModifications []string        `json:"suggestedModifications,omitempty"`
}
