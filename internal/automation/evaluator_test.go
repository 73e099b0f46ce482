package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartgateway/internal/models"
)

type fakeDevices struct {
	mu       sync.Mutex
	statuses map[string]models.DeviceStatus
	errs     map[string]error
	panics   map[string]bool
	commands []string
	scenes   []string
	cmdErr   map[string]error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{
		statuses: map[string]models.DeviceStatus{},
		errs:     map[string]error{},
		panics:   map[string]bool{},
		cmdErr:   map[string]error{},
	}
}

func (f *fakeDevices) GetDeviceStatus(_ context.Context, id string) (models.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics[id] {
		panic("boom")
	}
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.statuses[id], nil
}

func (f *fakeDevices) SendCommand(_ context.Context, id, cmd string, _ any) (*models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, id+":"+cmd)
	if err := f.cmdErr[id]; err != nil {
		return nil, err
	}
	return &models.CommandResult{StatusCode: 100, Message: "success"}, nil
}

func (f *fakeDevices) ExecuteScene(_ context.Context, id string) (*models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scenes = append(f.scenes, id)
	return &models.CommandResult{StatusCode: 100, Message: "success"}, nil
}

func fixedClock(hour, minute int) func() time.Time {
	// 2024-06-05 is a Wednesday
	return func() time.Time { return time.Date(2024, 6, 5, hour, minute, 0, 0, time.UTC) }
}

func newTestEvaluator(devices StatusReader, hour, minute int) *Evaluator {
	return NewEvaluator(devices, WithClock(fixedClock(hour, minute)), WithLocation(time.UTC))
}

func TestEvaluateTimeEqualsWithTolerance(t *testing.T) {
	e := newTestEvaluator(newFakeDevices(), 18, 30)
	res := e.EvaluateConditions(context.Background(), []models.Condition{
		{Type: models.ConditionTime, Operator: models.OpEquals, Value: "18:30", Tolerance: 5},
	})
	require.Len(t, res.Results, 1)
	assert.True(t, res.AllMet)
	assert.True(t, res.Results[0].Matched)
	assert.Equal(t, "18:30", res.Results[0].ActualValue)
	assert.Equal(t, "18:30", res.Results[0].ExpectedValue)
}

func TestEvaluateTimeEqualsDefaultTolerance(t *testing.T) {
	e := newTestEvaluator(newFakeDevices(), 7, 2)
	cond := models.Condition{Type: models.ConditionTime, Operator: models.OpEquals, Value: "07:00"}
	assert.True(t, e.EvaluateCondition(context.Background(), cond, 0).Matched)

	e = newTestEvaluator(newFakeDevices(), 7, 3)
	assert.False(t, e.EvaluateCondition(context.Background(), cond, 0).Matched)
}

func TestEvaluateTimeDoesNotWrapAtMidnight(t *testing.T) {
	e := newTestEvaluator(newFakeDevices(), 23, 59)
	res := e.EvaluateCondition(context.Background(), models.Condition{
		Type: models.ConditionTime, Operator: models.OpEquals, Value: "00:01", Tolerance: 5,
	}, 0)
	assert.False(t, res.Matched)
	assert.Equal(t, "23:59", res.ActualValue)
}

func TestEvaluateTimeLexicalOperators(t *testing.T) {
	e := newTestEvaluator(newFakeDevices(), 9, 15)
	ctx := context.Background()

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"greater", models.Condition{Type: models.ConditionTime, Operator: models.OpGreaterThan, Value: "09:00"}, true},
		{"greater false", models.Condition{Type: models.ConditionTime, Operator: models.OpGreaterThan, Value: "10:00"}, false},
		{"less", models.Condition{Type: models.ConditionTime, Operator: models.OpLessThan, Value: "10:00"}, true},
		{"between inclusive", models.Condition{Type: models.ConditionTime, Operator: models.OpBetween, Value: []any{"09:15", "18:00"}}, true},
		{"between outside", models.Condition{Type: models.ConditionTime, Operator: models.OpBetween, Value: []any{"10:00", "18:00"}}, false},
		{"between malformed", models.Condition{Type: models.ConditionTime, Operator: models.OpBetween, Value: "09:00"}, false},
		{"contains unsupported", models.Condition{Type: models.ConditionTime, Operator: models.OpContains, Value: "09"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.EvaluateCondition(ctx, tt.cond, 0).Matched)
		})
	}
}

func TestEvaluateTemperature(t *testing.T) {
	devices := newFakeDevices()
	devices.statuses["meter"] = models.DeviceStatus{"temperature": 28.5, "humidity": 40.0}
	e := newTestEvaluator(devices, 12, 0)
	ctx := context.Background()

	res := e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "meter",
	}, 0)
	assert.True(t, res.Matched)
	assert.Equal(t, 28.5, res.ActualValue)

	devices.statuses["meter"] = models.DeviceStatus{"temperature": 25.0}
	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "meter",
	}, 0)
	assert.False(t, res.Matched)
	assert.Equal(t, 25.0, res.ActualValue)

	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionTemperature, Operator: models.OpEquals, Value: "25.4", DeviceID: "meter",
	}, 0)
	assert.True(t, res.Matched, "default tolerance 0.5")

	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionTemperature, Operator: models.OpBetween, Value: []any{20, 25}, DeviceID: "meter",
	}, 0)
	assert.True(t, res.Matched)
}

func TestEvaluateHumidityDefaultTolerance(t *testing.T) {
	devices := newFakeDevices()
	devices.statuses["meter"] = models.DeviceStatus{"humidity": 52.0}
	e := newTestEvaluator(devices, 12, 0)

	res := e.EvaluateCondition(context.Background(), models.Condition{
		Type: models.ConditionHumidity, Operator: models.OpEquals, Value: 50, DeviceID: "meter",
	}, 0)
	assert.True(t, res.Matched)

	res = e.EvaluateCondition(context.Background(), models.Condition{
		Type: models.ConditionHumidity, Operator: models.OpLessThan, Value: 50, DeviceID: "meter",
	}, 0)
	assert.False(t, res.Matched)
}

func TestEvaluateMixedConditionsNoShortCircuit(t *testing.T) {
	devices := newFakeDevices()
	devices.statuses["meter"] = models.DeviceStatus{"temperature": 22.0}
	e := newTestEvaluator(devices, 18, 30)

	res := e.EvaluateConditions(context.Background(), []models.Condition{
		{Type: models.ConditionTime, Operator: models.OpEquals, Value: "18:30"},
		{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "meter"},
		{Type: models.ConditionTime, Operator: models.OpLessThan, Value: "23:00"},
	})
	assert.False(t, res.AllMet)
	require.Len(t, res.Results, 3)
	assert.True(t, res.Results[0].Matched)
	assert.False(t, res.Results[1].Matched)
	assert.True(t, res.Results[2].Matched)
	for i, r := range res.Results {
		assert.Equal(t, i, r.ConditionIndex)
	}
}

func TestEvaluateFailuresBecomeUnmatched(t *testing.T) {
	devices := newFakeDevices()
	devices.errs["broken"] = errors.New("status 500")
	devices.panics["explodes"] = true
	devices.statuses["empty"] = models.DeviceStatus{"power": "on"}
	e := newTestEvaluator(devices, 12, 0)

	conds := []models.Condition{
		{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "broken"},
		{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26},
		{Type: models.ConditionHumidity, Operator: models.OpGreaterThan, Value: 26, DeviceID: "explodes"},
		{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "empty"},
		{Type: models.ConditionDeviceState, Operator: models.OpEquals, Value: "on"},
		{Type: models.ConditionType("sensor"), Operator: models.OpEquals, Value: 1},
		{Type: models.ConditionTime, Operator: models.OpEquals, Value: 700},
	}
	var res models.ConditionEvaluation
	require.NotPanics(t, func() {
		res = e.EvaluateConditions(context.Background(), conds)
	})
	assert.False(t, res.AllMet)
	require.Len(t, res.Results, len(conds))
	for i, r := range res.Results {
		assert.Equal(t, i, r.ConditionIndex)
		assert.False(t, r.Matched, "condition %d", i)
		assert.Nil(t, r.ActualValue, "condition %d", i)
		assert.Equal(t, conds[i].Value, r.ExpectedValue)
	}
}

func TestEvaluateDeviceState(t *testing.T) {
	devices := newFakeDevices()
	devices.statuses["plug"] = models.DeviceStatus{"power": "on", "voltage": 100.0}
	e := newTestEvaluator(devices, 12, 0)
	ctx := context.Background()

	res := e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionDeviceState, Operator: models.OpEquals, DeviceID: "plug",
		Value: map[string]any{"voltage": 100, "power": "on"},
	}, 0)
	assert.True(t, res.Matched)
	assert.Equal(t, models.DeviceStatus{"power": "on", "voltage": 100.0}, res.ActualValue)

	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionDeviceState, Operator: models.OpEquals, DeviceID: "plug",
		Value: map[string]any{"power": "on"},
	}, 0)
	assert.False(t, res.Matched)

	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionDeviceState, Operator: models.OpContains, DeviceID: "plug", Value: `"power":"on"`,
	}, 0)
	assert.True(t, res.Matched)

	res = e.EvaluateCondition(ctx, models.Condition{
		Type: models.ConditionDeviceState, Operator: models.OpContains, DeviceID: "plug", Value: "off",
	}, 0)
	assert.False(t, res.Matched)
}

func TestIsTimeInSchedule(t *testing.T) {
	e := newTestEvaluator(newFakeDevices(), 6, 1)
	allDays := []int{0, 1, 2, 3, 4, 5, 6}

	assert.True(t, e.IsTimeInSchedule(nil))
	assert.True(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleDaily, Time: "06:01", Days: allDays}))
	assert.True(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleDaily, Time: "06:00", Days: allDays}))
	assert.True(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleDaily, Time: "06:03"}))
	assert.False(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleDaily, Time: "06:04"}))
	assert.False(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleDaily, Time: "23:59", Days: allDays}))

	// Wednesday is weekday 3
	assert.True(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleWeekly, Days: []int{3}}))
	assert.False(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleWeekly, Time: "06:01", Days: []int{0, 6}}))
	assert.True(t, e.IsTimeInSchedule(&models.RuleSchedule{Type: models.ScheduleInterval, Interval: 10}))
}

func TestEvaluatorUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	e := NewEvaluator(newFakeDevices(), WithClock(fixedClock(9, 0)), WithLocation(tokyo))
	res := e.EvaluateCondition(context.Background(), models.Condition{
		Type: models.ConditionTime, Operator: models.OpEquals, Value: "18:00",
	}, 0)
	assert.True(t, res.Matched)
	assert.Equal(t, "18:00", res.ActualValue)
}
