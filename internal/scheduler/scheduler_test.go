package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartgateway/internal/automation"
	"smartgateway/internal/models"
)

type stubDevices struct {
	mu       sync.Mutex
	status   map[string]models.DeviceStatus
	failing  map[string]bool
	commands []string
}

func (d *stubDevices) GetDeviceStatus(_ context.Context, id string) (models.DeviceStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.status[id]
	if !ok {
		return nil, errors.New("unknown device")
	}
	return s, nil
}

func (d *stubDevices) SendCommand(_ context.Context, id, cmd string, _ any) (*models.CommandResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = append(d.commands, id+":"+cmd)
	if d.failing[id] {
		return nil, errors.New("command rejected")
	}
	return &models.CommandResult{StatusCode: 100, Message: "success"}, nil
}

func (d *stubDevices) ExecuteScene(context.Context, string) (*models.CommandResult, error) {
	return &models.CommandResult{StatusCode: 100}, nil
}

type captureSink struct {
	mu    sync.Mutex
	execs []models.RuleExecution
	rules []*models.AutomationRule
}

func (c *captureSink) RecordExecution(_ context.Context, rule *models.AutomationRule, exec models.RuleExecution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule)
	c.execs = append(c.execs, exec)
	return nil
}

type captureDispatcher struct {
	ids []string
}

func (c *captureDispatcher) Dispatch(_ context.Context, ruleID string) error {
	c.ids = append(c.ids, ruleID)
	return nil
}

func newTestScheduler(t *testing.T, devices *stubDevices, hour, minute int, opts ...Option) *Scheduler {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 6, 5, hour, minute, 0, 0, time.UTC) }
	ev := automation.NewEvaluator(devices, automation.WithClock(clock), automation.WithLocation(time.UTC))
	ex := automation.NewExecutor(devices, nil, nil)
	return NewScheduler(ev, ex, opts...)
}

func newDevices() *stubDevices {
	return &stubDevices{
		status:  map[string]models.DeviceStatus{"meter": {"temperature": 29.0}},
		failing: map[string]bool{},
	}
}

func rule(id string, enabled bool) *models.AutomationRule {
	return &models.AutomationRule{
		ID:        id,
		Name:      "rule " + id,
		IsEnabled: enabled,
		Actions:   []models.RuleAction{{Type: models.ActionDeviceControl, DeviceID: "ac", Command: "turnOn"}},
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAddRuleArmsTimerOnlyWhenEnabled(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)

	require.NoError(t, s.AddRule(rule("a", true)))
	require.NoError(t, s.AddRule(rule("b", false)))
	assert.Equal(t, 1, s.ScheduledCount())
	assert.Len(t, s.GetRules(), 2)

	// re-adding replaces the registration instead of stacking timers
	require.NoError(t, s.AddRule(rule("a", true)))
	assert.Equal(t, 1, s.ScheduledCount())
	assert.Len(t, s.GetRules(), 2)

	assert.ErrorIs(t, s.AddRule(&models.AutomationRule{}), ErrMissingID)
}

func TestToggleRule(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))

	r, err := s.ToggleRule("a", false)
	require.NoError(t, err)
	assert.False(t, r.IsEnabled)
	assert.Equal(t, 0, s.ScheduledCount())

	_, err = s.ToggleRule("a", true)
	require.NoError(t, err)
	_, err = s.ToggleRule("a", true)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ScheduledCount())

	_, err = s.ToggleRule("missing", true)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRemoveRuleCancelsTimerAndKeepsHistory(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))
	_, err := s.ManualExecuteRule(context.Background(), "a")
	require.NoError(t, err)

	assert.True(t, s.RemoveRule("a"))
	assert.False(t, s.RemoveRule("a"))
	assert.Equal(t, 0, s.ScheduledCount())
	_, ok := s.GetRule("a")
	assert.False(t, ok)
	assert.Len(t, s.GetExecutionHistory("a"), 1)

	_, err = s.RunScheduled(context.Background(), "a")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestManualExecuteRulePartialFailure(t *testing.T) {
	devices := newDevices()
	devices.failing["broken"] = true
	sink := &captureSink{}
	s := newTestScheduler(t, devices, 12, 0, WithSinks(sink))

	r := rule("a", true)
	r.Conditions = []models.Condition{{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 40, DeviceID: "meter"}}
	r.Actions = []models.RuleAction{
		{Type: models.ActionDeviceControl, DeviceID: "ac", Command: "turnOn"},
		{Type: models.ActionDeviceControl, DeviceID: "broken", Command: "turnOn"},
		{Type: models.ActionNotification, Message: "done"},
	}
	require.NoError(t, s.AddRule(r))

	exec, err := s.ManualExecuteRule(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPartial, exec.Status)
	require.Len(t, exec.Results, 3)
	assert.Equal(t, models.ActionFailure, exec.Results[1].Status)
	assert.Empty(t, exec.Conditions)
	assert.Equal(t, "a", exec.RuleID)
	assert.Contains(t, exec.ID, "exec_")

	stored, ok := s.GetRule("a")
	require.True(t, ok)
	assert.Equal(t, 1, stored.ExecutionCount)
	require.NotNil(t, stored.LastExecuted)
	assert.Equal(t, exec.ExecutedAt, *stored.LastExecuted)
	assert.Equal(t, exec.ExecutedAt, stored.UpdatedAt)

	require.Len(t, sink.execs, 1)
	assert.Equal(t, exec.ID, sink.execs[0].ID)
	assert.Equal(t, 1, sink.rules[0].ExecutionCount)

	_, err = s.ManualExecuteRule(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestExecutionHistoryIsCappedNewestFirst(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", false)))

	var last *models.RuleExecution
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		exec, err := s.ManualExecuteRule(context.Background(), "a")
		require.NoError(t, err)
		last = exec
	}
	history := s.GetExecutionHistory("a")
	assert.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, last.ID, history[0].ID)

	stored, _ := s.GetRule("a")
	assert.Equal(t, DefaultHistoryLimit+5, stored.ExecutionCount)
	assert.NotNil(t, s.GetExecutionHistory("unknown"))
}

func TestRunScheduled(t *testing.T) {
	devices := newDevices()
	s := newTestScheduler(t, devices, 7, 1)
	ctx := context.Background()

	hot := rule("hot", true)
	hot.Conditions = []models.Condition{{Type: models.ConditionTemperature, Operator: models.OpGreaterThan, Value: 26, DeviceID: "meter"}}
	hot.Schedule = &models.RuleSchedule{Type: models.ScheduleDaily, Time: "07:00", Days: []int{0, 1, 2, 3, 4, 5, 6}}
	require.NoError(t, s.AddRule(hot))

	exec, err := s.RunScheduled(ctx, "hot")
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, models.ExecutionSuccess, exec.Status)
	require.Len(t, exec.Conditions, 1)
	assert.True(t, exec.Conditions[0].Matched)

	cold := rule("cold", true)
	cold.Conditions = []models.Condition{{Type: models.ConditionTemperature, Operator: models.OpLessThan, Value: 20, DeviceID: "meter"}}
	require.NoError(t, s.AddRule(cold))
	exec, err = s.RunScheduled(ctx, "cold")
	require.NoError(t, err)
	assert.Nil(t, exec)

	late := rule("late", true)
	late.Schedule = &models.RuleSchedule{Type: models.ScheduleDaily, Time: "21:00"}
	require.NoError(t, s.AddRule(late))
	exec, err = s.RunScheduled(ctx, "late")
	require.NoError(t, err)
	assert.Nil(t, exec)

	off := rule("off", false)
	require.NoError(t, s.AddRule(off))
	exec, err = s.RunScheduled(ctx, "off")
	require.NoError(t, err)
	assert.Nil(t, exec)

	assert.Equal(t, []string{"ac:turnOn"}, devices.commands)
}

func TestTickUsesDispatcher(t *testing.T) {
	d := &captureDispatcher{}
	devices := newDevices()
	s := newTestScheduler(t, devices, 12, 0, WithDispatcher(d))
	require.NoError(t, s.AddRule(rule("a", true)))

	s.tick("a")
	assert.Equal(t, []string{"a"}, d.ids)
	assert.Empty(t, devices.commands)
	assert.Empty(t, s.GetExecutionHistory("a"))
}

func TestTickRunsInlineWithoutDispatcher(t *testing.T) {
	devices := newDevices()
	s := newTestScheduler(t, devices, 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))

	s.tick("a")
	assert.Len(t, s.GetExecutionHistory("a"), 1)
	assert.Equal(t, []string{"ac:turnOn"}, devices.commands)
}

func TestStopAllSchedulesKeepsRules(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))
	require.NoError(t, s.AddRule(rule("b", true)))
	s.Start()
	defer s.Stop()

	s.StopAllSchedules()
	assert.Equal(t, 0, s.ScheduledCount())
	assert.Len(t, s.GetRules(), 2)
}

func TestGetRuleReturnsCopy(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))

	r, _ := s.GetRule("a")
	r.Name = "mutated"
	r.Actions[0].Command = "turnOff"

	again, _ := s.GetRule("a")
	assert.Equal(t, "rule a", again.Name)
	assert.Equal(t, "turnOn", again.Actions[0].Command)
}

func TestConcurrentExecutionAndMutation(t *testing.T) {
	s := newTestScheduler(t, newDevices(), 12, 0)
	require.NoError(t, s.AddRule(rule("a", true)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.ManualExecuteRule(context.Background(), "a")
		}()
		go func(enabled bool) {
			defer wg.Done()
			_, _ = s.ToggleRule("a", enabled)
		}(i%2 == 0)
	}
	wg.Wait()

	stored, ok := s.GetRule("a")
	require.True(t, ok)
	assert.Equal(t, 20, stored.ExecutionCount)
	assert.Len(t, s.GetExecutionHistory("a"), 20)
}
