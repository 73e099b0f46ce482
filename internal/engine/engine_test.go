package engine

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
	"smartgateway/internal/scheduler"
)

type fakeDevices struct {
	mu       sync.Mutex
	status   map[string]models.DeviceStatus
	commands []string
	fail     bool
}

func (f *fakeDevices) GetDeviceStatus(_ context.Context, id string) (models.DeviceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[id]
	if !ok {
		return nil, errors.New("unknown device")
	}
	return s, nil
}

func (f *fakeDevices) SendCommand(_ context.Context, id, cmd string, _ any) (*models.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("hub unreachable")
	}
	f.commands = append(f.commands, id+":"+cmd)
	return &models.CommandResult{StatusCode: 100, Message: "success"}, nil
}

func (f *fakeDevices) ExecuteScene(context.Context, string) (*models.CommandResult, error) {
	return &models.CommandResult{StatusCode: 100}, nil
}

func (f *fakeDevices) GetDevices(context.Context) (*models.DeviceList, error) {
	return &models.DeviceList{}, nil
}

func (f *fakeDevices) GetScenes(context.Context) ([]models.Scene, error) {
	return []models.Scene{}, nil
}

var fixedNow = time.Date(2024, 6, 5, 18, 30, 0, 0, time.UTC)

func newTestEngine(devices *fakeDevices) *Engine {
	return NewEngine(devices,
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
}

func draft() models.AutomationWorkflow {
	return models.AutomationWorkflow{
		NaturalLanguage: "暑くなったらエアコンをつけて",
		ParsedRule: &models.AutomationRule{
			ID:        "ignored",
			Name:      "暑さ対策",
			IsEnabled: true,
			Actions:   []models.RuleAction{{Type: models.ActionDeviceControl, DeviceID: "ac", Command: "turnOn"}},
			UserID:    "u1",
		},
		Confidence: 0.9,
	}
}

func TestSaveWorkflow(t *testing.T) {
	e := newTestEngine(&fakeDevices{})

	rule, err := e.SaveWorkflow(draft())
	require.NoError(t, err)
	assert.Regexp(t, `^rule_[0-9a-f-]{36}$`, rule.ID)
	assert.Equal(t, fixedNow, rule.CreatedAt)
	assert.Equal(t, fixedNow, rule.UpdatedAt)

	stored, ok := e.Scheduler().GetRule(rule.ID)
	require.True(t, ok)
	assert.Equal(t, "暑さ対策", stored.Name)
	assert.Equal(t, 1, e.Scheduler().ScheduledCount())

	_, err = e.SaveWorkflow(models.AutomationWorkflow{NaturalLanguage: "x"})
	assert.ErrorIs(t, err, ErrMissingRule)
}

func TestUpdateRuleKeepsBookkeeping(t *testing.T) {
	e := newTestEngine(&fakeDevices{})
	rule, err := e.SaveWorkflow(draft())
	require.NoError(t, err)

	_, err = e.Scheduler().ManualExecuteRule(context.Background(), rule.ID)
	require.NoError(t, err)

	edit := &models.AutomationRule{
		ID:             "other",
		Name:           "renamed",
		IsEnabled:      false,
		ExecutionCount: 99,
		Actions:        []models.RuleAction{{Type: models.ActionNotification, Message: "hi"}},
	}
	updated, err := e.UpdateRule(rule.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, updated.ID)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, rule.CreatedAt, updated.CreatedAt)
	assert.Equal(t, 1, updated.ExecutionCount)
	require.NotNil(t, updated.LastExecuted)
	assert.Equal(t, 0, e.Scheduler().ScheduledCount())

	_, err = e.UpdateRule("missing", edit)
	assert.ErrorIs(t, err, scheduler.ErrRuleNotFound)
	_, err = e.UpdateRule(rule.ID, nil)
	assert.ErrorIs(t, err, ErrMissingRule)
}

func TestSendDeviceCommandRecordsOperation(t *testing.T) {
	devices := &fakeDevices{}
	e := newTestEngine(devices)
	ctx := context.Background()

	_, err := e.SendDeviceCommand(ctx, "light-1", "setBrightness", "80", "u1")
	require.NoError(t, err)
	_, err = e.SendDeviceCommand(ctx, "light-1", "turnOn", nil, "u1")
	require.NoError(t, err)

	patterns := e.Scenes().OperationPatterns()
	require.Len(t, patterns, 2)
	assert.Equal(t, map[string]any{"parameter": "80"}, patterns[0].Parameters)
	assert.Nil(t, patterns[1].Parameters)
	assert.Equal(t, fixedNow, patterns[1].LastUsed)
	assert.Equal(t, []string{"light-1:setBrightness", "light-1:turnOn"}, devices.commands)

	devices.fail = true
	_, err = e.SendDeviceCommand(ctx, "light-1", "turnOff", nil, "u1")
	require.Error(t, err)
	assert.Len(t, e.Scenes().OperationPatterns(), 2)
}

func TestHandleDeviceEvent(t *testing.T) {
	e := newTestEngine(&fakeDevices{})

	ev := automation.ProcessDeviceUpdate("lock-1", "WoLock", map[string]any{"lockState": "UNLOCKED"}, nil)
	p := e.HandleDeviceEvent(context.Background(), ev)
	require.Len(t, p.Suggestions, 1)
	assert.Equal(t, "lighting", p.Suggestions[0].Type)
	assert.Equal(t, "18:30", p.Context.Time)

	ev = automation.ProcessDeviceUpdate("meter-1", "WoMeter", map[string]any{"temperature": 22.0}, nil)
	p = e.HandleDeviceEvent(context.Background(), ev)
	assert.Empty(t, p.Suggestions)
}

func TestOperationParams(t *testing.T) {
	assert.Nil(t, operationParams(nil))
	assert.Nil(t, operationParams(""))
	assert.Nil(t, operationParams("default"))
	assert.Equal(t, map[string]any{"a": 1}, operationParams(map[string]any{"a": 1}))
	assert.Equal(t, map[string]any{"parameter": 26.0}, operationParams(26.0))
}
