package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartgateway/internal/models"
)

// Notifier delivers notification actions
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the message
func (n LogNotifier) Notify(_ context.Context, message string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("notification", "message", message)
	return nil
}

var (
	ErrDeviceActionIncomplete = errors.New("device_control action requires deviceId and command")
	ErrSceneActionIncomplete  = errors.New("scene_execution action requires sceneId")
	ErrNotificationIncomplete = errors.New("notification action requires message")
)

// Executor runs rule actions in order
type Executor struct {
	devices  DeviceController
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewExecutor creates an executor. A nil notifier logs notifications.
func NewExecutor(devices DeviceController, notifier Notifier, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "automation")
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Executor{
		devices:  devices,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
}

// ExecuteActions runs actions sequentially. A failing action never stops the
// ones after it; every action yields exactly one result.
func (x *Executor) ExecuteActions(ctx context.Context, actions []models.RuleAction, executedAt time.Time) []models.RuleActionResult {
	results := make([]models.RuleActionResult, 0, len(actions))
	for i, action := range actions {
		results = append(results, x.ExecuteAction(ctx, action, i, executedAt))
	}
	return results
}

// ExecuteAction runs one action after its optional delay
func (x *Executor) ExecuteAction(ctx context.Context, action models.RuleAction, index int, executedAt time.Time) (res models.RuleActionResult) {
	res = models.RuleActionResult{
		ActionIndex: index,
		Status:      models.ActionFailure,
		ExecutedAt:  executedAt,
	}

	defer func() {
		if r := recover(); r != nil {
			res.Status = models.ActionFailure
			res.Result = nil
			res.Error = fmt.Sprintf("action panicked: %v", r)
			x.logger.Error("action panicked", "index", index, "type", action.Type, "panic", r)
		}
	}()

	if action.Delay > 0 {
		if err := sleep(ctx, time.Duration(action.Delay*float64(time.Second))); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	var (
		out any
		err error
	)
	switch action.Type {
	case models.ActionDeviceControl:
		out, err = x.deviceControl(ctx, action)
	case models.ActionSceneExecution:
		out, err = x.sceneExecution(ctx, action)
	case models.ActionNotification:
		out, err = x.notify(ctx, action)
	default:
		res.Status = models.ActionSkipped
		res.Error = fmt.Sprintf("unsupported action type: %s", action.Type)
		x.logger.Warn("action skipped", "index", index, "type", action.Type)
		return res
	}

	if err != nil {
		res.Error = err.Error()
		x.logger.Warn("action failed", "index", index, "type", action.Type, "error", err)
		return res
	}
	res.Status = models.ActionSuccess
	res.Result = out
	return res
}

func (x *Executor) deviceControl(ctx context.Context, action models.RuleAction) (any, error) {
	if action.DeviceID == "" || action.Command == "" {
		return nil, ErrDeviceActionIncomplete
	}
	params := action.Parameters
	if params == nil {
		params = map[string]any{}
	}
	return x.devices.SendCommand(ctx, action.DeviceID, action.Command, params)
}

func (x *Executor) sceneExecution(ctx context.Context, action models.RuleAction) (any, error) {
	if action.SceneID == "" {
		return nil, ErrSceneActionIncomplete
	}
	return x.devices.ExecuteScene(ctx, action.SceneID)
}

func (x *Executor) notify(ctx context.Context, action models.RuleAction) (any, error) {
	if action.Message == "" {
		return nil, ErrNotificationIncomplete
	}
	if err := x.notifier.Notify(ctx, action.Message); err != nil {
		return nil, fmt.Errorf("send notification: %w", err)
	}
	return map[string]any{"message": action.Message, "sentAt": x.now()}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
