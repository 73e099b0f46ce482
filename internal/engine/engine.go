package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"smartgateway/internal/automation"
	"smartgateway/internal/llm"
	"smartgateway/internal/models"
	"smartgateway/internal/proposal"
	"smartgateway/internal/scenes"
	"smartgateway/internal/scheduler"
	"smartgateway/internal/workflow"
)

var ErrMissingRule = errors.New("workflow has no parsed rule")

// Engine is the core control engine. It owns every automation component and
// the device service they share.
type Engine struct {
	devices   automation.DeviceService
	evaluator *automation.Evaluator
	executor  *automation.Executor
	scheduler *scheduler.Scheduler
	parser    *workflow.Parser
	proposals *proposal.Engine
	scenes    *scenes.Engine
	now       func() time.Time
	logger    *slog.Logger
}

type options struct {
	llm        llm.Client
	notifier   automation.Notifier
	dispatcher scheduler.Dispatcher
	sinks      []scheduler.ExecutionSink
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures an Engine
type Option func(*options)

// WithLLM enables model-backed workflow parsing
func WithLLM(c llm.Client) Option {
	return func(o *options) { o.llm = c }
}

// WithNotifier sets where notification actions are delivered
func WithNotifier(n automation.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithDispatcher routes due rules to a task queue
func WithDispatcher(d scheduler.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithSinks registers execution sinks
func WithSinks(sinks ...scheduler.ExecutionSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithLocation sets the zone all HH:MM values refer to
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

// WithClock overrides the wall clock of every component
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the base logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewEngine creates a new engine instance on top of devices
func NewEngine(devices automation.DeviceService, opts ...Option) *Engine {
	o := options{
		loc:    time.Local,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loc == nil {
		o.loc = time.Local
	}

	evaluator := automation.NewEvaluator(devices,
		automation.WithClock(o.now),
		automation.WithLocation(o.loc),
		automation.WithLogger(o.logger),
	)
	executor := automation.NewExecutor(devices, o.notifier, o.logger)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(o.logger),
		scheduler.WithSinks(o.sinks...),
	}
	if o.dispatcher != nil {
		schedOpts = append(schedOpts, scheduler.WithDispatcher(o.dispatcher))
	}

	return &Engine{
		devices:   devices,
		evaluator: evaluator,
		executor:  executor,
		scheduler: scheduler.NewScheduler(evaluator, executor, schedOpts...),
		parser:    workflow.NewParser(o.llm, o.logger),
		proposals: proposal.NewEngine(devices,
			proposal.WithClock(o.now),
			proposal.WithLocation(o.loc),
			proposal.WithLogger(o.logger),
		),
		scenes: scenes.NewEngine(executor,
			scenes.WithClock(o.now),
			scenes.WithLocation(o.loc),
			scenes.WithLogger(o.logger),
		),
		now:    o.now,
		logger: o.logger.With("component", "engine"),
	}
}

// Start starts the engine
func (e *Engine) Start() {
	e.scheduler.Start()
	e.logger.Info("engine started", "rules", len(e.scheduler.GetRules()))
}

// Stop stops the engine and waits for running rule ticks
func (e *Engine) Stop() {
	e.scheduler.Stop()
	e.logger.Info("engine stopped")
}

func (e *Engine) Devices() automation.DeviceService { return e.devices }
func (e *Engine) Evaluator() *automation.Evaluator  { return e.evaluator }
func (e *Engine) Scheduler() *scheduler.Scheduler   { return e.scheduler }
func (e *Engine) Proposals() *proposal.Engine       { return e.proposals }
func (e *Engine) Scenes() *scenes.Engine            { return e.scenes }

// ParseWorkflow turns an instruction into a draft rule
func (e *Engine) ParseWorkflow(ctx context.Context, text, userID string) models.AutomationWorkflow {
	return e.parser.ParseWorkflow(ctx, text, userID)
}

// SaveWorkflow registers the workflow's parsed rule under a fresh id
func (e *Engine) SaveWorkflow(wf models.AutomationWorkflow) (*models.AutomationRule, error) {
	if wf.ParsedRule == nil {
		return nil, ErrMissingRule
	}
	now := e.now()
	rule := wf.ParsedRule.Clone()
	rule.ID = "rule_" + uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := e.scheduler.AddRule(rule); err != nil {
		return nil, fmt.Errorf("register rule: %w", err)
	}
	e.logger.Info("workflow saved", "rule", rule.ID, "name", rule.Name, "enabled", rule.IsEnabled)
	return rule, nil
}

// UpdateRule replaces a stored rule. Identity and execution bookkeeping are
// carried over from the stored copy.
func (e *Engine) UpdateRule(id string, rule *models.AutomationRule) (*models.AutomationRule, error) {
	if rule == nil {
		return nil, ErrMissingRule
	}
	existing, ok := e.scheduler.GetRule(id)
	if !ok {
		return nil, scheduler.ErrRuleNotFound
	}

	updated := rule.Clone()
	updated.ID = id
	updated.CreatedAt = existing.CreatedAt
	updated.ExecutionCount = existing.ExecutionCount
	updated.LastExecuted = existing.LastExecuted
	updated.UpdatedAt = e.now()

	if err := e.scheduler.AddRule(updated); err != nil {
		return nil, fmt.Errorf("register rule: %w", err)
	}
	return updated, nil
}

// SendDeviceCommand sends a command and feeds it to scene learning
func (e *Engine) SendDeviceCommand(ctx context.Context, deviceID, command string, parameter any, userID string) (*models.CommandResult, error) {
	res, err := e.devices.SendCommand(ctx, deviceID, command, parameter)
	if err != nil {
		return nil, err
	}
	e.scenes.RecordOperation(models.OperationRecord{
		DeviceID:   deviceID,
		Command:    command,
		Parameters: operationParams(parameter),
		Timestamp:  e.now(),
		UserID:     userID,
	})
	return res, nil
}

// HandleDeviceEvent runs proposal analysis for an inbound device event
func (e *Engine) HandleDeviceEvent(_ context.Context, event models.AutomationEvent) models.AutomationProposal {
	p := e.proposals.AnalyzeEvent(event)
	if len(p.Suggestions) > 0 {
		e.logger.Info("automation suggested",
			"device", event.DeviceID,
			"event", event.EventType,
			"suggestions", len(p.Suggestions),
			"confidence", p.Confidence,
		)
	} else {
		e.logger.Debug("device event", "device", event.DeviceID, "event", event.EventType)
	}
	return p
}

func operationParams(parameter any) map[string]any {
	switch v := parameter.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		if v == "" || v == "default" {
			return nil
		}
	}
	return map[string]any{"parameter": parameter}
}
