package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"smartgateway/internal/automation"
	"smartgateway/internal/metrics"
	"smartgateway/internal/models"
)

// DefaultHistoryLimit caps the per-rule execution history
const DefaultHistoryLimit = 50

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrMissingID    = errors.New("rule id is required")
)

// Dispatcher hands a due rule to an external worker instead of running it inline
type Dispatcher interface {
	Dispatch(ctx context.Context, ruleID string) error
}

// ExecutionSink receives every finished execution
type ExecutionSink interface {
	RecordExecution(ctx context.Context, rule *models.AutomationRule, exec models.RuleExecution) error
}

// Scheduler owns registered rules, their timers and execution history
type Scheduler struct {
	cron       *cron.Cron
	evaluator  *automation.Evaluator
	executor   *automation.Executor
	dispatcher Dispatcher
	sinks      []ExecutionSink
	logger     *slog.Logger

	historyLimit int
	now          func() time.Time

	mu      sync.RWMutex
	rules   map[string]*models.AutomationRule
	jobMap  map[string]cron.EntryID // rule ID to armed timer
	history map[string][]models.RuleExecution
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithDispatcher routes timer ticks through d
func WithDispatcher(d Dispatcher) Option {
	return func(s *Scheduler) { s.dispatcher = d }
}

// WithSinks registers execution sinks
func WithSinks(sinks ...ExecutionSink) Option {
	return func(s *Scheduler) { s.sinks = append(s.sinks, sinks...) }
}

// WithHistoryLimit overrides DefaultHistoryLimit
func WithHistoryLimit(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithLogger sets the scheduler logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler. Timers are not running until Start.
func NewScheduler(evaluator *automation.Evaluator, executor *automation.Executor, opts ...Option) *Scheduler {
	s := &Scheduler{
		evaluator:    evaluator,
		executor:     executor,
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
		now:          evaluator.Now,
		rules:        make(map[string]*models.AutomationRule),
		jobMap:       make(map[string]cron.EntryID),
		history:      make(map[string][]models.RuleExecution),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
	s.cron = cron.New(
		cron.WithLocation(evaluator.Location()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return s
}

// Start starts the timer loop
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop stops the timer loop and waits for running ticks
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopped")
}

// AddRule registers a rule, replacing any rule with the same ID.
// The timer is armed only when the rule is enabled.
func (s *Scheduler) AddRule(rule *models.AutomationRule) error {
	if rule == nil || rule.ID == "" {
		return ErrMissingID
	}
	stored := rule.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked(stored.ID)
	s.rules[stored.ID] = stored
	if stored.IsEnabled {
		if err := s.armLocked(stored); err != nil {
			return err
		}
	}
	s.logger.Info("rule registered", "ruleId", stored.ID, "name", stored.Name, "enabled", stored.IsEnabled)
	return nil
}

// RemoveRule cancels the rule's timer and unregisters it. Its history is kept.
func (s *Scheduler) RemoveRule(ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked(ruleID)
	_, ok := s.rules[ruleID]
	delete(s.rules, ruleID)
	if ok {
		s.logger.Info("rule removed", "ruleId", ruleID)
	}
	return ok
}

// ToggleRule enables or disables a rule, arming or cancelling its timer
func (s *Scheduler) ToggleRule(ruleID string, enabled bool) (*models.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	rule.IsEnabled = enabled
	rule.UpdatedAt = s.now()

	s.disarmLocked(ruleID)
	if enabled {
		if err := s.armLocked(rule); err != nil {
			return nil, err
		}
	}
	s.logger.Info("rule toggled", "ruleId", ruleID, "enabled", enabled)
	return rule.Clone(), nil
}

// GetRule returns a copy of a registered rule
func (s *Scheduler) GetRule(ruleID string) (*models.AutomationRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return nil, false
	}
	return rule.Clone(), true
}

// GetRules returns copies of all registered rules, oldest first
func (s *Scheduler) GetRules() []*models.AutomationRule {
	s.mu.RLock()
	out := make([]*models.AutomationRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetExecutionHistory returns the rule's executions, newest first
func (s *Scheduler) GetExecutionHistory(ruleID string) []models.RuleExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RuleExecution{}, s.history[ruleID]...)
}

// ScheduledCount returns the number of armed timers
func (s *Scheduler) ScheduledCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobMap)
}

// StopAllSchedules cancels every pending timer. Rules stay registered and
// in-flight executions run to completion.
func (s *Scheduler) StopAllSchedules() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ruleID := range s.jobMap {
		s.disarmLocked(ruleID)
	}
	s.logger.Info("all schedules stopped")
}

// RunScheduled is the body of one timer tick: it skips rules outside their
// schedule window, evaluates conditions and executes the rule when all match.
func (s *Scheduler) RunScheduled(ctx context.Context, ruleID string) (*models.RuleExecution, error) {
	s.mu.RLock()
	rule, ok := s.rules[ruleID]
	var snapshot *models.AutomationRule
	if ok && rule.IsEnabled {
		snapshot = rule.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	if snapshot == nil {
		s.logger.Debug("rule disabled, skipping tick", "ruleId", ruleID)
		return nil, nil
	}
	if !s.evaluator.IsTimeInSchedule(snapshot.Schedule) {
		return nil, nil
	}

	evaluation := s.evaluator.EvaluateConditions(ctx, snapshot.Conditions)
	if !evaluation.AllMet {
		s.logger.Debug("conditions not met", "ruleId", ruleID)
		return nil, nil
	}

	// The rule may have been removed or disabled while conditions were evaluated.
	s.mu.RLock()
	current, ok := s.rules[ruleID]
	stillArmed := ok && current == rule && rule.IsEnabled
	s.mu.RUnlock()
	if !stillArmed {
		s.logger.Debug("rule changed during evaluation, skipping", "ruleId", ruleID)
		return nil, nil
	}

	exec := s.execute(ctx, rule, snapshot, evaluation.Results)
	return &exec, nil
}

// ExecuteRule runs a registered rule's actions with the given condition snapshot
func (s *Scheduler) ExecuteRule(ctx context.Context, ruleID string, conditions []models.RuleConditionResult) (*models.RuleExecution, error) {
	s.mu.RLock()
	rule, ok := s.rules[ruleID]
	var snapshot *models.AutomationRule
	if ok {
		snapshot = rule.Clone()
	}
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	exec := s.execute(ctx, rule, snapshot, conditions)
	return &exec, nil
}

// ManualExecuteRule runs a rule immediately, bypassing schedule and conditions
func (s *Scheduler) ManualExecuteRule(ctx context.Context, ruleID string) (*models.RuleExecution, error) {
	return s.ExecuteRule(ctx, ruleID, nil)
}

// execute runs the snapshot's actions without holding the lock, then records
// the outcome on the live rule object.
func (s *Scheduler) execute(ctx context.Context, live, snapshot *models.AutomationRule, conditions []models.RuleConditionResult) models.RuleExecution {
	ctx = context.WithoutCancel(ctx)
	executedAt := s.now()
	s.logger.Info("rule execution started", "ruleId", snapshot.ID, "name", snapshot.Name)

	results := s.executor.ExecuteActions(ctx, snapshot.Actions, executedAt)
	if conditions == nil {
		conditions = []models.RuleConditionResult{}
	}
	exec := models.RuleExecution{
		ID:         "exec_" + uuid.NewString(),
		RuleID:     snapshot.ID,
		ExecutedAt: executedAt,
		Status:     models.DetermineExecutionStatus(results),
		Results:    results,
		Conditions: conditions,
	}

	s.mu.Lock()
	live.LastExecuted = &executedAt
	live.ExecutionCount++
	live.UpdatedAt = executedAt
	recorded := live.Clone()

	h := append([]models.RuleExecution{exec}, s.history[snapshot.ID]...)
	if len(h) > s.historyLimit {
		h = h[:s.historyLimit]
	}
	s.history[snapshot.ID] = h
	s.mu.Unlock()

	metrics.RuleExecutions.WithLabelValues(string(exec.Status)).Inc()
	s.logger.Info("rule execution finished", "ruleId", snapshot.ID, "status", exec.Status)

	for _, sink := range s.sinks {
		if err := sink.RecordExecution(ctx, recorded, exec); err != nil {
			s.logger.Warn("execution sink failed", "ruleId", snapshot.ID, "error", err)
		}
	}
	return exec
}

func (s *Scheduler) tick(ruleID string) {
	ctx := context.Background()
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, ruleID); err != nil {
			s.logger.Error("failed to dispatch rule", "ruleId", ruleID, "error", err)
		}
		return
	}
	if _, err := s.RunScheduled(ctx, ruleID); err != nil && !errors.Is(err, ErrRuleNotFound) {
		s.logger.Error("scheduled run failed", "ruleId", ruleID, "error", err)
	}
}

func (s *Scheduler) armLocked(rule *models.AutomationRule) error {
	spec := automation.CronSpec(rule.Schedule)
	ruleID := rule.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.tick(ruleID) })
	if err != nil {
		s.logger.Error("failed to schedule rule", "ruleId", ruleID, "spec", spec, "error", err)
		return fmt.Errorf("schedule rule %s: %w", ruleID, err)
	}
	s.jobMap[ruleID] = entryID
	s.logger.Debug("rule armed", "ruleId", ruleID, "spec", spec, "entryId", entryID)
	return nil
}

func (s *Scheduler) disarmLocked(ruleID string) {
	if entryID, ok := s.jobMap[ruleID]; ok {
		s.cron.Remove(entryID)
		delete(s.jobMap, ruleID)
		s.logger.Debug("rule disarmed", "ruleId", ruleID, "entryId", entryID)
	}
}
