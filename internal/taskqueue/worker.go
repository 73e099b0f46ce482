package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"smartgateway/internal/models"
)

// RuleRunner evaluates a rule and executes it when its conditions hold
type RuleRunner interface {
	RunScheduled(ctx context.Context, ruleID string) (*models.RuleExecution, error)
}

// ErrUnknownRule marks a rule that no longer exists; such tasks are not retried
var ErrUnknownRule = errors.New("rule no longer registered")

// Worker consumes evaluate_rule tasks
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	runner RuleRunner
	isGone func(error) bool
	logger *slog.Logger
}

// NewWorker creates a worker. isGone reports whether a runner error means
// the rule was removed.
func NewWorker(redisAddr string, concurrency int, runner RuleRunner, isGone func(error) bool, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	w := &Worker{
		runner: runner,
		isGone: isGone,
		logger: logger.With("component", "taskqueue"),
		mux:    asynq.NewServeMux(),
	}
	w.srv = asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Logger:      asynqLogger{w.logger},
		LogLevel:    asynq.WarnLevel,
	})
	w.mux.HandleFunc(TypeEvaluateRule, w.HandleEvaluateRule)
	return w
}

// Start begins processing in the background
func (w *Worker) Start() error {
	w.logger.Info("starting workers")
	return w.srv.Start(w.mux)
}

// Stop waits for in-flight tasks and shuts down
func (w *Worker) Stop() {
	w.logger.Info("stopping workers")
	w.srv.Shutdown()
}

// HandleEvaluateRule runs one evaluate_rule task
func (w *Worker) HandleEvaluateRule(ctx context.Context, t *asynq.Task) error {
	var p EvaluateRulePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.RuleID == "" {
		return fmt.Errorf("empty rule id: %w", asynq.SkipRetry)
	}

	exec, err := w.runner.RunScheduled(ctx, p.RuleID)
	if err != nil {
		if w.isGone != nil && w.isGone(err) {
			w.logger.Info("rule gone, dropping task", "ruleId", p.RuleID)
			return fmt.Errorf("%w: %s: %w", ErrUnknownRule, p.RuleID, asynq.SkipRetry)
		}
		return err
	}
	if exec == nil {
		w.logger.Debug("conditions not met", "ruleId", p.RuleID)
		return nil
	}
	w.logger.Info("rule executed", "ruleId", p.RuleID, "executionId", exec.ID, "status", exec.Status)
	return nil
}

// asynqLogger routes asynq's own logging through slog
type asynqLogger struct{ l *slog.Logger }

func (a asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...any) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
