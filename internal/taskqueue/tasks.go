package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TypeEvaluateRule evaluates one rule on a worker
const TypeEvaluateRule = "automation:evaluate_rule"

const (
	taskMaxRetry = 3
	taskTimeout  = 30 * time.Second
)

// EvaluateRulePayload is the body of an evaluate_rule task
type EvaluateRulePayload struct {
	RuleID string `json:"ruleId"`
}

// NewEvaluateRuleTask builds an evaluate_rule task. Ticks for the same rule
// are deduplicated within uniqueFor.
func NewEvaluateRuleTask(ruleID string, uniqueFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(EvaluateRulePayload{RuleID: ruleID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(taskMaxRetry), asynq.Timeout(taskTimeout)}
	if uniqueFor > 0 {
		opts = append(opts, asynq.Unique(uniqueFor))
	}
	return asynq.NewTask(TypeEvaluateRule, payload, opts...), nil
}

// Dispatcher enqueues scheduler ticks instead of running them in-process
type Dispatcher struct {
	client    *asynq.Client
	uniqueFor time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher on the given Redis address
func NewDispatcher(redisAddr string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		client:    asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		uniqueFor: 30 * time.Second,
		logger:    logger.With("component", "taskqueue"),
	}
}

// Dispatch enqueues an evaluation. A tick already waiting in the queue is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ruleID string) error {
	task, err := NewEvaluateRuleTask(ruleID, d.uniqueFor)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		d.logger.Debug("evaluation already queued", "ruleId", ruleID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeEvaluateRule, err)
	}
	d.logger.Debug("evaluation enqueued", "ruleId", ruleID, "taskId", info.ID)
	return nil
}

// Close releases the Redis connection
func (d *Dispatcher) Close() error {
	return d.client.Close()
}
