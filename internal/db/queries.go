package db

import (
	"context"
	"encoding/json"
	"fmt"

	"smartgateway/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS rule_executions (
	id           TEXT PRIMARY KEY,
	rule_id      TEXT NOT NULL,
	rule_name    TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	executed_at  TIMESTAMPTZ NOT NULL,
	conditions   JSONB NOT NULL,
	results      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS rule_executions_rule_id_idx ON rule_executions (rule_id, executed_at DESC);
`

const insertExecution = `INSERT INTO rule_executions
	(id, rule_id, rule_name, user_id, status, executed_at, conditions, results)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

// EnsureSchema creates the execution journal table
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return err
}

// RecordExecution appends one execution to the journal
func (d *DB) RecordExecution(ctx context.Context, rule *models.AutomationRule, exec models.RuleExecution) error {
	args, err := executionArgs(rule, exec)
	if err != nil {
		return err
	}
	if _, err := d.pool.Exec(ctx, insertExecution, args...); err != nil {
		return fmt.Errorf("insert execution %s: %w", exec.ID, err)
	}
	return nil
}

// CountExecutions returns the number of journaled executions for a rule
func (d *DB) CountExecutions(ctx context.Context, ruleID string) (int, error) {
	var n int
	err := d.pool.QueryRow(ctx, "SELECT count(*) FROM rule_executions WHERE rule_id = $1", ruleID).Scan(&n)
	return n, err
}

func executionArgs(rule *models.AutomationRule, exec models.RuleExecution) ([]any, error) {
	conditions := exec.Conditions
	if conditions == nil {
		conditions = []models.RuleConditionResult{}
	}
	condJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	results := exec.Results
	if results == nil {
		results = []models.RuleActionResult{}
	}
	resJSON, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	var name, userID string
	if rule != nil {
		name, userID = rule.Name, rule.UserID
	}
	return []any{exec.ID, exec.RuleID, name, userID, string(exec.Status), exec.ExecutedAt, condJSON, resJSON}, nil
}
