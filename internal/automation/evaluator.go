package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"smartgateway/internal/metrics"
	"smartgateway/internal/models"
	"smartgateway/internal/utils"
)

const (
	defaultTimeTolerance        = 2   // minutes
	defaultTemperatureTolerance = 0.5 // degrees
	defaultHumidityTolerance    = 2   // percent
	scheduleTolerance           = 2   // minutes
)

var errMissingDevice = errors.New("condition requires a deviceId")

// Evaluator evaluates rule conditions against the clock and live device status
type Evaluator struct {
	devices StatusReader
	now     func() time.Time
	loc     *time.Location
	logger  *slog.Logger
}

// EvaluatorOption configures an Evaluator
type EvaluatorOption func(*Evaluator)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithLocation sets the zone HH:MM values are interpreted in
func WithLocation(loc *time.Location) EvaluatorOption {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLogger sets the evaluator logger
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator reading device status from devices
func NewEvaluator(devices StatusReader, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		devices: devices,
		now:     time.Now,
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "automation")
	return e
}

// Now returns the evaluator's current time in its configured location
func (e *Evaluator) Now() time.Time {
	return e.now().In(e.loc)
}

// Location returns the configured zone
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// EvaluateConditions evaluates every condition without short-circuiting.
// AllMet is the AND of all matched flags.
func (e *Evaluator) EvaluateConditions(ctx context.Context, conditions []models.Condition) models.ConditionEvaluation {
	results := make([]models.RuleConditionResult, 0, len(conditions))
	allMet := true
	for i, cond := range conditions {
		res := e.EvaluateCondition(ctx, cond, i)
		if !res.Matched {
			allMet = false
		}
		results = append(results, res)
	}
	return models.ConditionEvaluation{AllMet: allMet, Results: results}
}

// EvaluateCondition evaluates a single condition. It never panics or returns an
// error; failures surface as matched=false with a nil actual value.
func (e *Evaluator) EvaluateCondition(ctx context.Context, cond models.Condition, index int) (res models.RuleConditionResult) {
	res = models.RuleConditionResult{
		ConditionIndex: index,
		ExpectedValue:  cond.Value,
		EvaluatedAt:    e.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("condition evaluation panicked", "index", index, "type", cond.Type, "panic", r)
			res.Matched = false
			res.ActualValue = nil
		}
		metrics.ConditionEvaluations.WithLabelValues(string(cond.Type), strconv.FormatBool(res.Matched)).Inc()
	}()

	var (
		matched bool
		actual  any
		err     error
	)
	switch cond.Type {
	case models.ConditionTime:
		matched, actual, err = e.evaluateTime(cond)
	case models.ConditionTemperature:
		matched, actual, err = e.evaluateReading(ctx, cond, "temperature", defaultTemperatureTolerance)
	case models.ConditionHumidity:
		matched, actual, err = e.evaluateReading(ctx, cond, "humidity", defaultHumidityTolerance)
	case models.ConditionDeviceState:
		matched, actual, err = e.evaluateDeviceState(ctx, cond)
	default:
		err = fmt.Errorf("unknown condition type %q", cond.Type)
	}

	if err != nil {
		e.logger.Warn("condition evaluation failed", "index", index, "type", cond.Type, "deviceId", cond.DeviceID, "error", err)
		return res
	}
	res.Matched = matched
	res.ActualValue = actual
	return res
}

// evaluateTime compares the local HH:MM against the condition. equals uses the
// absolute minute-of-day difference, so 23:59 and 00:01 are 1438 minutes apart.
func (e *Evaluator) evaluateTime(cond models.Condition) (bool, any, error) {
	now := e.Now()
	current := utils.FormatClock(now)

	switch cond.Operator {
	case models.OpEquals:
		target, ok := cond.Value.(string)
		if !ok {
			return false, nil, fmt.Errorf("time value must be HH:MM, got %T", cond.Value)
		}
		tolerance := cond.Tolerance
		if tolerance == 0 {
			tolerance = defaultTimeTolerance
		}
		diff := math.Abs(float64(utils.MinuteOfDay(now) - utils.ClockMinutes(target)))
		return diff <= tolerance, current, nil
	case models.OpGreaterThan:
		target, ok := cond.Value.(string)
		return ok && current > target, current, nil
	case models.OpLessThan:
		target, ok := cond.Value.(string)
		return ok && current < target, current, nil
	case models.OpBetween:
		lo, hi, ok := clockRange(cond.Value)
		return ok && current >= lo && current <= hi, current, nil
	}
	return false, current, nil
}

func (e *Evaluator) evaluateReading(ctx context.Context, cond models.Condition, field string, defaultTolerance float64) (bool, any, error) {
	if cond.DeviceID == "" {
		return false, nil, fmt.Errorf("%s: %w", field, errMissingDevice)
	}
	status, err := e.devices.GetDeviceStatus(ctx, cond.DeviceID)
	if err != nil {
		return false, nil, fmt.Errorf("read %s from %s: %w", field, cond.DeviceID, err)
	}
	reading, ok := status.Number(field)
	if !ok {
		return false, nil, fmt.Errorf("device %s reported no %s", cond.DeviceID, field)
	}

	tolerance := cond.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}

	var matched bool
	switch cond.Operator {
	case models.OpEquals:
		expected, ok := models.ToFloat(cond.Value)
		matched = ok && math.Abs(reading-expected) <= tolerance
	case models.OpGreaterThan:
		expected, ok := models.ToFloat(cond.Value)
		matched = ok && reading > expected
	case models.OpLessThan:
		expected, ok := models.ToFloat(cond.Value)
		matched = ok && reading < expected
	case models.OpBetween:
		lo, hi, ok := numericRange(cond.Value)
		matched = ok && reading >= lo && reading <= hi
	}
	return matched, reading, nil
}

func (e *Evaluator) evaluateDeviceState(ctx context.Context, cond models.Condition) (bool, any, error) {
	if cond.DeviceID == "" {
		return false, nil, fmt.Errorf("device_state: %w", errMissingDevice)
	}
	status, err := e.devices.GetDeviceStatus(ctx, cond.DeviceID)
	if err != nil {
		return false, nil, fmt.Errorf("read state of %s: %w", cond.DeviceID, err)
	}

	var matched bool
	switch cond.Operator {
	case models.OpEquals:
		matched, err = jsonEqual(status, cond.Value)
		if err != nil {
			return false, nil, err
		}
	case models.OpContains:
		needle, ok := cond.Value.(string)
		if ok && status != nil {
			raw, err := json.Marshal(status)
			if err != nil {
				return false, nil, fmt.Errorf("encode state of %s: %w", cond.DeviceID, err)
			}
			matched = strings.Contains(string(raw), needle)
		}
	}
	return matched, status, nil
}

// IsTimeInSchedule reports whether the current moment falls inside the
// schedule window. A nil schedule is always eligible.
func (e *Evaluator) IsTimeInSchedule(schedule *models.RuleSchedule) bool {
	if schedule == nil {
		return true
	}
	now := e.Now()
	if len(schedule.Days) > 0 && !slices.Contains(schedule.Days, int(now.Weekday())) {
		return false
	}
	if schedule.Time != "" {
		diff := utils.MinuteOfDay(now) - utils.ClockMinutes(schedule.Time)
		if diff < 0 {
			diff = -diff
		}
		return diff <= scheduleTolerance
	}
	return true
}

func clockRange(v any) (string, string, bool) {
	switch r := v.(type) {
	case []any:
		if len(r) != 2 {
			return "", "", false
		}
		lo, ok1 := r[0].(string)
		hi, ok2 := r[1].(string)
		return lo, hi, ok1 && ok2
	case []string:
		if len(r) != 2 {
			return "", "", false
		}
		return r[0], r[1], true
	}
	return "", "", false
}

func numericRange(v any) (float64, float64, bool) {
	switch r := v.(type) {
	case []any:
		if len(r) != 2 {
			return 0, 0, false
		}
		lo, ok1 := models.ToFloat(r[0])
		hi, ok2 := models.ToFloat(r[1])
		return lo, hi, ok1 && ok2
	case []float64:
		if len(r) != 2 {
			return 0, 0, false
		}
		return r[0], r[1], true
	}
	return 0, 0, false
}

// jsonEqual compares two values after normalizing both through JSON
func jsonEqual(a, b any) (bool, error) {
	na, err := normalizeJSON(a)
	if err != nil {
		return false, err
	}
	nb, err := normalizeJSON(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(na, nb), nil
}

func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}
