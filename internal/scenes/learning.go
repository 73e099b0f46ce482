package scenes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartgateway/internal/automation"
	"smartgateway/internal/models"
	"smartgateway/internal/utils"
)

const (
	// SequenceWindow bounds the gap between two operations of a sequence
	SequenceWindow = 5 * time.Minute

	// DefaultHistoryLimit caps the retained operation history
	DefaultHistoryLimit = 10000

	minSequenceFrequency = 2
	minTimeBucketSize    = 3
	minFrequentCount     = 5
	minSceneConfidence   = 0.5
	minRelevance         = 0.6
)

var (
	ErrConfidenceTooLow = errors.New("confidence too low")
	ErrSceneNotFound    = errors.New("learned scene not found")
)

// day-parts in reporting order
var dayParts = []models.TimeRange{
	{Start: "06:00", End: "12:00"},
	{Start: "12:00", End: "18:00"},
	{Start: "18:00", End: "24:00"},
	{Start: "00:00", End: "06:00"},
}

// Engine mines recorded operations for reusable scenes
type Engine struct {
	mu       sync.RWMutex
	history  []models.OperationRecord
	patterns []models.OperationPattern
	learned  []*models.LearnedScene

	executor     *automation.Executor
	historyLimit int
	now          func() time.Time
	loc          *time.Location
	logger       *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone used to bucket operations by hour
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithHistoryLimit caps the number of operations kept for detection
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a scene learning engine. executor runs learned scenes.
func NewEngine(executor *automation.Executor, opts ...Option) *Engine {
	e := &Engine{
		executor:     executor,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		loc:          time.Local,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "scenes")
	return e
}

// RecordOperation appends op to the history and folds it into the frequency table
func (e *Engine) RecordOperation(op models.OperationRecord) {
	if op.Timestamp.IsZero() {
		op.Timestamp = e.now()
	}
	key := paramsKey(op.Parameters)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, op)
	if over := len(e.history) - e.historyLimit; over > 0 {
		e.history = slices.Delete(e.history, 0, over)
	}

	for i := range e.patterns {
		p := &e.patterns[i]
		if p.DeviceID == op.DeviceID && p.Command == op.Command && paramsKey(p.Parameters) == key {
			p.Frequency++
			p.LastUsed = op.Timestamp
			return
		}
	}
	e.patterns = append(e.patterns, models.OperationPattern{
		DeviceID:   op.DeviceID,
		Command:    op.Command,
		Parameters: op.Parameters,
		Frequency:  1,
		LastUsed:   op.Timestamp,
	})
}

// OperationPatterns returns the frequency table in first-seen order
func (e *Engine) OperationPatterns() []models.OperationPattern {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.patterns)
}

// DetectPatterns finds operation pairs that repeat within SequenceWindow.
// Pairs are keyed by device and command only; parameters are ignored.
func (e *Engine) DetectPatterns() []models.SequentialPattern {
	history := e.snapshotHistory()
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	var found []*models.SequentialPattern
	for i := 0; i+1 < len(history); i++ {
		current, next := history[i], history[i+1]
		if next.Timestamp.Sub(current.Timestamp) > SequenceWindow {
			continue
		}

		var existing *models.SequentialPattern
		for _, p := range found {
			a, b := p.Operations[0], p.Operations[1]
			if a.DeviceID == current.DeviceID && a.Command == current.Command &&
				b.DeviceID == next.DeviceID && b.Command == next.Command {
				existing = p
				break
			}
		}
		if existing != nil {
			existing.Frequency++
			existing.Confidence = math.Min(0.95, existing.Confidence+0.1)
			continue
		}
		found = append(found, &models.SequentialPattern{
			Operations: []models.OperationRecord{current, next},
			Frequency:  1,
			TimeWindow: int(SequenceWindow / time.Minute),
			Confidence: 0.7,
		})
	}

	out := []models.SequentialPattern{}
	for _, p := range found {
		if p.Frequency >= minSequenceFrequency {
			out = append(out, *p)
		}
	}
	return out
}

// DetectTimeBasedPatterns groups the history into four day-parts and reports
// each part holding at least three operations
func (e *Engine) DetectTimeBasedPatterns() []models.TimeBasedPattern {
	history := e.snapshotHistory()

	buckets := make(map[string][]models.OperationRecord, len(dayParts))
	for _, op := range history {
		r := dayPart(op.Timestamp.In(e.loc).Hour())
		buckets[r.Start] = append(buckets[r.Start], op)
	}

	out := []models.TimeBasedPattern{}
	for _, r := range dayParts {
		ops := buckets[r.Start]
		if len(ops) < minTimeBucketSize {
			continue
		}
		out = append(out, models.TimeBasedPattern{
			TimeRange:  r,
			Operations: ops,
			Frequency:  len(ops),
			Confidence: math.Min(0.9, float64(len(ops))*0.1),
		})
	}
	return out
}

// GenerateSceneCandidates merges frequent, sequential and time-based
// candidates, highest confidence first
func (e *Engine) GenerateSceneCandidates() []models.SceneCandidate {
	candidates := []models.SceneCandidate{}

	for _, p := range e.OperationPatterns() {
		if p.Frequency < minFrequentCount {
			continue
		}
		candidates = append(candidates, models.SceneCandidate{
			Name:        frequentName(p),
			Operations:  []models.AutomationAction{{DeviceID: p.DeviceID, Command: p.Command, Parameters: p.Parameters}},
			Confidence:  math.Min(0.95, float64(p.Frequency)*0.1),
			Frequency:   p.Frequency,
			PatternType: models.PatternFrequent,
			Reasoning:   fmt.Sprintf("%d回実行された頻出操作", p.Frequency),
		})
	}

	for _, p := range e.DetectPatterns() {
		candidates = append(candidates, models.SceneCandidate{
			Name:        sequentialName(p),
			Operations:  toActions(p.Operations),
			Confidence:  p.Confidence,
			Frequency:   p.Frequency,
			PatternType: models.PatternSequential,
			Reasoning:   fmt.Sprintf("%d回実行された順次操作パターン", p.Frequency),
		})
	}

	for _, p := range e.DetectTimeBasedPatterns() {
		candidates = append(candidates, models.SceneCandidate{
			Name:        timeBasedName(p.TimeRange),
			Operations:  toActions(p.Operations),
			Confidence:  p.Confidence,
			Frequency:   p.Frequency,
			PatternType: models.PatternTimeBased,
			Reasoning:   fmt.Sprintf("%s-%sの時間帯に%d回実行", p.TimeRange.Start, p.TimeRange.End, p.Frequency),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates
}

// CreateSceneFromCandidate stores the candidate as a learned scene.
// Candidates below 0.5 confidence are rejected with ErrConfidenceTooLow.
func (e *Engine) CreateSceneFromCandidate(c models.SceneCandidate) (*models.LearnedScene, error) {
	if c.Confidence < minSceneConfidence {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrConfidenceTooLow, c.Confidence, minSceneConfidence)
	}
	scene := &models.LearnedScene{
		ID:              "scene_" + uuid.NewString(),
		Name:            c.Name,
		Operations:      slices.Clone(c.Operations),
		Confidence:      c.Confidence,
		IsAutoGenerated: true,
		CreatedAt:       e.now(),
	}

	e.mu.Lock()
	e.learned = append(e.learned, scene)
	e.mu.Unlock()

	e.logger.Info("scene learned", "id", scene.ID, "name", scene.Name, "confidence", scene.Confidence)
	out := *scene
	return &out, nil
}

// LearnedScenes returns copies of every learned scene in creation order
func (e *Engine) LearnedScenes() []models.LearnedScene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.LearnedScene, 0, len(e.learned))
	for _, s := range e.learned {
		out = append(out, *s)
	}
	return out
}

// GetSceneSuggestions ranks learned scenes against ctx and may add one
// recommended scene, highest confidence first
func (e *Engine) GetSceneSuggestions(sctx models.SceneLearningContext) []models.SceneSuggestion {
	suggestions := []models.SceneSuggestion{}

	for _, scene := range e.LearnedScenes() {
		relevance := e.relevance(scene, sctx)
		if relevance <= minRelevance {
			continue
		}
		suggestions = append(suggestions, models.SceneSuggestion{
			Type:        models.SuggestionLearnedScene,
			SceneID:     scene.ID,
			Name:        scene.Name,
			Description: scene.Name + "の実行を提案します",
			Confidence:  scene.Confidence * relevance,
			Actions:     scene.Operations,
			Reasoning:   fmt.Sprintf("過去の使用パターンに基づく提案（信頼度: %.1f%%）", scene.Confidence*100),
		})
	}

	if rec, ok := recommendedScene(sctx); ok {
		suggestions = append(suggestions, rec)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	return suggestions
}

// ExecuteLearnedScene sends the scene's operations in order and bumps its usage count
func (e *Engine) ExecuteLearnedScene(ctx context.Context, id string) ([]models.RuleActionResult, error) {
	e.mu.Lock()
	var scene *models.LearnedScene
	for _, s := range e.learned {
		if s.ID == id {
			scene = s
			break
		}
	}
	if scene == nil {
		e.mu.Unlock()
		return nil, ErrSceneNotFound
	}
	scene.UsageCount++
	ops := slices.Clone(scene.Operations)
	e.mu.Unlock()

	actions := make([]models.RuleAction, 0, len(ops))
	for _, op := range ops {
		actions = append(actions, models.RuleAction{
			Type:       models.ActionDeviceControl,
			DeviceID:   op.DeviceID,
			Command:    op.Command,
			Parameters: op.Parameters,
		})
	}
	return e.executor.ExecuteActions(ctx, actions, e.now()), nil
}

func (e *Engine) relevance(scene models.LearnedScene, sctx models.SceneLearningContext) float64 {
	var r float64

	hourDiff := utils.ClockHour(sctx.Time) - scene.CreatedAt.In(e.loc).Hour()
	if hourDiff < 0 {
		hourDiff = -hourDiff
	}
	switch {
	case hourDiff <= 2:
		r += 0.3
	case hourDiff <= 4:
		r += 0.1
	}

	if len(scene.Operations) > 0 {
		overlap := 0
		for _, op := range scene.Operations {
			if slices.Contains(sctx.AvailableDevices, op.DeviceID) {
				overlap++
			}
		}
		r += float64(overlap) / float64(len(scene.Operations)) * 0.4
	}

	if slices.Contains(sctx.RecentEvents, "door_unlock") && strings.Contains(scene.Name, "帰宅") {
		r += 0.3
	}
	return math.Min(1, r)
}

func recommendedScene(sctx models.SceneLearningContext) (models.SceneSuggestion, bool) {
	h := utils.ClockHour(sctx.Time)
	if h < 18 || h > 21 || !slices.Contains(sctx.RecentEvents, "door_unlock") {
		return models.SceneSuggestion{}, false
	}
	return models.SceneSuggestion{
		Type:        models.SuggestionRecommendedScene,
		Name:        "推奨帰宅シーン",
		Description: "帰宅時の推奨操作",
		Confidence:  0.8,
		Actions: []models.AutomationAction{
			{DeviceID: "light_entrance", Command: "turnOn", Parameters: map[string]any{}},
			{DeviceID: "light_living", Command: "turnOn", Parameters: map[string]any{}},
		},
		Reasoning: "夕方の帰宅時に推奨される操作パターン",
	}, true
}

func (e *Engine) snapshotHistory() []models.OperationRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.history)
}

func dayPart(hour int) models.TimeRange {
	switch {
	case hour >= 6 && hour < 12:
		return dayParts[0]
	case hour >= 12 && hour < 18:
		return dayParts[1]
	case hour >= 18:
		return dayParts[2]
	default:
		return dayParts[3]
	}
}

func toActions(ops []models.OperationRecord) []models.AutomationAction {
	out := make([]models.AutomationAction, 0, len(ops))
	for _, op := range ops {
		out = append(out, models.AutomationAction{
			DeviceID:   op.DeviceID,
			Command:    op.Command,
			Parameters: maps.Clone(op.Parameters),
		})
	}
	return out
}

// paramsKey serializes parameters for equality; map keys marshal sorted
func paramsKey(p map[string]any) string {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(b)
}
