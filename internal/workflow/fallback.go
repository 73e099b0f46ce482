package workflow

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"smartgateway/internal/models"
)

// Fixed device directory used by the pattern parser and the LLM prompt
const (
	HubDeviceID    = "E1750C44657C"
	MeterDeviceID  = "F66854E650BE"
	AirconDeviceID = "02-202212241621-96856893"
)

const (
	hintNoConditions = "条件が明確でありません。時刻や温度などの条件を追加することをお勧めします。"
	hintNoActions    = "実行するアクションが見つかりません。具体的な操作を指定してください。"
	hintAirconTemp   = "エアコンの設定温度も指定すると、より効果的です。"
)

type timePattern struct {
	re   *regexp.Regexp
	hour int // -1 reads the hour from the first capture group
}

type tempPattern struct {
	re       *regexp.Regexp
	operator models.Operator
	value    float64 // used when the pattern has no capture group
}

type actionPattern struct {
	re       *regexp.Regexp
	deviceID string
	command  string
}

// First match wins for time and temperature; every action pattern may match.
var (
	timePatterns = []timePattern{
		{regexp.MustCompile(`朝.*?(\d{1,2})時`), -1},
		{regexp.MustCompile(`朝`), 7},
		{regexp.MustCompile(`昼`), 12},
		{regexp.MustCompile(`夕方`), 18},
		{regexp.MustCompile(`夜`), 20},
		{regexp.MustCompile(`(\d{1,2})時`), -1},
	}

	tempPatterns = []tempPattern{
		{regexp.MustCompile(`暑かっ?たら`), models.OpGreaterThan, 26},
		{regexp.MustCompile(`寒かっ?たら`), models.OpLessThan, 20},
		{regexp.MustCompile(`温度.*?(\d+)度.*?以上`), models.OpGreaterThan, 0},
		{regexp.MustCompile(`温度.*?(\d+)度.*?以下`), models.OpLessThan, 0},
	}

	actionPatterns = []actionPattern{
		{regexp.MustCompile(`エアコン.*?つけ`), AirconDeviceID, "turnOn"},
		{regexp.MustCompile(`エアコン.*?消`), AirconDeviceID, "turnOff"},
		// lights have no fixed device; the caller binds one before execution
		{regexp.MustCompile(`照明.*?つけ`), "", "turnOn"},
		{regexp.MustCompile(`照明.*?消`), "", "turnOff"},
		{regexp.MustCompile(`照明.*?暗く`), "", "turnOff"},
	}
)

// Fallback parses an instruction with fixed Japanese phrase patterns. It is a
// pure function of its inputs.
func Fallback(text, userID string, now time.Time) models.AutomationWorkflow {
	normalized := norm.NFKC.String(text)

	schedule := extractSchedule(normalized)
	conditions := extractConditions(normalized)
	actions := extractActions(normalized)

	rule := &models.AutomationRule{
		Name:        RuleName(normalized, now),
		Description: text + "（自動生成）",
		IsEnabled:   true,
		Conditions:  conditions,
		Actions:     actions,
		Schedule:    schedule,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      userID,
	}

	return models.AutomationWorkflow{
		NaturalLanguage:        text,
		ParsedRule:             rule,
		Confidence:             confidence(conditions, actions, schedule),
		SuggestedModifications: suggestions(normalized, conditions, actions),
	}
}

func extractSchedule(text string) *models.RuleSchedule {
	for _, p := range timePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		hour := p.hour
		if hour < 0 {
			hour = 6
			if len(m) > 1 && m[1] != "" {
				if n, err := strconv.Atoi(m[1]); err == nil {
					hour = n
				}
			}
		}
		return &models.RuleSchedule{
			Type: models.ScheduleDaily,
			Time: fmt.Sprintf("%02d:00", hour),
			Days: []int{0, 1, 2, 3, 4, 5, 6},
		}
	}
	return nil
}

func extractConditions(text string) []models.Condition {
	conditions := []models.Condition{}
	for _, p := range tempPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := p.value
		if len(m) > 1 {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				break
			}
			value = float64(n)
		}
		conditions = append(conditions, models.Condition{
			Type:      models.ConditionTemperature,
			Operator:  p.operator,
			Value:     value,
			DeviceID:  MeterDeviceID,
			Tolerance: 1,
		})
		break
	}
	return conditions
}

func extractActions(text string) []models.RuleAction {
	actions := []models.RuleAction{}
	for _, p := range actionPatterns {
		if p.re.MatchString(text) {
			actions = append(actions, models.RuleAction{
				Type:     models.ActionDeviceControl,
				DeviceID: p.deviceID,
				Command:  p.command,
			})
		}
	}
	return actions
}

// RuleName derives a display name from a few fixed phrase combinations
func RuleName(text string, now time.Time) string {
	switch {
	case strings.Contains(text, "エアコン") && strings.Contains(text, "暑"):
		return "暑い時のエアコン自動ON"
	case strings.Contains(text, "エアコン") && strings.Contains(text, "寒"):
		return "寒い時のエアコン自動ON"
	case strings.Contains(text, "照明") && strings.Contains(text, "暗"):
		return "暗い時の照明自動ON"
	}
	return fmt.Sprintf("自動化ルール（%s）", now.Format("2006/1/2"))
}

func confidence(conditions []models.Condition, actions []models.RuleAction, schedule *models.RuleSchedule) float64 {
	c := 0.3
	if len(conditions) > 0 {
		c += 0.3
	}
	if len(actions) > 0 {
		c += 0.3
	}
	if schedule != nil {
		c += 0.1
	}
	return math.Min(math.Round(c*100)/100, 1.0)
}

func suggestions(text string, conditions []models.Condition, actions []models.RuleAction) []string {
	var out []string
	if len(conditions) == 0 {
		out = append(out, hintNoConditions)
	}
	if len(actions) == 0 {
		out = append(out, hintNoActions)
	}
	if strings.Contains(text, "エアコン") && !strings.Contains(text, "温度") {
		out = append(out, hintAirconTemp)
	}
	return out
}
