package automation

import (
	"fmt"
	"time"

	"smartgateway/internal/models"
)

const defaultPollInterval = 5 * time.Minute

// PollInterval returns how often a rule with this schedule is re-evaluated.
// Daily and weekly rules are polled every minute so the ±2 minute window is hit.
func PollInterval(schedule *models.RuleSchedule) time.Duration {
	if schedule == nil {
		return defaultPollInterval
	}
	switch schedule.Type {
	case models.ScheduleInterval:
		if schedule.Interval > 0 {
			return time.Duration(schedule.Interval) * time.Minute
		}
		return defaultPollInterval
	case models.ScheduleDaily, models.ScheduleWeekly:
		return time.Minute
	}
	return defaultPollInterval
}

// CronSpec converts a schedule to a robfig/cron spec
func CronSpec(schedule *models.RuleSchedule) string {
	return fmt.Sprintf("@every %s", PollInterval(schedule))
}
