package scenes

import (
	"slices"
	"strings"

	"smartgateway/internal/models"
	"smartgateway/internal/utils"
)

var deviceNames = map[string]string{
	"light_entrance": "玄関照明",
	"light_living":   "リビング照明",
	"aircon_living":  "リビングエアコン",
	"lock_entrance":  "玄関ロック",
}

// sequences use the short aircon label
var sequenceDeviceNames = map[string]string{
	"light_entrance": "玄関照明",
	"light_living":   "リビング照明",
	"aircon_living":  "エアコン",
}

var commandNames = map[string]string{
	"turnOn":  "点灯",
	"turnOff": "消灯",
	"lock":    "施錠",
	"unlock":  "解錠",
}

func lookup(names map[string]string, key string) string {
	if n, ok := names[key]; ok {
		return n
	}
	return key
}

func frequentName(p models.OperationPattern) string {
	return lookup(deviceNames, p.DeviceID) + lookup(commandNames, p.Command)
}

func sequentialName(p models.SequentialPattern) string {
	names := make([]string, 0, len(p.Operations))
	for _, op := range p.Operations {
		names = append(names, lookup(sequenceDeviceNames, op.DeviceID))
	}
	if slices.Contains(names, "玄関照明") && slices.Contains(names, "リビング照明") {
		return "帰宅シーン"
	}
	return strings.Join(names, "・") + "操作"
}

// timeBasedName names a day-part by its start hour; 06:00 counts as night.
func timeBasedName(r models.TimeRange) string {
	hour := utils.ClockHour(r.Start)
	switch {
	case hour >= 18 && hour <= 21:
		return "夕方シーン"
	case hour >= 22 || hour <= 6:
		return "夜間シーン"
	case hour <= 12:
		return "朝シーン"
	default:
		return "日中シーン"
	}
}
