package automation

import (
	"strings"

	"smartgateway/internal/models"
)

const (
	EventDeviceStateChange = "deviceStateChange"
	EventSensorData        = "sensorData"
)

// ProcessDeviceUpdate turns a raw device report (webhook context or MQTT
// payload) into an automation event. Meter-like reports carrying temperature
// or humidity become sensorData events; lock reports carry the lowercased
// lock state; anything else carries its power state when present.
func ProcessDeviceUpdate(deviceID, deviceType string, state map[string]any, ctx *models.EventContext) models.AutomationEvent {
	event := models.AutomationEvent{
		EventType:  EventDeviceStateChange,
		DeviceID:   deviceID,
		DeviceType: NormalizeDeviceType(deviceType),
		State:      state,
		Context:    ctx,
	}

	_, hasTemp := state["temperature"]
	_, hasHumidity := state["humidity"]
	switch {
	case hasTemp || hasHumidity:
		event.EventType = EventSensorData
	case state["lockState"] != nil:
		if s, ok := state["lockState"].(string); ok {
			event.State = strings.ToLower(s)
		}
	case state["powerState"] != nil:
		if s, ok := state["powerState"].(string); ok {
			event.State = strings.ToLower(s)
		}
	}
	return event
}

// NormalizeDeviceType maps SwitchBot webhook type names ("WoLock", "WoMeter")
// to the catalogue names used by the proposal rules.
func NormalizeDeviceType(deviceType string) string {
	t := strings.TrimPrefix(deviceType, "Wo")
	switch {
	case strings.Contains(t, "Lock"):
		return "Lock"
	case strings.Contains(t, "Meter"), strings.Contains(t, "IOSensor"):
		return "Meter"
	}
	return deviceType
}
