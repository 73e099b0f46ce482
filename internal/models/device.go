package models

import (
	"strconv"
	"strings"
)

// Device represents a physical SwitchBot device
type Device struct {
	DeviceID           string `json:"deviceId"`
	DeviceName         string `json:"deviceName"`
	DeviceType         string `json:"deviceType"`
	EnableCloudService bool   `json:"enableCloudService"`
	HubDeviceID        string `json:"hubDeviceId"`
}

// InfraredRemote represents a virtual infrared remote registered on a hub
type InfraredRemote struct {
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName"`
	RemoteType  string `json:"remoteType"`
	HubDeviceID string `json:"hubDeviceId"`
}

// DeviceList is the body of the device listing endpoint
type DeviceList struct {
	DeviceList         []Device         `json:"deviceList"`
	InfraredRemoteList []InfraredRemote `json:"infraredRemoteList"`
}

// Scene represents a manual scene defined in the SwitchBot app
type Scene struct {
	SceneID   string `json:"sceneId"`
	SceneName string `json:"sceneName"`
}

// CommandResult is the envelope returned by write endpoints
type CommandResult struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Body       any    `json:"body,omitempty"`
}

// DeviceStatus is the device-specific status payload
type DeviceStatus map[string]any

// Online reports whether the device is reachable. A missing flag counts as online.
func (s DeviceStatus) Online() bool {
	if v, ok := s["online"].(bool); ok {
		return v
	}
	if v, ok := s["onlineStatus"].(string); ok {
		return !strings.EqualFold(v, "offline")
	}
	return true
}

// Power returns the power field, e.g. "on" or "off"
func (s DeviceStatus) Power() string {
	v, _ := s["power"].(string)
	return v
}

// Number returns a numeric field. Numeric strings are accepted.
func (s DeviceStatus) Number(key string) (float64, bool) {
	return ToFloat(s[key])
}

// ToFloat converts JSON numbers and numeric strings to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
