package utils

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in         string
		hour, mins int
	}{
		{"07:05", 7, 5},
		{"23:59", 23, 59},
		{"8", 8, 0},
		{"", 0, 0},
		{"ab:cd", 0, 0},
		{"24:00", 24, 0},
	}
	for _, tt := range tests {
		h, m := ParseClock(tt.in)
		assert.Equal(t, tt.hour, h, tt.in)
		assert.Equal(t, tt.mins, m, tt.in)
	}
	assert.Equal(t, 18*60+30, ClockMinutes("18:30"))
	assert.Equal(t, 17, ClockHour("17:45"))
}

func TestFormatClockAndMinuteOfDay(t *testing.T) {
	ts := time.Date(2024, 5, 1, 6, 3, 59, 0, time.UTC)
	assert.Equal(t, "06:03", FormatClock(ts))
	assert.Equal(t, 363, MinuteOfDay(ts))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello", "component", "test")
	assert.Contains(t, buf.String(), `"component":"test"`)

	buf.Reset()
	NewLogger(&buf, "warn", "text").Info("dropped")
	assert.Empty(t, buf.String())
}
