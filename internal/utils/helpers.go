package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatClock renders t as zero-padded 24h HH:MM
func FormatClock(t time.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseClock splits an "HH:MM" string. Missing or malformed parts read as zero.
func ParseClock(s string) (hour, minute int) {
	parts := strings.SplitN(s, ":", 2)
	hour = leadingInt(parts[0])
	if len(parts) > 1 {
		minute = leadingInt(parts[1])
	}
	return hour, minute
}

// ClockMinutes converts "HH:MM" to minutes since midnight
func ClockMinutes(s string) int {
	h, m := ParseClock(s)
	return h*60 + m
}

// MinuteOfDay returns minutes since local midnight for t
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// ClockHour returns the hour component of "HH:MM"
func ClockHour(s string) int {
	h, _ := ParseClock(s)
	return h
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	n, seen := 0, false
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
		seen = true
	}
	if !seen {
		return 0
	}
	return n
}
