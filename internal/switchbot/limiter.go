package switchbot

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrDailyQuota is returned once the daily request budget is spent
var ErrDailyQuota = errors.New("switchbot daily request quota exhausted")

// Limits are request budgets per window
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// DefaultLimits match the SwitchBot cloud API allowance
var DefaultLimits = Limits{PerMinute: 100, PerHour: 1000, PerDay: 10000}

// Limiter paces requests against minute and hour buckets and fails fast once
// the daily budget runs out
type Limiter struct {
	minute *rate.Limiter
	hour   *rate.Limiter

	mu         sync.Mutex
	perDay     int
	used       int
	dayStarted time.Time
	now        func() time.Time
}

// LimiterStats reports daily budget usage
type LimiterStats struct {
	UsedToday      int `json:"usedToday"`
	RemainingDaily int `json:"remainingDaily"`
}

// NewLimiter creates a limiter. Zero fields fall back to DefaultLimits.
func NewLimiter(l Limits) *Limiter {
	if l.PerMinute <= 0 {
		l.PerMinute = DefaultLimits.PerMinute
	}
	if l.PerHour <= 0 {
		l.PerHour = DefaultLimits.PerHour
	}
	if l.PerDay <= 0 {
		l.PerDay = DefaultLimits.PerDay
	}
	return &Limiter{
		minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.PerMinute)), l.PerMinute),
		hour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.PerHour)), l.PerHour),
		perDay: l.PerDay,
		now:    time.Now,
	}
}

// Wait blocks until a request may be sent
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.takeDaily(); err != nil {
		return err
	}
	if err := l.hour.Wait(ctx); err != nil {
		return err
	}
	return l.minute.Wait(ctx)
}

func (l *Limiter) takeDaily() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if l.dayStarted.IsZero() || now.Sub(l.dayStarted) >= 24*time.Hour {
		l.dayStarted = now
		l.used = 0
	}
	if l.used >= l.perDay {
		return ErrDailyQuota
	}
	l.used++
	return nil
}

// Stats returns usage for the current 24h window
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	used := l.used
	if !l.dayStarted.IsZero() && l.now().Sub(l.dayStarted) >= 24*time.Hour {
		used = 0
	}
	return LimiterStats{UsedToday: used, RemainingDaily: max(0, l.perDay-used)}
}
