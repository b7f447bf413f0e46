package resilience

import (
	"sync"
	"time"

	"fx-trader/internal/config"
)

// Session is a named UTC trading window in minutes since midnight.
// A window whose end precedes its start wraps past midnight.
type Session struct {
	Name  string
	Start int
	End   int
}

func (s Session) contains(minute int) bool {
	if s.Start <= s.End {
		return minute >= s.Start && minute < s.End
	}
	return minute >= s.Start || minute < s.End
}

// SessionClock answers whether the FX market is open and whether a
// configured killzone is active. The retail FX week runs from Sunday
// 22:00 UTC to Friday 22:00 UTC.
type SessionClock struct {
	mu       sync.RWMutex
	sessions []Session
	holidays map[string]bool
}

// NewSessionClock builds a clock from configured windows. Windows that
// fail to parse are skipped; config validation rejects them earlier.
func NewSessionClock(windows []config.SessionWindow) *SessionClock {
	c := &SessionClock{holidays: make(map[string]bool)}
	c.SetWindows(windows)
	return c
}

// SetWindows replaces the session windows, used on config reload.
func (c *SessionClock) SetWindows(windows []config.SessionWindow) {
	sessions := make([]Session, 0, len(windows))
	for _, w := range windows {
		start, end, err := config.ParseSessionWindow(w)
		if err != nil {
			continue
		}
		sessions = append(sessions, Session{Name: w.Name, Start: start, End: end})
	}
	c.mu.Lock()
	c.sessions = sessions
	c.mu.Unlock()
}

// AddHoliday marks a UTC date as closed.
func (c *SessionClock) AddHoliday(date time.Time) {
	c.mu.Lock()
	c.holidays[date.UTC().Format("2006-01-02")] = true
	c.mu.Unlock()
}

// IsMarketOpen reports whether the FX market trades at t.
func (c *SessionClock) IsMarketOpen(t time.Time) bool {
	t = t.UTC()

	c.mu.RLock()
	holiday := c.holidays[t.Format("2006-01-02")]
	c.mu.RUnlock()
	if holiday {
		return false
	}

	switch t.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return t.Hour() >= 22
	case time.Friday:
		return t.Hour() < 22
	}
	return true
}

// ActiveSession returns the first configured window containing t.
// With no windows configured every open-market minute qualifies.
func (c *SessionClock) ActiveSession(t time.Time) (string, bool) {
	if !c.IsMarketOpen(t) {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.sessions) == 0 {
		return "any", true
	}
	t = t.UTC()
	minute := t.Hour()*60 + t.Minute()
	for _, s := range c.sessions {
		if s.contains(minute) {
			return s.Name, true
		}
	}
	return "", false
}

// Sessions returns a copy of the configured windows.
func (c *SessionClock) Sessions() []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}
