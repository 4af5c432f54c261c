package trial

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrDailyLimitReached  = errors.New("daily trial limit reached")
	ErrTrialDaysExhausted = errors.New("trial days exhausted")
)

const dayKeyLayout = "2006-01-02"

// record tracks one user's trial consumption. Day keys are calendar days
// in the ledger's timezone, mapped to the last time the day was touched.
type record struct {
	days             map[string]time.Time
	secondsUsedToday int
	lastDayKey       string
	activeStart      *time.Time
}

// Ledger bounds free-tier usage: a per-day seconds cap and a maximum
// number of distinct trial days inside a trailing window. All state is
// in memory; a restart grants a fresh trial, which is an accepted
// trade-off for the free tier.
type Ledger struct {
	mu         sync.Mutex
	loc        *time.Location
	capSeconds int
	maxDays    int
	window     time.Duration
	users      map[string]*record
}

// Options configures a Ledger. Zero fields fall back to defaults.
type Options struct {
	Location     *time.Location
	DailyMinutes int
	MaxDays      int
	WindowDays   int
}

func NewLedger(opts Options) *Ledger {
	loc := opts.Location
	if loc == nil {
		loc = time.FixedZone("IST", 5*3600+1800)
	}
	dailyMinutes := opts.DailyMinutes
	if dailyMinutes <= 0 {
		dailyMinutes = 15
	}
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = 5
	}
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Ledger{
		loc:        loc,
		capSeconds: dailyMinutes * 60,
		maxDays:    maxDays,
		window:     time.Duration(windowDays) * 24 * time.Hour,
		users:      make(map[string]*record),
	}
}

func (l *Ledger) dayKey(now time.Time) string {
	return now.In(l.loc).Format(dayKeyLayout)
}

// rollDay resets the daily counter when the calendar day changed.
func (l *Ledger) rollDay(r *record, key string) {
	if r.lastDayKey != key {
		r.secondsUsedToday = 0
		r.lastDayKey = key
	}
}

// pruneLocked drops day entries older than the trailing window.
func (l *Ledger) pruneLocked(r *record, now time.Time) {
	cutoff := now.Add(-l.window)
	for key, seen := range r.days {
		if seen.Before(cutoff) {
			delete(r.days, key)
		}
	}
}

// BeginSession records the start of a trial session and returns the
// seconds still available today. Starting a new session while another
// is active discards the unfinished interval.
func (l *Ledger) BeginSession(userID string, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.users[userID]
	if r == nil {
		r = &record{days: make(map[string]time.Time)}
		l.users[userID] = r
	}
	l.pruneLocked(r, now)

	key := l.dayKey(now)
	l.rollDay(r, key)

	// Last touch wins, so a day only ages out of the window once it has
	// seen no activity for the whole window.
	r.days[key] = now
	if len(r.days) > l.maxDays {
		return 0, ErrTrialDaysExhausted
	}

	remaining := l.capSeconds - r.secondsUsedToday
	if remaining <= 0 {
		return 0, ErrDailyLimitReached
	}

	start := now
	r.activeStart = &start
	return remaining, nil
}

// EndSession closes the active interval and charges the elapsed seconds
// against today's allowance. Calling it without an active interval is a
// no-op, so double-ending is safe. Returns the seconds charged.
func (l *Ledger) EndSession(userID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.users[userID]
	if r == nil || r.activeStart == nil {
		return 0
	}

	elapsed := int(now.Sub(*r.activeStart).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	r.activeStart = nil

	l.rollDay(r, l.dayKey(now))
	r.secondsUsedToday += elapsed
	return elapsed
}

// RemainingSeconds reports today's unused allowance without mutating
// session state.
func (l *Ledger) RemainingSeconds(userID string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.users[userID]
	if r == nil {
		return l.capSeconds
	}
	if r.lastDayKey != l.dayKey(now) {
		return l.capSeconds
	}
	remaining := l.capSeconds - r.secondsUsedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsageSummary is a point-in-time view of a user's trial consumption.
type UsageSummary struct {
	MinutesUsed    int     `json:"minutesUsed"`
	TrialDaysUsed  int     `json:"trialDaysUsed"`
	FirstTrialDate *string `json:"firstTrialDate"`
}

// Usage summarizes a user's trial consumption inside the window.
func (l *Ledger) Usage(userID string, now time.Time) UsageSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.users[userID]
	if r == nil {
		return UsageSummary{}
	}
	l.pruneLocked(r, now)

	summary := UsageSummary{TrialDaysUsed: len(r.days)}
	if r.lastDayKey == l.dayKey(now) {
		summary.MinutesUsed = r.secondsUsedToday / 60
	}

	var firstKey string
	for key := range r.days {
		if firstKey == "" || key < firstKey {
			firstKey = key
		}
	}
	if firstKey != "" {
		summary.FirstTrialDate = &firstKey
	}
	return summary
}

// Prune evicts expired day entries for every user and drops empty
// records. Intended to run on a schedule.
func (l *Ledger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for userID, r := range l.users {
		before := len(r.days)
		l.pruneLocked(r, now)
		evicted += before - len(r.days)
		if len(r.days) == 0 && r.activeStart == nil {
			delete(l.users, userID)
		}
	}
	return evicted
}
