package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// ErrExhausted is returned by callers that treat an Authorize denial as a
// terminal condition. The ledger itself never returns it; it only reports
// the boolean.
var ErrExhausted = errors.New("budget exhausted")

// dayKey formats a time as the usage-table day key.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Ledger holds the process-wide daily counters. Ticket runs on different
// workspaces share one Ledger; every mutation goes through the ledger mutex
// so daily enforcement stays consistent across concurrent runs.
//
// The ledger never aborts anything itself: Authorize reports a boolean and
// the engine decides what to do with a denial.
type Ledger struct {
	mu      sync.Mutex
	pricing ModelPricing
	store   *UsageStore // nil means in-memory only
	now     func() time.Time

	dailyTokenLimit int64
	dailyCostLimit  float64

	day   string
	daily Usage

	// Outstanding provisional reservations across all tasks.
	reservedTokens int64
	reservedCost   float64

	warnings []string
}

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	// Model selects the price table entry.
	Model string
	// Store persists daily usage; nil keeps counters in memory only.
	Store *UsageStore
	// DailyTokenLimit is the process-wide daily token ceiling.
	DailyTokenLimit int64
	// DailyCostLimit is the process-wide daily cost ceiling in dollars.
	DailyCostLimit float64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewLedger creates a ledger and loads today's persisted usage if a store
// is configured.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Ledger{
		pricing:         PricingFor(cfg.Model),
		store:           cfg.Store,
		now:             now,
		dailyTokenLimit: cfg.DailyTokenLimit,
		dailyCostLimit:  cfg.DailyCostLimit,
		day:             dayKey(now()),
	}

	if l.store != nil {
		u, err := l.store.LoadDay(l.day)
		if err != nil {
			return nil, err
		}
		l.daily = u
	}
	return l, nil
}

// Pricing returns the active price table entry.
func (l *Ledger) Pricing() ModelPricing {
	return l.pricing
}

// EstimateTicket projects the cost of a ticket run. Pure pass-through to
// the package estimator with the ledger's pricing.
func (l *Ledger) EstimateTicket(promptTokens int64, complexity int) Estimate {
	return EstimateTicket(l.pricing, promptTokens, complexity)
}

// TodayUsage returns a copy of today's running total.
func (l *Ledger) TodayUsage() Usage {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()
	return l.daily
}

// Warnings drains and returns accumulated budget warnings.
func (l *Ledger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.warnings
	l.warnings = nil
	return w
}

// rollDayLocked resets the daily counter when the calendar day changes.
// Caller must hold l.mu.
func (l *Ledger) rollDayLocked() {
	key := dayKey(l.now())
	if key == l.day {
		return
	}
	l.day = key
	l.daily = Usage{}
	if l.store != nil {
		if u, err := l.store.LoadDay(key); err == nil {
			l.daily = u
		}
	}
}

// NewTask creates a per-task meter bound to this ledger. The meter owns the
// task-scoped counters; daily enforcement goes through the shared ledger.
func (l *Ledger) NewTask(limits models.Budget) *TaskMeter {
	return &TaskMeter{ledger: l, limits: limits}
}

// TaskMeter tracks consumption for a single ticket run. It is not safe for
// concurrent use; each engine instance owns exactly one meter at a time.
type TaskMeter struct {
	ledger *Ledger
	limits models.Budget

	usage Usage

	reservedTokens int64
	reservedCost   float64
}

// Authorize returns false, with no side effect, if granting the estimated
// tokens would push either the daily or the per-task running cost or token
// count past its limit. On true it provisionally reserves the estimate;
// the reservation is replaced by actual figures on the next Record call.
//
// Authorization happens strictly before spend is incurred. A limit of zero
// is a real ceiling of zero: any positive estimate is denied.
func (m *TaskMeter) Authorize(estimatedTokens int64) bool {
	l := m.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	estimatedCost := l.pricing.EstimateCost(estimatedTokens)

	// Daily ceilings, including every outstanding reservation.
	if l.daily.Tokens+l.reservedTokens+estimatedTokens > l.dailyTokenLimit {
		l.warnLocked(fmt.Sprintf("daily token limit would be exceeded (%d/%d)",
			l.daily.Tokens+l.reservedTokens+estimatedTokens, l.dailyTokenLimit))
		return false
	}
	if l.daily.Cost+l.reservedCost+estimatedCost > l.dailyCostLimit {
		l.warnLocked(fmt.Sprintf("daily cost limit would be exceeded ($%.2f/$%.2f)",
			l.daily.Cost+l.reservedCost+estimatedCost, l.dailyCostLimit))
		return false
	}

	// Per-task ceilings.
	if m.usage.Tokens+m.reservedTokens+estimatedTokens > m.limits.PerTaskTokenLimit {
		l.warnLocked(fmt.Sprintf("per-task token limit would be exceeded (%d/%d)",
			m.usage.Tokens+m.reservedTokens+estimatedTokens, m.limits.PerTaskTokenLimit))
		return false
	}
	if m.usage.Cost+m.reservedCost+estimatedCost > m.limits.PerTaskCostLimit {
		l.warnLocked(fmt.Sprintf("per-task cost limit would be exceeded ($%.2f/$%.2f)",
			m.usage.Cost+m.reservedCost+estimatedCost, m.limits.PerTaskCostLimit))
		return false
	}

	m.reservedTokens += estimatedTokens
	m.reservedCost += estimatedCost
	l.reservedTokens += estimatedTokens
	l.reservedCost += estimatedCost
	return true
}

// Record replaces the outstanding reservation with the actual token figures
// reported by the API. It always succeeds: API billing is authoritative over
// estimates, so a deficit (actuals exceeding what was authorized) is recorded
// and surfaced as a warning, never as an error.
func (m *TaskMeter) Record(inputTokens, outputTokens int64) {
	l := m.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDayLocked()

	actual := Usage{
		Tokens:   inputTokens + outputTokens,
		Cost:     l.pricing.Cost(inputTokens, outputTokens),
		APICalls: 1,
	}

	// Drop this task's reservation entirely; actuals supersede it.
	l.reservedTokens -= m.reservedTokens
	l.reservedCost -= m.reservedCost
	deficitCost := actual.Cost - m.reservedCost
	m.reservedTokens = 0
	m.reservedCost = 0

	m.usage.Add(actual)
	l.daily.Add(actual)

	if deficitCost > 0 && m.usage.Cost > m.limits.PerTaskCostLimit {
		l.warnLocked(fmt.Sprintf(
			"actual spend exceeded authorization: task at $%.2f of $%.2f limit",
			m.usage.Cost, m.limits.PerTaskCostLimit))
	}
	l.alertThresholdsLocked()

	if l.store != nil {
		if err := l.store.SaveDay(l.day, l.daily); err != nil {
			l.warnLocked(fmt.Sprintf("could not persist usage: %v", err))
		}
	}
}

// ReleaseReservation drops any outstanding reservation without recording
// spend, for agent calls that failed before being billed.
func (m *TaskMeter) ReleaseReservation() {
	l := m.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reservedTokens -= m.reservedTokens
	l.reservedCost -= m.reservedCost
	m.reservedTokens = 0
	m.reservedCost = 0
}

// Usage returns a copy of the task's running total.
func (m *TaskMeter) Usage() Usage {
	l := m.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	return m.usage
}

// warnLocked appends a warning. Caller must hold l.mu.
func (l *Ledger) warnLocked(msg string) {
	l.warnings = append(l.warnings, msg)
}

// alertThresholdsLocked raises notices when daily usage crosses 80% and 90%
// of its ceilings. Caller must hold l.mu.
func (l *Ledger) alertThresholdsLocked() {
	if l.dailyTokenLimit > 0 {
		pct := float64(l.daily.Tokens) / float64(l.dailyTokenLimit) * 100
		switch {
		case pct >= 90:
			l.warnLocked(fmt.Sprintf("daily token usage at %.0f%%", pct))
		case pct >= 80:
			l.warnLocked(fmt.Sprintf("notice: daily token usage at %.0f%%", pct))
		}
	}
	if l.dailyCostLimit > 0 {
		pct := l.daily.Cost / l.dailyCostLimit * 100
		switch {
		case pct >= 90:
			l.warnLocked(fmt.Sprintf("daily cost at %.0f%%", pct))
		case pct >= 80:
			l.warnLocked(fmt.Sprintf("notice: daily cost at %.0f%%", pct))
		}
	}
}
