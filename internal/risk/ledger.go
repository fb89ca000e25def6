package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"fxgate/pkg/instruments"
)

// Ledger owns the rolling daily/weekly P/L counters and the
// trading-enabled switch. It is the single authority for whether a new
// position may be opened; all state lives behind one mutex so concurrent
// signals see a serialized sequence of rollover, limit check and outcome
// recording.
type Ledger struct {
	mu     sync.Mutex
	limits Limits
	dir    *instruments.Directory
	store  *Store

	dailyPnL  float64
	weeklyPnL float64
	resetDay  string // 2006-01-02
	resetYear int    // ISO year of the weekly marker
	resetWeek int    // ISO week of the weekly marker
	enabled   bool

	now func() time.Time
}

// NewLedger builds a ledger, restoring counters from the store when one is
// given so a restart cannot forget an exhausted loss budget.
func NewLedger(limits Limits, dir *instruments.Directory, store *Store) (*Ledger, error) {
	l := NewInMemory(limits, dir)
	l.store = store
	if store == nil {
		return l, nil
	}

	snap, found, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	if found {
		l.dailyPnL = snap.DailyPnL
		l.weeklyPnL = snap.WeeklyPnL
		l.resetDay = snap.ResetDay
		l.resetYear = snap.ResetYear
		l.resetWeek = snap.ResetWeek
		l.enabled = snap.Enabled
		log.Printf("[risk] ledger restored: daily=%.2f weekly=%.2f enabled=%v",
			l.dailyPnL, l.weeklyPnL, l.enabled)
	}
	return l, nil
}

// NewInMemory builds a ledger without persistence. Used by tests and dry
// runs.
func NewInMemory(limits Limits, dir *instruments.Directory) *Ledger {
	now := time.Now
	t := now()
	year, week := t.ISOWeek()
	return &Ledger{
		limits:    limits,
		dir:       dir,
		resetDay:  t.Format("2006-01-02"),
		resetYear: year,
		resetWeek: week,
		enabled:   true,
		now:       now,
	}
}

// Limits returns a copy of the configured limits.
func (l *Ledger) Limits() Limits {
	return l.limits
}

// rollover zeroes the daily counter on a calendar-day change and the weekly
// counter on an ISO-week change. Callers must hold the mutex. Detection is
// lazy: it runs on access, never on a timer.
func (l *Ledger) rollover() {
	t := l.now()

	if day := t.Format("2006-01-02"); day != l.resetDay {
		log.Printf("[risk] daily PnL reset, previous: %.2f", l.dailyPnL)
		l.dailyPnL = 0
		l.resetDay = day
	}

	if year, week := t.ISOWeek(); year != l.resetYear || week != l.resetWeek {
		log.Printf("[risk] weekly PnL reset, previous: %.2f", l.weeklyPnL)
		l.weeklyPnL = 0
		l.resetYear = year
		l.resetWeek = week
	}
}

// CheckRollover applies any pending day/week boundary crossing.
func (l *Ledger) CheckRollover() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.persist()
}

// CanOpen decides whether a new position may be opened. The checks run in a
// fixed order and the first failing one wins: trading switch, position cap,
// daily loss budget, weekly loss budget, per-trade risk ceiling. A breached
// loss budget flips the trading switch off when auto-disable is configured.
func (l *Ledger) CanOpen(openPositions int, balance, proposedRisk float64) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	if !l.enabled {
		return deny("trading is disabled due to risk limits")
	}

	if openPositions >= l.limits.MaxOpenPositions {
		return deny(fmt.Sprintf("maximum positions reached (%d)", l.limits.MaxOpenPositions))
	}

	dailyLossPct := 0.0
	weeklyLossPct := 0.0
	if balance > 0 {
		dailyLossPct = math.Abs(l.dailyPnL) / balance
		weeklyLossPct = math.Abs(l.weeklyPnL) / balance
	}

	if l.dailyPnL < 0 && dailyLossPct >= l.limits.DailyLossLimit {
		if l.limits.AutoDisableOnBreach {
			l.enabled = false
			l.persist()
		}
		return deny(fmt.Sprintf("daily loss limit reached (%g%%)", l.limits.DailyLossLimit*100))
	}

	if l.weeklyPnL < 0 && weeklyLossPct >= l.limits.WeeklyLossLimit {
		if l.limits.AutoDisableOnBreach {
			l.enabled = false
			l.persist()
		}
		return deny(fmt.Sprintf("weekly loss limit reached (%g%%)", l.limits.WeeklyLossLimit*100))
	}

	// Known gap: only the proposed trade's risk is compared against the
	// total-risk ceiling; risk already committed to open positions is not
	// summed in.
	riskPct := 0.0
	if balance > 0 {
		riskPct = proposedRisk / balance
	}
	if riskPct > l.limits.MaxTotalRisk {
		return deny(fmt.Sprintf("total risk limit exceeded (%g%%)", l.limits.MaxTotalRisk*100))
	}

	return allow()
}

// ValidateTrade checks a proposed trade against the instrument's gate
// settings. Nil stop/target skips the respective check; zero spread means
// the spread is unknown and the ceiling is not applied.
func (l *Ledger) ValidateTrade(instrument string, entryPrice float64, stopLoss, takeProfit *float64, spread float64) Decision {
	gate := l.dir.Gate(instrument)

	if !gate.Enabled {
		return deny(fmt.Sprintf("instrument %s is not enabled", instrument))
	}

	if gate.MaxSpread > 0 && spread > 0 && spread > gate.MaxSpread {
		return deny(fmt.Sprintf("spread too high: %.5f (max: %.5f)", spread, gate.MaxSpread))
	}

	if stopLoss != nil && *stopLoss == entryPrice {
		return deny("stop loss cannot equal entry price")
	}
	if takeProfit != nil && *takeProfit == entryPrice {
		return deny("take profit cannot equal entry price")
	}

	if stopLoss != nil && takeProfit != nil && gate.MinRiskReward > 0 {
		riskDist := math.Abs(entryPrice - *stopLoss)
		rewardDist := math.Abs(*takeProfit - entryPrice)
		ratio := 0.0
		if riskDist > 0 {
			ratio = rewardDist / riskDist
		}
		if ratio < gate.MinRiskReward {
			return deny(fmt.Sprintf("risk/reward ratio too low: %.2f (min: %.2f)", ratio, gate.MinRiskReward))
		}
	}

	return allow()
}

// RecordOutcome adds a realized trade P/L to the daily and weekly counters.
// Called when the broker reports a position as closed; the ledger does not
// compute P/L itself.
func (l *Ledger) RecordOutcome(pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	l.dailyPnL += pnl
	l.weeklyPnL += pnl
	l.persist()

	log.Printf("[risk] trade result recorded: %.2f (daily: %.2f, weekly: %.2f)",
		pnl, l.dailyPnL, l.weeklyPnL)
}

// Enable turns trading on regardless of breach state.
func (l *Ledger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
	l.persist()
	log.Printf("[risk] trading enabled")
}

// Disable turns trading off.
func (l *Ledger) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	l.persist()
	log.Printf("[risk] trading disabled")
}

// Status reports the current risk snapshot against the given balance.
func (l *Ledger) Status(balance float64) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	dailyLossPct := 0.0
	weeklyLossPct := 0.0
	if balance > 0 {
		dailyLossPct = math.Abs(l.dailyPnL) / balance
		weeklyLossPct = math.Abs(l.weeklyPnL) / balance
	}

	return Status{
		TradingEnabled:       l.enabled,
		DailyPnL:             l.dailyPnL,
		WeeklyPnL:            l.weeklyPnL,
		DailyLossPercent:     dailyLossPct,
		WeeklyLossPercent:    weeklyLossPct,
		DailyLimitRemaining:  math.Max(0, l.limits.DailyLossLimit-dailyLossPct),
		WeeklyLimitRemaining: math.Max(0, l.limits.WeeklyLossLimit-weeklyLossPct),
		DailyLimit:           l.limits.DailyLossLimit,
		WeeklyLimit:          l.limits.WeeklyLossLimit,
		MaxOpenPositions:     l.limits.MaxOpenPositions,
		RiskPerTrade:         l.limits.RiskPerTrade,
		MaxTotalRisk:         l.limits.MaxTotalRisk,
		AutoDisableOnBreach:  l.limits.AutoDisableOnBreach,
	}
}

// persist snapshots the counters to the store, best-effort. Callers must
// hold the mutex.
func (l *Ledger) persist() {
	if l.store == nil {
		return
	}
	err := l.store.Save(Snapshot{
		DailyPnL:  l.dailyPnL,
		WeeklyPnL: l.weeklyPnL,
		ResetDay:  l.resetDay,
		ResetYear: l.resetYear,
		ResetWeek: l.resetWeek,
		Enabled:   l.enabled,
	})
	if err != nil {
		log.Printf("[risk] ledger persist error: %v", err)
	}
}
