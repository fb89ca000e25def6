package audit

import (
	"sync"
	"time"
)

// Entry is one executed (or refused) signal kept for the dashboard.
type Entry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Action     string    `json:"action"`
	Instrument string    `json:"instrument"`
	Strategy   string    `json:"strategy"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Units      int       `json:"units,omitempty"`
	EntryPrice float64   `json:"entry_price,omitempty"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	BrokerRef  string    `json:"broker_ref,omitempty"`
}

// Log is a fixed-capacity, newest-first record of recent executions. It is
// in-memory only; long-term trade history is out of scope here.
type Log struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// NewLog creates a log holding at most capacity entries.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 50
	}
	return &Log{cap: capacity}
}

// Record prepends an entry, dropping the oldest once over capacity.
func (l *Log) Record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
}

// Recent returns a copy of the entries, newest first.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
