package risk

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Snapshot is the persisted ledger state.
type Snapshot struct {
	DailyPnL  float64
	WeeklyPnL float64
	ResetDay  string
	ResetYear int
	ResetWeek int
	Enabled   bool
}

// Store persists the ledger counters to SQLite so loss budgets survive a
// restart. A single row holds the current state.
type Store struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	daily_pnl REAL NOT NULL,
	weekly_pnl REAL NOT NULL,
	reset_day TEXT NOT NULL,
	reset_year INTEGER NOT NULL,
	reset_week INTEGER NOT NULL,
	trading_enabled INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`

// OpenStore opens (and creates if needed) the ledger database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("ledger db path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load reads the persisted snapshot. found is false when no state was ever
// saved.
func (s *Store) Load() (snap Snapshot, found bool, err error) {
	var enabled int
	row := s.db.QueryRow(`
		SELECT daily_pnl, weekly_pnl, reset_day, reset_year, reset_week, trading_enabled
		FROM ledger_state WHERE id = 1
	`)
	err = row.Scan(&snap.DailyPnL, &snap.WeeklyPnL, &snap.ResetDay, &snap.ResetYear, &snap.ResetWeek, &enabled)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	snap.Enabled = enabled == 1
	return snap, true, nil
}

// Save upserts the single state row.
func (s *Store) Save(snap Snapshot) error {
	enabled := 0
	if snap.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO ledger_state (id, daily_pnl, weekly_pnl, reset_day, reset_year, reset_week, trading_enabled, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			daily_pnl = excluded.daily_pnl,
			weekly_pnl = excluded.weekly_pnl,
			reset_day = excluded.reset_day,
			reset_year = excluded.reset_year,
			reset_week = excluded.reset_week,
			trading_enabled = excluded.trading_enabled,
			updated_at = excluded.updated_at
	`, snap.DailyPnL, snap.WeeklyPnL, snap.ResetDay, snap.ResetYear, snap.ResetWeek, enabled,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
