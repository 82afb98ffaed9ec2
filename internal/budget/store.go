package budget

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Usage is a running total of consumed resources.
type Usage struct {
	// Tokens is the total token count consumed.
	Tokens int64 `json:"tokens"`
	// Cost is the total dollars spent.
	Cost float64 `json:"cost"`
	// APICalls counts completed agent exchanges.
	APICalls int `json:"api_calls"`
}

// Add accumulates another usage total into this one.
func (u *Usage) Add(other Usage) {
	u.Tokens += other.Tokens
	u.Cost += other.Cost
	u.APICalls += other.APICalls
}

// UsageStore persists per-day usage totals in SQLite so that daily budget
// enforcement survives process restarts within the same day.
type UsageStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultStorePath returns the path to the global usage database.
func DefaultStorePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "ticketsmith", "usage.db")
}

// OpenStore opens the usage database at the given path, creating parent
// directories and the schema as needed. WAL mode is enabled for concurrent
// reads.
func OpenStore(path string) (*UsageStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create usage db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS usage_days (
		day TEXT PRIMARY KEY,
		tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		api_calls INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}

	return &UsageStore{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *UsageStore) Close() error {
	return s.db.Close()
}

// LoadDay returns the persisted usage for a day key (YYYY-MM-DD).
// A missing day returns a zero Usage, not an error.
func (s *UsageStore) LoadDay(day string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u Usage
	row := s.db.QueryRow(
		"SELECT tokens, cost, api_calls FROM usage_days WHERE day = ?", day)
	err := row.Scan(&u.Tokens, &u.Cost, &u.APICalls)
	if err == sql.ErrNoRows {
		return Usage{}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("load usage for %s: %w", day, err)
	}
	return u, nil
}

// SaveDay upserts the usage total for a day key.
func (s *UsageStore) SaveDay(day string, u Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO usage_days (day, tokens, cost, api_calls) VALUES (?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET tokens = ?, cost = ?, api_calls = ?`,
		day, u.Tokens, u.Cost, u.APICalls, u.Tokens, u.Cost, u.APICalls)
	if err != nil {
		return fmt.Errorf("save usage for %s: %w", day, err)
	}
	return nil
}

// Report returns usage totals for the most recent days, newest first.
func (s *UsageStore) Report(limit int) (map[string]Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT day, tokens, cost, api_calls FROM usage_days ORDER BY day DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("query usage report: %w", err)
	}
	defer rows.Close()

	report := make(map[string]Usage)
	for rows.Next() {
		var day string
		var u Usage
		if err := rows.Scan(&day, &u.Tokens, &u.Cost, &u.APICalls); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		report[day] = u
	}
	return report, rows.Err()
}
