// Package history is the append-only outcome ledger. Every completed run
// records one Outcome; queries over past outcomes feed planner hints and
// the insights view. All of it is advisory: losing this database affects
// no correctness property of a run.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelworks/ticketsmith/pkg/models"
)

// Store provides SQLite-backed storage for run outcomes.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// ProjectPath returns the outcome database path for a workspace root.
func ProjectPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".ticketsmith", "outcomes.db")
}

// Open opens the outcome database at the given path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create outcome db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outcome db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT NOT NULL,
		labels TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		cost REAL NOT NULL,
		duration_seconds REAL NOT NULL,
		files_changed INTEGER NOT NULL,
		errors TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create outcome schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record appends one outcome. Outcomes are never updated or deleted.
func (s *Store) Record(o models.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordedAt := o.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}

	_, err := s.db.Exec(
		`INSERT INTO outcomes
		 (ticket_id, labels, success, strategy, attempts, cost,
		  duration_seconds, files_changed, errors, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.TicketID, joinLabels(o.Labels), boolToInt(o.Success), o.StrategyUsed,
		o.AttemptsUsed, o.Cost, o.DurationSeconds, o.FilesChanged,
		strings.Join(o.ErrorMessages, "\n"), recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", o.TicketID, err)
	}
	return nil
}

// Recent returns the most recent outcomes, newest first.
func (s *Store) Recent(limit int) ([]models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(
		`SELECT ticket_id, labels, success, strategy, attempts, cost,
		        duration_seconds, files_changed, errors, recorded_at
		 FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
}

// all returns every outcome, oldest first.
func (s *Store) all() ([]models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(
		`SELECT ticket_id, labels, success, strategy, attempts, cost,
		        duration_seconds, files_changed, errors, recorded_at
		 FROM outcomes ORDER BY id ASC`)
}

func (s *Store) queryLocked(query string, args ...any) ([]models.Outcome, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.Outcome
	for rows.Next() {
		var o models.Outcome
		var labels, errs, recordedAt string
		var success int
		if err := rows.Scan(&o.TicketID, &labels, &success, &o.StrategyUsed,
			&o.AttemptsUsed, &o.Cost, &o.DurationSeconds, &o.FilesChanged,
			&errs, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		o.Labels = splitLabels(labels)
		o.Success = success != 0
		if errs != "" {
			o.ErrorMessages = strings.Split(errs, "\n")
		}
		if t, err := time.Parse(time.RFC3339, recordedAt); err == nil {
			o.RecordedAt = t
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// joinLabels stores a label set as a sorted comma-joined string.
func joinLabels(labels []string) string {
	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
