package prefs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const lastPressKey = "last_attendance_press"

// Store is the device-local key-value store. It holds small markers that
// must survive process restarts, most importantly the "last attendance press"
// timestamp written when the user triggers a clock action. The reminder
// scheduler does not read it; it exists as the weaker local suppression
// signal and for diagnostics.
type Store struct {
	db *sql.DB
}

// Open creates or opens the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open prefs db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping prefs db: %w", err)
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS prefs (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`); err != nil {
		return nil, fmt.Errorf("migrate prefs db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Set writes a key.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// Get reads a key; ok is false when the key has never been set.
func (s *Store) Get(key string) (value string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// MarkAttendancePressed records that the user triggered a clock action now.
func (s *Store) MarkAttendancePressed(t time.Time) error {
	return s.Set(lastPressKey, strconv.FormatInt(t.UnixMilli(), 10))
}

// LastAttendancePress returns the last recorded press, if any.
func (s *Store) LastAttendancePress() (time.Time, bool, error) {
	raw, ok, err := s.Get(lastPressKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt press marker: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// PressedToday reports whether the last press falls on the same calendar day
// as now, in now's location.
func (s *Store) PressedToday(now time.Time) (bool, error) {
	last, ok, err := s.LastAttendancePress()
	if err != nil || !ok {
		return false, err
	}
	ly, ld := last.In(now.Location()).Year(), last.In(now.Location()).YearDay()
	return ly == now.Year() && ld == now.YearDay(), nil
}
