package persist

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// sessionKey is the fixed key under which the wallet session record is stored.
	sessionKey = "wallet_session"

	// recordVersion is the on-disk layout version of the session record.
	recordVersion = "1.0"

	// FreshnessWindow is how long a persisted session record is considered valid.
	// Records older than this are treated as absent by all readers.
	FreshnessWindow = 24 * time.Hour

	// darkModeKey is the preference key for the dark/light display preference.
	// The value is stored as the literal string "true" or "false".
	darkModeKey = "darkMode"
)

// Record is the durable record of the last connected wallet address.
type Record struct {
	Address string
	SavedAt time.Time
	Version string
}

// Store provides SQLite-backed persistence for the wallet session record and
// display preferences.
//
// Storage failures never propagate to callers: Load returns absent, Save and
// Clear become no-ops. The session must keep working when local storage is
// blocked or broken, so every failure is logged and swallowed here.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
// Parent directories are created as needed.
func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Disabled returns a store with no backing database. All reads return absent
// and all writes are no-ops. Used when local storage cannot be opened at all.
func Disabled(logger *slog.Logger) *Store {
	return &Store{db: nil, logger: logger, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallet_session (
		key TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		saved_at_ms INTEGER NOT NULL,
		version TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Save writes the session record for the given address. A zero savedAt is
// replaced with the current time. An empty address deletes any existing
// record instead: "no address" means "no session".
func (s *Store) Save(address string, savedAt time.Time) {
	if address == "" {
		s.Clear()
		return
	}
	if s.db == nil {
		return
	}

	if savedAt.IsZero() {
		savedAt = s.now()
	}

	_, err := s.db.Exec(
		`INSERT INTO wallet_session (key, address, saved_at_ms, version)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET address = excluded.address,
		                                saved_at_ms = excluded.saved_at_ms,
		                                version = excluded.version`,
		sessionKey, address, savedAt.UnixMilli(), recordVersion,
	)
	if err != nil {
		s.logger.Warn("failed to save session record", "error", err)
	}
}

// Load returns the persisted session record, or nil when no record exists,
// the record is older than the freshness window, or storage is unavailable.
// A stale record is left in place; the read is non-destructive.
func (s *Store) Load() *Record {
	if s.db == nil {
		return nil
	}

	row := s.db.QueryRow(
		`SELECT address, saved_at_ms, version FROM wallet_session WHERE key = ?`,
		sessionKey,
	)

	var rec Record
	var savedAtMs int64
	err := row.Scan(&rec.Address, &savedAtMs, &rec.Version)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.logger.Warn("failed to load session record", "error", err)
		return nil
	}

	rec.SavedAt = time.UnixMilli(savedAtMs)
	if s.now().Sub(rec.SavedAt) >= FreshnessWindow {
		return nil
	}

	return &rec
}

// Clear deletes the session record unconditionally. Idempotent.
func (s *Store) Clear() {
	if s.db == nil {
		return
	}

	if _, err := s.db.Exec(`DELETE FROM wallet_session WHERE key = ?`, sessionKey); err != nil {
		s.logger.Warn("failed to clear session record", "error", err)
	}
}

// SaveDarkMode stores the dark/light display preference.
func (s *Store) SaveDarkMode(dark bool) {
	if s.db == nil {
		return
	}

	value := "false"
	if dark {
		value = "true"
	}
	_, err := s.db.Exec(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		darkModeKey, value,
	)
	if err != nil {
		s.logger.Warn("failed to save display preference", "error", err)
	}
}

// LoadDarkMode returns the stored dark-mode preference. The second return is
// false when no preference has been saved or storage is unavailable.
func (s *Store) LoadDarkMode() (bool, bool) {
	if s.db == nil {
		return false, false
	}

	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, darkModeKey).Scan(&value)
	if err == sql.ErrNoRows {
		return false, false
	}
	if err != nil {
		s.logger.Warn("failed to load display preference", "error", err)
		return false, false
	}

	return value == "true", true
}
