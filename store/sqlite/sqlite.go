/*
Package sqlite provides a SQLite-backed time source and configuration store.

PURPOSE:
  Keeps raw time-tracking records exactly as they arrived, the overtime
  rulesets a company configured, and an audit trail of sync runs. Raw
  records are normalized on read (package ingest), so a fix to field
  resolution applies to everything already imported.

KEY TABLES:
  time_entries: Raw upstream payloads keyed by entry id, indexed by work date
  rulesets:     Ruleset JSON by scope (default / job / employee)
  sync_runs:    One row per sync run with its decision counts

INDEXES:
  - idx_time_entries_work_date: period reads (hot path)
  - idx_rulesets_scope: one ruleset per (scope, scope_key)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block the
  single writer.

USAGE:
  store, err := sqlite.New("./data/payrun.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  entries, err := store.Entries(ctx, period)

SEE ALSO:
  - ingest/normalize.go: raw record to payroll.TimeEntry
  - store/memory: in-memory time source for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/payroll-sync/factory"
	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/ingest"
	"github.com/warp/payroll-sync/payroll"
	"github.com/warp/payroll-sync/payrun"
)

// entryNamespace derives ids for upstream records that carry none.
var entryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://payroll-sync/time-entry"))

// ErrNotFound is returned by getters when no row matches.
var ErrNotFound = errors.New("not found")

// ErrScopeTaken is returned when another ruleset already covers a scope.
var ErrScopeTaken = errors.New("ruleset scope already taken")

// Store implements the time source and configuration storage using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Normalizer converts stored payloads on read and dates them on import.
	Normalizer ingest.Normalizer
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to ":memory:" is its own database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Raw time entries, stored as received
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		employee_id TEXT,
		employee_name TEXT,
		work_date TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_work_date
		ON time_entries(work_date);
	CREATE INDEX IF NOT EXISTS idx_time_entries_employee
		ON time_entries(employee_id, work_date);

	-- Overtime rulesets
	CREATE TABLE IF NOT EXISTS rulesets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope TEXT NOT NULL,
		scope_key TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_rulesets_scope
		ON rulesets(scope, scope_key);

	-- Sync runs (audit only; the payroll system stays the source of truth)
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		counts_json TEXT,
		warnings INTEGER NOT NULL DEFAULT 0,
		leave_written INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_period
		ON sync_runs(period_start, period_end);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// ImportResult counts what an import did with each record.
type ImportResult struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
}

// ImportRecords stores raw records. Records with no employee or no start
// date are skipped; a record whose id is already stored replaces it.
func (s *Store) ImportRecords(ctx context.Context, source string, records []ingest.Record) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO time_entries (id, source, employee_id, employee_name, work_date, payload_json, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			employee_id = excluded.employee_id,
			employee_name = excluded.employee_name,
			work_date = excluded.work_date,
			payload_json = excluded.payload_json,
			imported_at = excluded.imported_at
	`
	now := time.Now().UTC().Format(time.RFC3339)

	var result ImportResult
	for _, r := range records {
		entry := s.Normalizer.Entry(r)
		if (entry.EmployeeID == "" && entry.EmployeeName == "") || entry.Start.IsZero() {
			result.Skipped++
			continue
		}
		payload, err := json.Marshal(r)
		if err != nil {
			result.Skipped++
			continue
		}
		id := entry.ID
		if id == "" {
			id = uuid.NewSHA1(entryNamespace, payload).String()
		}
		if _, err := tx.ExecContext(ctx, query,
			id, source, nullString(entry.EmployeeID), nullString(entry.EmployeeName),
			entry.Date().String(), string(payload), now,
		); err != nil {
			return ImportResult{}, fmt.Errorf("store entry %s: %w", id, err)
		}
		result.Stored++
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

// ImportJSON decodes an upstream payload (array, envelope or single object) and stores it.
func (s *Store) ImportJSON(ctx context.Context, source string, data []byte) (ImportResult, error) {
	records, err := ingest.DecodeRecords(data)
	if err != nil {
		return ImportResult{}, err
	}
	return s.ImportRecords(ctx, source, records)
}

// Entries returns the normalized entries dated inside period, ordered by
// work date then id.
func (s *Store) Entries(ctx context.Context, period generic.Period) ([]payroll.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload_json FROM time_entries
		WHERE work_date >= ? AND work_date <= ?
		ORDER BY work_date, id
	`, period.Start.String(), period.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []payroll.TimeEntry
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var r ingest.Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		entry := s.Normalizer.Entry(r)
		if entry.ID == "" {
			entry.ID = id
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountEntries returns how many raw entries are stored.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM time_entries").Scan(&n)
	return n, err
}

// DeleteEntries removes entries dated inside period and returns how many went.
func (s *Store) DeleteEntries(ctx context.Context, period generic.Period) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM time_entries WHERE work_date >= ? AND work_date <= ?",
		period.Start.String(), period.End.String(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// RULESET STORE
// =============================================================================

// RulesetScope says which entries a stored ruleset applies to.
type RulesetScope string

const (
	ScopeDefault  RulesetScope = "default"
	ScopeJob      RulesetScope = "job"
	ScopeEmployee RulesetScope = "employee"
)

// RulesetRecord is a stored ruleset with its JSON config.
type RulesetRecord struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Scope      RulesetScope `json:"scope"`
	ScopeKey   string       `json:"scope_key,omitempty"`
	ConfigJSON string       `json:"config"`
	Version    int          `json:"version"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// SaveRuleset upserts a ruleset record. Saving over an existing id bumps its version.
func (s *Store) SaveRuleset(ctx context.Context, r RulesetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Scope == "" {
		r.Scope = ScopeDefault
	}
	if r.Scope == ScopeDefault {
		r.ScopeKey = ""
	}

	query := `
		INSERT INTO rulesets (id, name, scope, scope_key, config_json, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			scope = excluded.scope,
			scope_key = excluded.scope_key,
			config_json = excluded.config_json,
			version = rulesets.version + 1,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Name, string(r.Scope), r.ScopeKey, r.ConfigJSON, now, now,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %q", ErrScopeTaken, r.Scope, r.ScopeKey)
	}
	return err
}

// GetRuleset retrieves a ruleset by ID.
func (s *Store) GetRuleset(ctx context.Context, id string) (*RulesetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, scope, scope_key, config_json, version, created_at, updated_at
		FROM rulesets WHERE id = ?`, id)
	r, err := scanRuleset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRulesets returns all rulesets, default first.
func (s *Store) ListRulesets(ctx context.Context) ([]RulesetRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, scope, scope_key, config_json, version, created_at, updated_at
		FROM rulesets
		ORDER BY CASE scope WHEN 'default' THEN 0 WHEN 'job' THEN 1 ELSE 2 END, scope_key, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RulesetRecord
	for rows.Next() {
		r, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRuleset removes a ruleset.
func (s *Store) DeleteRuleset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM rulesets WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRuleset(row scanner) (RulesetRecord, error) {
	var r RulesetRecord
	var scope, createdAt, updatedAt string
	if err := row.Scan(&r.ID, &r.Name, &scope, &r.ScopeKey, &r.ConfigJSON, &r.Version, &createdAt, &updatedAt); err != nil {
		return RulesetRecord{}, err
	}
	r.Scope = RulesetScope(scope)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return r, nil
}

// LoadBook assembles the stored rulesets into a factory.Book. Every stored
// config is validated again; fallback is used when no default is stored.
func (s *Store) LoadBook(ctx context.Context, f *factory.RulesetFactory, fallback payroll.Ruleset) (*factory.Book, error) {
	records, err := s.ListRulesets(ctx)
	if err != nil {
		return nil, err
	}

	book := factory.NewBook(fallback)
	for _, r := range records {
		rs, err := f.ParseRuleset([]byte(r.ConfigJSON))
		if err != nil {
			return nil, fmt.Errorf("stored ruleset %s: %w", r.ID, err)
		}
		switch r.Scope {
		case ScopeDefault:
			book.Default = rs
		case ScopeJob:
			book.ByJob[strings.TrimSpace(r.ScopeKey)] = rs
		case ScopeEmployee:
			book.SetEmployee(r.ScopeKey, rs)
		}
	}
	return book, nil
}

// =============================================================================
// SYNC RUNS
// =============================================================================

// SaveSyncRun upserts a run record.
func (s *Store) SaveSyncRun(ctx context.Context, r payrun.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sync_runs (id, period_start, period_end, dry_run, status, counts_json,
			warnings, leave_written, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			counts_json = excluded.counts_json,
			warnings = excluded.warnings,
			leave_written = excluded.leave_written,
			error = excluded.error,
			completed_at = excluded.completed_at
	`

	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	var completedAt *string
	if r.CompletedAt != nil {
		s := r.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &s
	}

	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.Period.Start.String(), r.Period.End.String(), r.DryRun, string(r.Status), string(counts),
		r.Warnings, r.LeaveWritten, nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339), completedAt,
	)
	return err
}

// ListSyncRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]payrun.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, period_start, period_end, dry_run, status, counts_json,
			warnings, leave_written, error, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC, id
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []payrun.SyncRun
	for rows.Next() {
		var r payrun.SyncRun
		var periodStart, periodEnd, status, startedAt string
		var counts, runErr, completedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &periodStart, &periodEnd, &r.DryRun, &status, &counts,
			&r.Warnings, &r.LeaveWritten, &runErr, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}

		r.Status = payrun.RunStatus(status)
		r.Period.Start, _ = generic.ParseDate(periodStart)
		r.Period.End, _ = generic.ParseDate(periodEnd)
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.Error = runErr.String
		if counts.Valid && counts.String != "null" {
			_ = json.Unmarshal([]byte(counts.String), &r.Counts)
		}
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// IsPeriodSynced reports whether a non-dry-run sync of exactly this period
// has completed. Partial runs (some writes ended in ERROR) do not count.
func (s *Store) IsPeriodSynced(ctx context.Context, period generic.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_runs
		WHERE period_start = ? AND period_end = ? AND dry_run = 0 AND status = ?`,
		period.Start.String(), period.End.String(), string(payrun.RunCompleted),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"time_entries", "rulesets", "sync_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
