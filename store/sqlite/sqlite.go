/*
Package sqlite provides a SQLite-backed implementation of scheduling.Store.

PURPOSE:
  Persists delivery occurrences, capacity configuration and client
  membership windows. The same schema ports to PostgreSQL with only minor
  dialect differences.

KEY TABLES:
  occurrences:   One row per scheduled delivery
  daily_limits:  Per-date capacity overrides
  weekly_limits: Default capacity per weekday (0=Sunday)
  clients:       Membership windows

INDEXES:
  - idx_occurrences_day:    Occupancy counts and range queries (hot path)
  - idx_occurrences_series: "This and following" lookups

DATES:
  Calendar days are stored as their YYYY-MM-DD key. Key order is date order,
  so range predicates are plain string comparisons.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/deliveries.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := scheduling.NewService(store, scheduling.Options{})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - scheduling/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

// Store implements scheduling.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ scheduling.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
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
	CREATE TABLE IF NOT EXISTS occurrences (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		day TEXT NOT NULL,
		recurrence_id TEXT,
		series_start_date TEXT,
		recurrence TEXT NOT NULL DEFAULT 'none',
		series_end TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_occurrences_day
		ON occurrences(day);
	CREATE INDEX IF NOT EXISTS idx_occurrences_series
		ON occurrences(recurrence_id, client_id, day) WHERE recurrence_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS daily_limits (
		day TEXT PRIMARY KEY,
		limit_value INTEGER NOT NULL CHECK (limit_value >= 0),
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_limits (
		weekday INTEGER PRIMARY KEY CHECK (weekday BETWEEN 0 AND 6),
		limit_value INTEGER NOT NULL CHECK (limit_value >= 0)
	);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OCCURRENCE STORE
// =============================================================================

const occurrenceColumns = "id, client_id, day, recurrence_id, series_start_date, recurrence, series_end, notes, created_at"

// GetOccurrence retrieves an occurrence by ID.
func (s *Store) GetOccurrence(ctx context.Context, id string) (*scheduling.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+occurrenceColumns+" FROM occurrences WHERE id = ?", id)
	occ, err := scanOccurrence(row)
	if err == sql.ErrNoRows {
		return nil, scheduling.ErrOccurrenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &occ, nil
}

// ListOccurrences returns occurrences in [from, to].
func (s *Store) ListOccurrences(ctx context.Context, from, to calendar.Day) ([]scheduling.Occurrence, error) {
	return s.queryOccurrences(ctx,
		"SELECT "+occurrenceColumns+" FROM occurrences WHERE day >= ? AND day <= ? ORDER BY day, id",
		from.Key(), to.Key(),
	)
}

// FetchOccurrencesBySeries returns a client's series occurrences on or after from.
func (s *Store) FetchOccurrencesBySeries(ctx context.Context, recurrenceID, clientID string, from calendar.Day) ([]scheduling.Occurrence, error) {
	return s.queryOccurrences(ctx,
		"SELECT "+occurrenceColumns+` FROM occurrences
		 WHERE recurrence_id = ? AND client_id = ? AND day >= ?
		 ORDER BY day, id`,
		recurrenceID, clientID, from.Key(),
	)
}

// FetchOccupancyCounts counts occurrences per day for all clients.
func (s *Store) FetchOccupancyCounts(ctx context.Context, keys []string) (map[string]int, error) {
	counts := make(map[string]int, len(keys))
	if len(keys) == 0 {
		return counts, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := s.db.QueryContext(ctx,
		"SELECT day, COUNT(*) FROM occurrences WHERE day IN ("+placeholders+") GROUP BY day",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

// CreateOccurrence inserts a new occurrence with a fresh id.
func (s *Store) CreateOccurrence(ctx context.Context, fields scheduling.OccurrenceFields) (scheduling.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	occ := fields.Build(uuid.NewString(), time.Now().UTC().Truncate(time.Second))
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO occurrences (`+occurrenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		occ.ID, occ.ClientID, occ.Day.Key(),
		nullString(occ.RecurrenceID), nullString(occ.SeriesStartDate.Key()),
		string(occ.Recurrence), nullString(occ.SeriesEnd.Key()),
		nullString(occ.Notes), occ.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return scheduling.Occurrence{}, err
	}
	return occ, nil
}

// UpdateOccurrence replaces the writable fields of an occurrence.
func (s *Store) UpdateOccurrence(ctx context.Context, id string, fields scheduling.OccurrenceFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE occurrences SET
			client_id = ?, day = ?, recurrence_id = ?, series_start_date = ?,
			recurrence = ?, series_end = ?, notes = ?
		WHERE id = ?`,
		fields.ClientID, fields.Day.Key(),
		nullString(fields.RecurrenceID), nullString(fields.SeriesStartDate.Key()),
		string(fields.Recurrence), nullString(fields.SeriesEnd.Key()),
		nullString(fields.Notes), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, scheduling.ErrOccurrenceNotFound)
}

// DeleteOccurrence removes an occurrence.
func (s *Store) DeleteOccurrence(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM occurrences WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res, scheduling.ErrOccurrenceNotFound)
}

func (s *Store) queryOccurrences(ctx context.Context, query string, args ...any) ([]scheduling.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduling.Occurrence
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, occ)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOccurrence(row scanner) (scheduling.Occurrence, error) {
	var occ scheduling.Occurrence
	var day, recurrence, createdAt string
	var recurrenceID, seriesStart, seriesEnd, notes sql.NullString

	if err := row.Scan(&occ.ID, &occ.ClientID, &day, &recurrenceID, &seriesStart,
		&recurrence, &seriesEnd, &notes, &createdAt); err != nil {
		return occ, err
	}

	occ.Day, _ = calendar.ParseKey(day)
	occ.RecurrenceID = recurrenceID.String
	occ.SeriesStartDate, _ = calendar.ParseKey(seriesStart.String)
	occ.Recurrence = calendar.Kind(recurrence)
	occ.SeriesEnd, _ = calendar.ParseKey(seriesEnd.String)
	occ.Notes = notes.String
	occ.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return occ, nil
}

// =============================================================================
// CAPACITY STORE
// =============================================================================

// FetchWeeklyDefaults returns nil when no defaults were saved. Weekdays
// missing from the table come back as -1 so the resolver falls back.
func (s *Store) FetchWeeklyDefaults(ctx context.Context) (capacity.WeeklyDefaults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT weekday, limit_value FROM weekly_limits ORDER BY weekday")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out capacity.WeeklyDefaults
	for rows.Next() {
		var wd, limit int
		if err := rows.Scan(&wd, &limit); err != nil {
			return nil, err
		}
		if out == nil {
			out = capacity.WeeklyDefaults{-1, -1, -1, -1, -1, -1, -1}
		}
		out[wd] = limit
	}
	return out, rows.Err()
}

// SaveWeeklyDefaults replaces all weekday defaults in one transaction.
func (s *Store) SaveWeeklyDefaults(ctx context.Context, defaults capacity.WeeklyDefaults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM weekly_limits"); err != nil {
		return err
	}
	for wd, limit := range defaults {
		if wd > 6 {
			break
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO weekly_limits (weekday, limit_value) VALUES (?, ?)", wd, limit,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FetchDailyOverride returns the override for a date key.
func (s *Store) FetchDailyOverride(ctx context.Context, key string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var limit int
	err := s.db.QueryRowContext(ctx, "SELECT limit_value FROM daily_limits WHERE day = ?", key).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return limit, true, nil
}

// SetDailyOverride upserts the override for a date key.
func (s *Store) SetDailyOverride(ctx context.Context, key string, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_limits (day, limit_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			limit_value = excluded.limit_value,
			updated_at = excluded.updated_at`,
		key, limit, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// CLIENT STORE
// =============================================================================

// SaveClient saves a client.
func (s *Store) SaveClient(ctx context.Context, c scheduling.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clients (id, name, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			start_date = excluded.start_date,
			end_date = excluded.end_date
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name,
		nullString(c.Window.Start.Key()), nullString(c.Window.End.Key()),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (*scheduling.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c scheduling.Client
	var start, end sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, start_date, end_date FROM clients WHERE id = ?",
		id,
	).Scan(&c.ID, &c.Name, &start, &end)

	if err == sql.ErrNoRows {
		return nil, scheduling.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Window.Start, _ = calendar.ParseKey(start.String)
	c.Window.End, _ = calendar.ParseKey(end.String)
	return &c, nil
}

// FetchClientMembershipWindow returns a client's window.
func (s *Store) FetchClientMembershipWindow(ctx context.Context, clientID string) (scheduling.MembershipWindow, error) {
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return scheduling.MembershipWindow{}, err
	}
	return c.Window, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"occurrences", "daily_limits", "weekly_limits", "clients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
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

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
