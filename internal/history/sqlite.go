package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite archive connection. Use ":memory:"
// for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			survived INTEGER NOT NULL,
			rooms_reached INTEGER NOT NULL,
			gems_collected INTEGER NOT NULL,
			monsters_defeated INTEGER NOT NULL DEFAULT 0,
			ended_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_address ON runs(address, ended_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ended_at ON runs(ended_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveRun archives one completed run. A zero ID gets one assigned; a zero
// EndedAt gets the current time.
func (s *SQLiteStore) SaveRun(rec *RunRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.EndedAt.IsZero() {
		rec.EndedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, address, survived, rooms_reached, gems_collected, monsters_defeated, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Address, boolToInt(rec.Survived),
		rec.RoomsReached, rec.GemsCollected, rec.MonstersDefeated,
		rec.EndedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(id string) (*RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, address, survived, rooms_reached, gems_collected, monsters_defeated, ended_at
		 FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns archived runs newest-first with pagination
func (s *SQLiteStore) ListRuns(query RunsQuery) (*RunsList, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PerPage < 1 || query.PerPage > 100 {
		query.PerPage = 25
	}

	where := "WHERE 1=1"
	args := []any{}
	if query.Address != "" {
		where += " AND address = ?"
		args = append(args, query.Address)
	}
	if query.SurvivedOnly {
		where += " AND survived = 1"
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM runs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	offset := (query.Page - 1) * query.PerPage
	rows, err := s.db.Query(
		`SELECT id, address, survived, rooms_reached, gems_collected, monsters_defeated, ended_at
		 FROM runs `+where+` ORDER BY ended_at DESC LIMIT ? OFFSET ?`,
		append(args, query.PerPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	totalPages := (total + query.PerPage - 1) / query.PerPage
	return &RunsList{
		Runs:       runs,
		TotalCount: total,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}

// Summary aggregates all archived runs for one address
func (s *SQLiteStore) Summary(address string) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(survived), 0),
		        COALESCE(MAX(rooms_reached), 0),
		        COALESCE(MAX(gems_collected), 0),
		        COALESCE(SUM(gems_collected), 0),
		        COALESCE(SUM(monsters_defeated), 0)
		 FROM runs WHERE address = ?`, address,
	).Scan(&sum.TotalRuns, &sum.SurvivedRuns, &sum.BestRooms,
		&sum.BestGems, &sum.TotalGems, &sum.MonstersDefeated)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	return &sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var id, endedAt string
	var survived int
	if err := row.Scan(&id, &rec.Address, &survived, &rec.RoomsReached,
		&rec.GemsCollected, &rec.MonstersDefeated, &endedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("malformed run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Survived = survived != 0
	t, err := time.Parse(time.RFC3339Nano, endedAt)
	if err != nil {
		return nil, fmt.Errorf("malformed ended_at %q: %w", endedAt, err)
	}
	rec.EndedAt = t
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
