package catalogue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS diseases (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	scientific_name TEXT,
	symptoms        TEXT NOT NULL,
	severity        TEXT,
	treatment       TEXT,
	active          INTEGER NOT NULL DEFAULT 1,
	updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diseases_active ON diseases (active);
`

const sqliteUpsert = `
INSERT INTO diseases (id, name, scientific_name, symptoms, severity, treatment, active, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	scientific_name = excluded.scientific_name,
	symptoms = excluded.symptoms,
	severity = excluded.severity,
	treatment = excluded.treatment,
	active = excluded.active,
	updated_at = excluded.updated_at`

// SQLite is a file-backed Store for the CLI and local development.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a catalogue database with WAL mode
// enabled.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite catalogue %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing catalogue schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) ActiveDiseases(ctx context.Context) ([]Entry, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM diseases WHERE active = 1 ORDER BY id`)
}

func (s *SQLite) Lookup(ctx context.Context, name string) (Entry, error) {
	entries, err := s.query(ctx, `SELECT `+selectColumns+` FROM diseases ORDER BY id`)
	if err != nil {
		return Entry{}, err
	}
	return resolve(entries, name)
}

func (s *SQLite) Upsert(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, sqliteArgs(e)...); err != nil {
		return fmt.Errorf("upserting disease %q: %w", e.Name, err)
	}
	return nil
}

// UpsertAll writes entries in one transaction.
func (s *SQLite) UpsertAll(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, raw := range entries {
		e, err := prepare(raw)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsert, sqliteArgs(e)...); err != nil {
			return fmt.Errorf("upserting disease %q: %w", e.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) query(ctx context.Context, q string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying diseases: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var scientific, severity, treatment sql.NullString
		var active int
		var updated string
		if err := rows.Scan(&e.ID, &e.Name, &scientific, &e.Symptoms, &severity, &treatment, &active, &updated); err != nil {
			return nil, fmt.Errorf("scanning disease: %w", err)
		}
		e.ScientificName = scientific.String
		e.Severity = severity.String
		e.Treatment = treatment.String
		e.Active = active != 0
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			e.UpdatedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diseases: %w", err)
	}
	return entries, nil
}

func sqliteArgs(e Entry) []any {
	active := 0
	if e.Active {
		active = 1
	}
	return []any{
		e.ID, e.Name, nullString(e.ScientificName), e.Symptoms, nullString(e.Severity),
		nullString(e.Treatment), active, e.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
