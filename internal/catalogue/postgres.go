package catalogue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS diseases (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	scientific_name TEXT,
	symptoms        TEXT NOT NULL,
	severity        TEXT,
	treatment       TEXT,
	active          BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const postgresActiveIndex = `CREATE INDEX IF NOT EXISTS idx_diseases_active ON diseases (active)`

const postgresUpsert = `
INSERT INTO diseases (id, name, scientific_name, symptoms, severity, treatment, active, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name) DO UPDATE SET
	scientific_name = EXCLUDED.scientific_name,
	symptoms = EXCLUDED.symptoms,
	severity = EXCLUDED.severity,
	treatment = EXCLUDED.treatment,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`

const selectColumns = `id, name, scientific_name, symptoms, severity, treatment, active, updated_at`

// Postgres is a Store backed by the diseases table.
type Postgres struct {
	client *postgres.Client
}

func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{client: client}
}

// Migrate creates the diseases table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.client.Migrate(ctx, postgresSchema, postgresActiveIndex)
}

func (p *Postgres) ActiveDiseases(ctx context.Context) ([]Entry, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM diseases WHERE active ORDER BY id`)
}

func (p *Postgres) Lookup(ctx context.Context, name string) (Entry, error) {
	entries, err := p.query(ctx, `SELECT `+selectColumns+` FROM diseases ORDER BY id`)
	if err != nil {
		return Entry{}, err
	}
	return resolve(entries, name)
}

func (p *Postgres) Upsert(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}
	_, err = p.client.DB.ExecContext(ctx, postgresUpsert,
		e.ID, e.Name, nullString(e.ScientificName), e.Symptoms, nullString(e.Severity), nullString(e.Treatment), e.Active, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting disease %q: %w", e.Name, err)
	}
	return nil
}

// UpsertAll writes entries in one transaction.
func (p *Postgres) UpsertAll(ctx context.Context, entries []Entry) error {
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, postgresUpsert)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, raw := range entries {
			e, err := prepare(raw)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, e.ID, e.Name, nullString(e.ScientificName), e.Symptoms,
				nullString(e.Severity), nullString(e.Treatment), e.Active, e.UpdatedAt); err != nil {
				return fmt.Errorf("upserting disease %q: %w", e.Name, err)
			}
		}
		return nil
	})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close is a no-op; the shared client is closed by its owner.
func (p *Postgres) Close() error { return nil }

func (p *Postgres) query(ctx context.Context, q string) ([]Entry, error) {
	rows, err := p.client.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying diseases: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var scientific, severity, treatment sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &scientific, &e.Symptoms, &severity, &treatment, &e.Active, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning disease: %w", err)
		}
		e.ScientificName = scientific.String
		e.Severity = severity.String
		e.Treatment = treatment.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diseases: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
