package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/detection"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres"
)

const historySchema = `CREATE TABLE IF NOT EXISTS detection_history (
	id           TEXT PRIMARY KEY,
	method       TEXT NOT NULL,
	disease_name TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL,
	severity     TEXT NOT NULL DEFAULT '',
	treatment    TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	suggestion   TEXT NOT NULL DEFAULT '',
	alternatives JSONB NOT NULL DEFAULT '[]',
	keywords     JSONB NOT NULL DEFAULT '[]',
	description  TEXT NOT NULL DEFAULT '',
	image_ref    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
)`

const historyCreatedIndex = `CREATE INDEX IF NOT EXISTS detection_history_created_at_idx ON detection_history (created_at DESC)`

const selectColumns = `SELECT id, method, disease_name, confidence, severity, treatment, status, reason,
	suggestion, alternatives, keywords, description, image_ref, created_at FROM detection_history`

// Postgres stores detections in the detection_history table.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "detection-history"),
	}
}

// Migrate creates the history table and its index if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.Migrate(ctx, historySchema, historyCreatedIndex); err != nil {
		return fmt.Errorf("migrating detection history: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, r *detection.Result) error {
	alternatives, err := json.Marshal(nonNil(r.Alternatives))
	if err != nil {
		return fmt.Errorf("marshaling alternatives: %w", err)
	}
	kw, err := json.Marshal(nonNil(r.Keywords))
	if err != nil {
		return fmt.Errorf("marshaling keywords: %w", err)
	}
	_, err = p.db.DB.ExecContext(ctx, `INSERT INTO detection_history
		(id, method, disease_name, confidence, severity, treatment, status, reason,
		 suggestion, alternatives, keywords, description, image_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, string(r.Method), r.DiseaseName, r.Confidence, r.Severity, r.Treatment,
		string(r.Status), string(r.Reason), r.Suggestion, alternatives, kw,
		r.Description, r.ImageRef, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving detection %s: %w", r.ID, err)
	}
	p.logger.Debug("detection saved", "id", r.ID)
	return nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*detection.Result, error) {
	row := p.db.DB.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("detection %s: %w", id, apperrors.ErrDetectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading detection %s: %w", id, err)
	}
	return r, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]*detection.Result, error) {
	rows, err := p.db.DB.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing detections: %w", err)
	}
	defer rows.Close()

	out := make([]*detection.Result, 0, limit)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning detection row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(s scanner) (*detection.Result, error) {
	var (
		r                      detection.Result
		method, status, reason string
		alternatives, kw       []byte
	)
	err := s.Scan(&r.ID, &method, &r.DiseaseName, &r.Confidence, &r.Severity, &r.Treatment,
		&status, &reason, &r.Suggestion, &alternatives, &kw, &r.Description, &r.ImageRef, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Method = detection.Method(method)
	r.Status = matcher.Status(status)
	r.Reason = matcher.Reason(reason)
	if err := json.Unmarshal(alternatives, &r.Alternatives); err != nil {
		return nil, fmt.Errorf("decoding alternatives: %w", err)
	}
	if err := json.Unmarshal(kw, &r.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
