// Package postgres opens the shared PostgreSQL pool used for the disease
// catalogue, detection history and analytics snapshots, and applies their
// schemas.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
)

// migrationLock serialises schema changes across replicas starting together.
const migrationLock = 0x706c616e74

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	checksum   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	logger := slog.Default().With("component", "postgres")
	logger.Debug("connected", "host", cfg.Host, "database", cfg.Database, "max_open_conns", cfg.MaxOpenConns)
	return &Client{DB: db, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate applies each DDL statement once. Applied statements are recorded
// by checksum in schema_migrations, so editing a statement applies it again;
// statements must stay idempotent.
func (c *Client) Migrate(ctx context.Context, statements ...string) error {
	if _, err := c.DB.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return fmt.Errorf("taking migration lock: %w", err)
		}
		for _, stmt := range statements {
			sum := checksum(stmt)
			var applied bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE checksum = $1)`, sum,
			).Scan(&applied)
			if err != nil {
				return fmt.Errorf("checking migration %s: %w", sum, err)
			}
			if applied {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration %s: %w", sum, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (checksum) VALUES ($1)`, sum); err != nil {
				return fmt.Errorf("recording migration %s: %w", sum, err)
			}
			c.logger.Info("migration applied", "checksum", sum)
		}
		return nil
	})
}

func checksum(stmt string) string {
	return strconv.FormatUint(xxhash.Sum64String(stmt), 16)
}

// InTx runs fn in a transaction, committing when it returns nil and rolling
// back otherwise, including when fn panics.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
