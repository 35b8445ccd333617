// Package postgrestest connects tests to a throwaway PostgreSQL database
// described by TEST_POSTGRES_* variables and skips them when none is
// reachable.
package postgrestest

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres"
)

// Open returns a client for the test database or skips t.
func Open(t testing.TB) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	client, err := postgres.New(config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "plantdisease_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "plantdisease"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
