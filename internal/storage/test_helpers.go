package storage

import (
	"context"
	"testing"
	"time"

	"github.com/creator-rewards/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testPostgres connects to the local dev database, skipping the test when it
// is unavailable.
func testPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "creator_rewards",
		User:           "rewards",
		Password:       "rewards_dev_password",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return nil
	}
	t.Cleanup(db.Close)
	return db
}
