// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/db"
)

// Open creates a migrated SQLite database inside t.TempDir().
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "messaging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// OpenPair opens two independent connection pools on one migrated SQLite
// file, so tests can interleave transactions that each hold their own
// connection.
func OpenPair(t testing.TB) (*sqlx.DB, *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messaging.db")
	first, err := db.Connect(db.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })
	second, err := db.Connect(db.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })
	return first, second
}

// Clock hands out strictly increasing timestamps, one step apart.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock starts at a fixed instant and advances one second per call.
func NewClock() *Clock {
	return &Clock{next: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), step: time.Second}
}

// Now returns the current tick and advances.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Freeze stops the clock from advancing, so every call returns the same instant.
func (c *Clock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = 0
}
