package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// cacheMigration holds a single schema migration with its target
// version and SQL.
type cacheMigration struct {
	version int
	sql     string
}

// cacheMigrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var cacheMigrations = []cacheMigration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_entries (
	user_id    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	size       INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, key)
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_user ON cache_entries(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// ErrCacheMiss is returned by Get when no row exists for the key.
var ErrCacheMiss = errors.New("cache miss")

// Cache is the persisted key-value cache backing the canonical store.
// Rows are scoped per user so organization-wide storage usage can be
// measured with one aggregate query. Cached state is rebuildable from
// provider re-sync and is never the system of record.
type Cache struct {
	db *sqlx.DB
}

// OpenCache opens (or creates) the cache database at dbPath, enables
// WAL mode, and runs any pending schema migrations.
func OpenCache(dbPath string) (*Cache, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &Cache{db: db}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running cache migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *Cache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range cacheMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying cache migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Put inserts or replaces a cache row, recording the value size for
// the storage aggregate.
func (c *Cache) Put(ctx context.Context, userID, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (user_id, key, value, size, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		userID, key, value, len(value), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing cache entry %s/%s: %w", userID, key, err)
	}
	return nil
}

// Get retrieves a cache row's value, or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, userID, key string) ([]byte, error) {
	var value []byte
	err := c.db.GetContext(ctx, &value,
		"SELECT value FROM cache_entries WHERE user_id = ? AND key = ?",
		userID, key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s/%s: %w", userID, key, err)
	}
	return value, nil
}

// Delete removes a cache row. Deleting a missing row is not an error.
func (c *Cache) Delete(ctx context.Context, userID, key string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE user_id = ? AND key = ?",
		userID, key,
	)
	if err != nil {
		return fmt.Errorf("deleting cache entry %s/%s: %w", userID, key, err)
	}
	return nil
}

// SizeForUsers sums cached bytes across all given users in a single
// aggregate query.
func (c *Cache) SizeForUsers(ctx context.Context, userIDs []string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		"SELECT COALESCE(SUM(size), 0) FROM cache_entries WHERE user_id IN (?)",
		userIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("building storage aggregate: %w", err)
	}

	var total int64
	if err := c.db.GetContext(ctx, &total, c.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("computing storage aggregate: %w", err)
	}
	return total, nil
}

// messagesKey is the cache key for one account's message snapshot.
func messagesKey(accountID string) string {
	return "messages:" + accountID
}

// SaveMessages persists one account's slice of the working set under
// the owning user's scope.
func (c *Cache) SaveMessages(
	ctx context.Context,
	userID, accountID string,
	msgs []model.Message,
) error {
	value, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshaling messages for %s: %w", accountID, err)
	}
	return c.Put(ctx, userID, messagesKey(accountID), value)
}

// LoadMessages restores one account's message snapshot. A missing
// snapshot is an empty slice, not an error.
func (c *Cache) LoadMessages(
	ctx context.Context,
	userID, accountID string,
) ([]model.Message, error) {
	value, err := c.Get(ctx, userID, messagesKey(accountID))
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []model.Message
	if err := json.Unmarshal(value, &msgs); err != nil {
		return nil, fmt.Errorf("unmarshaling messages for %s: %w", accountID, err)
	}
	return msgs, nil
}
