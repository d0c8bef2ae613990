// Package usage meters organization-wide plan consumption: storage,
// connections, and AI credits against the subscription's ceilings.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/DevSrijit/commsync-sub002/internal/model"
)

// migration holds a single schema migration with its target version
// and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id                TEXT PRIMARY KEY,
	billing_id        TEXT NOT NULL UNIQUE,
	org_id            TEXT NOT NULL,
	status            TEXT NOT NULL,
	plan_type         TEXT NOT NULL,
	total_storage     INTEGER NOT NULL DEFAULT 0,
	total_connections INTEGER NOT NULL DEFAULT 0,
	total_ai_credits  INTEGER NOT NULL DEFAULT 0,
	max_users         INTEGER NOT NULL DEFAULT 0,
	used_storage      INTEGER NOT NULL DEFAULT 0,
	used_connections  INTEGER NOT NULL DEFAULT 0,
	used_ai_credits   INTEGER NOT NULL DEFAULT 0,
	period_start      DATETIME NOT NULL,
	period_end        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_org ON subscriptions(org_id);

CREATE TABLE IF NOT EXISTS org_members (
	org_id  TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (org_id, user_id)
);

CREATE TABLE IF NOT EXISTS linked_accounts (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	provider_type TEXT NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_linked_accounts_user ON linked_accounts(user_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// ErrNoSubscription is returned when an organization has no
// subscription row.
var ErrNoSubscription = errors.New("no subscription for organization")

// Store persists subscriptions, organization membership, and the
// linked-account registry used for connection counting.
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (or creates) the usage database at dbPath, enables
// WAL mode, and runs any pending schema migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening usage db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running usage migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying usage migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ApplyBillingEvent reconciles one billing-provider event. Events are
// keyed on billing_id so replays converge on the same row. A canceled
// event deletes the row; every other status upserts the ceilings and
// period while preserving the used_* counters.
func (s *Store) ApplyBillingEvent(ctx context.Context, ev model.BillingEvent) error {
	if ev.Status == model.StatusCanceled {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM subscriptions WHERE billing_id = ?", ev.BillingID,
		)
		if err != nil {
			return fmt.Errorf("deleting canceled subscription %s: %w", ev.BillingID, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, billing_id, org_id, status, plan_type,
			total_storage, total_connections, total_ai_credits, max_users,
			period_start, period_end, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(billing_id) DO UPDATE SET
			org_id            = excluded.org_id,
			status            = excluded.status,
			plan_type         = excluded.plan_type,
			total_storage     = excluded.total_storage,
			total_connections = excluded.total_connections,
			total_ai_credits  = excluded.total_ai_credits,
			max_users         = excluded.max_users,
			period_start      = excluded.period_start,
			period_end        = excluded.period_end,
			updated_at        = excluded.updated_at`,
		uuid.New().String(), ev.BillingID, ev.OrgID, string(ev.Status), ev.PlanType,
		ev.TotalStorage, ev.TotalConnections, ev.TotalAICredits, ev.MaxUsers,
		ev.PeriodStart.UTC(), ev.PeriodEnd.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting subscription %s: %w", ev.BillingID, err)
	}
	return nil
}

// GetByOrg returns the organization's subscription, or
// ErrNoSubscription.
func (s *Store) GetByOrg(ctx context.Context, orgID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.GetContext(ctx, &sub, `
		SELECT id, billing_id, org_id, status, plan_type,
		       total_storage, total_connections, total_ai_credits, max_users,
		       used_storage, used_connections, used_ai_credits,
		       period_start, period_end, updated_at
		FROM subscriptions WHERE org_id = ?`,
		orgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("reading subscription for org %s: %w", orgID, err)
	}
	return &sub, nil
}

// WriteUsage records freshly computed usage counters in a single
// write, clamping each to its plan ceiling.
func (s *Store) WriteUsage(
	ctx context.Context,
	orgID string,
	usedStorage int64,
	usedConnections int,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			used_storage     = MIN(?, total_storage),
			used_connections = MIN(?, total_connections),
			updated_at       = ?
		WHERE org_id = ?`,
		usedStorage, usedConnections, time.Now().UTC(), orgID,
	)
	if err != nil {
		return fmt.Errorf("writing usage for org %s: %w", orgID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoSubscription
	}
	return nil
}

// DebitAICredits adds cost to the AI-credit counter, clamped to the
// plan ceiling.
func (s *Store) DebitAICredits(ctx context.Context, orgID string, cost int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			used_ai_credits = MIN(used_ai_credits + ?, total_ai_credits),
			updated_at      = ?
		WHERE org_id = ?`,
		cost, time.Now().UTC(), orgID,
	)
	if err != nil {
		return fmt.Errorf("debiting ai credits for org %s: %w", orgID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoSubscription
	}
	return nil
}

// AddMember records a user as a member of an organization. Re-adding
// an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, orgID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO org_members (org_id, user_id) VALUES (?, ?)",
		orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding member %s to org %s: %w", userID, orgID, err)
	}
	return nil
}

// Members returns the user ids belonging to an organization.
func (s *Store) Members(ctx context.Context, orgID string) ([]string, error) {
	var userIDs []string
	err := s.db.SelectContext(ctx, &userIDs,
		"SELECT user_id FROM org_members WHERE org_id = ? ORDER BY user_id",
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing members of org %s: %w", orgID, err)
	}
	return userIDs, nil
}

// RegisterLinkedAccount records a linked account for connection
// counting.
func (s *Store) RegisterLinkedAccount(ctx context.Context, account model.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO linked_accounts (id, user_id, provider_type, label, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.UserID, string(account.ProviderType), account.Label,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("registering linked account %s: %w", account.ID, err)
	}
	return nil
}

// UnregisterLinkedAccount removes a linked account. Removing a missing
// row is not an error.
func (s *Store) UnregisterLinkedAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM linked_accounts WHERE id = ?", accountID,
	)
	if err != nil {
		return fmt.Errorf("unregistering linked account %s: %w", accountID, err)
	}
	return nil
}

// CountLinkedAccounts counts linked accounts across the given users in
// one aggregate query.
func (s *Store) CountLinkedAccounts(ctx context.Context, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		"SELECT COUNT(*) FROM linked_accounts WHERE user_id IN (?)",
		userIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("building connection aggregate: %w", err)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("counting linked accounts: %w", err)
	}
	return count, nil
}
