package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"rsscord/internal/model"
	"rsscord/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database. WAL mode is
// enabled so the bot and web processes can open the same file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSubscription inserts a new subscription and populates its ID
// and AddedAt. Returns ErrDuplicateSubscription if the (url, channel)
// pair is already registered.
func (s *SQLite) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE url = ? AND channel_id = ?`,
		sub.URL, sub.ChannelID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if count > 0 {
		return ErrDuplicateSubscription
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (url, guild_id, channel_id, role_ping, active, added_at)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		sub.URL, sub.GuildID, sub.ChannelID, sub.RolePing, now,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	sub.ID = id
	sub.Active = true
	sub.AddedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSubscription returns a single subscription by its ID.
func (s *SQLite) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, guild_id, channel_id, role_ping, active, added_at
		 FROM subscriptions WHERE id = ?`, id,
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListSubscriptions returns subscriptions in insertion order, filtered
// by guild when guildID is non-empty.
func (s *SQLite) ListSubscriptions(ctx context.Context, guildID string) ([]model.Subscription, error) {
	query := `SELECT id, url, guild_id, channel_id, role_ping, active, added_at
	          FROM subscriptions ORDER BY id`
	args := []any{}
	if guildID != "" {
		query = `SELECT id, url, guild_id, channel_id, role_ping, active, added_at
		         FROM subscriptions WHERE guild_id = ? ORDER BY id`
		args = append(args, guildID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// ListActiveSubscriptions returns all active subscriptions in insertion order.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, guild_id, channel_id, role_ping, active, added_at
		 FROM subscriptions WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSubscriptions(rows)
}

// UpdateSubscription applies a partial update and returns the updated
// subscription. Returns ErrNotFound if the id is absent.
func (s *SQLite) UpdateSubscription(ctx context.Context, id int64, patch model.SubscriptionPatch) (*model.Subscription, error) {
	sub, err := s.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Active != nil {
		sub.Active = *patch.Active
	}
	if patch.RolePing != nil {
		sub.RolePing = *patch.RolePing
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE subscriptions SET role_ping = ?, active = ? WHERE id = ?`,
		sub.RolePing, boolToInt(sub.Active), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes a subscription and its marker. Unknown
// ids are a no-op so that deletion stays idempotent.
func (s *SQLite) DeleteSubscription(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM markers WHERE subscription_id = ?`, id); err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return tx.Commit()
}

// GetMarker returns the last-delivered item key for a subscription, or
// "" if no marker has been set.
func (s *SQLite) GetMarker(ctx context.Context, subscriptionID int64) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_key FROM markers WHERE subscription_id = ?`, subscriptionID,
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get marker: %w", err)
	}
	return key, nil
}

// SetMarker records the last-delivered item key for a subscription.
func (s *SQLite) SetMarker(ctx context.Context, subscriptionID int64, key string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers (subscription_id, last_key, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (subscription_id) DO UPDATE SET last_key = excluded.last_key, updated_at = excluded.updated_at`,
		subscriptionID, key, now,
	)
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// CountSubscriptions returns summary counts for the status endpoint.
func (s *SQLite) CountSubscriptions(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(active), 0),
		        COALESCE(SUM(CASE WHEN role_ping != '' THEN 1 ELSE 0 END), 0)
		 FROM subscriptions`,
	).Scan(&c.Total, &c.Active, &c.WithRole)
	if err != nil {
		return Counts{}, fmt.Errorf("count subscriptions: %w", err)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var active int
	var added sql.NullString
	err := row.Scan(&sub.ID, &sub.URL, &sub.GuildID, &sub.ChannelID, &sub.RolePing, &active, &added)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.Active = active == 1
	if added.Valid {
		sub.AddedAt, _ = time.Parse(timeLayout, added.String)
	}
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
