// Package sqlite implements store.Store on SQLite via Grove ORM and the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/settings"
	substore "github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// compile-time interface check
var _ substore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens the database at path. ":memory:" gives a private in-memory
// database; the pool is pinned to one connection so it is not lost.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	var opts []driver.Option
	if path == ":memory:" {
		dsn = path
		opts = append(opts, driver.WithPoolSize(1))
	}

	sdb := sqlitedriver.New()
	if err := sdb.Open(ctx, dsn, opts...); err != nil {
		return nil, fmt.Errorf("subvault/sqlite: open %s: %w", path, err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		_ = sdb.Close()
		return nil, fmt.Errorf("subvault/sqlite: open grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("subvault/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

const nextIDQuery = `INSERT INTO subvault_counters (name, value) VALUES ('subscription', 1)
ON CONFLICT (name) DO UPDATE SET value = value + 1
RETURNING value - 1`

// CreateSubscription allocates the next id and inserts in one transaction.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) (err error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("subvault/sqlite: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.NewRaw(nextIDQuery).Scan(ctx, &next); err != nil {
		return fmt.Errorf("subvault/sqlite: allocate id: %w", err)
	}
	if next < 0 || next > math.MaxUint32 {
		err = subvault.ErrOverflow
		return err
	}

	m := toSubscriptionModel(sub)
	m.ID = next
	if _, err = tx.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("subvault/sqlite: insert subscription: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("subvault/sqlite: commit: %w", err)
	}
	sub.ID = subscription.ID(next)
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subvault/sqlite: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	res, err := s.sdb.NewUpdate(toSubscriptionModel(sub)).
		Column(mutableSubscriptionColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/sqlite: update subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subvault.ErrSubscriptionNotFound
	}
	return nil
}

const subscriptionColumns = "id, subscriber, merchant, amount, interval_seconds, last_payment_timestamp, " +
	"status, prepaid_balance, usage_enabled, created_at, updated_at"

// listQuery builds the filtered, id-ordered select for ListSubscriptions.
func listQuery(opts subscription.ListOpts) (string, []any, error) {
	q := sq.Select(subscriptionColumns).From("subvault_subscriptions").OrderBy("id ASC")
	if opts.Status != "" {
		q = q.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.DueBefore != 0 {
		q = q.Where("last_payment_timestamp <= ? - interval_seconds", opts.DueBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	} else if opts.Offset > 0 {
		// SQLite requires LIMIT before OFFSET.
		q = q.Limit(math.MaxInt64)
	}
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}
	return q.ToSql()
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	query, args, err := listQuery(opts)
	if err != nil {
		return nil, fmt.Errorf("subvault/sqlite: build list query: %w", err)
	}

	var models []subscriptionModel
	if err := s.sdb.NewRaw(query, args...).Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("subvault/sqlite: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	m := new(settingsModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", settingsRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrNotInitialized
		}
		return nil, fmt.Errorf("subvault/sqlite: get settings: %w", err)
	}
	return fromSettingsModel(m), nil
}

func (s *Store) CreateSettings(ctx context.Context, st *settings.Settings) error {
	res, err := s.sdb.NewInsert(toSettingsModel(st)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/sqlite: insert settings: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subvault.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	res, err := s.sdb.NewUpdate(toSettingsModel(st)).
		Column(mutableSettingsColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("subvault/sqlite: update settings: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subvault.ErrNotInitialized
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
