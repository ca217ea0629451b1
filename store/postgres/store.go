// Package postgres implements store.Store on PostgreSQL via Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/settings"
	substore "github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// compile-time interface check
var _ substore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects a pgdriver pool to dsn and wraps it in a store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pg := pgdriver.New()
	if err := pg.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("subvault/postgres: connect: %w", err)
	}
	db, err := grove.Open(pg)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("subvault/postgres: open grove: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

var tracer = otel.Tracer("subvault/store/postgres")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// fail records err on span and returns it unchanged.
func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("subvault/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault/postgres: migration failed: %w", err)
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
ON CONFLICT (name) DO UPDATE SET value = subvault_counters.value + 1
RETURNING value - 1`

// CreateSubscription allocates the next id and inserts in one transaction,
// so a failed insert never burns an id.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) (err error) {
	ctx, span := startSpan(ctx, "CreateSubscription")
	defer span.End()

	tx, err := s.pg.BeginTxQuery(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: begin: %w", err), "begin failed")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int64
	if err = tx.NewRaw(nextIDQuery).Scan(ctx, &next); err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: allocate id: %w", err), "allocate id failed")
	}
	if next < 0 || next > math.MaxUint32 {
		err = subvault.ErrOverflow
		return fail(span, err, "id space exhausted")
	}

	m := toSubscriptionModel(sub)
	m.ID = next
	if _, err = tx.NewInsert(m).Exec(ctx); err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: insert subscription: %w", err), "insert failed")
	}
	if err = tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: commit: %w", err), "commit failed")
	}

	sub.ID = subscription.ID(next)
	span.SetAttributes(attribute.Int64("subscription.id", next))
	span.SetStatus(codes.Ok, "subscription created")
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	ctx, span := startSpan(ctx, "GetSubscription", attribute.Int64("subscription.id", int64(subID)))
	defer span.End()

	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			span.SetStatus(codes.Error, "subscription not found")
			return nil, subvault.ErrSubscriptionNotFound
		}
		return nil, fail(span, fmt.Errorf("subvault/postgres: get subscription: %w", err), "query failed")
	}
	return fromSubscriptionModel(m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	ctx, span := startSpan(ctx, "PutSubscription", attribute.Int64("subscription.id", int64(sub.ID)))
	defer span.End()

	res, err := s.pg.NewUpdate(toSubscriptionModel(sub)).
		Column(mutableSubscriptionColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: update subscription: %w", err), "update failed")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fail(span, err, "rows affected failed")
	}
	if rows == 0 {
		span.SetStatus(codes.Error, "subscription not found")
		return subvault.ErrSubscriptionNotFound
	}
	return nil
}

const subscriptionColumns = "id, subscriber, merchant, amount, interval_seconds, last_payment_timestamp, " +
	"status, prepaid_balance, usage_enabled, created_at, updated_at"

// listQuery builds the filtered, id-ordered select for ListSubscriptions.
func listQuery(opts subscription.ListOpts) (string, []any, error) {
	q := sq.Select(subscriptionColumns).
		From("subvault_subscriptions").
		PlaceholderFormat(sq.Dollar).
		OrderBy("id ASC")

	if opts.Status != "" {
		q = q.Where(sq.Eq{"status": string(opts.Status)})
	}
	if opts.DueBefore != 0 {
		// Rearranged so the sum cannot overflow BIGINT.
		q = q.Where("last_payment_timestamp <= ? - interval_seconds", opts.DueBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}
	return q.ToSql()
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ctx, span := startSpan(ctx, "ListSubscriptions",
		attribute.String("filter.status", string(opts.Status)),
		attribute.Int64("filter.due_before", opts.DueBefore),
	)
	defer span.End()

	query, args, err := listQuery(opts)
	if err != nil {
		return nil, fail(span, fmt.Errorf("subvault/postgres: build list query: %w", err), "build query failed")
	}

	var models []subscriptionModel
	if err := s.pg.NewRaw(query, args...).Scan(ctx, &models); err != nil {
		return nil, fail(span, fmt.Errorf("subvault/postgres: list subscriptions: %w", err), "query failed")
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, fail(span, err, "decode failed")
		}
		result[i] = sub
	}

	span.SetAttributes(attribute.Int("result.count", len(result)))
	return result, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	ctx, span := startSpan(ctx, "GetSettings")
	defer span.End()

	m := new(settingsModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", settingsRowID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subvault.ErrNotInitialized
		}
		return nil, fail(span, fmt.Errorf("subvault/postgres: get settings: %w", err), "query failed")
	}
	return fromSettingsModel(m), nil
}

func (s *Store) CreateSettings(ctx context.Context, st *settings.Settings) error {
	ctx, span := startSpan(ctx, "CreateSettings")
	defer span.End()

	res, err := s.pg.NewInsert(toSettingsModel(st)).
		OnConflict("(id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: insert settings: %w", err), "insert failed")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fail(span, err, "rows affected failed")
	}
	if rows == 0 {
		return subvault.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	ctx, span := startSpan(ctx, "PutSettings")
	defer span.End()

	res, err := s.pg.NewUpdate(toSettingsModel(st)).
		Column(mutableSettingsColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fail(span, fmt.Errorf("subvault/postgres: update settings: %w", err), "update failed")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fail(span, err, "rows affected failed")
	}
	if rows == 0 {
		return subvault.ErrNotInitialized
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}
