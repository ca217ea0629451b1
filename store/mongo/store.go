// Package mongo implements store.Store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/settings"
	substore "github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// Collection name constants.
const (
	colSubscriptions = "subvault_subscriptions"
	colSettings      = "subvault_settings"
	colCounters      = "subvault_counters"
)

// compile-time interface check
var _ substore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
//
// Id allocation and insert are two separate writes; an insert that fails
// after allocation leaves a gap in the id sequence.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a store on database name of an open client.
func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// Connect dials uri and uses database name.
func Connect(uri, name string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("subvault/mongo: connect: %w", err)
	}
	return New(client, name), nil
}

// Migrate creates indexes for all subvault collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("subvault/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Subscription Store ====================

func (s *Store) nextID(ctx context.Context) (int64, error) {
	var c counterModel
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "subscription"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("subvault/mongo: allocate id: %w", err)
	}
	return c.Seq - 1, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	next, err := s.nextID(ctx)
	if err != nil {
		return err
	}
	if next < 0 || next > math.MaxUint32 {
		return subvault.ErrOverflow
	}
	sub.ID = subscription.ID(next)

	if _, err := s.db.Collection(colSubscriptions).InsertOne(ctx, toSubscriptionModel(sub)); err != nil {
		return fmt.Errorf("subvault/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.db.Collection(colSubscriptions).FindOne(ctx, bson.M{"_id": int64(subID)}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("subvault/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) PutSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.db.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"subscriber":             m.Subscriber,
			"merchant":               m.Merchant,
			"amount":                 m.Amount,
			"interval_seconds":       m.IntervalSeconds,
			"last_payment_timestamp": m.LastPaymentTimestamp,
			"status":                 m.Status,
			"prepaid_balance":        m.PrepaidBalance,
			"usage_enabled":          m.UsageEnabled,
			"updated_at":             m.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("subvault/mongo: update subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		return subvault.ErrSubscriptionNotFound
	}
	return nil
}

// listFilter translates ListOpts into a query filter.
func listFilter(opts subscription.ListOpts) bson.M {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.DueBefore != 0 {
		filter["$expr"] = bson.M{"$lte": bson.A{
			"$last_payment_timestamp",
			bson.M{"$subtract": bson.A{opts.DueBefore, "$interval_seconds"}},
		}}
	}
	return filter
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.db.Collection(colSubscriptions).Find(ctx, listFilter(opts), findOpts)
	if err != nil {
		return nil, fmt.Errorf("subvault/mongo: list subscriptions: %w", err)
	}
	var models []subscriptionModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("subvault/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, 0, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

// ==================== Settings Store ====================

func (s *Store) GetSettings(ctx context.Context) (*settings.Settings, error) {
	var m settingsModel
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": settingsDocID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subvault.ErrNotInitialized
		}
		return nil, fmt.Errorf("subvault/mongo: get settings: %w", err)
	}
	return fromSettingsModel(&m), nil
}

func (s *Store) CreateSettings(ctx context.Context, st *settings.Settings) error {
	_, err := s.db.Collection(colSettings).InsertOne(ctx, toSettingsModel(st))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return subvault.ErrAlreadyInitialized
		}
		return fmt.Errorf("subvault/mongo: create settings: %w", err)
	}
	return nil
}

func (s *Store) PutSettings(ctx context.Context, st *settings.Settings) error {
	m := toSettingsModel(st)
	res, err := s.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"_id": settingsDocID},
		bson.M{"$set": bson.M{
			"token":            m.Token,
			"admin":            m.Admin,
			"min_topup":        m.MinTopup,
			"billing_service":  m.BillingService,
			"metering_service": m.MeteringService,
			"updated_at":       m.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("subvault/mongo: update settings: %w", err)
	}
	if res.MatchedCount == 0 {
		return subvault.ErrNotInitialized
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all subvault collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "subscriber", Value: 1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}}},
		},
	}
}
