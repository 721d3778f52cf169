// Package mongo persists products, users and orders in MongoDB. Money is kept
// as Decimal128 so amounts survive the round trip exactly.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jogardn/dtc-configurator/internal/storage"
)

type Store struct {
	client   *mongo.Client
	products *mongo.Collection
	users    *mongo.Collection
	orders   *mongo.Collection
	timeout  time.Duration
	logger   *logrus.Logger
}

// Connect dials uri and binds the store to database name.
func Connect(ctx context.Context, uri, name string, timeout time.Duration, logger *logrus.Logger) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.WithField("database", name).Info("Connected to MongoDB")
	return New(client, client.Database(name), timeout, logger), nil
}

func New(client *mongo.Client, db *mongo.Database, timeout time.Duration, logger *logrus.Logger) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		client:   client,
		products: db.Collection("products"),
		users:    db.Collection("users"),
		orders:   db.Collection("orders"),
		timeout:  timeout,
		logger:   logger,
	}
}

// EnsureIndexes creates the unique email index the registration path relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create users.email index: %w", err)
	}

	_, err = s.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create orders.user_id index: %w", err)
	}

	_, err = s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "category", Value: 1}, {Key: "is_deleted", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create products.category index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	return err
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// decimal.String never produces text Decimal128 rejects within the
		// precision used for prices.
		panic(fmt.Sprintf("decimal %s out of Decimal128 range: %v", d, err))
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

var _ storage.Store = (*Store)(nil)
