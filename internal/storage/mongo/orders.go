package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.orders.InsertOne(ctx, newOrderDocument(o))
	return mapError(err)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc orderDocument
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.model()
}

func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.orders.Find(ctx, query, findOptions)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.model()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{"status": string(status)},
		"$max": bson.M{"updated_at": at},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDocument
	if err := s.orders.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.model()
}
