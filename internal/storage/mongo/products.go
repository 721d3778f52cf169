package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.products.InsertOne(ctx, newProductDocument(p))
	return mapError(err)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc productDocument
	filter := bson.M{"_id": id, "is_deleted": false}
	if err := s.products.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.model()
}

func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := bson.M{"is_deleted": false}
	if filter.Category != "" {
		query["category"] = string(filter.Category)
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		findOptions.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		findOptions.SetSkip(int64(filter.Offset))
	}

	cursor, err := s.products.Find(ctx, query, findOptions)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	products := make([]*models.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.model()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := newProductDocument(p)
	update := bson.M{"$set": bson.M{
		"name":           doc.Name,
		"description":    doc.Description,
		"category":       doc.Category,
		"base_price":     doc.BasePrice,
		"order_fee":      doc.OrderFee,
		"images":         doc.Images,
		"specifications": doc.Specifications,
		"option_groups":  doc.OptionGroups,
		"add_ons":        doc.AddOns,
		"incentives":     doc.Incentives,
		"updated_at":     doc.UpdatedAt,
	}}

	result, err := s.products.UpdateOne(ctx, bson.M{"_id": p.ID, "is_deleted": false}, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"is_deleted": true, "updated_at": at}}
	result, err := s.products.UpdateOne(ctx, bson.M{"_id": id, "is_deleted": false}, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
