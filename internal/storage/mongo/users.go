package mongo

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/jogardn/dtc-configurator/pkg/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := newUserDocument(u)
	doc.Email = strings.ToLower(doc.Email)
	_, err := s.users.InsertOne(ctx, doc)
	return mapError(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return doc.model(), nil
}
