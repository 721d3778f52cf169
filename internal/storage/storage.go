// Package storage defines the persistence contracts shared by the catalog,
// auth and order services. Implementations live in the memory, postgres and
// mongo subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jogardn/dtc-configurator/pkg/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

type ProductFilter struct {
	Category models.Category
	Limit    int
	Offset   int
}

type OrderFilter struct {
	// UserID restricts results to one owner; empty means every order.
	UserID string
}

type ProductStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string, at time.Time) error
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, error)
	// UpdateOrderStatus overwrites status and moves updated_at forward to at,
	// never backwards. It returns the stored order after the write.
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error)
}

type Store interface {
	ProductStore
	UserStore
	OrderStore
	Ping(ctx context.Context) error
	Close() error
}
