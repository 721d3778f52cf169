// Package storagetest holds the behaviour every storage.Store must share. The
// memory store runs it on every test run; the postgres and mongo stores run it
// when a database is configured through the environment.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

// Run exercises store. Records are keyed by fresh ids so a shared database
// can be reused between runs.
func Run(t *testing.T, store storage.Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, store) })
	t.Run("products", func(t *testing.T) { testProducts(t, store) })
	t.Run("orders", func(t *testing.T) { testOrders(t, store) })
}

// stamp drops precision the databases do not keep.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func newUser() *models.User {
	id := uuid.NewString()
	now := stamp(time.Now())
	return &models.User{
		ID:           id,
		Email:        "buyer-" + id + "@example.com",
		Name:         "Test Buyer",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newProduct() *models.Product {
	now := stamp(time.Now())
	return &models.Product{
		ID:          "test-" + uuid.NewString(),
		Name:        "Model Y",
		Description: "Midsize SUV",
		Category:    models.CategoryModelY,
		BasePrice:   decimal.RequireFromString("44990.50"),
		OrderFee:    decimal.NewFromInt(250),
		Images:      []string{"model-y.jpg"},
		OptionGroups: []models.OptionGroup{{
			Name: "paint",
			Options: []models.Option{
				{ID: "white", Name: "Pearl White", Price: decimal.Zero},
				{ID: "red", Name: "Ultra Red", Price: decimal.NewFromInt(2000)},
			},
		}},
		AddOns:    []models.AddOn{{ID: "fsd", Name: "Full Self-Driving", Price: decimal.NewFromInt(8000)}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testUsers(t *testing.T, store storage.Store) {
	ctx := context.Background()
	u := newUser()
	require.NoError(t, store.CreateUser(ctx, u))

	byEmail, err := store.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
	assert.Equal(t, u.PasswordHash, byEmail.PasswordHash)

	byID, err := store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Name, byID.Name)
	assert.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	dup := newUser()
	dup.Email = u.Email
	assert.ErrorIs(t, store.CreateUser(ctx, dup), storage.ErrDuplicate)

	_, err = store.GetUserByEmail(ctx, "nobody-"+uuid.NewString()+"@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testProducts(t *testing.T, store storage.Store) {
	ctx := context.Background()
	p := newProduct()
	require.NoError(t, store.CreateProduct(ctx, p))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, p.BasePrice.Equal(got.BasePrice), got.BasePrice.String())
	assert.True(t, p.OrderFee.Equal(got.OrderFee), got.OrderFee.String())
	require.Len(t, got.OptionGroups, 1)
	require.Len(t, got.OptionGroups[0].Options, 2)
	assert.True(t, got.OptionGroups[0].Options[1].Price.Equal(decimal.NewFromInt(2000)))
	require.Len(t, got.AddOns, 1)
	assert.Equal(t, "fsd", got.AddOns[0].ID)

	p.Name = "Model Y Long Range"
	p.BasePrice = decimal.NewFromInt(47990)
	p.UpdatedAt = stamp(time.Now().Add(time.Second))
	require.NoError(t, store.UpdateProduct(ctx, p))
	got, err = store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Model Y Long Range", got.Name)
	assert.True(t, got.BasePrice.Equal(decimal.NewFromInt(47990)))

	listed, err := store.ListProducts(ctx, storage.ProductFilter{Category: models.CategoryModelY})
	require.NoError(t, err)
	assert.Contains(t, productIDs(listed), p.ID)

	other, err := store.ListProducts(ctx, storage.ProductFilter{Category: models.CategoryCybertruck})
	require.NoError(t, err)
	assert.NotContains(t, productIDs(other), p.ID)

	require.NoError(t, store.DeleteProduct(ctx, p.ID, time.Now()))
	_, err = store.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.DeleteProduct(ctx, p.ID, time.Now()), storage.ErrNotFound)
	assert.ErrorIs(t, store.UpdateProduct(ctx, p), storage.ErrNotFound)

	listed, err = store.ListProducts(ctx, storage.ProductFilter{})
	require.NoError(t, err)
	assert.NotContains(t, productIDs(listed), p.ID)
}

func testOrders(t *testing.T, store storage.Store) {
	ctx := context.Background()
	u := newUser()
	require.NoError(t, store.CreateUser(ctx, u))
	p := newProduct()
	require.NoError(t, store.CreateProduct(ctx, p))

	created := stamp(time.Now())
	newOrder := func(at time.Time) *models.Order {
		return &models.Order{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			ProductID: p.ID,
			Selection: models.Selection{Options: map[string]string{"paint": "red"}},
			ShippingAddress: models.ShippingAddress{
				Street: "1 Tesla Rd", City: "Austin", State: "TX", ZipCode: "78725", Country: "US",
			},
			LineItems: []models.LineItem{
				{Kind: models.LineBase, Name: "Model Y", Amount: p.BasePrice},
				{Kind: models.LineOption, Group: "paint", ID: "red", Name: "Ultra Red", Amount: decimal.NewFromInt(2000)},
			},
			TotalPrice: p.BasePrice.Add(decimal.NewFromInt(2000)),
			Status:     models.StatusPending,
			CreatedAt:  at,
			UpdatedAt:  at,
		}
	}
	older := newOrder(created)
	newer := newOrder(created.Add(time.Second))
	require.NoError(t, store.CreateOrder(ctx, older))
	require.NoError(t, store.CreateOrder(ctx, newer))
	assert.ErrorIs(t, store.CreateOrder(ctx, older), storage.ErrDuplicate)

	got, err := store.GetOrder(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "red", got.Selection.Options["paint"])
	assert.Equal(t, "Austin", got.ShippingAddress.City)
	require.Len(t, got.LineItems, 2)
	assert.True(t, older.TotalPrice.Equal(got.TotalPrice), got.TotalPrice.String())

	mine, err := store.ListOrders(ctx, storage.OrderFilter{UserID: u.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	moved, err := store.UpdateOrderStatus(ctx, older.ID, models.StatusConfirmed, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, moved.Status)
	assert.True(t, moved.UpdatedAt.Equal(created.Add(time.Minute)))

	kept, err := store.UpdateOrderStatus(ctx, older.ID, models.StatusShipped, created)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, kept.Status)
	assert.True(t, kept.UpdatedAt.Equal(created.Add(time.Minute)), "updated_at moved backwards to %s", kept.UpdatedAt)

	_, err = store.GetOrder(ctx, uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.UpdateOrderStatus(ctx, uuid.NewString(), models.StatusConfirmed, time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func productIDs(products []*models.Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
