package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/cache"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/internal/pricing"
	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/internal/storage/memory"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

var (
	admin    = &models.Identity{UserID: "admin-1", IsAdmin: true}
	customer = &models.Identity{UserID: "user-1"}
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := memory.New()
	c := cache.New(time.Minute, 0)
	t.Cleanup(c.Close)

	_, err := Seed(context.Background(), store, DefaultProducts())
	require.NoError(t, err)
	return NewService(store, pricing.NewEngine(), c, metrics.New(), logger), store
}

func validInput() ProductInput {
	return ProductInput{
		Name:        "Cybertruck",
		Description: "All-electric pickup",
		Category:    models.CategoryCybertruck,
		BasePrice:   decimal.NewFromInt(79990),
		Images:      []string{"/images/cybertruck.jpg"},
		OptionGroups: []models.OptionGroup{{
			Name: "drive",
			Options: []models.Option{
				{ID: "awd", Name: "All-Wheel Drive", Price: decimal.Zero},
				{ID: "beast", Name: "Cyberbeast", Price: decimal.NewFromInt(20000)},
			},
		}},
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	n, err := Seed(ctx, store, DefaultProducts())
	require.NoError(t, err)
	assert.Equal(t, len(DefaultProducts()), n)

	n, err = Seed(ctx, store, DefaultProducts())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDefaultProductsPassSchemaChecks(t *testing.T) {
	for _, p := range DefaultProducts() {
		assert.NoError(t, pricing.ValidateSchema(p), p.ID)
		assert.True(t, p.Category.Valid(), p.ID)
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	p, err := svc.Get(ctx, "model-y")
	require.NoError(t, err)
	assert.Equal(t, "Model Y", p.Name)

	_, err = svc.Get(ctx, "roadster")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	all, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultProducts()))

	only, err := svc.List(ctx, ListQuery{Category: models.CategoryModelS})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "model-s", only[0].ID)

	page, err := svc.List(ctx, ListQuery{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page, len(DefaultProducts())-4)

	_, err = svc.List(ctx, ListQuery{Category: "Roadster"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, nil, validInput())
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = svc.Create(ctx, customer, validInput())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	p, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestCreateRejectsBadSchema(t *testing.T) {
	svc, _ := newTestService(t)

	in := validInput()
	in.Name = ""
	in.Category = "Roadster"
	in.BasePrice = decimal.NewFromInt(1000)
	in.OptionGroups[0].Options[0].Price = decimal.NewFromInt(-5000)

	_, err := svc.Create(context.Background(), admin, in)
	require.Error(t, err)
	appErr := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)

	fields := map[string]bool{}
	for _, f := range appErr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["category"])
	assert.True(t, fields["option_groups"])
}

func TestWritesInvalidateCacheAndNotify(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	var changes []ChangeType
	svc.OnChange(func(id string, change ChangeType) {
		changes = append(changes, change)
	})

	before, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	require.Len(t, before, len(DefaultProducts()))

	p, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	after, err := svc.List(ctx, ListQuery{})
	require.NoError(t, err)
	assert.Len(t, after, len(DefaultProducts())+1)

	in := validInput()
	in.Name = "Cybertruck Foundation"
	updated, err := svc.Update(ctx, admin, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cybertruck Foundation", got.Name)

	require.NoError(t, svc.Delete(ctx, admin, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.True(t, apperr.Is(svc.Delete(ctx, admin, p.ID), apperr.KindNotFound))

	assert.Equal(t, []ChangeType{ProductCreated, ProductUpdated, ProductDeleted}, changes)
}

// pausingStore holds the first GetProduct after it has read the store.
type pausingStore struct {
	storage.ProductStore
	once    sync.Once
	reached chan struct{}
	resume  chan struct{}
}

func (s *pausingStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.ProductStore.GetProduct(ctx, id)
	s.once.Do(func() {
		close(s.reached)
		<-s.resume
	})
	return p, err
}

func TestReadRacingWriteDoesNotCacheStaleProduct(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store := memory.New()
	_, err := Seed(ctx, store, DefaultProducts())
	require.NoError(t, err)
	c := cache.New(time.Minute, 0)
	t.Cleanup(c.Close)

	paused := &pausingStore{ProductStore: store, reached: make(chan struct{}), resume: make(chan struct{})}
	svc := NewService(paused, pricing.NewEngine(), c, metrics.New(), logger)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, "model-y")
		done <- err
	}()
	<-paused.reached
	require.NoError(t, svc.Delete(ctx, admin, "model-y"))
	close(paused.resume)
	require.NoError(t, <-done)

	_, err = svc.Get(ctx, "model-y")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCreateRejectsUnstorableAmounts(t *testing.T) {
	svc, _ := newTestService(t)

	in := validInput()
	in.BasePrice = decimal.RequireFromString("1e20000000")
	in.OptionGroups[0].Options[1].Price = decimal.RequireFromString("0.005")

	start := time.Now()
	_, err := svc.Create(context.Background(), admin, in)
	assert.Less(t, time.Since(start), time.Second)
	require.Error(t, err)
	fields := map[string]bool{}
	for _, f := range apperr.As(err).Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["base_price"])
	assert.True(t, fields["option_groups[0].options[1].price"])
}

func TestUpdateMissingProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Update(context.Background(), admin, "nope", validInput())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	q, err := svc.Quote(ctx, "model-y", models.Selection{Options: map[string]string{
		"drive": "lr-awd", "color": "pearl-white", "wheels": "helix-20", "interior": "all-black", "seats": "five-seat",
	}})
	require.NoError(t, err)
	assert.True(t, q.Total.Equal(decimal.NewFromInt(44490)), q.Total.String())

	_, err = svc.Quote(ctx, "model-y", models.Selection{Options: map[string]string{"color": "neon"}})
	assert.True(t, apperr.Is(err, apperr.KindInvalidSelection))
}

func TestQuoteSolarSystem(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	q, err := svc.Quote(ctx, "solar-powerwall", models.Selection{
		Options: map[string]string{"system_size": "9.6kw", "powerwalls": "two"},
		AddOns:  map[string]bool{"critter-guard": true},
	})
	require.NoError(t, err)
	assert.True(t, q.Total.Equal(decimal.NewFromInt(43790)), q.Total.String())

	energy, err := svc.List(ctx, ListQuery{Category: models.CategoryPowerwall})
	require.NoError(t, err)
	require.Len(t, energy, 1)
	assert.Equal(t, "powerwall", energy[0].ID)
}
