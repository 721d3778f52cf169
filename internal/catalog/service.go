// Package catalog manages product definitions and serves priced quotes for
// customer selections.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/cache"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/internal/pricing"
	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/internal/validate"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const (
	cachePrefix     = "catalog:"
	defaultPageSize = 50
	maxPageSize     = 100
)

// ChangeType says what happened to a product.
type ChangeType string

const (
	ProductCreated ChangeType = "created"
	ProductUpdated ChangeType = "updated"
	ProductDeleted ChangeType = "deleted"
)

// Listener is told about every successful catalog write.
type Listener func(productID string, change ChangeType)

type ProductInput struct {
	Name           string                      `json:"name" validate:"required,max=255"`
	Description    string                      `json:"description" validate:"required"`
	Category       models.Category             `json:"category" validate:"required"`
	BasePrice      decimal.Decimal             `json:"base_price"`
	OrderFee       decimal.Decimal             `json:"order_fee"`
	Images         []string                    `json:"images" validate:"dive,required"`
	Specifications map[string]models.SpecValue `json:"specifications"`
	OptionGroups   []models.OptionGroup        `json:"option_groups"`
	AddOns         []models.AddOn              `json:"add_ons"`
	Incentives     []models.Incentive          `json:"incentives"`
}

type ListQuery struct {
	Category models.Category
	Page     int
	PageSize int
}

type Service struct {
	store   storage.ProductStore
	engine  *pricing.Engine
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time

	mu        sync.RWMutex
	listeners []Listener

	// cacheMu orders cache fills against invalidation; generation counts
	// catalog writes.
	cacheMu    sync.Mutex
	generation uint64
}

func NewService(store storage.ProductStore, engine *pricing.Engine, c *cache.Cache, m *metrics.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		cache:   c,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Product, error) {
	key := cachePrefix + "product:" + id
	if v, ok := s.cache.Get(key); ok {
		return v.(*models.Product), nil
	}

	gen := s.currentGeneration()
	p, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.fill(gen, key, p)
	return p, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]*models.Product, error) {
	if q.Category != "" && !q.Category.Valid() {
		return nil, apperr.Validation(apperr.FieldError{Field: "category", Message: fmt.Sprintf("unknown category %q", q.Category)})
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	key := fmt.Sprintf("%slist:%s:%d:%d", cachePrefix, q.Category, q.Page, q.PageSize)
	if v, ok := s.cache.Get(key); ok {
		return v.([]*models.Product), nil
	}

	gen := s.currentGeneration()
	products, err := s.store.ListProducts(ctx, storage.ProductFilter{
		Category: q.Category,
		Limit:    q.PageSize,
		Offset:   (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.fill(gen, key, products)
	return products, nil
}

func (s *Service) Create(ctx context.Context, caller *models.Identity, in ProductInput) (*models.Product, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := in.product()
	p.ID = uuid.New().String()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := checkProduct(in, p); err != nil {
		return nil, err
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": p.ID,
		"category":   p.Category,
		"admin_id":   caller.UserID,
	}).Info("Product created")
	s.changed(p.ID, ProductCreated)
	return p, nil
}

func (s *Service) Update(ctx context.Context, caller *models.Identity, id string, in ProductInput) (*models.Product, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	existing, err := s.store.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	p := in.product()
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now().UTC()
	if p.UpdatedAt.Before(existing.UpdatedAt) {
		p.UpdatedAt = existing.UpdatedAt
	}

	if err := checkProduct(in, p); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("Product not found")
		}
		return nil, apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": p.ID,
		"admin_id":   caller.UserID,
	}).Info("Product updated")
	s.changed(p.ID, ProductUpdated)
	return p, nil
}

// Delete hides the product from the catalog. Stored orders keep their
// product reference.
func (s *Service) Delete(ctx context.Context, caller *models.Identity, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}

	err := s.store.DeleteProduct(ctx, id, s.now().UTC())
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Product not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": id,
		"admin_id":   caller.UserID,
	}).Info("Product deleted")
	s.changed(id, ProductDeleted)
	return nil
}

// Quote prices sel against the current definition of product id.
func (s *Service) Quote(ctx context.Context, id string, sel models.Selection) (*pricing.Quote, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q, err := s.engine.Quote(p, sel)
	if err != nil {
		s.metrics.Quotes.WithLabelValues("rejected").Inc()
		return nil, err
	}
	s.metrics.Quotes.WithLabelValues("ok").Inc()
	return q, nil
}

func (s *Service) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// fill caches a value read at generation gen unless a write has landed since.
func (s *Service) fill(gen uint64, key string, value interface{}) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.generation == gen {
		s.cache.Set(key, value)
	}
}

func (s *Service) invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.DeleteByPrefix(cachePrefix)
}

func (s *Service) changed(id string, change ChangeType) {
	s.invalidate()

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(id, change)
	}
}

func (in ProductInput) product() *models.Product {
	return &models.Product{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Category:       in.Category,
		BasePrice:      in.BasePrice,
		OrderFee:       in.OrderFee,
		Images:         in.Images,
		Specifications: in.Specifications,
		OptionGroups:   in.OptionGroups,
		AddOns:         in.AddOns,
		Incentives:     in.Incentives,
	}
}

func checkProduct(in ProductInput, p *models.Product) error {
	var fields []apperr.FieldError
	if err := validate.Struct(in); err != nil {
		appErr := apperr.As(err)
		if appErr.Kind != apperr.KindValidation {
			return err
		}
		fields = append(fields, appErr.Fields...)
	}
	if in.Category != "" && !in.Category.Valid() {
		fields = append(fields, apperr.FieldError{Field: "category", Message: fmt.Sprintf("unknown category %q", in.Category)})
	}
	if err := pricing.ValidateSchema(p); err != nil {
		fields = append(fields, apperr.As(err).Fields...)
	}
	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

func requireAdmin(caller *models.Identity) error {
	if caller == nil {
		return apperr.Unauthenticated("authentication required")
	}
	if !caller.IsAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}
