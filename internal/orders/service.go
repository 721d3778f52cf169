// Package orders captures priced orders for authenticated customers and lets
// administrators move them through their lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/internal/cache"
	"github.com/jogardn/dtc-configurator/internal/events"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/internal/pricing"
	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/internal/validate"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const (
	idempotencyPrefix     = "order:idem:"
	maxIdempotencyKeyLen  = 255
	defaultPublishTimeout = 5 * time.Second
)

// ProductSource resolves a product id to its current definition.
type ProductSource interface {
	Get(ctx context.Context, id string) (*models.Product, error)
}

// UserSource resolves the customer behind an order.
type UserSource interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

type SubmitRequest struct {
	ProductID       string                 `json:"product_id" validate:"required"`
	Selection       models.Selection       `json:"selection"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	// TotalPrice is what the client believes the order costs. It must be a
	// storable amount and is only compared against the server total for
	// logging.
	TotalPrice *decimal.Decimal `json:"total_price,omitempty"`
}

// inFlight marks an idempotency key whose first submission has not finished.
type inFlight struct{}

type Service struct {
	store     storage.OrderStore
	products  ProductSource
	users     UserSource
	engine    *pricing.Engine
	publisher events.Publisher
	idem      *cache.Cache
	idemTTL   time.Duration
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	now       func() time.Time

	publishTimeout time.Duration
}

type Options struct {
	Store          storage.OrderStore
	Products       ProductSource
	Users          UserSource
	Engine         *pricing.Engine
	Publisher      events.Publisher
	Cache          *cache.Cache
	IdempotencyTTL time.Duration
	Metrics        *metrics.Metrics
	Logger         *logrus.Logger
}

func NewService(opts Options) *Service {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     opts.Store,
		products:  opts.Products,
		users:     opts.Users,
		engine:    opts.Engine,
		publisher: publisher,
		idem:      opts.Cache,
		idemTTL:   opts.IdempotencyTTL,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       time.Now,

		publishTimeout: defaultPublishTimeout,
	}
}

// SubmitOrder prices req against the stored product and persists a pending
// order owned by caller. When idemKey is set and the caller already submitted
// with the same key, the first order is returned and replayed is true.
func (s *Service) SubmitOrder(ctx context.Context, caller *models.Identity, req SubmitRequest, idemKey string) (order *models.Order, replayed bool, err error) {
	defer func() {
		if err != nil {
			s.metrics.OrdersRejected.WithLabelValues(string(apperr.KindOf(err))).Inc()
		}
	}()

	if caller == nil {
		return nil, false, apperr.Unauthenticated("Authentication required")
	}

	if idemKey != "" {
		if len(idemKey) > maxIdempotencyKeyLen {
			return nil, false, apperr.Validation(apperr.FieldError{
				Field:   "Idempotency-Key",
				Message: fmt.Sprintf("Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen),
			})
		}
		key := idempotencyPrefix + caller.UserID + ":" + idemKey
		prev, stored := s.idem.SetNX(key, inFlight{}, s.idemTTL)
		if !stored {
			return s.replay(ctx, caller, prev)
		}
		defer func() {
			if err != nil {
				s.idem.Delete(key)
				return
			}
			s.idem.Set(key, order.ID, s.idemTTL)
		}()
	}

	order, err = s.capture(ctx, caller, req)
	if err != nil {
		return nil, false, err
	}
	return order, false, nil
}

func (s *Service) replay(ctx context.Context, caller *models.Identity, prev interface{}) (*models.Order, bool, error) {
	id, ok := prev.(string)
	if !ok {
		return nil, false, apperr.Conflict("A request with this Idempotency-Key is still being processed")
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, false, apperr.Internal(fmt.Errorf("load replayed order %s: %w", id, err))
	}
	s.logger.WithFields(logrus.Fields{
		"order_id": o.ID,
		"user_id":  caller.UserID,
	}).Info("Returning order for repeated Idempotency-Key")
	return o, true, nil
}

func (s *Service) capture(ctx context.Context, caller *models.Identity, req SubmitRequest) (*models.Order, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.TotalPrice != nil {
		if msg := pricing.CheckAmount(*req.TotalPrice); msg != "" {
			return nil, apperr.Validation(apperr.FieldError{Field: "total_price", Message: msg})
		}
	}

	product, err := s.products.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	quote, err := s.engine.Quote(product, req.Selection)
	if err != nil {
		return nil, err
	}

	if req.TotalPrice != nil && !req.TotalPrice.Equal(quote.Total) {
		s.logger.WithFields(logrus.Fields{
			"user_id":      caller.UserID,
			"product_id":   product.ID,
			"client_total": req.TotalPrice.String(),
			"server_total": quote.Total.String(),
		}).Warn("Discarding client-supplied total")
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          caller.UserID,
		ProductID:       product.ID,
		Selection:       req.Selection,
		ShippingAddress: req.ShippingAddress,
		LineItems:       quote.LineItems,
		TotalPrice:      quote.Total,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create order: %w", err))
	}

	s.metrics.OrdersSubmitted.Inc()
	s.metrics.OrderValueDollar.Observe(order.TotalPrice.InexactFloat64())
	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"user_id":     order.UserID,
		"product_id":  order.ProductID,
		"total_price": order.TotalPrice.String(),
	}).Info("Order created")

	s.publish(ctx, events.NewOrderCreated(order, now))
	return order, nil
}

// SetStatus overwrites the status of order id. Any status may follow any other.
func (s *Service) SetStatus(ctx context.Context, caller *models.Identity, id string, status models.OrderStatus) (*models.Order, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.New(apperr.KindInvalidStatus, "Invalid status %q", status).WithField("status")
	}

	current, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, orderLookupError(err)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return nil, orderLookupError(err)
	}

	s.metrics.StatusChanges.WithLabelValues(string(status)).Inc()
	s.logger.WithFields(logrus.Fields{
		"order_id":        id,
		"previous_status": current.Status,
		"status":          status,
		"admin_id":        caller.UserID,
	}).Info("Order status updated")

	s.publish(ctx, events.NewStatusChanged(updated, current.Status, updated.UpdatedAt))
	return updated, nil
}

// Get returns order id to its owner or to an administrator.
func (s *Service) Get(ctx context.Context, caller *models.Identity, id string) (*models.Order, error) {
	if caller == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, orderLookupError(err)
	}
	if o.UserID != caller.UserID && !caller.IsAdmin {
		return nil, apperr.Forbidden("Not authorized to view this order")
	}
	s.describe(ctx, []*models.Order{o}, caller.IsAdmin)
	return o, nil
}

func (s *Service) ListMine(ctx context.Context, caller *models.Identity) ([]*models.Order, error) {
	if caller == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	orders, err := s.store.ListOrders(ctx, storage.OrderFilter{UserID: caller.UserID})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.describe(ctx, orders, false)
	return orders, nil
}

func (s *Service) ListAll(ctx context.Context, caller *models.Identity) ([]*models.Order, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	orders, err := s.store.ListOrders(ctx, storage.OrderFilter{})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.describe(ctx, orders, true)
	return orders, nil
}

// describe attaches the product summary to each order and, when withCustomer
// is set, the customer's name and email. References that no longer resolve
// are left empty.
func (s *Service) describe(ctx context.Context, orders []*models.Order, withCustomer bool) {
	products := make(map[string]*models.ProductSummary)
	customers := make(map[string]*models.CustomerSummary)
	for _, o := range orders {
		ps, seen := products[o.ProductID]
		if !seen {
			ps = s.productSummary(ctx, o.ProductID)
			products[o.ProductID] = ps
		}
		o.Product = ps

		if !withCustomer || s.users == nil {
			continue
		}
		cs, seen := customers[o.UserID]
		if !seen {
			cs = s.customerSummary(ctx, o.UserID)
			customers[o.UserID] = cs
		}
		o.Customer = cs
	}
}

func (s *Service) productSummary(ctx context.Context, id string) *models.ProductSummary {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.logger.WithError(err).WithField("product_id", id).Warn("Failed to load product for order summary")
		}
		return nil
	}
	return &models.ProductSummary{ID: p.ID, Name: p.Name, BasePrice: p.BasePrice}
}

func (s *Service) customerSummary(ctx context.Context, id string) *models.CustomerSummary {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WithError(err).WithField("user_id", id).Warn("Failed to load customer for order summary")
		}
		return nil
	}
	return &models.CustomerSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// publish ignores request cancellation and returns after publishTimeout even
// when the publisher does not. Failures are logged only; the order is already
// stored.
func (s *Service) publish(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.publisher.Publish(ctx, e) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("publish %s event: %w", e.Type, ctx.Err())
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"order_id":   e.OrderID,
			"event_type": e.Type,
		}).Warn("Order event not published")
	}
}

func requireAdmin(caller *models.Identity) error {
	if caller == nil {
		return apperr.Unauthenticated("Authentication required")
	}
	if !caller.IsAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

func orderLookupError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Order not found")
	}
	return apperr.Internal(err)
}
