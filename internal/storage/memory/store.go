package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

// Store keeps everything in process memory. It backs tests and local
// development; records are deep-copied on the way in and out.
type Store struct {
	mutex    sync.RWMutex
	products map[string]*productRecord
	users    map[string]*models.User
	emails   map[string]string
	orders   map[string]*models.Order
}

type productRecord struct {
	product *models.Product
	deleted bool
}

func New() *Store {
	return &Store{
		products: make(map[string]*productRecord),
		users:    make(map[string]*models.User),
		emails:   make(map[string]string),
		orders:   make(map[string]*models.Order),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) UserCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.users)
}

func (s *Store) OrderCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.orders)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return storage.ErrDuplicate
	}
	s.products[p.ID] = &productRecord{product: copyProduct(p)}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.products[id]
	if !ok || rec.deleted {
		return nil, storage.ErrNotFound
	}
	return copyProduct(rec.product), nil
}

func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*models.Product
	for _, rec := range s.products {
		if rec.deleted {
			continue
		}
		if filter.Category != "" && rec.product.Category != filter.Category {
			continue
		}
		out = append(out, copyProduct(rec.product))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Product{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.products[p.ID]
	if !ok || rec.deleted {
		return storage.ErrNotFound
	}
	rec.product = copyProduct(p)
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rec, ok := s.products[id]
	if !ok || rec.deleted {
		return storage.ErrNotFound
	}
	rec.deleted = true
	rec.product.UpdatedAt = at
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.emails[email]; exists {
		return storage.ErrDuplicate
	}
	if _, exists := s.users[u.ID]; exists {
		return storage.ErrDuplicate
	}
	stored := *u
	s.users[u.ID] = &stored
	s.emails[email] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return storage.ErrDuplicate
	}
	s.orders[o.ID] = copyOrder(o)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*models.Order, 0)
	for _, o := range s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	o.Status = status
	if at.After(o.UpdatedAt) {
		o.UpdatedAt = at
	}
	return copyOrder(o), nil
}

func copyProduct(p *models.Product) *models.Product {
	out := *p
	out.Images = append([]string(nil), p.Images...)
	if p.Specifications != nil {
		out.Specifications = make(map[string]models.SpecValue, len(p.Specifications))
		for k, v := range p.Specifications {
			out.Specifications[k] = v
		}
	}
	out.OptionGroups = make([]models.OptionGroup, len(p.OptionGroups))
	for i, g := range p.OptionGroups {
		out.OptionGroups[i] = models.OptionGroup{
			Name:    g.Name,
			Options: append([]models.Option(nil), g.Options...),
		}
	}
	out.AddOns = append([]models.AddOn(nil), p.AddOns...)
	out.Incentives = append([]models.Incentive(nil), p.Incentives...)
	return &out
}

func copyOrder(o *models.Order) *models.Order {
	out := *o
	out.Selection = copySelection(o.Selection)
	out.LineItems = append([]models.LineItem(nil), o.LineItems...)
	return &out
}

func copySelection(sel models.Selection) models.Selection {
	out := models.Selection{
		Incentives: append([]string(nil), sel.Incentives...),
	}
	if sel.Options != nil {
		out.Options = make(map[string]string, len(sel.Options))
		for k, v := range sel.Options {
			out.Options[k] = v
		}
	}
	if sel.AddOns != nil {
		out.AddOns = make(map[string]bool, len(sel.AddOns))
		for k, v := range sel.AddOns {
			out.AddOns[k] = v
		}
	}
	return out
}

var _ storage.Store = (*Store)(nil)
