package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/jogardn/dtc-configurator/pkg/models"
)

type productDocument struct {
	ID             string                 `bson:"_id"`
	Name           string                 `bson:"name"`
	Description    string                 `bson:"description"`
	Category       string                 `bson:"category"`
	BasePrice      primitive.Decimal128   `bson:"base_price"`
	OrderFee       primitive.Decimal128   `bson:"order_fee"`
	Images         []string               `bson:"images"`
	Specifications map[string]interface{} `bson:"specifications"`
	OptionGroups   []optionGroupDocument  `bson:"option_groups"`
	AddOns         []pricedDocument       `bson:"add_ons"`
	Incentives     []pricedDocument       `bson:"incentives"`
	IsDeleted      bool                   `bson:"is_deleted"`
	CreatedAt      time.Time              `bson:"created_at"`
	UpdatedAt      time.Time              `bson:"updated_at"`
}

type optionGroupDocument struct {
	Name    string           `bson:"name"`
	Options []pricedDocument `bson:"options"`
}

// pricedDocument stores options, add-ons and incentives alike.
type pricedDocument struct {
	ID          string               `bson:"id"`
	Name        string               `bson:"name"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Description string               `bson:"description,omitempty"`
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	PasswordHash string    `bson:"password_hash"`
	IsAdmin      bool      `bson:"is_admin"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type orderDocument struct {
	ID              string                 `bson:"_id"`
	UserID          string                 `bson:"user_id"`
	ProductID       string                 `bson:"product_id"`
	Selection       selectionDocument      `bson:"selection"`
	ShippingAddress models.ShippingAddress `bson:"shipping_address"`
	LineItems       []lineItemDocument     `bson:"line_items"`
	TotalPrice      primitive.Decimal128   `bson:"total_price"`
	Status          string                 `bson:"status"`
	CreatedAt       time.Time              `bson:"created_at"`
	UpdatedAt       time.Time              `bson:"updated_at"`
}

type selectionDocument struct {
	Options    map[string]string `bson:"options"`
	AddOns     map[string]bool   `bson:"add_ons"`
	Incentives []string          `bson:"incentives"`
}

type lineItemDocument struct {
	Kind   string               `bson:"kind"`
	Group  string               `bson:"group,omitempty"`
	ID     string               `bson:"id"`
	Name   string               `bson:"name"`
	Amount primitive.Decimal128 `bson:"amount"`
}

func newProductDocument(p *models.Product) productDocument {
	doc := productDocument{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       string(p.Category),
		BasePrice:      toDecimal128(p.BasePrice),
		OrderFee:       toDecimal128(p.OrderFee),
		Images:         append([]string{}, p.Images...),
		Specifications: make(map[string]interface{}, len(p.Specifications)),
		OptionGroups:   make([]optionGroupDocument, 0, len(p.OptionGroups)),
		AddOns:         make([]pricedDocument, 0, len(p.AddOns)),
		Incentives:     make([]pricedDocument, 0, len(p.Incentives)),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for k, v := range p.Specifications {
		doc.Specifications[k] = v.Interface()
	}
	for _, g := range p.OptionGroups {
		gd := optionGroupDocument{Name: g.Name, Options: make([]pricedDocument, 0, len(g.Options))}
		for _, o := range g.Options {
			gd.Options = append(gd.Options, pricedDocument{
				ID: o.ID, Name: o.Name, Amount: toDecimal128(o.Price), Description: o.Description,
			})
		}
		doc.OptionGroups = append(doc.OptionGroups, gd)
	}
	for _, a := range p.AddOns {
		doc.AddOns = append(doc.AddOns, pricedDocument{
			ID: a.ID, Name: a.Name, Amount: toDecimal128(a.Price), Description: a.Description,
		})
	}
	for _, inc := range p.Incentives {
		doc.Incentives = append(doc.Incentives, pricedDocument{
			ID: inc.ID, Name: inc.Name, Amount: toDecimal128(inc.Amount),
		})
	}
	return doc
}

func (d productDocument) model() (*models.Product, error) {
	p := &models.Product{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description,
		Category:       models.Category(d.Category),
		Images:         d.Images,
		Specifications: make(map[string]models.SpecValue, len(d.Specifications)),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}

	var err error
	if p.BasePrice, err = fromDecimal128(d.BasePrice); err != nil {
		return nil, fmt.Errorf("product %s base_price: %w", d.ID, err)
	}
	if p.OrderFee, err = fromDecimal128(d.OrderFee); err != nil {
		return nil, fmt.Errorf("product %s order_fee: %w", d.ID, err)
	}

	for k, raw := range d.Specifications {
		spec, err := models.SpecFromInterface(raw)
		if err != nil {
			return nil, fmt.Errorf("product %s specification %q: %w", d.ID, k, err)
		}
		p.Specifications[k] = spec
	}

	for _, gd := range d.OptionGroups {
		g := models.OptionGroup{Name: gd.Name}
		for _, od := range gd.Options {
			price, err := fromDecimal128(od.Amount)
			if err != nil {
				return nil, fmt.Errorf("product %s option %s: %w", d.ID, od.ID, err)
			}
			g.Options = append(g.Options, models.Option{
				ID: od.ID, Name: od.Name, Price: price, Description: od.Description,
			})
		}
		p.OptionGroups = append(p.OptionGroups, g)
	}
	for _, ad := range d.AddOns {
		price, err := fromDecimal128(ad.Amount)
		if err != nil {
			return nil, fmt.Errorf("product %s add-on %s: %w", d.ID, ad.ID, err)
		}
		p.AddOns = append(p.AddOns, models.AddOn{
			ID: ad.ID, Name: ad.Name, Price: price, Description: ad.Description,
		})
	}
	for _, id := range d.Incentives {
		amount, err := fromDecimal128(id.Amount)
		if err != nil {
			return nil, fmt.Errorf("product %s incentive %s: %w", d.ID, id.ID, err)
		}
		p.Incentives = append(p.Incentives, models.Incentive{ID: id.ID, Name: id.Name, Amount: amount})
	}
	return p, nil
}

func newUserDocument(u *models.User) userDocument {
	return userDocument{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (d userDocument) model() *models.User {
	return &models.User{
		ID:           d.ID,
		Email:        d.Email,
		Name:         d.Name,
		PasswordHash: d.PasswordHash,
		IsAdmin:      d.IsAdmin,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func newOrderDocument(o *models.Order) orderDocument {
	doc := orderDocument{
		ID:        o.ID,
		UserID:    o.UserID,
		ProductID: o.ProductID,
		Selection: selectionDocument{
			Options:    o.Selection.Options,
			AddOns:     o.Selection.AddOns,
			Incentives: o.Selection.Incentives,
		},
		ShippingAddress: o.ShippingAddress,
		LineItems:       make([]lineItemDocument, 0, len(o.LineItems)),
		TotalPrice:      toDecimal128(o.TotalPrice),
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, li := range o.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemDocument{
			Kind: string(li.Kind), Group: li.Group, ID: li.ID, Name: li.Name, Amount: toDecimal128(li.Amount),
		})
	}
	return doc
}

func (d orderDocument) model() (*models.Order, error) {
	total, err := fromDecimal128(d.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("order %s total_price: %w", d.ID, err)
	}
	o := &models.Order{
		ID:        d.ID,
		UserID:    d.UserID,
		ProductID: d.ProductID,
		Selection: models.Selection{
			Options:    d.Selection.Options,
			AddOns:     d.Selection.AddOns,
			Incentives: d.Selection.Incentives,
		},
		ShippingAddress: d.ShippingAddress,
		TotalPrice:      total,
		Status:          models.OrderStatus(d.Status),
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, li := range d.LineItems {
		amount, err := fromDecimal128(li.Amount)
		if err != nil {
			return nil, fmt.Errorf("order %s line item %s: %w", d.ID, li.ID, err)
		}
		o.LineItems = append(o.LineItems, models.LineItem{
			Kind: models.LineItemKind(li.Kind), Group: li.Group, ID: li.ID, Name: li.Name, Amount: amount,
		})
	}
	return o, nil
}
