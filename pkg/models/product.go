package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryModelS     Category = "Model S"
	CategoryModel3     Category = "Model 3"
	CategoryModelX     Category = "Model X"
	CategoryModelY     Category = "Model Y"
	CategoryCybertruck Category = "Cybertruck"
	CategoryPowerwall  Category = "Powerwall"
	CategorySolarRoof  Category = "Solar Roof"
)

var Categories = []Category{
	CategoryModelS,
	CategoryModel3,
	CategoryModelX,
	CategoryModelY,
	CategoryCybertruck,
	CategoryPowerwall,
	CategorySolarRoof,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Product struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Category       Category             `json:"category"`
	BasePrice      decimal.Decimal      `json:"base_price"`
	OrderFee       decimal.Decimal      `json:"order_fee"`
	Images         []string             `json:"images"`
	Specifications map[string]SpecValue `json:"specifications,omitempty"`
	OptionGroups   []OptionGroup        `json:"option_groups"`
	AddOns         []AddOn              `json:"add_ons,omitempty"`
	Incentives     []Incentive          `json:"incentives,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// OptionGroup is one customization axis. Its options are mutually exclusive.
type OptionGroup struct {
	Name    string   `json:"name"`
	Options []Option `json:"options"`
}

// Option.Price is a delta relative to the product base price and may be zero or negative.
type Option struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

type AddOn struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
}

// Incentive is an informational savings estimate, e.g. a tax credit. It is shown
// next to a quote and never reduces a stored order total.
type Incentive struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

func (p *Product) Group(name string) (*OptionGroup, bool) {
	for i := range p.OptionGroups {
		if p.OptionGroups[i].Name == name {
			return &p.OptionGroups[i], true
		}
	}
	return nil, false
}

func (g *OptionGroup) Option(id string) (*Option, bool) {
	for i := range g.Options {
		if g.Options[i].ID == id {
			return &g.Options[i], true
		}
	}
	return nil, false
}

type SpecKind int

const (
	SpecString SpecKind = iota
	SpecNumber
)

// SpecValue holds a single product specification, either a string ("327mi")
// or a number (125).
type SpecValue struct {
	Kind SpecKind
	Str  string
	Num  float64
}

func StringSpec(s string) SpecValue  { return SpecValue{Kind: SpecString, Str: s} }
func NumberSpec(n float64) SpecValue { return SpecValue{Kind: SpecNumber, Num: n} }

// Interface returns the raw Go value, a string or a float64.
func (v SpecValue) Interface() interface{} {
	if v.Kind == SpecNumber {
		return v.Num
	}
	return v.Str
}

func (v SpecValue) String() string {
	if v.Kind == SpecNumber {
		return fmt.Sprintf("%g", v.Num)
	}
	return v.Str
}

func (v SpecValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *SpecValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringSpec(s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("specification values must be strings or numbers")
	}
	*v = NumberSpec(n)
	return nil
}

// SpecFromInterface converts a decoded document value back into a SpecValue.
func SpecFromInterface(raw interface{}) (SpecValue, error) {
	switch val := raw.(type) {
	case string:
		return StringSpec(val), nil
	case float64:
		return NumberSpec(val), nil
	case float32:
		return NumberSpec(float64(val)), nil
	case int32:
		return NumberSpec(float64(val)), nil
	case int64:
		return NumberSpec(float64(val)), nil
	case int:
		return NumberSpec(float64(val)), nil
	default:
		return SpecValue{}, fmt.Errorf("unsupported specification value type %T", raw)
	}
}
