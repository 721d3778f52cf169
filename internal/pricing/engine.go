// Package pricing turns a product's option schema and a customer selection
// into an authoritative price with a line-item breakdown.
//
// The engine is a pure function of its inputs: it keeps no state, never
// substitutes defaults for missing choices, and emits line items in schema
// order so identical inputs always give identical quotes.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

type Quote struct {
	ProductID string            `json:"product_id"`
	LineItems []models.LineItem `json:"line_items"`
	Total     decimal.Decimal   `json:"total"`

	// Savings and PriceAfterSavings are display-only overlays.
	Savings           []models.LineItem `json:"savings,omitempty"`
	PriceAfterSavings decimal.Decimal   `json:"price_after_savings"`

	DueToday decimal.Decimal `json:"due_today"`
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Quote(product *models.Product, sel models.Selection) (*Quote, error) {
	if product == nil {
		return nil, apperr.InvalidSelection("product is required")
	}

	if err := checkUnknownGroups(product, sel); err != nil {
		return nil, err
	}

	quote := &Quote{
		ProductID: product.ID,
		LineItems: make([]models.LineItem, 0, len(product.OptionGroups)+1),
		DueToday:  product.OrderFee,
	}
	quote.LineItems = append(quote.LineItems, models.LineItem{
		Kind:   models.LineBase,
		Name:   product.Name,
		Amount: product.BasePrice,
	})
	total := product.BasePrice

	for i := range product.OptionGroups {
		group := &product.OptionGroups[i]
		optionID, ok := sel.Options[group.Name]
		if !ok || optionID == "" {
			return nil, selectionError(group.Name, "", "no option selected for group %q", group.Name)
		}
		opt, ok := group.Option(optionID)
		if !ok {
			return nil, selectionError(group.Name, optionID, "option %q is not available in group %q", optionID, group.Name)
		}
		quote.LineItems = append(quote.LineItems, models.LineItem{
			Kind:   models.LineOption,
			Group:  group.Name,
			ID:     opt.ID,
			Name:   opt.Name,
			Amount: opt.Price,
		})
		total = total.Add(opt.Price)
	}

	addOnTotal, addOnItems, err := addOns(product, sel)
	if err != nil {
		return nil, err
	}
	quote.LineItems = append(quote.LineItems, addOnItems...)
	total = total.Add(addOnTotal)

	if total.IsNegative() {
		return nil, apperr.InvalidSelection("configuration total for product %q is negative", product.ID)
	}
	quote.Total = total

	savingsTotal, savings, err := incentives(product, sel)
	if err != nil {
		return nil, err
	}
	quote.Savings = savings
	quote.PriceAfterSavings = decimal.Max(total.Sub(savingsTotal), decimal.Zero)

	return quote, nil
}

func checkUnknownGroups(product *models.Product, sel models.Selection) error {
	names := make([]string, 0, len(sel.Options))
	for name := range sel.Options {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := product.Group(name); !ok {
			return selectionError(name, sel.Options[name], "unknown option group %q", name)
		}
	}
	return nil
}

func addOns(product *models.Product, sel models.Selection) (decimal.Decimal, []models.LineItem, error) {
	known := make(map[string]bool, len(product.AddOns))
	for _, a := range product.AddOns {
		known[a.ID] = true
	}

	ids := make([]string, 0, len(sel.AddOns))
	for id := range sel.AddOns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !known[id] {
			return decimal.Zero, nil, apperr.InvalidSelection("unknown add-on %q", id).WithField("add_ons." + id)
		}
	}

	total := decimal.Zero
	var items []models.LineItem
	for _, a := range product.AddOns {
		if !sel.AddOns[a.ID] {
			continue
		}
		items = append(items, models.LineItem{
			Kind:   models.LineAddOn,
			ID:     a.ID,
			Name:   a.Name,
			Amount: a.Price,
		})
		total = total.Add(a.Price)
	}
	return total, items, nil
}

func incentives(product *models.Product, sel models.Selection) (decimal.Decimal, []models.LineItem, error) {
	requested := make(map[string]bool, len(sel.Incentives))
	for _, id := range sel.Incentives {
		requested[id] = true
	}

	total := decimal.Zero
	var items []models.LineItem
	for _, inc := range product.Incentives {
		if !requested[inc.ID] {
			continue
		}
		delete(requested, inc.ID)
		items = append(items, models.LineItem{
			Kind:   models.LineIncentive,
			ID:     inc.ID,
			Name:   inc.Name,
			Amount: inc.Amount.Neg(),
		})
		total = total.Add(inc.Amount)
	}

	if len(requested) > 0 {
		unknown := make([]string, 0, len(requested))
		for id := range requested {
			unknown = append(unknown, id)
		}
		sort.Strings(unknown)
		return decimal.Zero, nil, apperr.InvalidSelection("unknown incentive %q", unknown[0]).WithField("incentives")
	}
	return total, items, nil
}

func selectionError(group, option, format string, args ...interface{}) *apperr.Error {
	field := "options." + group
	if option != "" {
		field += "." + option
	}
	return apperr.InvalidSelection("%s", fmt.Sprintf(format, args...)).WithField(field)
}
