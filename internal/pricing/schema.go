package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

// ValidateSchema checks a product's price schema before it is written to the
// catalog. A schema that passes can never yield a negative total, or a total
// too large for a money column, whatever the selection.
func ValidateSchema(p *models.Product) error {
	var fields []apperr.FieldError
	fail := func(field, format string, args ...interface{}) {
		fields = append(fields, apperr.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !checkAmounts(p, fail) {
		return apperr.Validation(fields...)
	}

	if p.BasePrice.IsNegative() {
		fail("base_price", "base price cannot be negative")
	}
	if p.OrderFee.IsNegative() {
		fail("order_fee", "order fee cannot be negative")
	}

	floor := p.BasePrice
	ceiling := p.BasePrice
	groups := make(map[string]bool, len(p.OptionGroups))
	for i, g := range p.OptionGroups {
		prefix := fmt.Sprintf("option_groups[%d]", i)
		if g.Name == "" {
			fail(prefix+".name", "option group name is required")
		} else if groups[g.Name] {
			fail(prefix+".name", "duplicate option group %q", g.Name)
		}
		groups[g.Name] = true

		if len(g.Options) == 0 {
			fail(prefix+".options", "option group %q has no options", g.Name)
			continue
		}

		ids := make(map[string]bool, len(g.Options))
		cheapest := g.Options[0].Price
		dearest := g.Options[0].Price
		for j, opt := range g.Options {
			optField := fmt.Sprintf("%s.options[%d]", prefix, j)
			if opt.ID == "" {
				fail(optField+".id", "option id is required")
			} else if ids[opt.ID] {
				fail(optField+".id", "duplicate option %q in group %q", opt.ID, g.Name)
			}
			ids[opt.ID] = true
			if opt.Name == "" {
				fail(optField+".name", "option name is required")
			}
			cheapest = decimal.Min(cheapest, opt.Price)
			dearest = decimal.Max(dearest, opt.Price)
		}
		floor = floor.Add(cheapest)
		ceiling = ceiling.Add(dearest)
	}

	addOns := make(map[string]bool, len(p.AddOns))
	for i, a := range p.AddOns {
		field := fmt.Sprintf("add_ons[%d]", i)
		if a.ID == "" {
			fail(field+".id", "add-on id is required")
		} else if addOns[a.ID] {
			fail(field+".id", "duplicate add-on %q", a.ID)
		}
		addOns[a.ID] = true
		if a.Price.IsNegative() {
			fail(field+".price", "add-on price cannot be negative")
		}
		ceiling = ceiling.Add(a.Price)
	}

	incentives := make(map[string]bool, len(p.Incentives))
	for i, inc := range p.Incentives {
		field := fmt.Sprintf("incentives[%d]", i)
		if inc.ID == "" {
			fail(field+".id", "incentive id is required")
		} else if incentives[inc.ID] {
			fail(field+".id", "duplicate incentive %q", inc.ID)
		}
		incentives[inc.ID] = true
		if inc.Amount.IsNegative() {
			fail(field+".amount", "incentive amount cannot be negative")
		}
	}

	if floor.IsNegative() {
		fail("option_groups", "cheapest configuration would be priced at %s", floor.String())
	}
	if ceiling.GreaterThanOrEqual(MaxAmount) {
		fail("option_groups", "most expensive configuration would be priced at %s", ceiling.String())
	}

	if len(fields) > 0 {
		return apperr.Validation(fields...)
	}
	return nil
}

// checkAmounts reports each amount that cannot be stored as money. Totals are
// only computed once every amount passes.
func checkAmounts(p *models.Product, fail func(field, format string, args ...interface{})) bool {
	ok := true
	check := func(field string, d decimal.Decimal) {
		if msg := CheckAmount(d); msg != "" {
			fail(field, "%s", msg)
			ok = false
		}
	}

	check("base_price", p.BasePrice)
	check("order_fee", p.OrderFee)
	for i, g := range p.OptionGroups {
		for j, opt := range g.Options {
			check(fmt.Sprintf("option_groups[%d].options[%d].price", i, j), opt.Price)
		}
	}
	for i, a := range p.AddOns {
		check(fmt.Sprintf("add_ons[%d].price", i), a.Price)
	}
	for i, inc := range p.Incentives {
		check(fmt.Sprintf("incentives[%d].amount", i), inc.Amount)
	}
	return ok
}
