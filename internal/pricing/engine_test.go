package pricing

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func modelY() *models.Product {
	return &models.Product{
		ID:        "model-y",
		Name:      "Model Y",
		Category:  models.CategoryModelY,
		BasePrice: d(41490),
		OrderFee:  d(250),
		OptionGroups: []models.OptionGroup{
			{Name: "color", Options: []models.Option{
				{ID: "stealth-grey", Name: "Stealth Grey", Price: d(0)},
				{ID: "pearl-white", Name: "Pearl White Multi-Coat", Price: d(1000)},
				{ID: "ultra-red", Name: "Ultra Red", Price: d(2000)},
			}},
			{Name: "wheels", Options: []models.Option{
				{ID: "crossflow-19", Name: "19in Crossflow Wheels", Price: d(0)},
				{ID: "helix-20", Name: "20in Helix 2.0 Wheels", Price: d(2000)},
			}},
		},
		AddOns: []models.AddOn{
			{ID: "tow", Name: "Tow Package", Price: d(1000)},
			{ID: "fsd", Name: "Full Self-Driving (Supervised)", Price: d(8000)},
		},
		Incentives: []models.Incentive{
			{ID: "tax-credit", Name: "Federal tax credit", Amount: d(7500)},
			{ID: "gas-savings", Name: "Est. 5-year gas savings", Amount: d(6000)},
		},
	}
}

func TestQuoteExampleScenario(t *testing.T) {
	q, err := NewEngine().Quote(modelY(), models.Selection{
		Options: map[string]string{"color": "pearl-white", "wheels": "helix-20"},
	})
	require.NoError(t, err)

	assert.True(t, q.Total.Equal(d(44490)), "total = %s", q.Total)
	assert.True(t, q.DueToday.Equal(d(250)))
	require.Len(t, q.LineItems, 3)
	assert.Equal(t, models.LineBase, q.LineItems[0].Kind)
	assert.Equal(t, "color", q.LineItems[1].Group)
	assert.Equal(t, "wheels", q.LineItems[2].Group)
	assert.True(t, q.PriceAfterSavings.Equal(q.Total), "no incentives selected")
}

func TestQuoteIsAdditive(t *testing.T) {
	tests := []struct {
		name   string
		sel    models.Selection
		expect int64
	}{
		{
			name:   "cheapest",
			sel:    models.Selection{Options: map[string]string{"color": "stealth-grey", "wheels": "crossflow-19"}},
			expect: 41490,
		},
		{
			name: "with add-ons",
			sel: models.Selection{
				Options: map[string]string{"color": "ultra-red", "wheels": "helix-20"},
				AddOns:  map[string]bool{"tow": true, "fsd": true},
			},
			expect: 41490 + 2000 + 2000 + 1000 + 8000,
		},
		{
			name: "add-on switched off",
			sel: models.Selection{
				Options: map[string]string{"color": "ultra-red", "wheels": "crossflow-19"},
				AddOns:  map[string]bool{"tow": false, "fsd": true},
			},
			expect: 41490 + 2000 + 8000,
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := engine.Quote(modelY(), tt.sel)
			require.NoError(t, err)
			assert.True(t, q.Total.Equal(d(tt.expect)), "total = %s, want %d", q.Total, tt.expect)

			sum := decimal.Zero
			for _, item := range q.LineItems {
				sum = sum.Add(item.Amount)
			}
			assert.True(t, sum.Equal(q.Total), "line items must add up to the total")
		})
	}
}

func TestQuoteRejectsBadSelections(t *testing.T) {
	tests := []struct {
		name  string
		sel   models.Selection
		field string
	}{
		{
			name:  "unknown option in group",
			sel:   models.Selection{Options: map[string]string{"color": "hot-pink", "wheels": "helix-20"}},
			field: "options.color.hot-pink",
		},
		{
			name:  "option from another group",
			sel:   models.Selection{Options: map[string]string{"color": "helix-20", "wheels": "helix-20"}},
			field: "options.color.helix-20",
		},
		{
			name:  "unknown group",
			sel:   models.Selection{Options: map[string]string{"color": "ultra-red", "wheels": "helix-20", "spoiler": "carbon"}},
			field: "options.spoiler.carbon",
		},
		{
			name:  "missing group",
			sel:   models.Selection{Options: map[string]string{"color": "ultra-red"}},
			field: "options.wheels",
		},
		{
			name: "unknown add-on",
			sel: models.Selection{
				Options: map[string]string{"color": "ultra-red", "wheels": "helix-20"},
				AddOns:  map[string]bool{"jetpack": true},
			},
			field: "add_ons.jetpack",
		},
		{
			name: "unknown incentive",
			sel: models.Selection{
				Options:    map[string]string{"color": "ultra-red", "wheels": "helix-20"},
				Incentives: []string{"lottery"},
			},
			field: "incentives",
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := engine.Quote(modelY(), tt.sel)
			require.Error(t, err)
			assert.Nil(t, q)

			appErr := apperr.As(err)
			assert.Equal(t, apperr.KindInvalidSelection, appErr.Kind)
			require.Len(t, appErr.Fields, 1)
			assert.Equal(t, tt.field, appErr.Fields[0].Field)
		})
	}
}

func TestQuoteSavingsAreOverlayOnly(t *testing.T) {
	q, err := NewEngine().Quote(modelY(), models.Selection{
		Options:    map[string]string{"color": "pearl-white", "wheels": "helix-20"},
		Incentives: []string{"gas-savings", "tax-credit"},
	})
	require.NoError(t, err)

	assert.True(t, q.Total.Equal(d(44490)), "savings never change the purchase price")
	assert.True(t, q.PriceAfterSavings.Equal(d(44490-7500-6000)))
	require.Len(t, q.Savings, 2)
	assert.Equal(t, "tax-credit", q.Savings[0].ID, "savings follow product order")
}

func TestQuoteSavingsFloorAtZero(t *testing.T) {
	p := modelY()
	p.Incentives = append(p.Incentives, models.Incentive{ID: "giveaway", Name: "Giveaway", Amount: d(100000)})

	q, err := NewEngine().Quote(p, models.Selection{
		Options:    map[string]string{"color": "stealth-grey", "wheels": "crossflow-19"},
		Incentives: []string{"giveaway"},
	})
	require.NoError(t, err)
	assert.True(t, q.PriceAfterSavings.IsZero())
	assert.True(t, q.Total.Equal(d(41490)))
}

func TestQuoteIsDeterministic(t *testing.T) {
	sel := models.Selection{
		Options:    map[string]string{"wheels": "helix-20", "color": "ultra-red"},
		AddOns:     map[string]bool{"fsd": true, "tow": true},
		Incentives: []string{"tax-credit"},
	}
	engine := NewEngine()
	first, err := engine.Quote(modelY(), sel)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Quote, 50)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := engine.Quote(modelY(), sel)
			if err == nil {
				results[i] = q
			}
		}(i)
	}
	wg.Wait()

	for i, q := range results {
		require.NotNil(t, q, "quote %d failed", i)
		assert.Equal(t, first, q)
	}
}

func TestQuoteFractionalPricesDoNotDrift(t *testing.T) {
	p := &models.Product{
		ID:        "wall",
		Name:      "Powerwall",
		BasePrice: decimal.RequireFromString("0.10"),
		OptionGroups: []models.OptionGroup{
			{Name: "a", Options: []models.Option{{ID: "x", Name: "x", Price: decimal.RequireFromString("0.20")}}},
		},
	}
	q, err := NewEngine().Quote(p, models.Selection{Options: map[string]string{"a": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "0.3", q.Total.String())
}
