package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/apperr"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func TestValidateSchemaAcceptsCatalogProduct(t *testing.T) {
	assert.NoError(t, ValidateSchema(modelY()))
}

func TestValidateSchemaAllowsNegativeDeltasAboveZero(t *testing.T) {
	p := modelY()
	p.OptionGroups = append(p.OptionGroups, models.OptionGroup{
		Name: "trade-in",
		Options: []models.Option{
			{ID: "none", Name: "No trade-in", Price: d(0)},
			{ID: "sedan", Name: "Sedan trade-in", Price: d(-5000)},
		},
	})
	assert.NoError(t, ValidateSchema(p))
}

func TestValidateSchemaRejectsNegativeProducingSchema(t *testing.T) {
	p := modelY()
	p.BasePrice = d(1000)
	p.OptionGroups[0].Options[0].Price = d(-1500)

	err := ValidateSchema(p)
	require.Error(t, err)
	appErr := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "option_groups", appErr.Fields[len(appErr.Fields)-1].Field)
}

func TestValidateSchemaFieldErrors(t *testing.T) {
	p := modelY()
	p.BasePrice = d(-1)
	p.OptionGroups[1].Name = "color"
	p.OptionGroups[0].Options[1].ID = "stealth-grey"
	p.AddOns[0].Price = d(-10)
	p.Incentives[1].ID = ""

	err := ValidateSchema(p)
	require.Error(t, err)

	fields := map[string]bool{}
	for _, f := range apperr.As(err).Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["base_price"])
	assert.True(t, fields["option_groups[1].name"])
	assert.True(t, fields["option_groups[0].options[1].id"])
	assert.True(t, fields["add_ons[0].price"])
	assert.True(t, fields["incentives[1].id"])
}

func TestValidateSchemaRejectsUnstorableAmounts(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(p *models.Product)
		field string
	}{
		{"sub-cent option delta", func(p *models.Product) {
			p.OptionGroups[1].Options[1].Price = decimal.RequireFromString("0.005")
		}, "option_groups[1].options[1].price"},
		{"huge exponent base price", func(p *models.Product) {
			p.BasePrice = decimal.RequireFromString("1e20000000")
		}, "base_price"},
		{"oversized add-on", func(p *models.Product) {
			p.AddOns[0].Price = decimal.RequireFromString("1000000000000")
		}, "add_ons[0].price"},
		{"sub-cent incentive", func(p *models.Product) {
			p.Incentives[0].Amount = decimal.RequireFromString("7500.001")
		}, "incentives[0].amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := modelY()
			tt.edit(p)
			err := ValidateSchema(p)
			require.Error(t, err)
			appErr := apperr.As(err)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			require.Len(t, appErr.Fields, 1)
			assert.Equal(t, tt.field, appErr.Fields[0].Field)
		})
	}
}

func TestValidateSchemaRejectsOversizedConfiguration(t *testing.T) {
	p := modelY()
	p.BasePrice = decimal.RequireFromString("999999999000")
	p.AddOns[0].Price = d(5000)

	err := ValidateSchema(p)
	require.Error(t, err)
	fields := apperr.As(err).Fields
	assert.Equal(t, "option_groups", fields[len(fields)-1].Field)
	assert.Contains(t, fields[len(fields)-1].Message, "most expensive")
}
