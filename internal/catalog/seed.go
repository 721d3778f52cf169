package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

func usd(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func option(id, name string, price int64) models.Option {
	return models.Option{ID: id, Name: name, Price: usd(price)}
}

// DefaultProducts is the launch catalog used to seed empty stores.
func DefaultProducts() []*models.Product {
	incentives := []models.Incentive{
		{ID: "tax-credit", Name: "Federal Tax Credit", Amount: usd(7500)},
		{ID: "gas-savings", Name: "Est. 5-Year Gas Savings", Amount: usd(6000)},
	}

	return []*models.Product{
		{
			ID:          "model-y",
			Name:        "Model Y",
			Description: "Long Range All-Wheel Drive midsize SUV.",
			Category:    models.CategoryModelY,
			BasePrice:   usd(41490),
			OrderFee:    usd(250),
			Images:      []string{"/images/model-y.jpg"},
			Specifications: map[string]models.SpecValue{
				"range":         models.StringSpec("327mi"),
				"top_speed":     models.StringSpec("135 mph"),
				"zero_to_sixty": models.StringSpec("4.8 s"),
				"seats":         models.NumberSpec(5),
			},
			OptionGroups: []models.OptionGroup{
				{Name: "drive", Options: []models.Option{
					option("lr-awd", "Long Range All-Wheel Drive", 0),
				}},
				{Name: "color", Options: []models.Option{
					option("stealth-grey", "Stealth Grey", 0),
					option("pearl-white", "Pearl White Multi-Coat", 1000),
					option("deep-blue", "Deep Blue Metallic", 1000),
					option("diamond-black", "Solid Black", 1500),
					option("ultra-red", "Ultra Red", 2000),
					option("quicksilver", "Quicksilver", 2000),
				}},
				{Name: "wheels", Options: []models.Option{
					option("crossflow-19", "19in Crossflow Wheels", 0),
					option("helix-20", "20in Helix 2.0 Wheels", 2000),
				}},
				{Name: "interior", Options: []models.Option{
					option("all-black", "All Black", 0),
					option("black-white", "Black and White", 1000),
				}},
				{Name: "seats", Options: []models.Option{
					option("five-seat", "Five Seat Interior", 0),
				}},
			},
			AddOns: []models.AddOn{
				{ID: "tow", Name: "Tow Package", Price: usd(1000), Description: "Tow up to 3,500 lbs"},
				{ID: "fsd", Name: "Full Self-Driving (Supervised)", Price: usd(8000)},
			},
			Incentives: incentives,
		},
		{
			ID:          "model-3",
			Name:        "Model 3",
			Description: "Rear-Wheel Drive sedan.",
			Category:    models.CategoryModel3,
			BasePrice:   usd(42490),
			OrderFee:    usd(250),
			Images:      []string{"/images/model-3.jpg"},
			Specifications: map[string]models.SpecValue{
				"range": models.StringSpec("341mi"),
				"seats": models.NumberSpec(5),
			},
			OptionGroups: []models.OptionGroup{
				{Name: "drive", Options: []models.Option{
					option("rear-wheel-drive", "Rear-Wheel Drive", 0),
				}},
				{Name: "color", Options: []models.Option{
					option("stealth-grey", "Stealth Grey", 0),
					option("pearl-white", "Pearl White Multi-Coat", 1000),
					option("deep-blue", "Deep Blue Metallic", 1000),
					option("solid-black", "Solid Black", 1500),
					option("ultra-red", "Ultra Red", 2000),
				}},
				{Name: "wheels", Options: []models.Option{
					option("photon-18", "18in Photon Wheels", 0),
					option("nova-19", "19in Nova Wheels", 1500),
				}},
				{Name: "interior", Options: []models.Option{
					option("all-black", "All Black", 0),
					option("black-white", "Black and White", 1000),
				}},
			},
			AddOns: []models.AddOn{
				{ID: "fsd", Name: "Full Self-Driving (Supervised)", Price: usd(8000)},
			},
			Incentives: incentives,
		},
		{
			ID:          "model-s",
			Name:        "Model S",
			Description: "Flagship sedan in Long Range and Plaid variants.",
			Category:    models.CategoryModelS,
			BasePrice:   usd(79990),
			OrderFee:    usd(250),
			Images:      []string{"/images/model-s.jpg"},
			Specifications: map[string]models.SpecValue{
				"range":     models.StringSpec("396 mi"),
				"top_speed": models.StringSpec("149 mph"),
			},
			OptionGroups: []models.OptionGroup{
				{Name: "variant", Options: []models.Option{
					{ID: "long_range", Name: "Long Range", Price: usd(0), Description: "396 mi range, 3.1 s 0-60"},
					{ID: "plaid", Name: "Plaid", Price: usd(10000), Description: "359 mi range, 1.99 s 0-60"},
				}},
				{Name: "color", Options: []models.Option{
					option("white", "Pearl White Multi-Coat", 0),
					option("black", "Solid Black", 1500),
					option("blue", "Deep Blue Metallic", 1500),
					option("red", "Ultra Red", 2500),
				}},
				{Name: "wheels", Options: []models.Option{
					option("tempest_19", "19in Tempest Wheels", 0),
					option("arachnid_21", "21in Arachnid Wheels", 4500),
				}},
				{Name: "interior", Options: []models.Option{
					option("black_interior", "All Black", 0),
					option("white_interior", "Black and White", 2000),
					option("cream_interior", "Cream", 2000),
				}},
			},
			AddOns: []models.AddOn{
				{ID: "fsd", Name: "Full Self-Driving (Supervised)", Price: usd(8000)},
			},
		},
		{
			ID:          "solar-powerwall",
			Name:        "Solar Panels + Powerwall 3",
			Description: "Rooftop solar system with Powerwall 3 home battery backup.",
			Category:    models.CategorySolarRoof,
			BasePrice:   usd(24990),
			Images:      []string{"/images/solar-powerwall.jpg"},
			Specifications: map[string]models.SpecValue{
				"warranty":      models.StringSpec("25 years"),
				"energy_stored": models.StringSpec("13.5 kWh"),
			},
			OptionGroups: []models.OptionGroup{
				{Name: "system_size", Options: []models.Option{
					option("4.8kw", "4.8 kW", 0),
					option("7.2kw", "7.2 kW", 4500),
					option("9.6kw", "9.6 kW", 9000),
					option("12.0kw", "12.0 kW", 13500),
				}},
				{Name: "powerwalls", Options: []models.Option{
					option("one", "1 Powerwall", 0),
					option("two", "2 Powerwalls", 9300),
				}},
			},
			AddOns: []models.AddOn{
				{ID: "critter-guard", Name: "Critter Guard", Price: usd(500), Description: "Mesh skirt that keeps animals out from under the panels"},
			},
			Incentives: []models.Incentive{
				{ID: "clean-energy-credit", Name: "Residential Clean Energy Credit", Amount: usd(7497)},
			},
		},
		{
			ID:          "powerwall",
			Name:        "Powerwall 3",
			Description: "Home battery with integrated solar inverter.",
			Category:    models.CategoryPowerwall,
			BasePrice:   usd(15400),
			Images:      []string{"/images/powerwall.jpg"},
			Specifications: map[string]models.SpecValue{
				"energy_stored":    models.StringSpec("13.5 kWh"),
				"continuous_power": models.StringSpec("11.5 kW"),
			},
			OptionGroups: []models.OptionGroup{
				{Name: "units", Options: []models.Option{
					option("one", "1 Powerwall", 0),
					option("two", "2 Powerwalls", 9300),
					option("three", "3 Powerwalls", 18600),
				}},
			},
		},
	}
}

// Seed inserts products that are not stored yet. Existing ids are left alone.
func Seed(ctx context.Context, store storage.ProductStore, products []*models.Product) (int, error) {
	inserted := 0
	now := time.Now().UTC()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
			p.UpdatedAt = now
		}
		if _, err := store.GetProduct(ctx, p.ID); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return inserted, fmt.Errorf("failed to look up product %s: %w", p.ID, err)
		}
		if err := store.CreateProduct(ctx, p); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				continue
			}
			return inserted, fmt.Errorf("failed to seed product %s: %w", p.ID, err)
		}
		inserted++
	}
	return inserted, nil
}
