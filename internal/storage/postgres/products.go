package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const productColumns = `id, name, description, category, base_price, order_fee, images,
	specifications, option_groups, add_ons, incentives, created_at, updated_at`

type productJSON struct {
	specs      string
	groups     string
	addOns     string
	incentives string
}

func encodeProduct(p *models.Product) (productJSON, error) {
	var out productJSON
	var err error

	specs := p.Specifications
	if specs == nil {
		specs = map[string]models.SpecValue{}
	}
	if out.specs, err = jsonb(specs); err != nil {
		return out, fmt.Errorf("failed to marshal specifications: %w", err)
	}
	if out.groups, err = jsonb(nonNil(p.OptionGroups)); err != nil {
		return out, fmt.Errorf("failed to marshal option groups: %w", err)
	}
	if out.addOns, err = jsonb(nonNil(p.AddOns)); err != nil {
		return out, fmt.Errorf("failed to marshal add-ons: %w", err)
	}
	if out.incentives, err = jsonb(nonNil(p.Incentives)); err != nil {
		return out, fmt.Errorf("failed to marshal incentives: %w", err)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	enc, err := encodeProduct(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	return s.exec(ctx, query,
		p.ID, p.Name, p.Description, string(p.Category), p.BasePrice, p.OrderFee,
		pq.Array(nonNil(p.Images)), enc.specs, enc.groups, enc.addOns, enc.incentives,
		p.CreatedAt, p.UpdatedAt)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND NOT is_deleted`
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM products WHERE NOT is_deleted`
	args := []interface{}{}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	query += " ORDER BY name, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	enc, err := encodeProduct(p)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE products SET name = $2, description = $3, category = $4, base_price = $5,
			order_fee = $6, images = $7, specifications = $8, option_groups = $9,
			add_ons = $10, incentives = $11, updated_at = $12
		WHERE id = $1 AND NOT is_deleted
	`
	result, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, string(p.Category), p.BasePrice, p.OrderFee,
		pq.Array(nonNil(p.Images)), enc.specs, enc.groups, enc.addOns, enc.incentives,
		p.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return requireRow(result)
}

func (s *Store) DeleteProduct(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`UPDATE products SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND NOT is_deleted`,
		id, at)
	if err != nil {
		return mapError(err)
	}
	return requireRow(result)
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var category string
	var specs, groups, addOns, incentives []byte

	err := row.Scan(&p.ID, &p.Name, &p.Description, &category, &p.BasePrice, &p.OrderFee,
		pq.Array(&p.Images), &specs, &groups, &addOns, &incentives, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Category = models.Category(category)

	if err := json.Unmarshal(specs, &p.Specifications); err != nil {
		return nil, fmt.Errorf("failed to decode specifications of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(groups, &p.OptionGroups); err != nil {
		return nil, fmt.Errorf("failed to decode option groups of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(addOns, &p.AddOns); err != nil {
		return nil, fmt.Errorf("failed to decode add-ons of %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(incentives, &p.Incentives); err != nil {
		return nil, fmt.Errorf("failed to decode incentives of %s: %w", p.ID, err)
	}
	return &p, nil
}

func requireRow(result interface{ RowsAffected() (int64, error) }) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
