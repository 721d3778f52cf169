package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const orderColumns = `id, user_id, product_id, selection, shipping_address, line_items,
	total_price, status, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	selection, err := jsonb(o.Selection)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	address, err := jsonb(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	lineItems, err := jsonb(nonNil(o.LineItems))
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	return s.exec(ctx, query,
		o.ID, o.UserID, o.ProductID, selection, address, lineItems,
		o.TotalPrice, string(o.Status), o.CreatedAt, o.UpdatedAt)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += " WHERE user_id = $1"
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE orders SET status = $2, updated_at = GREATEST(updated_at, $3)
		WHERE id = $1
		RETURNING ` + orderColumns
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, id, string(status), at))
	if err != nil {
		return nil, mapError(err)
	}
	return o, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status string
	var selection, address, lineItems []byte

	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &selection, &address, &lineItems,
		&o.TotalPrice, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)

	if err := json.Unmarshal(selection, &o.Selection); err != nil {
		return nil, fmt.Errorf("failed to decode selection of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address of order %s: %w", o.ID, err)
	}
	if err := json.Unmarshal(lineItems, &o.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items of order %s: %w", o.ID, err)
	}
	return &o, nil
}
