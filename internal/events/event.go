// Package events publishes order lifecycle events to Kafka and consumes them
// for the audit trail.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jogardn/dtc-configurator/pkg/models"
)

type Type string

const (
	TypeOrderCreated       Type = "order.created"
	TypeOrderStatusChanged Type = "order.status_changed"
)

// Event is the envelope written to the order events topic. The message key is
// the order id so every event of one order lands on the same partition.
type Event struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	OrderID        string             `json:"order_id"`
	UserID         string             `json:"user_id"`
	ProductID      string             `json:"product_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	TotalPrice     decimal.Decimal    `json:"total_price"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func NewOrderCreated(o *models.Order, at time.Time) Event {
	return newEvent(TypeOrderCreated, o, "", at)
}

func NewStatusChanged(o *models.Order, previous models.OrderStatus, at time.Time) Event {
	return newEvent(TypeOrderStatusChanged, o, previous, at)
}

func newEvent(t Type, o *models.Order, previous models.OrderStatus, at time.Time) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		OrderID:        o.ID,
		UserID:         o.UserID,
		ProductID:      o.ProductID,
		Status:         o.Status,
		PreviousStatus: previous,
		TotalPrice:     o.TotalPrice,
		OccurredAt:     at.UTC(),
	}
}

// Publisher hands events to the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops events. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
