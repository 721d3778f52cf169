package events

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AuditLog writes every order event as a structured log line.
type AuditLog struct {
	logger *logrus.Logger
}

func NewAuditLog(logger *logrus.Logger) *AuditLog {
	return &AuditLog{logger: logger}
}

func (a *AuditLog) HandleEvent(_ context.Context, e Event) error {
	fields := logrus.Fields{
		"event_id":    e.ID,
		"event_type":  e.Type,
		"order_id":    e.OrderID,
		"user_id":     e.UserID,
		"product_id":  e.ProductID,
		"status":      e.Status,
		"total_price": e.TotalPrice.StringFixed(2),
		"occurred_at": e.OccurredAt,
	}

	switch e.Type {
	case TypeOrderCreated:
		a.logger.WithFields(fields).Info("Order created")
	case TypeOrderStatusChanged:
		fields["previous_status"] = e.PreviousStatus
		a.logger.WithFields(fields).Info("Order status changed")
	default:
		return Permanent(fmt.Errorf("unknown event type %q", e.Type))
	}
	return nil
}
