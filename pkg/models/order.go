package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Selection is a configuration submitted by a customizer: one option id per
// group, the add-ons switched on, and the savings overlays to display.
type Selection struct {
	Options    map[string]string `json:"options"`
	AddOns     map[string]bool   `json:"add_ons,omitempty"`
	Incentives []string          `json:"incentives,omitempty"`
}

type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zip_code" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type LineItemKind string

const (
	LineBase      LineItemKind = "base"
	LineOption    LineItemKind = "option"
	LineAddOn     LineItemKind = "add_on"
	LineIncentive LineItemKind = "incentive"
)

type LineItem struct {
	Kind   LineItemKind    `json:"kind"`
	Group  string          `json:"group,omitempty"`
	ID     string          `json:"id,omitempty"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	ProductID       string          `json:"product_id"`
	Selection       Selection       `json:"selection"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	LineItems       []LineItem      `json:"line_items"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Product and Customer are attached when orders are read back. They are
	// never stored.
	Product  *ProductSummary  `json:"product,omitempty"`
	Customer *CustomerSummary `json:"customer,omitempty"`
}

type ProductSummary struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"base_price"`
}

type CustomerSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type OrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Order   *Order `json:"order,omitempty"`
}
