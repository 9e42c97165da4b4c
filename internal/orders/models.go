package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	OrderNumber        string          `json:"orderNumber"`
	UserID             uuid.UUID       `json:"user"`
	Items              []OrderItem     `json:"items"`
	ShippingAddress    Address         `json:"shippingAddress"`
	PaymentMethod      string          `json:"paymentMethod"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	ShippingCost       decimal.Decimal `json:"shippingCost"`
	Discount           decimal.Decimal `json:"discount"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	Status             Status          `json:"status"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus"`
	PaymentIntentID    string          `json:"paymentIntentId,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	CancelReason       string          `json:"cancelReason,omitempty"`
	DeliveredAt        *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time      `json:"cancelledAt,omitempty"`
	ConfirmationSentAt *time.Time      `json:"confirmationSentAt,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// OrderItem is a snapshot of the product at the time the order was placed.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

type Address struct {
	FullName    string `json:"fullName" validate:"required,max=255"`
	Street      string `json:"street" validate:"required,max=255"`
	City        string `json:"city" validate:"required,max=100"`
	State       string `json:"state" validate:"required,max=100"`
	ZipCode     string `json:"zipCode" validate:"required,max=20"`
	Country     string `json:"country" validate:"required,max=100"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

// ProductSnapshot is the locked product row an order line is priced from.
type ProductSnapshot struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
	Stock int
	Image string
}

type ItemInput struct {
	ProductID uuid.UUID `json:"product" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type CreateOrderInput struct {
	Items           []ItemInput      `json:"items" validate:"required,min=1,dive"`
	ShippingAddress Address          `json:"shippingAddress" validate:"required"`
	PaymentMethod   string           `json:"paymentMethod" validate:"required,oneof=credit_card debit_card paypal stripe bank_transfer"`
	ShippingCost    *decimal.Decimal `json:"shippingCost,omitempty"`
	Discount        *decimal.Decimal `json:"discount,omitempty"`
	PaymentIntentID string           `json:"paymentIntentId,omitempty"`
	Notes           string           `json:"notes,omitempty" validate:"max=1000"`
}

type Filter struct {
	UserID        *uuid.UUID
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod string
}

// StockChange is one product quantity to return to stock.
type StockChange struct {
	ProductID uuid.UUID
	Quantity  int
}
