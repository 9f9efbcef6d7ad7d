package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/StephenSouth13/moveup/core/course"
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const PaymentMethodStripe = "stripe"

type CartItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type CartLine struct {
	CartItem
	Course course.Course `json:"course"`
}

type Cart struct {
	Items []CartLine      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Status           string          `json:"status"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"created_at"` // UTC
	UpdatedAt        time.Time       `json:"updated_at"` // UTC
}

func (o Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

type OrderItem struct {
	ID              string          `json:"id"`
	OrderID         string          `json:"order_id"`
	CourseID        string          `json:"course_id"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

type AddToCartRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

type QueryFilter struct {
	UserID       string
	Status       string
	UpdatedSince time.Time // zero: no lower bound
}

// CanTransition reports whether an order in status `from` may be moved to `to`.
// Re-applying the current terminal status is allowed and only refreshes the payment reference.
func CanTransition(from, to string) bool {
	switch {
	case from == StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case from == to:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}
