package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway event kinds
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

type (
	Intent struct {
		ClientSecret    string `json:"clientSecret"`
		PaymentIntentID string `json:"paymentIntentId"`
	}

	// Event is a verified gateway notification.
	Event struct {
		ID        string
		Type      string
		OrderID   string // from the payment metadata
		PaymentID string // gateway payment reference
	}

	Gateway interface {
		// CreatePaymentIntent asks the gateway to collect amount (major currency units) for the order.
		CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, orderID string) (Intent, error)
		// ParseEvent verifies the signature header against the payload and decodes the event.
		ParseEvent(payload []byte, signature string) (Event, error)
	}

	// EventLog remembers gateway events that were fully processed.
	EventLog interface {
		Seen(ctx context.Context, eventID string) (bool, error)
		Mark(ctx context.Context, eventID string) error
	}

	CreateIntentRequest struct {
		OrderID string `json:"orderId" validate:"required"`
	}
)

type noopEventLog struct{}

func (noopEventLog) Seen(context.Context, string) (bool, error) { return false, nil }
func (noopEventLog) Mark(context.Context, string) error         { return nil }
