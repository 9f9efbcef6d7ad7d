package paymentsvc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
)

const metadataOrderID = "orderId"

// zeroDecimalCurrencies are charged in major units by Stripe.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

type StripeGateway struct {
	api           *client.API
	webhookSecret string
	appName       string
}

var _ payment.Gateway = (*StripeGateway)(nil)

func NewStripeGateway(conf *core.Config) *StripeGateway {
	return newStripeGateway(client.New(conf.Stripe.SecretKey, nil), conf)
}

func newStripeGateway(api *client.API, conf *core.Config) *StripeGateway {
	return &StripeGateway{
		api:           api,
		webhookSecret: conf.Stripe.WebhookSecret,
		appName:       conf.AppName,
	}
}

// MinorUnits converts an amount to the integer Stripe expects for currency.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func (gw *StripeGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, orderID string) (payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(MinorUnits(amount, currency)),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String(gw.appName + " Order " + orderID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderID, orderID)
	params.SetIdempotencyKey("order-" + orderID)

	pi, err := gw.api.PaymentIntents.New(params)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "creating stripe payment intent")
	}
	return payment.Intent{ClientSecret: pi.ClientSecret, PaymentIntentID: pi.ID}, nil
}

func (gw *StripeGateway) ParseEvent(payload []byte, signature string) (payment.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, gw.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payment.Event{}, errors.Wrap(err, "verifying stripe signature")
	}

	event := payment.Event{ID: evt.ID, Type: string(evt.Type)}
	if !strings.HasPrefix(event.Type, "payment_intent.") || evt.Data == nil {
		return event, nil
	}

	var pi stripe.PaymentIntent
	if err = json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return payment.Event{}, errors.Wrap(err, "decoding payment intent")
	}
	event.PaymentID = pi.ID
	event.OrderID = pi.Metadata[metadataOrderID]
	return event, nil
}
