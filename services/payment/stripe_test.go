package paymentsvc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
)

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, typ, piID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2023-10-16",
  "created": %d,
  "type": %q,
  "data": {"object": {"id": %q, "object": "payment_intent", "amount": 5000000, "currency": "vnd", "metadata": {"orderId": %q}}}
}`, id, time.Now().Unix(), typ, piID, orderID))
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"5000000", "vnd", 5000000},
		{"5000000", "VND", 5000000},
		{"1999.5", "jpy", 2000},
		{"19.99", "usd", 1999},
		{"0.005", "eur", 1},
		{"0", "usd", 0},
	}
	for _, tt := range tests {
		t.Run(tt.amount+" "+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, MinorUnits(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestStripeGateway_ParseEvent(t *testing.T) {
	conf := core.NewTestConfig()
	gw := NewStripeGateway(conf)
	secret := conf.Stripe.WebhookSecret
	payload := eventPayload("evt_1", payment.EventPaymentSucceeded, "pi_1", "order-1")

	t.Run("valid signature", func(t *testing.T) {
		evt, err := gw.ParseEvent(payload, sign(payload, secret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, payment.Event{ID: "evt_1", Type: payment.EventPaymentSucceeded, OrderID: "order-1", PaymentID: "pi_1"}, evt)
	})

	t.Run("failed payment", func(t *testing.T) {
		p := eventPayload("evt_2", payment.EventPaymentFailed, "pi_2", "order-2")
		evt, err := gw.ParseEvent(p, sign(p, secret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "order-2", evt.OrderID)
		assert.Equal(t, "pi_2", evt.PaymentID)
	})

	t.Run("other event kinds carry no order", func(t *testing.T) {
		p := []byte(`{"id": "evt_3", "object": "event", "type": "customer.created", "data": {"object": {"id": "cus_1", "object": "customer"}}}`)
		evt, err := gw.ParseEvent(p, sign(p, secret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "customer.created", evt.Type)
		assert.Empty(t, evt.OrderID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := gw.ParseEvent(payload, sign(payload, "whsec_other", time.Now()))
		assert.Error(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := sign(payload, secret, time.Now())
		tampered := []byte(strings.Replace(string(payload), "order-1", "order-9", 1))
		_, err := gw.ParseEvent(tampered, sig)
		assert.Error(t, err)
	})

	t.Run("expired timestamp", func(t *testing.T) {
		_, err := gw.ParseEvent(payload, sign(payload, secret, time.Now().Add(-time.Hour)))
		assert.Error(t, err)
	})

	t.Run("malformed header", func(t *testing.T) {
		_, err := gw.ParseEvent(payload, "lol")
		assert.Error(t, err)
	})
}

func TestStripeGateway_CreatePaymentIntent(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/payment_intents") || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		form = map[string]string{
			"amount":            r.PostForm.Get("amount"),
			"currency":          r.PostForm.Get("currency"),
			"description":       r.PostForm.Get("description"),
			"metadata[orderId]": r.PostForm.Get("metadata[orderId]"),
			"idempotency":       r.Header.Get("Idempotency-Key"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"id": "pi_123", "object": "payment_intent", "client_secret": "pi_123_secret_abc", "amount": 5000000, "currency": "vnd"}`)
	}))
	defer srv.Close()

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := client.New("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	gw := newStripeGateway(api, core.NewTestConfig())

	intent, err := gw.CreatePaymentIntent(context.Background(), decimal.RequireFromString("5000000"), "vnd", "order-1")
	require.NoError(t, err)
	assert.Equal(t, payment.Intent{ClientSecret: "pi_123_secret_abc", PaymentIntentID: "pi_123"}, intent)
	assert.Equal(t, map[string]string{
		"amount":            "5000000",
		"currency":          "vnd",
		"description":       "MoveUp Order order-1",
		"metadata[orderId]": "order-1",
		"idempotency":       "order-order-1",
	}, form)
}
