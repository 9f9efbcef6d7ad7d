package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
)

const (
	signatureHeader    = "Stripe-Signature"
	maxWebhookBodySize = 64 << 10
)

type paymentApi struct {
	svc      payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{
		svc:      deps.PaymentSvc,
		validate: deps.Validate,
	}

	g.POST("/payments/create-intent", api.createIntent, jwt)
	// authenticated by the gateway signature
	g.POST("/webhooks/stripe", api.webhook)
}

// Handlers

func (api *paymentApi) createIntent(ctx echo.Context) error {
	var data payment.CreateIntentRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CreateIntentRequest")
	}
	data.OrderID = core.CleanString(data.OrderID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	intent, err := api.svc.CreateIntent(ctx.Request().Context(), contextUserID(ctx), data.OrderID)
	if err != nil {
		return errors.Wrap(err, "creating payment intent")
	}
	return ctx.JSON(http.StatusOK, intent)
}

func (api *paymentApi) webhook(ctx echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodySize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body").SetInternal(err)
	}

	if err = api.svc.HandleWebhook(ctx.Request().Context(), payload, ctx.Request().Header.Get(signatureHeader)); err != nil {
		return errors.Wrap(err, "handling stripe webhook")
	}
	return ctx.JSON(http.StatusOK, WebhookResponse{Received: true})
}

type WebhookResponse struct {
	Received bool `json:"received"`
}
