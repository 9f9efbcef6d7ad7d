package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core/order"
)

type orderApi struct {
	svc      order.Service
	validate *validator.Validate
}

func registerOrderAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := orderApi{
		svc:      deps.OrderSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/cart", jwt)
	cg.GET("", api.cart)
	cg.POST("", api.addToCart)
	cg.POST("/checkout", api.checkout)
	cg.DELETE("/:id", api.removeFromCart)

	og := g.Group("/orders", jwt)
	og.GET("", api.query)
	og.GET("/:id", api.retrieve)
}

// Handlers

func (api *orderApi) cart(ctx echo.Context) error {
	cart, err := api.svc.Cart(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "getting cart")
	}
	return ctx.JSON(http.StatusOK, cart)
}

func (api *orderApi) addToCart(ctx echo.Context) error {
	var data order.AddToCartRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddToCartRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	item, err := api.svc.AddToCart(ctx.Request().Context(), contextUserID(ctx), data.CourseID)
	if err != nil {
		return errors.Wrap(err, "adding to cart")
	}
	return ctx.JSON(http.StatusCreated, item)
}

func (api *orderApi) removeFromCart(ctx echo.Context) error {
	if err := api.svc.RemoveFromCart(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing from cart")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *orderApi) checkout(ctx echo.Context) error {
	ord, err := api.svc.Checkout(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, ord)
}

func (api *orderApi) query(ctx echo.Context) error {
	orders, err := api.svc.Query(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *orderApi) retrieve(ctx echo.Context) error {
	ord, err := api.svc.Get(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting order")
	}
	return ctx.JSON(http.StatusOK, ord)
}
