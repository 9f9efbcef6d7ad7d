package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/StephenSouth13/moveup/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-field` (a leading "-" sorts descending).
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}
)
