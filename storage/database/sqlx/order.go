package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/order"
)

const (
	cartItemColumns  = `id, user_id, course_id, created_at`
	orderColumns     = `id, user_id, total_amount, status, payment_method, payment_reference, created_at, updated_at`
	orderItemColumns = `id, order_id, course_id, price_at_purchase`
)

type cartItemRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CourseID  string    `db:"course_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r cartItemRow) item() order.CartItem {
	return order.CartItem{ID: r.ID, UserID: r.UserID, CourseID: r.CourseID, CreatedAt: r.CreatedAt.UTC()}
}

type orderRow struct {
	ID               string          `db:"id"`
	UserID           string          `db:"user_id"`
	TotalAmount      decimal.Decimal `db:"total_amount"`
	Status           string          `db:"status"`
	PaymentMethod    string          `db:"payment_method"`
	PaymentReference string          `db:"payment_reference"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r orderRow) order() order.Order {
	return order.Order{
		ID:               r.ID,
		UserID:           r.UserID,
		TotalAmount:      r.TotalAmount,
		Status:           r.Status,
		PaymentMethod:    r.PaymentMethod,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type orderItemRow struct {
	ID              string          `db:"id"`
	OrderID         string          `db:"order_id"`
	CourseID        string          `db:"course_id"`
	PriceAtPurchase decimal.Decimal `db:"price_at_purchase"`
}

func (r orderItemRow) item() order.OrderItem {
	return order.OrderItem{ID: r.ID, OrderID: r.OrderID, CourseID: r.CourseID, PriceAtPurchase: r.PriceAtPurchase}
}

type orderRepository struct {
	db *sqlx.DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *sqlx.DB) order.Repository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) AddCartItem(ctx context.Context, item order.CartItem) (order.CartItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	q := `INSERT INTO cart_items (` + cartItemColumns + `) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, course_id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, item.ID, item.UserID, item.CourseID, item.CreatedAt.UTC()); err != nil {
		return order.CartItem{}, errors.Wrap(err, "inserting cart item")
	}

	var row cartItemRow
	q = `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 AND course_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, item.UserID, item.CourseID); err != nil {
		return order.CartItem{}, errors.Wrap(err, "getting cart item")
	}
	return row.item(), nil
}

func (repo *orderRepository) QueryCartItems(ctx context.Context, userID string) ([]order.CartItem, error) {
	items := make([]order.CartItem, 0)
	if !validID(userID) {
		return items, nil
	}
	var rows []cartItemRow
	q := `SELECT ` + cartItemColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying cart items")
	}
	for _, r := range rows {
		items = append(items, r.item())
	}
	return items, nil
}

func (repo *orderRepository) DeleteCartItem(ctx context.Context, userID, id string) error {
	if !validID(userID) || !validID(id) {
		return order.ErrCartItemNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting cart item")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "deleting cart item")
	} else if n == 0 {
		return order.ErrCartItemNotFound
	}
	return nil
}

func (repo *orderRepository) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}

	items := make([]order.OrderItem, 0, len(ord.Items))
	courseIDs := make([]string, 0, len(ord.Items))
	ordered := make(map[string]bool, len(ord.Items))
	for _, item := range ord.Items {
		if ordered[item.CourseID] {
			continue
		}
		ordered[item.CourseID] = true
		item.ID = uuid.NewString()
		item.OrderID = ord.ID
		items = append(items, item)
		courseIDs = append(courseIDs, item.CourseID)
	}

	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.ExecContext(ctx, q, ord.ID, ord.UserID, ord.TotalAmount, ord.Status, ord.PaymentMethod,
			ord.PaymentReference, ord.CreatedAt.UTC(), ord.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting order")
		}

		q = `INSERT INTO order_items (` + orderItemColumns + `) VALUES ($1, $2, $3, $4)`
		for _, item := range items {
			if _, err = tx.ExecContext(ctx, q, item.ID, item.OrderID, item.CourseID, item.PriceAtPurchase); err != nil {
				return errors.Wrap(err, "inserting order item")
			}
		}

		q = `DELETE FROM cart_items WHERE user_id = $1 AND course_id = ANY($2)`
		if _, err = tx.ExecContext(ctx, q, ord.UserID, pq.Array(courseIDs)); err != nil {
			return errors.Wrap(err, "clearing cart")
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}

	ord.Items = items
	return ord, nil
}

func (repo *orderRepository) QueryOrderItems(ctx context.Context, orderID string) ([]order.OrderItem, error) {
	items := make([]order.OrderItem, 0)
	if !validID(orderID) {
		return items, nil
	}
	var rows []orderItemRow
	q := `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY course_id`
	if err := repo.db.SelectContext(ctx, &rows, q, orderID); err != nil {
		return nil, errors.Wrap(err, "querying order items")
	}
	for _, r := range rows {
		items = append(items, r.item())
	}
	return items, nil
}

func (repo *orderRepository) withItems(ctx context.Context, row orderRow) (order.Order, error) {
	ord := row.order()
	items, err := repo.QueryOrderItems(ctx, ord.ID)
	if err != nil {
		return order.Order{}, err
	}
	ord.Items = items
	return ord, nil
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	var row orderRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id); err != nil {
		return order.Order{}, trapNoRowsErr(err, order.ErrNotFound, "getting order")
	}
	return repo.withItems(ctx, row)
}

func (repo *orderRepository) QueryOrders(ctx context.Context, filter order.QueryFilter) ([]order.Order, error) {
	orders := make([]order.Order, 0)
	if filter.UserID != "" && !validID(filter.UserID) {
		return orders, nil
	}
	var since *time.Time
	if !filter.UpdatedSince.IsZero() {
		since = &filter.UpdatedSince
	}
	var rows []orderRow
	q := `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR user_id = NULLIF($1::text, '')::uuid)
			AND ($2::text = '' OR status = $2::text)
			AND ($3::timestamptz IS NULL OR updated_at >= $3::timestamptz)
		ORDER BY created_at DESC, id`
	if err := repo.db.SelectContext(ctx, &rows, q, filter.UserID, filter.Status, since); err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	for _, r := range rows {
		ord, err := repo.withItems(ctx, r)
		if err != nil {
			return nil, err
		}
		orders = append(orders, ord)
	}
	return orders, nil
}

// TransitionOrder moves the order to status within a row lock so concurrent webhooks serialize.
func (repo *orderRepository) TransitionOrder(ctx context.Context, id, status, paymentRef string, at time.Time) (order.Order, bool, error) {
	if !validID(id) {
		return order.Order{}, false, order.ErrNotFound
	}

	var (
		row     orderRow
		changed bool
	)
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &row, q, id); err != nil {
			return trapNoRowsErr(err, order.ErrNotFound, "locking order")
		}
		if !order.CanTransition(row.Status, status) {
			return core.NewStateError("order %s is %s", id, row.Status)
		}
		changed = row.Status != status

		q = `UPDATE orders SET status = $2, payment_reference = COALESCE(NULLIF($3::text, ''), payment_reference), updated_at = $4
			WHERE id = $1
			RETURNING ` + orderColumns
		return errors.Wrap(tx.GetContext(ctx, &row, q, id, status, paymentRef, at.UTC()), "updating order status")
	})
	if err != nil {
		return order.Order{}, false, err
	}

	ord, err := repo.withItems(ctx, row)
	if err != nil {
		return order.Order{}, false, err
	}
	return ord, changed, nil
}
