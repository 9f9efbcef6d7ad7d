package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/order"
)

type orderRepository struct {
	db *DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) order.Repository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) AddCartItem(_ context.Context, item order.CartItem) (order.CartItem, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.cartItems {
		if existing.UserID == item.UserID && existing.CourseID == item.CourseID {
			return existing, nil
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	repo.db.cartItems[item.ID] = item
	return item, nil
}

func (repo *orderRepository) QueryCartItems(_ context.Context, userID string) ([]order.CartItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]order.CartItem, 0)
	for _, item := range repo.db.cartItems {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (repo *orderRepository) DeleteCartItem(_ context.Context, userID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	item, ok := repo.db.cartItems[id]
	if !ok || item.UserID != userID {
		return order.ErrCartItemNotFound
	}
	delete(repo.db.cartItems, id)
	return nil
}

func (repo *orderRepository) CreateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if ord.ID == "" {
		ord.ID = uuid.NewString()
	}
	items := make([]order.OrderItem, 0, len(ord.Items))
	ordered := make(map[string]bool, len(ord.Items))
	for _, item := range ord.Items {
		if ordered[item.CourseID] {
			continue
		}
		ordered[item.CourseID] = true
		item.ID = uuid.NewString()
		item.OrderID = ord.ID
		repo.db.orderItems[item.ID] = item
		items = append(items, item)
	}
	ord.Items = nil
	repo.db.orders[ord.ID] = ord

	for id, item := range repo.db.cartItems {
		if item.UserID == ord.UserID && ordered[item.CourseID] {
			delete(repo.db.cartItems, id)
		}
	}

	ord.Items = items
	return ord, nil
}

func (repo *orderRepository) orderItems(orderID string) []order.OrderItem {
	items := make([]order.OrderItem, 0)
	for _, item := range repo.db.orderItems {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CourseID < items[j].CourseID })
	return items
}

func (repo *orderRepository) GetOrder(_ context.Context, id string) (order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ord, ok := repo.db.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	ord.Items = repo.orderItems(id)
	return ord, nil
}

func (repo *orderRepository) QueryOrders(_ context.Context, filter order.QueryFilter) ([]order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orders := make([]order.Order, 0)
	for _, ord := range repo.db.orders {
		if filter.UserID != "" && ord.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && ord.Status != filter.Status {
			continue
		}
		if !filter.UpdatedSince.IsZero() && ord.UpdatedAt.Before(filter.UpdatedSince) {
			continue
		}
		ord.Items = repo.orderItems(ord.ID)
		orders = append(orders, ord)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (repo *orderRepository) QueryOrderItems(_ context.Context, orderID string) ([]order.OrderItem, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.orderItems(orderID), nil
}

func (repo *orderRepository) TransitionOrder(_ context.Context, id, status, paymentRef string, at time.Time) (order.Order, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ord, ok := repo.db.orders[id]
	if !ok {
		return order.Order{}, false, order.ErrNotFound
	}
	if !order.CanTransition(ord.Status, status) {
		return order.Order{}, false, core.NewStateError("order %s is %s", id, ord.Status)
	}
	changed := ord.Status != status
	ord.Status = status
	if paymentRef != "" {
		ord.PaymentReference = paymentRef
	}
	ord.UpdatedAt = at
	repo.db.orders[id] = ord

	ord.Items = repo.orderItems(id)
	return ord, changed, nil
}
