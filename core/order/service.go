package order

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("order")
	ErrCartItemNotFound = core.NewNotFoundError("cart item")
	ErrEmptyCart        = core.NewValidationError(errors.New("cart is empty"))
	ErrAlreadyEnrolled  = core.NewValidationError(nil, core.FieldError{Field: "course_id", Error: "already enrolled in this course"})
)

type (
	Repository interface {
		// AddCartItem inserts the item unless (user, course) is already in the cart; the stored item is returned.
		AddCartItem(ctx context.Context, item CartItem) (CartItem, error)
		QueryCartItems(ctx context.Context, userID string) ([]CartItem, error)
		DeleteCartItem(ctx context.Context, userID, id string) error
		// CreateOrder atomically inserts the order with its items and removes the ordered courses from the user's cart.
		CreateOrder(ctx context.Context, ord Order) (Order, error)
		GetOrder(ctx context.Context, id string) (Order, error)
		QueryOrders(ctx context.Context, filter QueryFilter) ([]Order, error)
		QueryOrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
		// TransitionOrder is a single conditional update allowed when CanTransition(current, status).
		// It reports whether the status changed; a forbidden transition returns a core.StateError.
		TransitionOrder(ctx context.Context, id, status, paymentRef string, at time.Time) (Order, bool, error)
	}

	CourseReader interface {
		Get(ctx context.Context, id string) (course.Course, error)
	}

	EnrollmentChecker interface {
		IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
	}

	Service interface {
		AddToCart(ctx context.Context, userID, courseID string) (CartItem, error)
		Cart(ctx context.Context, userID string) (Cart, error)
		RemoveFromCart(ctx context.Context, userID, itemID string) error
		// Checkout turns the user's cart into a pending order priced at current course prices.
		Checkout(ctx context.Context, userID string) (Order, error)
		Get(ctx context.Context, userID, orderID string) (Order, error)
		Query(ctx context.Context, userID string) ([]Order, error)
	}

	service struct {
		repo        Repository
		courses     CourseReader
		enrollments EnrollmentChecker
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, courses CourseReader, enrollments EnrollmentChecker) Service {
	return &service{repo: repo, courses: courses, enrollments: enrollments}
}

func (svc *service) AddToCart(ctx context.Context, userID, courseID string) (CartItem, error) {
	crs, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return CartItem{}, err
	}
	if !crs.IsPublished {
		return CartItem{}, course.ErrNotFound
	}

	enrolled, err := svc.enrollments.IsEnrolled(ctx, userID, courseID)
	if err != nil {
		return CartItem{}, errors.Wrap(err, "checking enrollment")
	}
	if enrolled {
		return CartItem{}, ErrAlreadyEnrolled
	}

	return svc.repo.AddCartItem(ctx, CartItem{
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) Cart(ctx context.Context, userID string) (Cart, error) {
	items, err := svc.repo.QueryCartItems(ctx, userID)
	if err != nil {
		return Cart{}, errors.Wrap(err, "querying cart items")
	}

	cart := Cart{Items: make([]CartLine, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		crs, err := svc.courses.Get(ctx, item.CourseID)
		if err != nil {
			if core.IsNotFound(err) {
				continue
			}
			return Cart{}, errors.Wrap(err, "getting course")
		}
		cart.Items = append(cart.Items, CartLine{CartItem: item, Course: crs})
		cart.Total = cart.Total.Add(crs.Price)
	}
	return cart, nil
}

func (svc *service) RemoveFromCart(ctx context.Context, userID, itemID string) error {
	return svc.repo.DeleteCartItem(ctx, userID, itemID)
}

func (svc *service) Checkout(ctx context.Context, userID string) (Order, error) {
	cart, err := svc.Cart(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	if cart, err = svc.dropStaleLines(ctx, userID, cart); err != nil {
		return Order{}, err
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrEmptyCart
	}

	now := time.Now().UTC()
	ord := Order{
		UserID:        userID,
		TotalAmount:   cart.Total,
		Status:        StatusPending,
		PaymentMethod: PaymentMethodStripe,
		Items:         make([]OrderItem, 0, len(cart.Items)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, line := range cart.Items {
		ord.Items = append(ord.Items, OrderItem{CourseID: line.CourseID, PriceAtPurchase: line.Course.Price})
	}

	ord, err = svc.repo.CreateOrder(ctx, ord)
	return ord, errors.Wrap(err, "creating order")
}

// dropStaleLines removes from the cart the courses that were unpublished or that the user
// got enrolled in since they were added, so they are never charged.
func (svc *service) dropStaleLines(ctx context.Context, userID string, cart Cart) (Cart, error) {
	kept := Cart{Items: make([]CartLine, 0, len(cart.Items)), Total: decimal.Zero}
	for _, line := range cart.Items {
		stale := !line.Course.IsPublished
		if !stale {
			enrolled, err := svc.enrollments.IsEnrolled(ctx, userID, line.CourseID)
			if err != nil {
				return Cart{}, errors.Wrap(err, "checking enrollment")
			}
			stale = enrolled
		}
		if stale {
			if err := svc.repo.DeleteCartItem(ctx, userID, line.ID); err != nil && !core.IsNotFound(err) {
				return Cart{}, errors.Wrap(err, "deleting stale cart item")
			}
			continue
		}
		kept.Items = append(kept.Items, line)
		kept.Total = kept.Total.Add(line.Course.Price)
	}
	return kept, nil
}

func (svc *service) Get(ctx context.Context, userID, orderID string) (Order, error) {
	ord, err := svc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if ord.UserID != userID {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func (svc *service) Query(ctx context.Context, userID string) ([]Order, error) {
	return svc.repo.QueryOrders(ctx, QueryFilter{UserID: userID})
}
