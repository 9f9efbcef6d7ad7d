package payment

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/user"
)

var (
	// errors
	ErrNoSignature      = core.NewValidationError(errors.New("no signature"))
	ErrInvalidSignature = core.NewValidationError(errors.New("webhook signature verification failed"))
)

type (
	Enroller interface {
		Enroll(ctx context.Context, userID, courseID string) (learning.Enrollment, bool, error)
	}

	CourseReader interface {
		Get(ctx context.Context, id string) (course.Course, error)
	}

	UserReader interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service interface {
		// CreateIntent opens a gateway payment for the caller's pending order.
		CreateIntent(ctx context.Context, userID, orderID string) (Intent, error)
		// HandleWebhook verifies and dispatches a gateway delivery. Verification precedes any mutation.
		HandleWebhook(ctx context.Context, payload []byte, signature string) error
		HandlePaymentSucceeded(ctx context.Context, evt Event) error
		HandlePaymentFailed(ctx context.Context, evt Event) error
		// ReconcileCompletedOrders creates the enrollments missing for orders completed (last updated)
		// since the given time, or for all completed orders when since is zero, and returns how many were created.
		ReconcileCompletedOrders(ctx context.Context, since time.Time) (int, error)
	}

	service struct {
		orders   order.Repository
		enroller Enroller
		courses  CourseReader
		users    UserReader
		gateway  Gateway
		events   EventLog
		mailSvc  core.EmailService
		logger   core.Logger
		currency string
	}
)

var _ Service = (*service)(nil)

func NewService(
	orders order.Repository,
	enroller Enroller,
	courses CourseReader,
	users UserReader,
	gateway Gateway,
	events EventLog,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	if events == nil {
		events = noopEventLog{}
	}
	currency := conf.Stripe.Currency
	if currency == "" {
		currency = "vnd"
	}
	return &service{
		orders:   orders,
		enroller: enroller,
		courses:  courses,
		users:    users,
		gateway:  gateway,
		events:   events,
		mailSvc:  mailSvc,
		logger:   logger,
		currency: currency,
	}
}

func (svc *service) CreateIntent(ctx context.Context, userID, orderID string) (Intent, error) {
	ord, err := svc.orders.GetOrder(ctx, orderID)
	if err != nil {
		if core.IsNotFound(err) {
			return Intent{}, order.ErrNotFound
		}
		return Intent{}, errors.Wrap(err, "getting order")
	}
	if ord.UserID != userID {
		return Intent{}, order.ErrNotFound
	}
	if ord.Status != order.StatusPending {
		return Intent{}, core.NewStateError("order is %s", ord.Status)
	}

	intent, err := svc.gateway.CreatePaymentIntent(ctx, ord.TotalAmount, svc.currency, ord.ID)
	return intent, errors.Wrap(err, "creating payment intent")
}

func (svc *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrNoSignature
	}
	evt, err := svc.gateway.ParseEvent(payload, signature)
	if err != nil {
		svc.logger.Warn("webhook signature verification failed", err)
		return ErrInvalidSignature
	}

	if seen, err := svc.events.Seen(ctx, evt.ID); err != nil {
		svc.logger.Warn("checking processed webhook events", err)
	} else if seen {
		return nil
	}

	switch evt.Type {
	case EventPaymentSucceeded:
		if err = svc.HandlePaymentSucceeded(ctx, evt); err != nil {
			return err
		}
	case EventPaymentFailed:
		if err = svc.HandlePaymentFailed(ctx, evt); err != nil {
			return err
		}
	default:
		svc.logger.Debug(fmt.Sprintf("ignoring webhook event %s (%s)", evt.ID, evt.Type))
		return nil
	}

	if err = svc.events.Mark(ctx, evt.ID); err != nil {
		svc.logger.Warn("marking processed webhook event", err)
	}
	return nil
}

func (svc *service) HandlePaymentSucceeded(ctx context.Context, evt Event) error {
	if evt.OrderID == "" {
		svc.logger.Warn(fmt.Sprintf("payment %s succeeded without order id", evt.PaymentID))
		return nil
	}

	ord, changed, err := svc.orders.TransitionOrder(ctx, evt.OrderID, order.StatusCompleted, evt.PaymentID, time.Now().UTC())
	switch {
	case err == nil:
	case core.IsNotFound(err):
		// not a 404: the gateway must redeliver
		return errors.Errorf("completing order %s: order not found", evt.OrderID)
	case core.IsStateError(err):
		svc.logger.Error(fmt.Sprintf("payment %s succeeded for order %s", evt.PaymentID, evt.OrderID), err)
		return nil
	default:
		return errors.Wrap(err, "completing order")
	}

	courseIDs, err := svc.materialize(ctx, ord)
	if err != nil {
		return err
	}
	if changed {
		svc.logger.Info(fmt.Sprintf("order %s completed (payment %s)", ord.ID, evt.PaymentID))
		svc.notifyOrderCompleted(ctx, ord, courseIDs)
	}
	return nil
}

// materialize enrolls the buyer in every course of the order; existing enrollments are kept.
func (svc *service) materialize(ctx context.Context, ord order.Order) ([]string, error) {
	items, err := svc.orders.QueryOrderItems(ctx, ord.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying order items")
	}

	courseIDs := make([]string, 0, len(items))
	for _, item := range items {
		if _, _, err = svc.enroller.Enroll(ctx, ord.UserID, item.CourseID); err != nil {
			return nil, errors.Wrapf(err, "enrolling in course %s", item.CourseID)
		}
		courseIDs = append(courseIDs, item.CourseID)
	}
	return courseIDs, nil
}

func (svc *service) HandlePaymentFailed(ctx context.Context, evt Event) error {
	if evt.OrderID == "" {
		svc.logger.Warn(fmt.Sprintf("payment %s failed without order id", evt.PaymentID))
		return nil
	}
	if _, _, err := svc.orders.TransitionOrder(ctx, evt.OrderID, order.StatusFailed, evt.PaymentID, time.Now().UTC()); err != nil {
		svc.logger.Error(fmt.Sprintf("failing order %s", evt.OrderID), err)
	}
	return nil
}

func (svc *service) ReconcileCompletedOrders(ctx context.Context, since time.Time) (int, error) {
	orders, err := svc.orders.QueryOrders(ctx, order.QueryFilter{Status: order.StatusCompleted, UpdatedSince: since})
	if err != nil {
		return 0, errors.Wrap(err, "querying completed orders")
	}

	var created, failed int
	for _, ord := range orders {
		if err = ctx.Err(); err != nil {
			return created, err
		}
		items, err := svc.orders.QueryOrderItems(ctx, ord.ID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("reconciling order %s", ord.ID), err)
			failed++
			continue
		}
		for _, item := range items {
			_, ok, err := svc.enroller.Enroll(ctx, ord.UserID, item.CourseID)
			if err != nil {
				svc.logger.Error(fmt.Sprintf("reconciling order %s", ord.ID), err)
				failed++
				break
			}
			if ok {
				created++
			}
		}
	}
	if created > 0 {
		svc.logger.Info(fmt.Sprintf("reconciliation created %d missing enrollments", created))
	}
	if failed > 0 {
		return created, errors.Errorf("reconciliation failed for %d orders", failed)
	}
	return created, nil
}

func (svc *service) notifyOrderCompleted(ctx context.Context, ord order.Order, courseIDs []string) {
	usr, err := svc.users.GetByID(ctx, ord.UserID)
	if err != nil {
		svc.logger.Error("preparing order email", errors.Wrap(err, "getting user"))
		return
	}
	titles := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		if crs, err := svc.courses.Get(ctx, id); err == nil {
			titles = append(titles, crs.Title)
		} else {
			titles = append(titles, id)
		}
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Payment received",
		TemplateName: "order_completed",
		TemplateData: map[string]interface{}{
			"Name":    usr.Name,
			"OrderID": ord.ID,
			"Total":   ord.TotalAmount.String() + " " + strings.ToUpper(svc.currency),
			"Courses": titles,
		},
	})
}
