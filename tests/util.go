package testutil

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/user"
	logsvc "github.com/StephenSouth13/moveup/services/logger"
)

// NewLogger returns a silent logger with rollbar disabled.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse creates a course priced at price with nLessons lessons.
func CreateCourse(
	t *testing.T,
	repo course.Repository,
	title, price string,
	published bool,
	nLessons int,
) (course.Course, []course.Lesson) {
	t.Helper()
	now := time.Now().UTC()
	crs, err := repo.CreateCourse(context.Background(), course.Course{
		Title:       title,
		Level:       "beginner",
		Price:       decimal.RequireFromString(price),
		IsPublished: published,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}

	lessons := make([]course.Lesson, 0, nLessons)
	for i := 1; i <= nLessons; i++ {
		lsn, err := repo.CreateLesson(context.Background(), course.Lesson{
			CourseID:  crs.ID,
			Title:     fmt.Sprintf("%s - lesson %d", title, i),
			CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
		lessons = append(lessons, lsn)
	}

	if crs, err = repo.GetCourse(context.Background(), crs.ID); err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs, lessons
}

func CreateEnrollment(t *testing.T, repo learning.Repository, userID, courseID string) learning.Enrollment {
	t.Helper()
	enr, _, err := repo.CreateEnrollmentIfAbsent(context.Background(), learning.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     learning.StatusActive,
		EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateEnrollment() failed: %v", err)
	}
	return enr
}

// CreateOrder creates a pending order of courses at their current price.
func CreateOrder(t *testing.T, repo order.Repository, userID string, courses ...course.Course) order.Order {
	t.Helper()
	now := time.Now().UTC()
	ord := order.Order{
		UserID:        userID,
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentMethodStripe,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, crs := range courses {
		ord.TotalAmount = ord.TotalAmount.Add(crs.Price)
		ord.Items = append(ord.Items, order.OrderItem{CourseID: crs.ID, PriceAtPurchase: crs.Price})
	}
	ord, err := repo.CreateOrder(context.Background(), ord)
	if err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
	return ord
}
