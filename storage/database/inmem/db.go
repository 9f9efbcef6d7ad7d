package inmemdb

import (
	"sync"

	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/user"
)

// DB is a mutex-guarded in-memory store. A single lock makes the multi-table
// operations (lesson insertion, checkout) atomic like their SQL counterparts.
type DB struct {
	mutex sync.RWMutex

	users        map[string]user.User
	courses      map[string]course.Course
	lessons      map[string]course.Lesson
	enrollments  map[string]learning.Enrollment
	progress     map[string]learning.LessonProgress
	certificates map[string]learning.Certificate
	orders       map[string]order.Order
	orderItems   map[string]order.OrderItem
	cartItems    map[string]order.CartItem
}

func Open() *DB {
	db := new(DB)
	db.Reset()
	return db
}

// Reset drops all the data.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.users = make(map[string]user.User)
	db.courses = make(map[string]course.Course)
	db.lessons = make(map[string]course.Lesson)
	db.enrollments = make(map[string]learning.Enrollment)
	db.progress = make(map[string]learning.LessonProgress)
	db.certificates = make(map[string]learning.Certificate)
	db.orders = make(map[string]order.Order)
	db.orderItems = make(map[string]order.OrderItem)
	db.cartItems = make(map[string]order.CartItem)
}
