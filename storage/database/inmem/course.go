package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	crs.TotalLessons = 0
	repo.db.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, crs course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.courses[crs.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	// counters and publication are owned by their own operations
	crs.TotalLessons = orig.TotalLessons
	crs.IsPublished = orig.IsPublished
	crs.CreatedAt = orig.CreatedAt
	repo.db.courses[crs.ID] = crs
	return crs, nil
}

func (repo *courseRepository) SetCoursePublished(_ context.Context, id string, published bool, at time.Time) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	crs.IsPublished = published
	crs.UpdatedAt = at
	repo.db.courses[id] = crs
	return crs, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter == nil {
		filter = new(course.QueryFilter)
	}
	search := strings.ToLower(filter.Search)
	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		if filter.IsPublished != nil && crs.IsPublished != *filter.IsPublished {
			continue
		}
		if filter.Level != "" && !strings.EqualFold(crs.Level, filter.Level) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(crs.Title), search) &&
			!strings.Contains(strings.ToLower(crs.Description), search) &&
			!strings.Contains(strings.ToLower(crs.Instructor), search) {
			continue
		}
		courses = append(courses, crs)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareCourses(courses[i], courses[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return courses[i].ID < courses[j].ID
	})
	return courses, nil
}

func compareCourses(a, b course.Course, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case "price":
		return a.Price.Cmp(b.Price)
	case "level":
		return strings.Compare(a.Level, b.Level)
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) CreateLesson(_ context.Context, lsn course.Lesson) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	crs, ok := repo.db.courses[lsn.CourseID]
	if !ok {
		return course.Lesson{}, course.ErrNotFound
	}

	maxOrder := 0
	for _, l := range repo.db.lessons {
		if l.CourseID != lsn.CourseID {
			continue
		}
		if lsn.Order != 0 && l.Order == lsn.Order {
			return course.Lesson{}, course.ErrLessonOrderExists
		}
		if l.Order > maxOrder {
			maxOrder = l.Order
		}
	}
	if lsn.Order == 0 {
		lsn.Order = maxOrder + 1
	}
	if lsn.ID == "" {
		lsn.ID = uuid.NewString()
	}
	repo.db.lessons[lsn.ID] = lsn

	crs.TotalLessons++
	crs.UpdatedAt = lsn.CreatedAt
	repo.db.courses[crs.ID] = crs
	return lsn, nil
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}
