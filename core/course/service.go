package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("course")
	ErrLessonNotFound    = core.NewNotFoundError("lesson")
	ErrLessonOrderExists = errors.New("a lesson with this order already exists")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, crs Course) (Course, error)
		UpdateCourse(ctx context.Context, crs Course) (Course, error)
		SetCoursePublished(ctx context.Context, id string, published bool, at time.Time) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of title, description or instructor.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// CreateLesson inserts the lesson and increments the course's total_lessons atomically.
		// A zero Lesson.Order is replaced by the next free position.
		CreateLesson(ctx context.Context, lsn Lesson) (Lesson, error)
		QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
	}

	Service interface {
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Get(ctx context.Context, id string) (Course, error)
		GetDetail(ctx context.Context, id string) (Detail, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		SetPublished(ctx context.Context, id string, published bool) (Course, error)
		AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *service) GetDetail(ctx context.Context, id string) (Detail, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	lessons, err := svc.repo.QueryLessons(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []Lesson{}
	}
	return Detail{Course: crs, Lessons: lessons}, nil
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		Title:         nc.Title,
		Description:   nc.Description,
		Instructor:    nc.Instructor,
		Level:         nc.Level,
		ThumbnailURL:  nc.ThumbnailURL,
		Price:         nc.Price,
		DurationHours: nc.DurationHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	crs, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	// empty fields keep their stored value
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&crs.Title, uc.Title},
		{&crs.Description, uc.Description},
		{&crs.Instructor, uc.Instructor},
		{&crs.Level, uc.Level},
		{&crs.ThumbnailURL, uc.ThumbnailURL},
	} {
		if f.val != "" {
			*f.dst = f.val
		}
	}
	if uc.Price != nil {
		crs.Price = *uc.Price
	}
	if uc.DurationHours != nil {
		crs.DurationHours = *uc.DurationHours
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *service) SetPublished(ctx context.Context, id string, published bool) (Course, error) {
	return svc.repo.SetCoursePublished(ctx, id, published, time.Now().UTC())
}

func (svc *service) AddLesson(ctx context.Context, courseID string, nl NewLesson) (Lesson, error) {
	lsn := Lesson{
		CourseID:        courseID,
		Title:           nl.Title,
		Description:     nl.Description,
		VideoURL:        nl.VideoURL,
		DurationMinutes: nl.DurationMinutes,
		Order:           nl.Order,
		CreatedAt:       time.Now().UTC(),
	}
	lsn, err := svc.repo.CreateLesson(ctx, lsn)
	if err == ErrLessonOrderExists {
		return Lesson{}, core.NewValidationError(err, core.FieldError{Field: "order", Error: err.Error()})
	}
	return lsn, err
}
