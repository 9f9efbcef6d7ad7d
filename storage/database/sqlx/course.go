package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
)

const (
	courseColumns = `id, title, description, instructor, level, thumbnail_url, price, total_lessons,
		duration_hours, is_published, created_at, updated_at`
	lessonColumns = `id, course_id, title, description, video_url, duration_minutes, "order", created_at`
)

var courseOrderingColumns = map[string]string{
	"title":      "title",
	"price":      "price",
	"level":      "level",
	"created_at": "created_at",
}

type lessonRow struct {
	ID              string    `db:"id"`
	CourseID        string    `db:"course_id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	VideoURL        string    `db:"video_url"`
	DurationMinutes int       `db:"duration_minutes"`
	Order           int       `db:"order"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:              r.ID,
		CourseID:        r.CourseID,
		Title:           r.Title,
		Description:     r.Description,
		VideoURL:        r.VideoURL,
		DurationMinutes: r.DurationMinutes,
		Order:           r.Order,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.NewString()
	}
	crs.TotalLessons = 0
	q := `INSERT INTO courses (` + courseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11)`
	_, err := repo.db.ExecContext(ctx, q,
		crs.ID, crs.Title, crs.Description, crs.Instructor, crs.Level, crs.ThumbnailURL, crs.Price,
		crs.DurationHours, crs.IsPublished, crs.CreatedAt.UTC(), crs.UpdatedAt.UTC())
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

// UpdateCourse never touches total_lessons, is_published and created_at.
func (repo *courseRepository) UpdateCourse(ctx context.Context, crs course.Course) (course.Course, error) {
	if !validID(crs.ID) {
		return course.Course{}, course.ErrNotFound
	}
	q := `UPDATE courses SET title = $2, description = $3, instructor = $4, level = $5, thumbnail_url = $6,
		price = $7, duration_hours = $8, updated_at = $9
		WHERE id = $1
		RETURNING ` + courseColumns
	var out course.Course
	err := scanCourse(repo.db.QueryRowxContext(ctx, q,
		crs.ID, crs.Title, crs.Description, crs.Instructor, crs.Level, crs.ThumbnailURL, crs.Price,
		crs.DurationHours, crs.UpdatedAt.UTC()), &out)
	if err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "updating course")
	}
	return out, nil
}

func (repo *courseRepository) SetCoursePublished(ctx context.Context, id string, published bool, at time.Time) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	q := `UPDATE courses SET is_published = $2, updated_at = $3 WHERE id = $1 RETURNING ` + courseColumns
	var out course.Course
	if err := scanCourse(repo.db.QueryRowxContext(ctx, q, id, published, at.UTC()), &out); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "publishing course")
	}
	return out, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			p := arg("%" + filter.Search + "%")
			where = append(where, "(title ILIKE "+p+" OR description ILIKE "+p+" OR instructor ILIKE "+p+")")
		}
		if filter.Level != "" {
			where = append(where, "LOWER(level) = LOWER("+arg(filter.Level)+")")
		}
		if filter.IsPublished != nil {
			where = append(where, "is_published = "+arg(*filter.IsPublished))
		}
	}

	q := `SELECT ` + courseColumns + ` FROM courses`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY " + core.OrderByClause(ordering, courseOrderingColumns, "created_at DESC") + ", id"

	rows, err := repo.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	defer func() { _ = rows.Close() }()

	courses := make([]course.Course, 0)
	for rows.Next() {
		var crs course.Course
		if err = scanCourse(rows, &crs); err != nil {
			return nil, errors.Wrap(err, "scanning course")
		}
		courses = append(courses, crs)
	}
	return courses, errors.Wrap(rows.Err(), "querying courses")
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var crs course.Course
	row := repo.db.QueryRowxContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	if err := scanCourse(row, &crs); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return crs, nil
}

func (repo *courseRepository) CreateLesson(ctx context.Context, lsn course.Lesson) (course.Lesson, error) {
	if !validID(lsn.CourseID) {
		return course.Lesson{}, course.ErrNotFound
	}
	if lsn.ID == "" {
		lsn.ID = uuid.NewString()
	}

	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// serializes lesson insertion per course
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, lsn.CourseID); err != nil {
			return trapNoRowsErr(err, course.ErrNotFound, "locking course")
		}

		if lsn.Order == 0 {
			q := `SELECT COALESCE(MAX("order"), 0) + 1 FROM lessons WHERE course_id = $1`
			if err := tx.GetContext(ctx, &lsn.Order, q, lsn.CourseID); err != nil {
				return errors.Wrap(err, "computing lesson order")
			}
		}

		q := `INSERT INTO lessons (` + lessonColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.ExecContext(ctx, q,
			lsn.ID, lsn.CourseID, lsn.Title, lsn.Description, lsn.VideoURL, lsn.DurationMinutes, lsn.Order, lsn.CreatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err, "") {
				return course.ErrLessonOrderExists
			}
			return errors.Wrap(err, "inserting lesson")
		}

		q = `UPDATE courses SET total_lessons = total_lessons + 1, updated_at = $2 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, q, lsn.CourseID, lsn.CreatedAt.UTC()); err != nil {
			return errors.Wrap(err, "incrementing total lessons")
		}
		return nil
	})
	if err != nil {
		return course.Lesson{}, err
	}
	return lsn, nil
}

func (repo *courseRepository) QueryLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	if !validID(courseID) {
		return lessons, nil
	}
	var rows []lessonRow
	q := `SELECT ` + lessonColumns + ` FROM lessons WHERE course_id = $1 ORDER BY "order"`
	if err := repo.db.SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	if !validID(id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	var row lessonRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "getting lesson")
	}
	return row.lesson(), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCourse(row rowScanner, crs *course.Course) error {
	err := row.Scan(
		&crs.ID, &crs.Title, &crs.Description, &crs.Instructor, &crs.Level, &crs.ThumbnailURL, &crs.Price,
		&crs.TotalLessons, &crs.DurationHours, &crs.IsPublished, &crs.CreatedAt, &crs.UpdatedAt)
	if err != nil {
		return err
	}
	crs.CreatedAt = crs.CreatedAt.UTC()
	crs.UpdatedAt = crs.UpdatedAt.UTC()
	return nil
}
