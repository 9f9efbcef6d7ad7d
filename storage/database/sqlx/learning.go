package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/StephenSouth13/moveup/core/learning"
)

const (
	enrollmentColumns  = `id, user_id, course_id, status, progress_percent, enrolled_at, completed_at`
	progressColumns    = `id, enrollment_id, lesson_id, completed, completed_at`
	certificateColumns = `id, enrollment_id, number, url, issued_at, valid_until`
)

type enrollmentRow struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	CourseID        string    `db:"course_id"`
	Status          string    `db:"status"`
	ProgressPercent int       `db:"progress_percent"`
	EnrolledAt      time.Time `db:"enrolled_at"`
	CompletedAt     null.Time `db:"completed_at"`
}

func (r enrollmentRow) enrollment() learning.Enrollment {
	enr := learning.Enrollment{
		ID:              r.ID,
		UserID:          r.UserID,
		CourseID:        r.CourseID,
		Status:          r.Status,
		ProgressPercent: r.ProgressPercent,
		EnrolledAt:      r.EnrolledAt.UTC(),
	}
	if r.CompletedAt.Valid {
		at := r.CompletedAt.Time.UTC()
		enr.CompletedAt = &at
	}
	return enr
}

type progressRow struct {
	ID           string    `db:"id"`
	EnrollmentID string    `db:"enrollment_id"`
	LessonID     string    `db:"lesson_id"`
	Completed    bool      `db:"completed"`
	CompletedAt  time.Time `db:"completed_at"`
}

func (r progressRow) progress() learning.LessonProgress {
	return learning.LessonProgress{
		ID:           r.ID,
		EnrollmentID: r.EnrollmentID,
		LessonID:     r.LessonID,
		IsCompleted:  r.Completed,
		CompletedAt:  r.CompletedAt.UTC(),
	}
}

type certificateRow struct {
	ID           string    `db:"id"`
	EnrollmentID string    `db:"enrollment_id"`
	Number       string    `db:"number"`
	URL          string    `db:"url"`
	IssuedAt     time.Time `db:"issued_at"`
	ValidUntil   time.Time `db:"valid_until"`
}

func (r certificateRow) certificate() learning.Certificate {
	return learning.Certificate{
		ID:           r.ID,
		EnrollmentID: r.EnrollmentID,
		Number:       r.Number,
		URL:          r.URL,
		IssuedAt:     r.IssuedAt.UTC(),
		ValidUntil:   r.ValidUntil.UTC(),
	}
}

type learningRepository struct {
	db *sqlx.DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *sqlx.DB) learning.Repository {
	return &learningRepository{db: db}
}

func (repo *learningRepository) GetEnrollment(ctx context.Context, id string) (learning.Enrollment, error) {
	if !validID(id) {
		return learning.Enrollment{}, learning.ErrEnrollmentNotFound
	}
	var row enrollmentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id); err != nil {
		return learning.Enrollment{}, trapNoRowsErr(err, learning.ErrEnrollmentNotFound, "getting enrollment")
	}
	return row.enrollment(), nil
}

func (repo *learningRepository) GetCourseEnrollment(ctx context.Context, userID, courseID string) (learning.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return learning.Enrollment{}, learning.ErrEnrollmentNotFound
	}
	var row enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, userID, courseID); err != nil {
		return learning.Enrollment{}, trapNoRowsErr(err, learning.ErrEnrollmentNotFound, "getting course enrollment")
	}
	return row.enrollment(), nil
}

func (repo *learningRepository) QueryEnrollments(ctx context.Context, userID string) ([]learning.Enrollment, error) {
	enrs := make([]learning.Enrollment, 0)
	if !validID(userID) {
		return enrs, nil
	}
	var rows []enrollmentRow
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at DESC, id`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	for _, r := range rows {
		enrs = append(enrs, r.enrollment())
	}
	return enrs, nil
}

func (repo *learningRepository) CreateEnrollmentIfAbsent(ctx context.Context, enr learning.Enrollment) (learning.Enrollment, bool, error) {
	if enr.ID == "" {
		enr.ID = uuid.NewString()
	}
	if enr.Status == "" {
		enr.Status = learning.StatusActive
	}
	q := `INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, 0, $5, NULL)
		ON CONFLICT (user_id, course_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q, enr.ID, enr.UserID, enr.CourseID, enr.Status, enr.EnrolledAt.UTC())
	if err != nil {
		return learning.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return learning.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
	}

	stored, err := repo.GetCourseEnrollment(ctx, enr.UserID, enr.CourseID)
	if err != nil {
		return learning.Enrollment{}, false, err
	}
	return stored, n > 0, nil
}

// affected reports whether res touched a row; when it did not, it checks the enrollment exists.
func (repo *learningRepository) affected(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if _, err = repo.GetEnrollment(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (repo *learningRepository) UpdateEnrollmentProgress(ctx context.Context, id string, percent int) (bool, error) {
	if !validID(id) {
		return false, learning.ErrEnrollmentNotFound
	}
	q := `UPDATE enrollments SET progress_percent = $2
		WHERE id = $1 AND status <> 'completed' AND progress_percent <> $2`
	res, err := repo.db.ExecContext(ctx, q, id, percent)
	if err != nil {
		return false, errors.Wrap(err, "updating enrollment progress")
	}
	return repo.affected(ctx, res, id)
}

func (repo *learningRepository) CompleteEnrollment(ctx context.Context, id string, at time.Time) (bool, error) {
	if !validID(id) {
		return false, learning.ErrEnrollmentNotFound
	}
	q := `UPDATE enrollments SET status = 'completed', completed_at = $2, progress_percent = 100
		WHERE id = $1 AND status <> 'completed'`
	res, err := repo.db.ExecContext(ctx, q, id, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "completing enrollment")
	}
	return repo.affected(ctx, res, id)
}

func (repo *learningRepository) UpsertLessonProgress(ctx context.Context, lp learning.LessonProgress) (learning.LessonProgress, error) {
	if lp.ID == "" {
		lp.ID = uuid.NewString()
	}
	q := `INSERT INTO lesson_progress (` + progressColumns + `)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (enrollment_id, lesson_id)
		DO UPDATE SET completed = EXCLUDED.completed, completed_at = EXCLUDED.completed_at
		RETURNING ` + progressColumns
	var row progressRow
	err := repo.db.GetContext(ctx, &row, q, lp.ID, lp.EnrollmentID, lp.LessonID, lp.IsCompleted, lp.CompletedAt.UTC())
	if err != nil {
		return learning.LessonProgress{}, errors.Wrap(err, "upserting lesson progress")
	}
	return row.progress(), nil
}

func (repo *learningRepository) CountCompletedLessons(ctx context.Context, enrollmentID string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM lesson_progress WHERE enrollment_id = $1 AND completed`
	if err := repo.db.GetContext(ctx, &count, q, enrollmentID); err != nil {
		return 0, errors.Wrap(err, "counting completed lessons")
	}
	return count, nil
}

func (repo *learningRepository) QueryLessonProgress(ctx context.Context, enrollmentID string) ([]learning.LessonProgress, error) {
	var rows []progressRow
	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE enrollment_id = $1 ORDER BY completed_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q, enrollmentID); err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}
	progress := make([]learning.LessonProgress, 0, len(rows))
	for _, r := range rows {
		progress = append(progress, r.progress())
	}
	return progress, nil
}

func (repo *learningRepository) CreateCertificateIfAbsent(ctx context.Context, cert learning.Certificate) (learning.Certificate, bool, error) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	q := `INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (enrollment_id) DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q,
		cert.ID, cert.EnrollmentID, cert.Number, cert.URL, cert.IssuedAt.UTC(), cert.ValidUntil.UTC())
	if err != nil {
		return learning.Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return learning.Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}

	stored, err := repo.GetEnrollmentCertificate(ctx, cert.EnrollmentID)
	if err != nil {
		return learning.Certificate{}, false, err
	}
	return stored, n > 0, nil
}

func (repo *learningRepository) GetCertificate(ctx context.Context, id string) (learning.Certificate, error) {
	if !validID(id) {
		return learning.Certificate{}, learning.ErrCertificateNotFound
	}
	var row certificateRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id); err != nil {
		return learning.Certificate{}, trapNoRowsErr(err, learning.ErrCertificateNotFound, "getting certificate")
	}
	return row.certificate(), nil
}

func (repo *learningRepository) GetEnrollmentCertificate(ctx context.Context, enrollmentID string) (learning.Certificate, error) {
	if !validID(enrollmentID) {
		return learning.Certificate{}, learning.ErrCertificateNotFound
	}
	var row certificateRow
	q := `SELECT ` + certificateColumns + ` FROM certificates WHERE enrollment_id = $1`
	if err := repo.db.GetContext(ctx, &row, q, enrollmentID); err != nil {
		return learning.Certificate{}, trapNoRowsErr(err, learning.ErrCertificateNotFound, "getting enrollment certificate")
	}
	return row.certificate(), nil
}

func (repo *learningRepository) QueryCertificates(ctx context.Context, userID string) ([]learning.Certificate, error) {
	certs := make([]learning.Certificate, 0)
	if !validID(userID) {
		return certs, nil
	}
	var rows []certificateRow
	q := `SELECT c.id, c.enrollment_id, c.number, c.url, c.issued_at, c.valid_until
		FROM certificates c JOIN enrollments e ON e.id = c.enrollment_id
		WHERE e.user_id = $1
		ORDER BY c.issued_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	for _, r := range rows {
		certs = append(certs, r.certificate())
	}
	return certs, nil
}
