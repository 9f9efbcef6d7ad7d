package learning

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enrollment statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// CertificateValidity is the lifetime of an issued Certificate.
const CertificateValidity = 365 * 24 * time.Hour

type Enrollment struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	CourseID        string     `json:"course_id"`
	Status          string     `json:"status"`
	ProgressPercent int        `json:"progress_percent"`
	EnrolledAt      time.Time  `json:"enrolled_at"`  // UTC
	CompletedAt     *time.Time `json:"completed_at"` // UTC
}

func (e Enrollment) IsCompleted() bool {
	return e.Status == StatusCompleted && e.CompletedAt != nil
}

type LessonProgress struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	LessonID     string    `json:"lesson_id"`
	IsCompleted  bool      `json:"is_completed"`
	CompletedAt  time.Time `json:"completed_at"` // UTC
}

type Certificate struct {
	ID           string    `json:"id"`
	EnrollmentID string    `json:"enrollment_id"`
	Number       string    `json:"number"`
	URL          string    `json:"certificate_url"`
	IssuedAt     time.Time `json:"issued_at"`   // UTC
	ValidUntil   time.Time `json:"valid_until"` // UTC
}

// EnrollmentDetail is an Enrollment with its course title and lesson progress.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle  string           `json:"course_title"`
	TotalLessons int              `json:"total_lessons"`
	Progress     []LessonProgress `json:"lessons_progress"`
	Certificate  *Certificate     `json:"certificate"`
}

// CertificateDetail is a Certificate with the data printed on it.
type CertificateDetail struct {
	Certificate
	UserID      string `json:"user_id"`
	LearnerName string `json:"learner_name"`
	CourseID    string `json:"course_id"`
	CourseTitle string `json:"course_title"`
}

// CompletionResult is the outcome of CompleteLesson.
type CompletionResult struct {
	Progress    LessonProgress `json:"progress"`
	Enrollment  Enrollment     `json:"enrollment"`
	Certificate *Certificate   `json:"certificate"` // set only when issued by this call
}

// NewCertificateNumber returns a human readable, collision resistant number: CERT-YYYYMMDD-XXXXXXXXXXXX.
func NewCertificateNumber(issuedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return "CERT-" + issuedAt.UTC().Format("20060102") + "-" + suffix
}

// Percent computes the progress of completed lessons over total, rounded.
// A total of 0 counts as 1. An unfinished course never reports 100.
func Percent(completed, total int) int {
	if total <= 0 {
		total = 1
	}
	pct := int(float64(completed)/float64(total)*100 + 0.5)
	if completed < total && pct >= 100 {
		return 99
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// IsFinished reports whether completed lessons cover the course (a total of 0 counts as 1).
func IsFinished(completed, total int) bool {
	if total <= 0 {
		total = 1
	}
	return completed >= total
}
