package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/StephenSouth13/moveup/core/learning"
)

type learningRepository struct {
	db *DB
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(db *DB) learning.Repository {
	return &learningRepository{db: db}
}

func (repo *learningRepository) GetEnrollment(_ context.Context, id string) (learning.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.db.enrollments[id]; ok {
		return enr, nil
	}
	return learning.Enrollment{}, learning.ErrEnrollmentNotFound
}

func (repo *learningRepository) findEnrollment(userID, courseID string) (learning.Enrollment, bool) {
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID && enr.CourseID == courseID {
			return enr, true
		}
	}
	return learning.Enrollment{}, false
}

func (repo *learningRepository) GetCourseEnrollment(_ context.Context, userID, courseID string) (learning.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.findEnrollment(userID, courseID); ok {
		return enr, nil
	}
	return learning.Enrollment{}, learning.ErrEnrollmentNotFound
}

func (repo *learningRepository) QueryEnrollments(_ context.Context, userID string) ([]learning.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrs := make([]learning.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID {
			enrs = append(enrs, enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool {
		if enrs[i].EnrolledAt.Equal(enrs[j].EnrolledAt) {
			return enrs[i].ID < enrs[j].ID
		}
		return enrs[i].EnrolledAt.After(enrs[j].EnrolledAt)
	})
	return enrs, nil
}

func (repo *learningRepository) CreateEnrollmentIfAbsent(_ context.Context, enr learning.Enrollment) (learning.Enrollment, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing, ok := repo.findEnrollment(enr.UserID, enr.CourseID); ok {
		return existing, false, nil
	}
	if enr.ID == "" {
		enr.ID = uuid.NewString()
	}
	if enr.Status == "" {
		enr.Status = learning.StatusActive
	}
	enr.ProgressPercent = 0
	enr.CompletedAt = nil
	repo.db.enrollments[enr.ID] = enr
	return enr, true, nil
}

func (repo *learningRepository) UpdateEnrollmentProgress(_ context.Context, id string, percent int) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[id]
	if !ok {
		return false, learning.ErrEnrollmentNotFound
	}
	if enr.Status == learning.StatusCompleted || enr.ProgressPercent == percent {
		return false, nil
	}
	enr.ProgressPercent = percent
	repo.db.enrollments[id] = enr
	return true, nil
}

func (repo *learningRepository) CompleteEnrollment(_ context.Context, id string, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enr, ok := repo.db.enrollments[id]
	if !ok {
		return false, learning.ErrEnrollmentNotFound
	}
	if enr.Status == learning.StatusCompleted {
		return false, nil
	}
	enr.Status = learning.StatusCompleted
	enr.ProgressPercent = 100
	enr.CompletedAt = &at
	repo.db.enrollments[id] = enr
	return true, nil
}

func (repo *learningRepository) UpsertLessonProgress(_ context.Context, lp learning.LessonProgress) (learning.LessonProgress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.progress {
		if existing.EnrollmentID == lp.EnrollmentID && existing.LessonID == lp.LessonID {
			existing.IsCompleted = lp.IsCompleted
			existing.CompletedAt = lp.CompletedAt
			repo.db.progress[id] = existing
			return existing, nil
		}
	}
	if lp.ID == "" {
		lp.ID = uuid.NewString()
	}
	repo.db.progress[lp.ID] = lp
	return lp, nil
}

func (repo *learningRepository) CountCompletedLessons(_ context.Context, enrollmentID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, lp := range repo.db.progress {
		if lp.EnrollmentID == enrollmentID && lp.IsCompleted {
			count++
		}
	}
	return count, nil
}

func (repo *learningRepository) QueryLessonProgress(_ context.Context, enrollmentID string) ([]learning.LessonProgress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := make([]learning.LessonProgress, 0)
	for _, lp := range repo.db.progress {
		if lp.EnrollmentID == enrollmentID {
			rows = append(rows, lp)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CompletedAt.Equal(rows[j].CompletedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CompletedAt.Before(rows[j].CompletedAt)
	})
	return rows, nil
}

func (repo *learningRepository) CreateCertificateIfAbsent(_ context.Context, cert learning.Certificate) (learning.Certificate, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.certificates {
		if existing.EnrollmentID == cert.EnrollmentID {
			return existing, false, nil
		}
	}
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	repo.db.certificates[cert.ID] = cert
	return cert, true, nil
}

func (repo *learningRepository) GetCertificate(_ context.Context, id string) (learning.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cert, ok := repo.db.certificates[id]; ok {
		return cert, nil
	}
	return learning.Certificate{}, learning.ErrCertificateNotFound
}

func (repo *learningRepository) GetEnrollmentCertificate(_ context.Context, enrollmentID string) (learning.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, cert := range repo.db.certificates {
		if cert.EnrollmentID == enrollmentID {
			return cert, nil
		}
	}
	return learning.Certificate{}, learning.ErrCertificateNotFound
}

func (repo *learningRepository) QueryCertificates(_ context.Context, userID string) ([]learning.Certificate, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	certs := make([]learning.Certificate, 0)
	for _, cert := range repo.db.certificates {
		if enr, ok := repo.db.enrollments[cert.EnrollmentID]; ok && enr.UserID == userID {
			certs = append(certs, cert)
		}
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].IssuedAt.After(certs[j].IssuedAt) })
	return certs, nil
}
