package learning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/user"
)

var (
	// errors
	ErrEnrollmentNotFound  = core.NewNotFoundError("enrollment")
	ErrCertificateNotFound = core.NewNotFoundError("certificate")
	ErrNotCompleted        = core.NewStateError("course not yet completed")
)

type (
	Repository interface {
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		GetCourseEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		QueryEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		// CreateEnrollmentIfAbsent inserts the enrollment unless one exists for (user, course),
		// returning the stored row and whether it was created.
		CreateEnrollmentIfAbsent(ctx context.Context, enr Enrollment) (Enrollment, bool, error)
		// UpdateEnrollmentProgress sets progress_percent of a non completed enrollment.
		UpdateEnrollmentProgress(ctx context.Context, id string, percent int) (bool, error)
		// CompleteEnrollment marks the enrollment completed (progress 100, completed_at)
		// unless it already is; it reports whether this call made the transition.
		CompleteEnrollment(ctx context.Context, id string, at time.Time) (bool, error)

		// UpsertLessonProgress creates or refreshes the row keyed by (enrollment, lesson).
		UpsertLessonProgress(ctx context.Context, lp LessonProgress) (LessonProgress, error)
		CountCompletedLessons(ctx context.Context, enrollmentID string) (int, error)
		QueryLessonProgress(ctx context.Context, enrollmentID string) ([]LessonProgress, error)

		// CreateCertificateIfAbsent inserts the certificate unless the enrollment already has one,
		// returning the stored row and whether it was created.
		CreateCertificateIfAbsent(ctx context.Context, cert Certificate) (Certificate, bool, error)
		GetCertificate(ctx context.Context, id string) (Certificate, error)
		GetEnrollmentCertificate(ctx context.Context, enrollmentID string) (Certificate, error)
		QueryCertificates(ctx context.Context, userID string) ([]Certificate, error)
	}

	CourseReader interface {
		Get(ctx context.Context, id string) (course.Course, error)
		GetLesson(ctx context.Context, id string) (course.Lesson, error)
	}

	UserReader interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// CertificateRenderer draws a printable certificate.
	CertificateRenderer interface {
		RenderPNG(w io.Writer, cert CertificateDetail) error
	}

	Service interface {
		// CompleteLesson records lessonID as completed for the caller's enrollment and reconciles its progress.
		CompleteLesson(ctx context.Context, userID, enrollmentID, lessonID string) (CompletionResult, error)
		// ReconcileProgress recomputes the enrollment progress; it returns the certificate issued by this call, if any.
		ReconcileProgress(ctx context.Context, enrollmentID string) (*Certificate, error)
		// IssueCertificate returns the certificate of a completed enrollment, creating it on first call.
		IssueCertificate(ctx context.Context, enrollmentID string) (Certificate, error)

		// Enroll creates an active enrollment for (user, course) unless one exists.
		Enroll(ctx context.Context, userID, courseID string) (Enrollment, bool, error)
		IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)

		Enrollments(ctx context.Context, userID string) ([]EnrollmentDetail, error)
		Enrollment(ctx context.Context, userID, id string) (EnrollmentDetail, error)
		Certificates(ctx context.Context, userID string) ([]CertificateDetail, error)
		Certificate(ctx context.Context, id string) (CertificateDetail, error)
		RenderCertificate(ctx context.Context, w io.Writer, id string) error
	}

	service struct {
		repo     Repository
		courses  CourseReader
		users    UserReader
		mailSvc  core.EmailService
		renderer CertificateRenderer
		logger   core.Logger
		now      func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	courses CourseReader,
	users UserReader,
	mailSvc core.EmailService,
	renderer CertificateRenderer,
	logger core.Logger,
) Service {
	return &service{
		repo:     repo,
		courses:  courses,
		users:    users,
		mailSvc:  mailSvc,
		renderer: renderer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// getOwnEnrollment hides enrollments of other users behind ErrEnrollmentNotFound.
func (svc *service) getOwnEnrollment(ctx context.Context, userID, id string) (Enrollment, error) {
	enr, err := svc.repo.GetEnrollment(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return Enrollment{}, ErrEnrollmentNotFound
		}
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	if enr.UserID != userID {
		return Enrollment{}, ErrEnrollmentNotFound
	}
	return enr, nil
}

func (svc *service) CompleteLesson(ctx context.Context, userID, enrollmentID, lessonID string) (CompletionResult, error) {
	if userID == "" {
		return CompletionResult{}, ErrEnrollmentNotFound
	}
	enr, err := svc.getOwnEnrollment(ctx, userID, enrollmentID)
	if err != nil {
		return CompletionResult{}, err
	}

	lsn, err := svc.courses.GetLesson(ctx, lessonID)
	if err != nil {
		if core.IsNotFound(err) {
			return CompletionResult{}, course.ErrLessonNotFound
		}
		return CompletionResult{}, errors.Wrap(err, "getting lesson")
	}
	if lsn.CourseID != enr.CourseID {
		return CompletionResult{}, course.ErrLessonNotFound
	}

	lp, err := svc.repo.UpsertLessonProgress(ctx, LessonProgress{
		EnrollmentID: enr.ID,
		LessonID:     lsn.ID,
		IsCompleted:  true,
		CompletedAt:  svc.now(),
	})
	if err != nil {
		return CompletionResult{}, errors.Wrap(err, "upserting lesson progress")
	}

	cert, err := svc.ReconcileProgress(ctx, enr.ID)
	if err != nil {
		return CompletionResult{}, errors.Wrap(err, "reconciling progress")
	}

	if enr, err = svc.repo.GetEnrollment(ctx, enr.ID); err != nil {
		return CompletionResult{}, errors.Wrap(err, "getting enrollment")
	}
	return CompletionResult{Progress: lp, Enrollment: enr, Certificate: cert}, nil
}

func (svc *service) ReconcileProgress(ctx context.Context, enrollmentID string) (*Certificate, error) {
	enr, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, errors.Wrap(err, "getting enrollment")
	}

	if enr.IsCompleted() {
		// status & timestamps are final; only heal a missing certificate
		return svc.issue(ctx, enr)
	}

	crs, err := svc.courses.Get(ctx, enr.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "getting course")
	}
	count, err := svc.repo.CountCompletedLessons(ctx, enr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "counting completed lessons")
	}

	if !IsFinished(count, crs.TotalLessons) {
		if pct := Percent(count, crs.TotalLessons); pct != enr.ProgressPercent {
			if _, err = svc.repo.UpdateEnrollmentProgress(ctx, enr.ID, pct); err != nil {
				return nil, errors.Wrap(err, "updating enrollment progress")
			}
		}
		return nil, nil
	}

	completed, err := svc.repo.CompleteEnrollment(ctx, enr.ID, svc.now())
	if err != nil {
		return nil, errors.Wrap(err, "completing enrollment")
	}
	if !completed { // a concurrent call won the transition and issues the certificate
		return nil, nil
	}

	if enr, err = svc.repo.GetEnrollment(ctx, enr.ID); err != nil {
		return nil, errors.Wrap(err, "getting enrollment")
	}
	return svc.issue(ctx, enr)
}

func (svc *service) IssueCertificate(ctx context.Context, enrollmentID string) (Certificate, error) {
	enr, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		if core.IsNotFound(err) {
			return Certificate{}, ErrEnrollmentNotFound
		}
		return Certificate{}, errors.Wrap(err, "getting enrollment")
	}
	if !enr.IsCompleted() {
		return Certificate{}, ErrNotCompleted
	}

	if cert, err := svc.repo.GetEnrollmentCertificate(ctx, enr.ID); err == nil {
		return cert, nil
	} else if !core.IsNotFound(err) {
		return Certificate{}, errors.Wrap(err, "getting certificate")
	}

	if _, err = svc.issue(ctx, enr); err != nil {
		return Certificate{}, err
	}
	cert, err := svc.repo.GetEnrollmentCertificate(ctx, enr.ID)
	return cert, errors.Wrap(err, "getting certificate")
}

// issue creates the certificate of a completed enrollment; it returns nil when one already existed.
func (svc *service) issue(ctx context.Context, enr Enrollment) (*Certificate, error) {
	now := svc.now()
	id := uuid.NewString()
	cert := Certificate{
		ID:           id,
		EnrollmentID: enr.ID,
		Number:       NewCertificateNumber(now),
		URL:          "/v1/certificates/" + id + "/image",
		IssuedAt:     now,
		ValidUntil:   now.Add(CertificateValidity),
	}
	cert, created, err := svc.repo.CreateCertificateIfAbsent(ctx, cert)
	if err != nil {
		return nil, errors.Wrap(err, "creating certificate")
	}
	if !created {
		return nil, nil
	}

	svc.logger.Info(fmt.Sprintf("certificate %s issued for enrollment %s", cert.Number, enr.ID))
	svc.notifyCertificate(ctx, enr, cert)
	return &cert, nil
}

func (svc *service) notifyCertificate(ctx context.Context, enr Enrollment, cert Certificate) {
	detail, err := svc.certificateDetail(ctx, cert, &enr)
	if err != nil {
		svc.logger.Error("preparing certificate email", err)
		return
	}
	usr, err := svc.users.GetByID(ctx, enr.UserID)
	if err != nil {
		svc.logger.Error("preparing certificate email", errors.Wrap(err, "getting user"))
		return
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your certificate for " + detail.CourseTitle,
		TemplateName: "certificate_issued",
		TemplateData: map[string]interface{}{
			"Name":        usr.Name,
			"CourseTitle": detail.CourseTitle,
			"Number":      cert.Number,
			"ValidUntil":  cert.ValidUntil.Format("2006-01-02"),
			"URL":         cert.URL,
		},
	}
	if svc.renderer != nil {
		var buf bytes.Buffer
		if err = svc.renderer.RenderPNG(&buf, detail); err != nil {
			svc.logger.Error("rendering certificate", err)
		} else if err = msg.Attach(&buf, cert.Number+".png", "image/png"); err != nil {
			svc.logger.Error("attaching certificate", err)
		}
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) Enroll(ctx context.Context, userID, courseID string) (Enrollment, bool, error) {
	enr, created, err := svc.repo.CreateEnrollmentIfAbsent(ctx, Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: svc.now(),
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}
	return enr, created, nil
}

func (svc *service) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	if _, err := svc.repo.GetCourseEnrollment(ctx, userID, courseID); err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "getting course enrollment")
	}
	return true, nil
}

func (svc *service) enrollmentDetail(ctx context.Context, enr Enrollment, withProgress bool) (EnrollmentDetail, error) {
	detail := EnrollmentDetail{Enrollment: enr}
	crs, err := svc.courses.Get(ctx, enr.CourseID)
	if err != nil {
		return EnrollmentDetail{}, errors.Wrap(err, "getting course")
	}
	detail.CourseTitle = crs.Title
	detail.TotalLessons = crs.TotalLessons

	if withProgress {
		if detail.Progress, err = svc.repo.QueryLessonProgress(ctx, enr.ID); err != nil {
			return EnrollmentDetail{}, errors.Wrap(err, "querying lesson progress")
		}
		if detail.Progress == nil {
			detail.Progress = []LessonProgress{}
		}
	}

	if cert, err := svc.repo.GetEnrollmentCertificate(ctx, enr.ID); err == nil {
		detail.Certificate = &cert
	} else if !core.IsNotFound(err) {
		return EnrollmentDetail{}, errors.Wrap(err, "getting certificate")
	}
	return detail, nil
}

func (svc *service) Enrollments(ctx context.Context, userID string) ([]EnrollmentDetail, error) {
	enrs, err := svc.repo.QueryEnrollments(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	details := make([]EnrollmentDetail, 0, len(enrs))
	for _, enr := range enrs {
		detail, err := svc.enrollmentDetail(ctx, enr, false)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (svc *service) Enrollment(ctx context.Context, userID, id string) (EnrollmentDetail, error) {
	enr, err := svc.getOwnEnrollment(ctx, userID, id)
	if err != nil {
		return EnrollmentDetail{}, err
	}
	return svc.enrollmentDetail(ctx, enr, true)
}

func (svc *service) certificateDetail(ctx context.Context, cert Certificate, enr *Enrollment) (CertificateDetail, error) {
	if enr == nil {
		e, err := svc.repo.GetEnrollment(ctx, cert.EnrollmentID)
		if err != nil {
			return CertificateDetail{}, errors.Wrap(err, "getting enrollment")
		}
		enr = &e
	}
	crs, err := svc.courses.Get(ctx, enr.CourseID)
	if err != nil {
		return CertificateDetail{}, errors.Wrap(err, "getting course")
	}
	usr, err := svc.users.GetByID(ctx, enr.UserID)
	if err != nil {
		return CertificateDetail{}, errors.Wrap(err, "getting user")
	}
	return CertificateDetail{
		Certificate: cert,
		UserID:      usr.ID,
		LearnerName: usr.Name,
		CourseID:    crs.ID,
		CourseTitle: crs.Title,
	}, nil
}

func (svc *service) Certificates(ctx context.Context, userID string) ([]CertificateDetail, error) {
	certs, err := svc.repo.QueryCertificates(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	details := make([]CertificateDetail, 0, len(certs))
	for _, cert := range certs {
		detail, err := svc.certificateDetail(ctx, cert, nil)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

func (svc *service) Certificate(ctx context.Context, id string) (CertificateDetail, error) {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		if core.IsNotFound(err) {
			return CertificateDetail{}, ErrCertificateNotFound
		}
		return CertificateDetail{}, errors.Wrap(err, "getting certificate")
	}
	return svc.certificateDetail(ctx, cert, nil)
}

func (svc *service) RenderCertificate(ctx context.Context, w io.Writer, id string) error {
	if svc.renderer == nil {
		return errors.New("certificate renderer not configured")
	}
	detail, err := svc.Certificate(ctx, id)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.renderer.RenderPNG(w, detail), "rendering certificate")
}
