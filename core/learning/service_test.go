package learning_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/user"
	"github.com/StephenSouth13/moveup/services/email"
	"github.com/StephenSouth13/moveup/storage/database/inmem"
	"github.com/StephenSouth13/moveup/tests"
)

type fakeRenderer struct {
	calls int32
}

func (r *fakeRenderer) RenderPNG(w io.Writer, cert learning.CertificateDetail) error {
	atomic.AddInt32(&r.calls, 1)
	_, err := io.WriteString(w, "PNG "+cert.Number+" "+cert.LearnerName)
	return err
}

type testEnv struct {
	usrRepo  user.Repository
	crsRepo  course.Repository
	lrnRepo  learning.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	renderer *fakeRenderer
	svc      learning.Service

	student user.User
}

func setup(t *testing.T) *testEnv {
	conf := core.NewTestConfig()
	db := inmemdb.Open()

	env := &testEnv{
		usrRepo:  inmemdb.NewUserRepository(db),
		crsRepo:  inmemdb.NewCourseRepository(db),
		lrnRepo:  inmemdb.NewLearningRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf),
		renderer: new(fakeRenderer),
	}
	env.svc = learning.NewService(
		env.lrnRepo,
		course.NewService(env.crsRepo),
		user.NewService(env.usrRepo),
		env.mailSvc,
		env.renderer,
		testutil.NewLogger(conf),
	)
	env.student = testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "", []string{user.RoleStudent}, true)
	return env
}

func (env *testEnv) certificates(t *testing.T, enrollmentID string) []learning.Certificate {
	certs, err := env.lrnRepo.QueryCertificates(context.Background(), env.student.ID)
	require.NoError(t, err)
	out := make([]learning.Certificate, 0)
	for _, c := range certs {
		if c.EnrollmentID == enrollmentID {
			out = append(out, c)
		}
	}
	return out
}

func TestService_CompleteLesson_ThreeLessons(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go Basics", "1500000", true, 3)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	res, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 33, res.Enrollment.ProgressPercent)

	res, err = env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[1].ID)
	require.NoError(t, err)
	assert.True(t, res.Progress.IsCompleted)
	assert.Equal(t, lessons[1].ID, res.Progress.LessonID)
	assert.Equal(t, 67, res.Enrollment.ProgressPercent)
	assert.Equal(t, learning.StatusActive, res.Enrollment.Status)
	assert.Nil(t, res.Enrollment.CompletedAt)
	assert.Nil(t, res.Certificate)
	assert.Empty(t, env.certificates(t, enr.ID))

	res, err = env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Enrollment.ProgressPercent)
	assert.Equal(t, learning.StatusCompleted, res.Enrollment.Status)
	require.NotNil(t, res.Enrollment.CompletedAt)
	require.NotNil(t, res.Certificate)
	assert.Equal(t, enr.ID, res.Certificate.EnrollmentID)
	assert.Equal(t, res.Certificate.IssuedAt.Add(learning.CertificateValidity), res.Certificate.ValidUntil)
	assert.Equal(t, "/v1/certificates/"+res.Certificate.ID+"/image", res.Certificate.URL)
	assert.Len(t, env.certificates(t, enr.ID), 1)

	// notification with the rendered certificate attached
	sent := env.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "certificate_issued", sent[0].TemplateName)
	assert.Equal(t, env.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, res.Certificate.Number)
	assert.Contains(t, sent[0].TextContent, "Go Basics")
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, res.Certificate.Number+".png", sent[0].Attachments[0].Filename)
	assert.Equal(t, "image/png", sent[0].Attachments[0].ContentType)
}

func TestService_CompleteLesson_Twice(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 2)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	first, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)
	second, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)

	assert.Equal(t, first.Progress.ID, second.Progress.ID)
	rows, err := env.lrnRepo.QueryLessonProgress(ctx, enr.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 50, second.Enrollment.ProgressPercent)
}

func TestService_CompleteLesson_Errors(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 2)
	_, otherLessons := testutil.CreateCourse(t, env.crsRepo, "Rust", "0", true, 1)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)
	intruder := testutil.CreateUser(t, env.usrRepo, "Eve", "eve@moveup.test", "", nil, true)

	tests := []struct {
		name         string
		userID       string
		enrollmentID string
		lessonID     string
		wantErr      error
	}{
		{name: "no identity", enrollmentID: enr.ID, lessonID: lessons[0].ID, wantErr: learning.ErrEnrollmentNotFound},
		{name: "unknown enrollment", userID: env.student.ID, enrollmentID: "nope", lessonID: lessons[0].ID, wantErr: learning.ErrEnrollmentNotFound},
		{name: "foreign enrollment", userID: intruder.ID, enrollmentID: enr.ID, lessonID: lessons[0].ID, wantErr: learning.ErrEnrollmentNotFound},
		{name: "unknown lesson", userID: env.student.ID, enrollmentID: enr.ID, lessonID: "nope", wantErr: course.ErrLessonNotFound},
		{name: "lesson of another course", userID: env.student.ID, enrollmentID: enr.ID, lessonID: otherLessons[0].ID, wantErr: course.ErrLessonNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CompleteLesson(ctx, tt.userID, tt.enrollmentID, tt.lessonID)
			assert.Equal(t, tt.wantErr, err)
		})
	}

	// nothing was recorded
	rows, err := env.lrnRepo.QueryLessonProgress(ctx, enr.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestService_ReconcileProgress_AfterCompletion(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 1)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	res, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Certificate)
	completedAt := *res.Enrollment.CompletedAt

	for i := 0; i < 3; i++ {
		cert, err := env.svc.ReconcileProgress(ctx, enr.ID)
		require.NoError(t, err)
		assert.Nil(t, cert)
	}

	stored, err := env.lrnRepo.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercent)
	assert.True(t, completedAt.Equal(*stored.CompletedAt))
	assert.Len(t, env.certificates(t, enr.ID), 1)
	assert.Len(t, env.mailSvc.SentMessages(), 1)
}

func TestService_ReconcileProgress_EmptyCourse(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, _ := testutil.CreateCourse(t, env.crsRepo, "Coming soon", "0", true, 0)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	cert, err := env.svc.ReconcileProgress(ctx, enr.ID)
	require.NoError(t, err)
	assert.Nil(t, cert)

	stored, err := env.lrnRepo.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ProgressPercent)
	assert.Equal(t, learning.StatusActive, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, env.certificates(t, enr.ID))
}

func TestService_ReconcileProgress_NotFound(t *testing.T) {
	env := setup(t)
	_, err := env.svc.ReconcileProgress(context.Background(), "missing")
	assert.Equal(t, learning.ErrEnrollmentNotFound, err)
}

func TestService_ReconcileProgress_HealsMissingCertificate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, _ := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 1)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	// a crash right after the completion transition leaves no certificate
	won, err := env.lrnRepo.CompleteEnrollment(ctx, enr.ID, enr.EnrolledAt)
	require.NoError(t, err)
	require.True(t, won)

	cert, err := env.svc.ReconcileProgress(ctx, enr.ID)
	require.NoError(t, err)
	require.NotNil(t, cert)
	assert.Len(t, env.certificates(t, enr.ID), 1)
}

func TestService_IssueCertificate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 1)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	_, err := env.svc.IssueCertificate(ctx, enr.ID)
	assert.Equal(t, learning.ErrNotCompleted, err)
	assert.True(t, core.IsStateError(err))

	_, err = env.svc.IssueCertificate(ctx, "missing")
	assert.Equal(t, learning.ErrEnrollmentNotFound, err)

	res, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)

	first, err := env.svc.IssueCertificate(ctx, enr.ID)
	require.NoError(t, err)
	second, err := env.svc.IssueCertificate(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Certificate.ID, first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
}

func TestService_CompleteLesson_Concurrent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	const nLessons = 6
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, nLessons)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)

	var (
		wg     sync.WaitGroup
		issued int32
	)
	// every lesson completed by several racing requests
	for round := 0; round < 3; round++ {
		for _, lsn := range lessons {
			wg.Add(1)
			go func(lessonID string) {
				defer wg.Done()
				res, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessonID)
				assert.NoError(t, err)
				if res.Certificate != nil {
					atomic.AddInt32(&issued, 1)
				}
			}(lsn.ID)
		}
	}
	wg.Wait()

	stored, err := env.lrnRepo.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, learning.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercent)
	assert.NotNil(t, stored.CompletedAt)

	rows, err := env.lrnRepo.QueryLessonProgress(ctx, enr.ID)
	require.NoError(t, err)
	assert.Len(t, rows, nLessons)

	assert.EqualValues(t, 1, atomic.LoadInt32(&issued))
	assert.Len(t, env.certificates(t, enr.ID), 1)
	assert.Len(t, env.mailSvc.SentMessages(), 1)
}

func TestService_Enroll(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, _ := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 1)

	ok, err := env.svc.IsEnrolled(ctx, env.student.ID, crs.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	enr, created, err := env.svc.Enroll(ctx, env.student.ID, crs.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, learning.StatusActive, enr.Status)
	assert.Equal(t, 0, enr.ProgressPercent)

	again, created, err := env.svc.Enroll(ctx, env.student.ID, crs.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, enr.ID, again.ID)

	ok, err = env.svc.IsEnrolled(ctx, env.student.ID, crs.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_ReadSide(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go", "0", true, 1)
	other, _ := testutil.CreateCourse(t, env.crsRepo, "Rust", "0", true, 2)
	enr := testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, crs.ID)
	testutil.CreateEnrollment(t, env.lrnRepo, env.student.ID, other.ID)
	intruder := testutil.CreateUser(t, env.usrRepo, "Eve", "eve@moveup.test", "", nil, true)

	res, err := env.svc.CompleteLesson(ctx, env.student.ID, enr.ID, lessons[0].ID)
	require.NoError(t, err)

	details, err := env.svc.Enrollments(ctx, env.student.ID)
	require.NoError(t, err)
	assert.Len(t, details, 2)

	detail, err := env.svc.Enrollment(ctx, env.student.ID, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", detail.CourseTitle)
	assert.Equal(t, 1, detail.TotalLessons)
	assert.Len(t, detail.Progress, 1)
	require.NotNil(t, detail.Certificate)
	assert.Equal(t, res.Certificate.ID, detail.Certificate.ID)

	_, err = env.svc.Enrollment(ctx, intruder.ID, enr.ID)
	assert.Equal(t, learning.ErrEnrollmentNotFound, err)

	certs, err := env.svc.Certificates(ctx, env.student.ID)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "Lan", certs[0].LearnerName)
	assert.Equal(t, "Go", certs[0].CourseTitle)

	certs, err = env.svc.Certificates(ctx, intruder.ID)
	require.NoError(t, err)
	assert.Empty(t, certs)

	cert, err := env.svc.Certificate(ctx, res.Certificate.ID)
	require.NoError(t, err)
	assert.Equal(t, env.student.ID, cert.UserID)
	assert.Equal(t, crs.ID, cert.CourseID)

	_, err = env.svc.Certificate(ctx, "missing")
	assert.Equal(t, learning.ErrCertificateNotFound, err)

	var buf bytes.Buffer
	require.NoError(t, env.svc.RenderCertificate(ctx, &buf, res.Certificate.ID))
	assert.Equal(t, "PNG "+res.Certificate.Number+" Lan", buf.String())
}
