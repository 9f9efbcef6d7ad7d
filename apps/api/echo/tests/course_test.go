package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/user"
	"github.com/StephenSouth13/moveup/tests"
)

func Test_courseApi_query(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@moveup.test", "", []string{user.RoleAdmin}, true)

	goCrs, _ := testutil.CreateCourse(t, env.crsRepo, "Go for Gophers", "500000", true, 2)
	sqlCrs, _ := testutil.CreateCourse(t, env.crsRepo, "SQL Basics", "300000", true, 1)
	draft, _ := testutil.CreateCourse(t, env.crsRepo, "Go Concurrency (draft)", "900000", false, 0)

	tests := []httpTest{
		{name: "anonymous sees published", path: "/v1/courses?ordering=title", wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{goCrs, sqlCrs})},
		{name: "student sees published", path: "/v1/courses?ordering=-price", token: getToken(t, env.conf, student), wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{goCrs, sqlCrs})},
		{name: "admin sees drafts", path: "/v1/courses?ordering=price", token: getToken(t, env.conf, admin), wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{sqlCrs, goCrs, draft})},
		{name: "search", path: "/v1/courses?search=GO", wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{goCrs})},
		{name: "search (unknown)", path: "/v1/courses?search=rust", wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "admin search", path: "/v1/courses?search=go", token: getToken(t, env.conf, admin), wantCode: http.StatusOK, wantData: marchallObj(t, []course.Course{goCrs, draft})},
		{name: "invalid token", path: "/v1/courses", token: "nope", wantCode: http.StatusUnauthorized},
	}
	runHttpTests(t, env, tests)
}

func Test_courseApi_retrieve(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@moveup.test", "", []string{user.RoleAdmin}, true)
	crs, lessons := testutil.CreateCourse(t, env.crsRepo, "Go for Gophers", "500000", true, 2)
	draft, _ := testutil.CreateCourse(t, env.crsRepo, "Draft", "1", false, 0)

	notFound := marchallObj(t, httpErr{Error: "course not found"})
	tests := []httpTest{
		{
			name: "published", path: "/v1/courses/" + crs.ID, wantCode: http.StatusOK,
			wantData: marchallObj(t, course.Detail{Course: crs, Lessons: lessons}),
		},
		{name: "draft hidden", path: "/v1/courses/" + draft.ID, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "draft (admin)", path: "/v1/courses/" + draft.ID, token: getToken(t, env.conf, admin), wantCode: http.StatusOK,
			wantData: marchallObj(t, course.Detail{Course: draft, Lessons: []course.Lesson{}}),
		},
		{name: "unknown", path: "/v1/courses/lol", wantCode: http.StatusNotFound, wantData: notFound},
	}
	runHttpTests(t, env, tests)
}

func Test_courseApi_backOffice(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "", []string{user.RoleStudent}, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@moveup.test", "", []string{user.RoleAdmin}, true)
	adminToken := getToken(t, env.conf, admin)

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", method: http.MethodPost, path: "/v1/courses", token: getToken(t, env.conf, student),
			body: []byte(`{"title": "Hack"}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "invalid course", method: http.MethodPost, path: "/v1/courses", token: adminToken,
			body:     []byte(`{"title": "  ", "price": "-1", "thumbnail_url": "not a url"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"title":         "this field is required",
				"price":         "must be greater than or equal to 0",
				"thumbnail_url": "thumbnail_url must be a valid URL",
			}),
		},
	}
	runHttpTests(t, env, tests)

	var crs course.Course
	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses", adminToken,
			[]byte(`{"title": " Go for Gophers ", "instructor": "Rob", "level": "beginner", "price": "500000", "duration_hours": 12}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusCreated)
		unmarshal(t, rec, &crs)

		assert.Equal(t, "Go for Gophers", crs.Title)
		assert.Equal(t, "500000", crs.Price.String())
		assert.False(t, crs.IsPublished)
		assert.Zero(t, crs.TotalLessons)
	})

	t.Run("update keeps omitted fields", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/courses/"+crs.ID, adminToken, []byte(`{"price": "450000"}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)

		var updated course.Course
		unmarshal(t, rec, &updated)
		assert.Equal(t, "Go for Gophers", updated.Title)
		assert.Equal(t, "Rob", updated.Instructor)
		assert.Equal(t, 12, updated.DurationHours)
		assert.Equal(t, "450000", updated.Price.String())
	})

	t.Run("lessons", func(t *testing.T) {
		for _, body := range []string{`{"title": "Intro"}`, `{"title": "Goroutines"}`} {
			req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/lessons", adminToken, []byte(body))
			env.serve(req, rec)
			checkCode(t, rec, http.StatusCreated)
		}

		// explicit order already taken
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/lessons", adminToken, []byte(`{"title": "Dup", "order": 2}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusBadRequest)

		req, rec = newAuthRequest(http.MethodPost, "/v1/courses/lol/lessons", adminToken, []byte(`{"title": "Lost"}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusNotFound)

		detail, err := course.NewService(env.crsRepo).GetDetail(context.Background(), crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, detail.TotalLessons)
		require.Len(t, detail.Lessons, 2)
		assert.Equal(t, "Intro", detail.Lessons[0].Title)
		assert.Equal(t, 1, detail.Lessons[0].Order)
		assert.Equal(t, 2, detail.Lessons[1].Order)
	})

	t.Run("publish", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/courses/"+crs.ID+"/publish", adminToken, []byte(`{}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusBadRequest)

		req, rec = newAuthRequest(http.MethodPut, "/v1/courses/"+crs.ID+"/publish", adminToken, []byte(`{"is_published": true}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)

		// now visible in the public catalog
		req, rec = newRequest(http.MethodGet, "/v1/courses/"+crs.ID)
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)
	})
}
