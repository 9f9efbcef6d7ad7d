package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	. "github.com/StephenSouth13/moveup/apps/api/echo"
	"github.com/StephenSouth13/moveup/core/user"
	"github.com/StephenSouth13/moveup/tests"
)

func Test_userApi_register(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Taken", "taken@moveup.test", "", []string{user.RoleStudent}, true)

	tests := []httpTest{
		{
			name: "missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"email":            "this field is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "weak password",
			body: []byte(`{"name": "An", "email": "an@moveup.test", "password": "12345678", "password_confirm": "12345678"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "email taken",
			body: []byte(`{"name": "An", "email": "TAKEN@moveup.test", "password": "s3cret-pwd", "password_confirm": "s3cret-pwd"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/register"
	}
	runHttpTests(t, env, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/register",
			[]byte(`{"name": " An ", "email": "An@MoveUp.test", "password": "s3cret-pwd", "password_confirm": "s3cret-pwd"}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusCreated)

		var resp TokenResponse
		unmarshal(t, rec, &resp)
		claims := new(Claims)
		if _, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(env.conf.SecretKey), nil
		}); err != nil {
			t.Fatalf("ParseWithClaims() failed: %v", err)
		}
		if claims.Email != "an@moveup.test" || claims.Name != "An" || claims.IsAdmin {
			t.Errorf("claims = %+v", claims)
		}

		usr, err := user.NewService(env.usrRepo).GetByEmail(req.Context(), "an@moveup.test")
		if err != nil {
			t.Fatalf("GetByEmail() failed: %v", err)
		}
		if claims.Subject != usr.ID || !usr.HasRole(user.RoleStudent) {
			t.Errorf("registered user = %+v; claims.Subject %v", usr, claims.Subject)
		}
	})
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "s3cret-pwd", []string{user.RoleStudent}, true)
	testutil.CreateUser(t, env.usrRepo, "Off", "off@moveup.test", "s3cret-pwd", []string{user.RoleStudent}, false)

	failed := marchallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{name: "unknown email", body: []byte(`{"email": "nope@moveup.test", "password": "s3cret-pwd"}`), wantCode: http.StatusBadRequest, wantData: failed},
		{name: "wrong password", body: []byte(`{"email": "lan@moveup.test", "password": "wrong-pwd"}`), wantCode: http.StatusBadRequest, wantData: failed},
		{
			name: "deactivated", body: []byte(`{"email": "off@moveup.test", "password": "s3cret-pwd"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "missing password", body: []byte(`{"email": "lan@moveup.test"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password": "this field is required"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	runHttpTests(t, env, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/users/login", []byte(`{"email": " LAN@moveup.test ", "password": "s3cret-pwd"}`))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)

		var resp TokenResponse
		unmarshal(t, rec, &resp)

		// the token opens authed endpoints
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)

		var me user.User
		unmarshal(t, rec, &me)
		if me.Email != "lan@moveup.test" || me.LastLogin.IsZero() {
			t.Errorf("me = %+v", me)
		}
	})
}

func Test_userApi_me(t *testing.T) {
	env := setup(t)
	lan := testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "", []string{user.RoleStudent}, true)

	expired := GetUserClaims(env.conf, lan)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	expiredToken, err := GenerateToken(env.conf, expired)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	ghost := user.User{ID: "b0b0b0b0-0000-4000-8000-000000000000", Name: "Ghost"}

	// same secret, minted for another application
	foreign := GetUserClaims(env.conf, lan)
	foreign.Audience = jwt.ClaimStrings{"OtherApp"}
	foreignAudToken, err := GenerateToken(env.conf, foreign)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	foreign = GetUserClaims(env.conf, lan)
	foreign.Issuer = "OtherApp"
	foreignIssToken, err := GenerateToken(env.conf, foreign)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "expired token", path: "/v1/users/me", token: expiredToken,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "forged token", path: "/v1/users/me", token: getToken(t, env.conf, lan) + "x",
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "foreign audience", path: "/v1/users/me", token: foreignAudToken,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "foreign issuer", path: "/v1/users/me", token: foreignIssToken,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name: "deleted user", path: "/v1/users/me", token: getToken(t, env.conf, ghost),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"}),
		},
		{name: "ok", path: "/v1/users/me", token: getToken(t, env.conf, lan), wantCode: http.StatusOK, wantData: marchallObj(t, lan)},
	}
	runHttpTests(t, env, tests)
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)
	lan := testutil.CreateUser(t, env.usrRepo, "Lan", "lan@moveup.test", "", []string{user.RoleStudent}, true)

	stale := GetUserClaims(env.conf, lan, time.Now().Add(-env.conf.Server.JWTRefreshExpirationDelta-time.Minute).Unix())
	staleToken, err := GenerateToken(env.conf, stale)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "refresh expired", token: staleToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	runHttpTests(t, env, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, env.conf, lan))
		env.serve(req, rec)
		checkCode(t, rec, http.StatusOK)

		var resp TokenResponse
		unmarshal(t, rec, &resp)
		if resp.Token == "" {
			t.Error("empty token")
		}
	})
}
