package tests

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	. "github.com/StephenSouth13/moveup/apps/api/echo"
	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/core/user"
	"github.com/StephenSouth13/moveup/services/certificate"
	"github.com/StephenSouth13/moveup/services/email"
	"github.com/StephenSouth13/moveup/services/payment"
	"github.com/StephenSouth13/moveup/storage/database/inmem"
	"github.com/StephenSouth13/moveup/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

// testGateway verifies real Stripe signatures but never calls the Stripe API.
type testGateway struct {
	*paymentsvc.StripeGateway

	mu      sync.Mutex
	intents []string
}

func (gw *testGateway) CreatePaymentIntent(_ context.Context, amount decimal.Decimal, currency, orderID string) (payment.Intent, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.intents = append(gw.intents, fmt.Sprintf("%s %s %s", orderID, amount, currency))
	return payment.Intent{ClientSecret: "pi_" + orderID + "_secret", PaymentIntentID: "pi_" + orderID}, nil
}

type testEnv struct {
	conf    *core.Config
	app     *Server
	usrRepo user.Repository
	crsRepo course.Repository
	lrnRepo learning.Repository
	ordRepo order.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	gateway *testGateway
}

func setup(t *testing.T) *testEnv {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		crsRepo: inmemdb.NewCourseRepository(db),
		lrnRepo: inmemdb.NewLearningRepository(db),
		ordRepo: inmemdb.NewOrderRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf),
		gateway: &testGateway{StripeGateway: paymentsvc.NewStripeGateway(conf)},
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	renderer, err := certsvc.NewPNGRenderer(conf)
	if err != nil {
		t.Fatalf("NewPNGRenderer() failed: %v", err)
	}

	// set up services
	usrSvc := user.NewService(env.usrRepo)
	crsSvc := course.NewService(env.crsRepo)
	lrnSvc := learning.NewService(env.lrnRepo, crsSvc, usrSvc, env.mailSvc, renderer, logger)
	ordSvc := order.NewService(env.ordRepo, crsSvc, lrnSvc)
	paySvc := payment.NewService(env.ordRepo, lrnSvc, crsSvc, usrSvc, env.gateway, nil, env.mailSvc, logger, conf)

	// set up server
	env.app = NewServer(ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		CourseSvc:   crsSvc,
		OrderSvc:    ordSvc,
		LearningSvc: lrnSvc,
		PaymentSvc:  paySvc,
		Validate:    validate,
		Translator:  translator,
	})
	return env
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	_, ok1 := j1.([]interface{})
	_, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int) {
	t.Helper()
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkCode(t, rec, tt.wantCode)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// signedWebhook returns a Stripe-Signature header for payload.
func signedWebhook(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func paymentEvent(id, typ, piID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": %q,
  "object": "event",
  "api_version": "2023-10-16",
  "created": %d,
  "type": %q,
  "data": {"object": {"id": %q, "object": "payment_intent", "metadata": {"orderId": %q}}}
}`, id, time.Now().Unix(), typ, piID, orderID))
}
