package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/core/user"
)

type (
	ServerDeps struct {
		dig.In

		Conf        *core.Config
		Logger      core.Logger
		UserSvc     user.Service
		CourseSvc   course.Service
		OrderSvc    order.Service
		LearningSvc learning.Service
		PaymentSvc  payment.Service
		Validate    *validator.Validate
		Translator  ut.Translator
	}

	Server struct {
		conf     *core.Config
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		conf:     deps.Conf,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.SignalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", s.home)

	secret := []byte(s.conf.SecretKey)
	jwt := jwtMiddleware(secret, s.conf.AppName, false)
	optionalJwt := jwtMiddleware(secret, s.conf.AppName, true)

	v1 := s.app.Group("/v1")
	api := s.app.Group("/api") // workflow endpoints called by the web front-end and the gateway
	registerUserAPI(v1, jwt, deps)
	registerCourseAPI(v1, jwt, optionalJwt, deps)
	registerOrderAPI(v1, jwt, deps)
	registerLearningAPI(v1, api, jwt, deps)
	registerPaymentAPI(api, jwt, deps)
}

func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error that stopped the server unexpectedly.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives OS interrupts and shutdown requests raised by handlers.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.conf.AppName+" API!")
}
