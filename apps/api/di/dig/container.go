package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/StephenSouth13/moveup/apps/api/echo"
	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/course"
	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/order"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/core/user"
	cachesvc "github.com/StephenSouth13/moveup/services/cache"
	certsvc "github.com/StephenSouth13/moveup/services/certificate"
	emailsvc "github.com/StephenSouth13/moveup/services/email"
	logsvc "github.com/StephenSouth13/moveup/services/logger"
	paymentsvc "github.com/StephenSouth13/moveup/services/payment"
	"github.com/StephenSouth13/moveup/storage/database"
	inmemdb "github.com/StephenSouth13/moveup/storage/database/inmem"
	sqlxrepos "github.com/StephenSouth13/moveup/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories are backed by PostgreSQL, or by memory when database.engine=inmem (DB is then nil).
type Repositories struct {
	dig.Out

	DB       *sqlx.DB
	Users    user.Repository
	Courses  course.Repository
	Learning learning.Repository
	Orders   order.Repository
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (Repositories, error) {
	if conf.Database.Engine == "inmem" {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on restart")
		db := inmemdb.Open()
		return Repositories{
			Users:    inmemdb.NewUserRepository(db),
			Courses:  inmemdb.NewCourseRepository(db),
			Learning: inmemdb.NewLearningRepository(db),
			Orders:   inmemdb.NewOrderRepository(db),
		}, nil
	}

	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		return Repositories{}, errors.Wrap(err, "setting up database")
	}
	loggerParam.Logger.Info(fmt.Sprintf("connected to %s", conf.Database.Address()))
	return Repositories{
		DB:       db,
		Users:    sqlxrepos.NewUserRepository(db),
		Courses:  sqlxrepos.NewCourseRepository(db),
		Learning: sqlxrepos.NewLearningRepository(db),
		Orders:   sqlxrepos.NewOrderRepository(db),
	}, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newCertificateRenderer(conf *core.Config) (learning.CertificateRenderer, error) {
	return certsvc.NewPNGRenderer(conf)
}

func newPaymentGateway(conf *core.Config) payment.Gateway {
	return paymentsvc.NewStripeGateway(conf)
}

// newEventLog connects to Redis when configured; webhooks are processed without it otherwise.
func newEventLog(conf *core.Config, logger core.Logger) payment.EventLog {
	if conf.Redis.Addr == "" {
		return nil
	}
	events, err := cachesvc.NewRedisEventLog(context.Background(), conf)
	if err != nil {
		logger.Warn("redis unavailable, webhook event ids will not be remembered", err)
		return nil
	}
	return events
}

func newLearningService(
	repo learning.Repository,
	courses course.Service,
	users user.Service,
	mailSvc core.EmailService,
	renderer learning.CertificateRenderer,
	logger core.Logger,
) learning.Service {
	return learning.NewService(repo, courses, users, mailSvc, renderer, logger)
}

func newOrderService(repo order.Repository, courses course.Service, enrollments learning.Service) order.Service {
	return order.NewService(repo, courses, enrollments)
}

func newPaymentService(
	orders order.Repository,
	enrollments learning.Service,
	courses course.Service,
	users user.Service,
	gateway payment.Gateway,
	events payment.EventLog,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) payment.Service {
	return payment.NewService(orders, enrollments, courses, users, gateway, events, mailSvc, logger, conf)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(newCertificateRenderer))
	must(c.Provide(newPaymentGateway))
	must(c.Provide(newEventLog))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(newLearningService))
	must(c.Provide(newOrderService))
	must(c.Provide(newPaymentService))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
