package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

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

var logger core.Logger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	rbLogger := logsvc.NewRollbarLogger(stdLogger, conf)
	rbLogger.Enable(conf.RollbarToken != "" && !conf.Debug)
	logger = rbLogger

	// set up DB & repos
	var (
		db       *sqlx.DB
		usrRepo  user.Repository
		crsRepo  course.Repository
		lrnRepo  learning.Repository
		ordrRepo order.Repository
	)
	if conf.Database.Engine == "inmem" {
		mem := inmemdb.Open()
		usrRepo = inmemdb.NewUserRepository(mem)
		crsRepo = inmemdb.NewCourseRepository(mem)
		lrnRepo = inmemdb.NewLearningRepository(mem)
		ordrRepo = inmemdb.NewOrderRepository(mem)
	} else {
		var err error
		db, err = database.Open(conf)
		errAndDie(err)
		defer db.Close()
		errAndDie(database.StatusCheck(context.Background(), db))

		usrRepo = sqlxrepos.NewUserRepository(db)
		crsRepo = sqlxrepos.NewCourseRepository(db)
		lrnRepo = sqlxrepos.NewLearningRepository(db)
		ordrRepo = sqlxrepos.NewOrderRepository(db)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	core.ParseEmailTemplates(logger)

	renderer, err := certsvc.NewPNGRenderer(conf)
	errAndDie(err)

	var events payment.EventLog
	if conf.Redis.Addr != "" {
		if rdb, err := cachesvc.NewRedisEventLog(context.Background(), conf); err != nil {
			logger.Warn("redis unavailable", err)
		} else {
			events = rdb
		}
	}

	usrSvc := user.NewService(usrRepo)
	crsSvc := course.NewService(crsRepo)
	lrnSvc := learning.NewService(lrnRepo, crsSvc, usrSvc, mailSvc, renderer, logger)
	paySvc := payment.NewService(
		ordrRepo, lrnSvc, crsSvc, usrSvc, paymentsvc.NewStripeGateway(conf), events, mailSvc, logger, conf,
	)

	// start CLI
	cli := commandLine{
		db:          db,
		usrSvc:      usrSvc,
		learningSvc: lrnSvc,
		paymentSvc:  paySvc,
		out:         os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
