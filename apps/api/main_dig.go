package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // /debug/pprof

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	dig_container "github.com/StephenSouth13/moveup/apps/api/di/dig"
	echoapi "github.com/StephenSouth13/moveup/apps/api/echo"
	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/core/user"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		validate *validator.Validate,
		translator ut.Translator,
		paymentSvc payment.Service,
		server *echoapi.Server,
	) {
		apiLogger.Info(fmt.Sprintf("Application initializing : %s", conf))
		defer apiLogger.Info("Application stopped")

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		core.ParseEmailTemplates(apiLogger)

		if db != nil {
			defer func() {
				if err := db.Close(); err != nil {
					dbLoggerParam.Logger.Fatal("Failed to close", err)
				}
			}()
		}

		serveDebug(conf, apiLogger)

		scheduler, err := newScheduler(conf, paymentSvc, apiLogger)
		if err != nil {
			apiLogger.Fatal(err.Error(), err)
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done() // let a running sweep finish
		}()

		go server.Start()
		awaitShutdown(conf, apiLogger, server)
	}))
}

// serveDebug exposes /debug/vars (build info) and /debug/pprof on the debug host.
func serveDebug(conf *core.Config, logger core.Logger) {
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()
}

// awaitShutdown blocks until the server fails or a shutdown is requested,
// then drains in-flight requests within conf.Server.ShutdownTimeout.
func awaitShutdown(conf *core.Config, logger core.Logger, server *echoapi.Server) {
	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
