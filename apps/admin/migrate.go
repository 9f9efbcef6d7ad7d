package main

import (
	"context"
	"errors"

	"github.com/StephenSouth13/moveup/storage/database"
)

var (
	gooseRunFunc = database.RunMigrations // mockable

	errNoDatabase = errors.New("migrations require the postgres database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return gooseRunFunc(context.Background(), cli.db, args[0], args[1:]...)
}
