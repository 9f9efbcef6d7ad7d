package main

import (
	"context"

	"github.com/StephenSouth13/moveup/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	if err := user.CheckPassword(pwd); err != nil {
		return err
	}
	return cli.usrSvc.SetPassword(context.Background(), email, pwd)
}
