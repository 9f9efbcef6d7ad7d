package main

import (
	"context"
	"fmt"

	"github.com/StephenSouth13/moveup/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	if err := user.CheckPassword(pwd); err != nil {
		return err
	}
	roles := []string{user.RoleStudent}
	if isAdmin {
		roles = user.AllRoles
	}
	usr, err := cli.usrSvc.UpdateOrCreate(context.Background(), name, email, pwd, roles)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s <%s> saved (%s)\n", usr.Name, usr.Email, usr.ID)
	return nil
}
