package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/StephenSouth13/moveup/core/learning"
	"github.com/StephenSouth13/moveup/core/payment"
	"github.com/StephenSouth13/moveup/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db          *sqlx.DB // nil when running on the in-memory engine
	usrSvc      user.Service
	learningSvc learning.Service
	paymentSvc  payment.Service
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                  - run goose migrations (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL               - reset user's password")
	fmt.Fprintln(cli.out, "  reconcile                                - create enrollments missing for completed orders")
	fmt.Fprintln(cli.out, "  recalc -enrollment ID                    - recompute an enrollment's progress")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	recalcCmd := flag.NewFlagSet("recalc", flag.ExitOnError)
	recalcEnrollment := recalcCmd.String("enrollment", "", "The enrollment ID.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "reconcile":
		return cli.reconcile()

	case "recalc":
		if err := recalcCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recalcEnrollment == "" {
			recalcCmd.Usage()
			return errHelp
		}
		return cli.recalc(*recalcEnrollment)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
