package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/roster"
	"github.com/trezcool/peereval/storage/database"
)

var (
	readPasswordFunc  = term.ReadPassword     // mockable
	runMigrationsFunc = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	engine     string
	logger     *log.Logger
	accountSvc *account.Service
	rosterSvc  *roster.Service
	validate   *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...] - run a goose command (up, down, status, version, redo, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-role student|professor] - create or update an account")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset an account's password")
	fmt.Println("  importstudents -file PATH - import student names from a CSV file")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The account's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The account's email.")
	addUserRole := addUserCmd.String("role", account.RoleProfessor, "The account's role: student or professor.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The account's username or email. The password will be prompted next.")

	importStudentsCmd := flag.NewFlagSet("importstudents", flag.ContinueOnError)
	importStudentsFile := importStudentsCmd.String("file", "", "Path to a CSV file with a name column.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS...]")
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(account.NewAccount{
			Username: *addUserUname,
			Email:    *addUserEmail,
			Role:     *addUserRole,
			Password: pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importstudents":
		if err := importStudentsCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importStudentsFile == "" {
			importStudentsCmd.Usage()
			return errHelp
		}
		return cli.importStudents(*importStudentsFile)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	return string(pwd), err
}

func (cli *commandLine) migrate(command string, args ...string) error {
	return runMigrationsFunc(cli.db.DB, cli.engine, cli.logger, command, args...)
}

// addUser updates or creates an account.
func (cli *commandLine) addUser(na account.NewAccount) error {
	if err := na.Validate(cli.validate); err != nil {
		return err
	}
	acc, created, err := cli.accountSvc.Upsert(context.Background(), na)
	if err != nil {
		return err
	}
	if created {
		cli.logger.Printf("account %q created (id=%d, role=%s)", acc.Username, acc.ID, acc.Role)
	} else {
		cli.logger.Printf("account %q updated (id=%d, role=%s)", acc.Username, acc.ID, acc.Role)
	}
	return nil
}

func (cli *commandLine) resetPassword(ident, pwd string) error {
	return cli.accountSvc.SetPassword(context.Background(), ident, pwd)
}

func (cli *commandLine) importStudents(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := cli.rosterSvc.ImportStudents(context.Background(), f)
	if err != nil {
		return err
	}
	cli.logger.Printf(
		"students imported: %d, duplicates: %d, errors: %d",
		report.SuccessCount, report.DuplicateCount, report.ErrorCount,
	)
	for _, msg := range report.Errors {
		cli.logger.Println("  " + msg)
	}
	return nil
}
