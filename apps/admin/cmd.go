package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sqlx.DB
	usrRepo    user.Repository
	tenantSvc  *tenant.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-name NAME] [-tenant SLUG -role ROLE | -platform] - add or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL [-tenant SLUG] - reset user's password")
	fmt.Fprintln(cli.out, "  addtenant -slug SLUG -name NAME [-email CONTACT_EMAIL] - add a school")
	fmt.Fprintln(cli.out, "  importusers -tenant SLUG -file FILE.xlsx [-sheet SHEET] - import users from a spreadsheet")
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to the username).")
	addUserTenant := addUserCmd.String("tenant", "", "The slug of the user's school.")
	addUserRole := addUserCmd.String("role", user.RoleAdminOwner, "The user's role within the school.")
	addUserPlatform := addUserCmd.Bool("platform", false, "Add a platform admin (no school).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")
	resetPasswordTenant := resetPasswordCmd.String("tenant", "", "The slug of the user's school; empty for platform users.")

	addTenantCmd := flag.NewFlagSet("addtenant", flag.ContinueOnError)
	addTenantSlug := addTenantCmd.String("slug", "", "The school's slug, used in its hostnames.")
	addTenantName := addTenantCmd.String("name", "", "The school's name.")
	addTenantEmail := addTenantCmd.String("email", "", "The school's contact email.")

	importUsersCmd := flag.NewFlagSet("importusers", flag.ContinueOnError)
	importUsersTenant := importUsersCmd.String("tenant", "", "The slug of the school.")
	importUsersFile := importUsersCmd.String("file", "", "The .xlsx file; columns: name, username, email, roles, branch.")
	importUsersSheet := importUsersCmd.String("sheet", "", "The sheet to read (defaults to the first one).")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, addTenantCmd, importUsersCmd} {
		fs.SetOutput(cli.out)
	}

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
		if (*addUserUname == "" && *addUserEmail == "") || (*addUserTenant == "" && !*addUserPlatform) {
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
		return cli.addUser(addUserOptions{
			name:     *addUserName,
			username: *addUserUname,
			email:    *addUserEmail,
			password: pwd,
			tenant:   *addUserTenant,
			role:     *addUserRole,
			platform: *addUserPlatform,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
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
		return cli.resetPassword(*resetPasswordTenant, *resetPasswordUname, pwd)

	case "addtenant":
		if err := addTenantCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addTenantSlug == "" || *addTenantName == "" {
			addTenantCmd.Usage()
			return errHelp
		}
		return cli.addTenant(*addTenantSlug, *addTenantName, *addTenantEmail)

	case "importusers":
		if err := importUsersCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importUsersTenant == "" || *importUsersFile == "" {
			importUsersCmd.Usage()
			return errHelp
		}
		return cli.importUsers(*importUsersTenant, *importUsersFile, *importUsersSheet)

	default:
		cli.printUsage()
		return errHelp
	}
}

// format renders validation errors as "field: message" pairs.
func (cli *commandLine) format(err error) string {
	switch e := pkgerrors.Cause(err).(type) {
	case validator.ValidationErrors:
		msgs := make(map[string]string, len(e))
		for _, fe := range e {
			msgs[fe.Field()] = fe.Translate(cli.translator)
		}
		return core.JoinFieldMessages(msgs)
	case *core.ValidationError:
		if msgs := e.FieldMap(); msgs != nil {
			return core.JoinFieldMessages(msgs)
		}
		return e.Error()
	}
	return err.Error()
}
