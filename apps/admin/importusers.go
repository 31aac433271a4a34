package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

// spreadsheet columns, matched case-insensitively against the header row
const (
	colName     = "name"
	colUsername = "username"
	colEmail    = "email"
	colRoles    = "roles"
	colBranch   = "branch"
)

var (
	randomPasswordFunc = randomPassword // mockable

	errNoHeader = errors.New("the sheet needs a header row with a name column")
)

// randomPassword satisfies the password policy; imported users set their own through the reset flow.
func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b) + "aA1!", nil
}

type importRow struct {
	line  int
	cells map[string]string
}

func readRows(path, sheet string) ([]importRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening spreadsheet")
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	if len(rows) == 0 {
		return nil, errNoHeader
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = core.CleanString(h, true /* lower */)
	}
	if !core.StringInSlice(colName, header) {
		return nil, errNoHeader
	}

	out := make([]importRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		cells := make(map[string]string, len(header))
		empty := true
		for j, val := range row {
			if j < len(header) && header[j] != "" {
				cells[header[j]] = strings.TrimSpace(val)
				empty = empty && cells[header[j]] == ""
			}
		}
		if !empty {
			out = append(out, importRow{line: i + 2, cells: cells})
		}
	}
	return out, nil
}

// importUsers creates the users listed in an .xlsx file within a tenant.
// Rows failing validation are reported and skipped.
func (cli *commandLine) importUsers(tenantSlug, path, sheet string) error {
	ctx := context.Background()
	t, err := cli.tenantSvc.GetBySlug(ctx, core.CleanString(tenantSlug, true /* lower */))
	if err != nil {
		return errors.Wrapf(err, "finding tenant %q", tenantSlug)
	}

	branches, err := cli.tenantSvc.QueryBranches(ctx, t.ID)
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}
	branchIDs := make(map[string]string, len(branches))
	for _, b := range branches {
		branchIDs[b.Code] = b.ID
	}

	rows, err := readRows(path, sheet)
	if err != nil {
		return err
	}

	var created int
	for _, row := range rows {
		if err := cli.importUser(ctx, t.ID, branchIDs, row); err != nil {
			fmt.Fprintf(cli.out, "row %d: %s\n", row.line, cli.format(err))
			continue
		}
		created++
	}

	fmt.Fprintf(cli.out, "%d/%d users imported into %q\n", created, len(rows), t.Slug)
	if created < len(rows) {
		return errors.Errorf("%d rows failed", len(rows)-created)
	}
	return nil
}

func (cli *commandLine) importUser(ctx context.Context, tenantID string, branchIDs map[string]string, row importRow) error {
	pwd, err := randomPasswordFunc()
	if err != nil {
		return errors.Wrap(err, "generating password")
	}

	roles := core.SplitList(row.cells[colRoles], true /* lower */)
	if len(roles) == 0 {
		roles = []string{user.RoleStudent}
	}
	nu := user.NewUser{
		Name:            row.cells[colName],
		Username:        row.cells[colUsername],
		Email:           row.cells[colEmail],
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if code := core.CleanString(row.cells[colBranch], true /* lower */); code != "" {
		id, ok := branchIDs[code]
		if !ok {
			return core.NewFieldValidationError(colBranch, errors.Errorf("unknown branch %q", code))
		}
		nu.BranchID = id
	}

	nu.Clean()
	if err = cli.validate.Struct(nu); err != nil {
		return err
	}
	if core.StringInSlice(user.RoleAdminOwner, nu.Roles) {
		return core.NewFieldValidationError(colRoles, errInvalidRole)
	}

	usr, err := user.NewTenantUser(tenantID, nu)
	if err != nil {
		return err
	}
	_, err = cli.usrRepo.CreateUser(ctx, usr)
	return err
}
