// Package pgrepos implements the repositories on PostgreSQL, with sqlx & squirrel.
package pgrepos

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edapp/edapp/core"
)

// psql builds queries with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type repository struct {
	exec core.DBExecutor
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to notFoundErr
func trapNoRowsErr(err, notFoundErr error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFoundErr
	}
	return errors.Wrap(err, msg)
}

// tenantEq scopes a query to a tenant; "" selects the platform (tenant-less) rows.
func tenantEq(tenantID string) sq.Eq {
	if tenantID == "" {
		return sq.Eq{"tenant_id": nil}
	}
	return sq.Eq{"tenant_id": tenantID}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func orderBy(b sq.SelectBuilder, ordering []core.DBOrdering, defaults ...string) sq.SelectBuilder {
	if len(ordering) == 0 {
		return b.OrderBy(defaults...)
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return b.OrderBy(orderList...)
}
