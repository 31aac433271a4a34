package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
)

const roleCapabilitiesTable = "role_capabilities"

type accessRepository struct {
	db core.DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db core.DB) *accessRepository {
	return &accessRepository{db: db}
}

func (repo accessRepository) QueryRoleCapabilities(ctx context.Context, tenantID string) (map[string][]string, error) {
	q, args, err := psql.Select("role", "capability").
		From(roleCapabilitiesTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("role", "capability").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []struct {
		Role       string `db:"role"`
		Capability string `db:"capability"`
	}
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying role capabilities")
	}

	caps := make(map[string][]string)
	for _, row := range rows {
		caps[row.Role] = append(caps[row.Role], row.Capability)
	}
	return caps, nil
}

func (repo accessRepository) SetRoleCapabilities(ctx context.Context, tenantID, role string, caps []string) error {
	return core.RunInTx(ctx, repo.db, func(exec core.DBExecutor) error {
		q, args, err := psql.Delete(roleCapabilitiesTable).Where(sq.Eq{"tenant_id": tenantID, "role": role}).ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = exec.ExecContext(ctx, q, args...); err != nil {
			return errors.Wrap(err, "clearing role capabilities")
		}
		if len(caps) == 0 {
			return nil
		}

		b := psql.Insert(roleCapabilitiesTable).Columns("tenant_id", "role", "capability")
		for _, c := range caps {
			b = b.Values(tenantID, role, c)
		}
		if q, args, err = b.ToSql(); err != nil {
			return errors.Wrap(err, "building query")
		}
		_, err = exec.ExecContext(ctx, q, args...)
		return errors.Wrap(err, "inserting role capabilities")
	})
}
