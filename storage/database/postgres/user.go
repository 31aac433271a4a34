package pgrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
	"github.com/edapp/edapp/storage/database"
)

const (
	usersTable           = "users"
	usersUsernameIdx     = "users_tenant_username_idx"
	usersEmailIdx        = "users_tenant_email_idx"
	userReturningColumns = "RETURNING id, tenant_id, branch_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login"
)

var userColumns = []string{
	"id", "tenant_id", "branch_id", "name", "username", "email",
	"is_active", "roles", "password_hash", "created_at", "updated_at", "last_login",
}

type userRow struct {
	ID           string         `db:"id"`
	TenantID     null.String    `db:"tenant_id"`
	BranchID     null.String    `db:"branch_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func fromUser(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	hash := usr.PasswordHash
	if hash == nil {
		hash = []byte{}
	}
	return userRow{
		ID:           usr.ID,
		TenantID:     nullString(usr.TenantID),
		BranchID:     nullString(usr.BranchID),
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: hash,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		TenantID:     row.TenantID.String,
		BranchID:     row.BranchID.String,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		IsActive:     row.IsActive,
		Roles:        []string(row.Roles),
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

func (row userRow) setMap() map[string]interface{} {
	return map[string]interface{}{
		"tenant_id":     row.TenantID,
		"branch_id":     row.BranchID,
		"name":          row.Name,
		"username":      row.Username,
		"email":         row.Email,
		"is_active":     row.IsActive,
		"roles":         row.Roles,
		"password_hash": row.PasswordHash,
		"updated_at":    row.UpdatedAt,
		"last_login":    row.LastLogin,
	}
}

// trapUserUniqueErr maps the unique index violations to the user errors.
func trapUserUniqueErr(err error, msg string) error {
	switch {
	case database.IsUniqueViolation(err, usersUsernameIdx):
		return user.ErrUsernameExists
	case database.IsUniqueViolation(err, usersEmailIdx):
		return user.ErrEmailExists
	}
	return errors.Wrap(err, msg)
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) CheckUsernameUniqueness(
	ctx context.Context,
	tenantID, username, email string,
	excludedUsers []user.User,
	exec ...core.DBExecutor,
) error {
	match := sq.Or{}
	if username != "" {
		match = append(match, sq.Eq{"username": username})
	}
	if email != "" {
		match = append(match, sq.Eq{"email": email})
	}
	if len(match) == 0 {
		return nil
	}

	b := psql.Select("username", "email").From(usersTable).Where(tenantEq(tenantID)).Where(match)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		b = b.Where(sq.NotEq{"id": ids})
	}
	q, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var taken []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err = repo.getExec(exec).SelectContext(ctx, &taken, q, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, u := range taken {
		if username != "" && u.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(taken) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	row := fromUser(usr)
	set := row.setMap()
	set["id"] = row.ID
	set["created_at"] = row.CreatedAt

	q, args, err := psql.Insert(usersTable).SetMap(set).Suffix(userReturningColumns).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var created userRow
	if err = repo.getExec(exec).GetContext(ctx, &created, q, args...); err != nil {
		return user.User{}, trapUserUniqueErr(err, "inserting user")
	}
	return created.toUser(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	b := psql.Select(userColumns...).From(usersTable)

	if filter != nil {
		b = b.Where(tenantEq(filter.TenantID))

		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			b = b.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleExprs := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleExprs = append(roleExprs, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role LIKE ?)", role+"%"))
			}
			b = b.Where(roleExprs)
		}
		if filter.BranchID != "" {
			if _, err := uuid.Parse(filter.BranchID); err != nil {
				return []user.User{}, nil
			}
			b = b.Where(sq.Eq{"branch_id": filter.BranchID})
		}
		if filter.IsActive != nil {
			b = b.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			b = b.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			b = b.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}

	q, args, err := orderBy(b, ordering, "name ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []userRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(userColumns...).From(usersTable).Limit(1)

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		b = b.Where(tenantEq(filter.TenantID)).Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		b = b.Where(tenantEq(filter.TenantID)).Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		b = b.Where(tenantEq(filter.TenantID)).
			Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	q, args, err := b.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var row userRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := fromUser(usr)
	q, args, err := psql.Update(usersTable).
		SetMap(row.setMap()).
		Where(sq.Eq{"id": row.ID}).
		Suffix(userReturningColumns).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var updated userRow
	if err = repo.getExec(exec).GetContext(ctx, &updated, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, trapUserUniqueErr(err, "updating user")
	}
	return updated.toUser(), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, tenantID string, ids ...string) error {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	q, args, err := psql.Delete(usersTable).Where(tenantEq(tenantID)).Where(sq.Eq{"id": valid}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	_, err = repo.exec.ExecContext(ctx, q, args...)
	return errors.Wrap(err, "deleting users")
}
