package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrInvalidUID     = errors.New("invalid value")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, tenantID, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, tenantID string, ids ...string) error
	}

	// PasswordResetLink builds the link a user follows to reset their password.
	PasswordResetLink func(usr User, uid, token string) string

	Service struct {
		repo      Repository
		mailSvc   core.EmailService
		secretKey []byte
		resetTTL  time.Duration
		appName   string
		fromEmail mail.Address
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:      repo,
		mailSvc:   mailSvc,
		secretKey: []byte(conf.SecretKey),
		resetTTL:  conf.PasswordResetTimeoutDelta,
		appName:   conf.AppName,
		fromEmail: conf.DefaultFromEmail(),
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, tenantID, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, tenantID, uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewFieldValidationError(field, err)
	}
	return nil
}

// Create creates a tenant user; nu must have been validated.
func (svc *Service) Create(ctx context.Context, tenantID string, nu NewUser, exec ...core.DBExecutor) (User, error) {
	usr, err := NewTenantUser(tenantID, nu)
	if err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr, exec...)
}

// NewTenantUser builds an active User from nu.
func NewTenantUser(tenantID string, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		BranchID:  nu.BranchID,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, tenantID, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{
		TenantID:        tenantID,
		UsernameOrEmail: core.CleanString(uname, true /* lower */),
	})
}

func (svc *Service) GetByEmail(ctx context.Context, tenantID, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{TenantID: tenantID, Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.BranchID != nil {
		usr.BranchID = *uu.BranchID
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, tenantID string, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, tenantID, ids...)
}

// RequestPasswordReset mails a reset link to the active user with `email`.
func (svc *Service) RequestPasswordReset(ctx context.Context, tenantID, tenantName, email string, link PasswordResetLink) error {
	usr, err := svc.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token := MakeToken(usr, svc.secretKey)

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":       usr.Name,
			"TenantName": tenantName,
			"ResetURL":   link(usr, EncodeUID(usr), token),
		},
	}
	svc.mailSvc.SendMessages(msg)
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewFieldValidationError("uid", ErrInvalidUID)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewFieldValidationError("uid", ErrInvalidUID)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := verifyToken(usr, data.Token, svc.secretKey, svc.resetTTL); err != nil {
		return core.NewFieldValidationError("token", err)
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
