package tenant

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

// Statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

const MainBranchCode = "main"

var Statuses = []string{StatusActive, StatusSuspended, StatusDeleted}

type Tenant struct {
	ID           string    `json:"id" db:"id"`
	Slug         string    `json:"slug" db:"slug"`
	Name         string    `json:"name" db:"name"`
	Status       string    `json:"status" db:"status"`
	LogoURL      string    `json:"logo_url" db:"logo_url"`
	PrimaryColor string    `json:"primary_color" db:"primary_color"`
	ContactEmail string    `json:"contact_email" db:"contact_email"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
}

func (t Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// PublicTenant is what anonymous clients may know about a Tenant.
type PublicTenant struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	LogoURL      string `json:"logo_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
	PortalURL    string `json:"portal_url"`
	ApplyURL     string `json:"apply_url"`
}

// Public returns the public view of `t`, with the URLs of its sites.
func (t Tenant) Public(r *Resolver, scheme string) PublicTenant {
	return PublicTenant{
		Slug:         t.Slug,
		Name:         t.Name,
		Status:       t.Status,
		LogoURL:      t.LogoURL,
		PrimaryColor: t.PrimaryColor,
		PortalURL:    r.SiteURL(scheme, KindTenant, t.Slug),
		ApplyURL:     r.SiteURL(scheme, KindApply, t.Slug),
	}
}

type Branch struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	Address   string    `json:"address" db:"address"`
	Phone     string    `json:"phone" db:"phone"`
	IsMain    bool      `json:"is_main" db:"is_main"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// NewTenant contains information needed to create a new Tenant.
type NewTenant struct {
	Slug         string        `json:"slug" validate:"required,slug,unreserved"`
	Name         string        `json:"name" validate:"required,max=255"`
	LogoURL      string        `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor string        `json:"primary_color" validate:"omitempty,hexcolor"`
	ContactEmail string        `json:"contact_email" validate:"omitempty,email"`
	Owner        *user.NewUser `json:"owner" validate:"omitempty"` // provisioned as admin:owner
}

func (nt *NewTenant) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nt.Slug = core.CleanString(nt.Slug, true /* lower */)
	nt.Name = core.CleanString(nt.Name)
	nt.LogoURL = core.CleanString(nt.LogoURL)
	nt.PrimaryColor = core.CleanString(nt.PrimaryColor, true /* lower */)
	nt.ContactEmail = core.CleanString(nt.ContactEmail, true /* lower */)

	if nt.Owner != nil {
		nt.Owner.Clean()
		nt.Owner.Roles = []string{user.RoleAdminOwner}
	}

	if err := validate.Struct(nt); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, nt.Slug)
}

// UpdateTenant defines what information may be provided to modify an existing Tenant.
// The slug is immutable: it is baked into hostnames.
type UpdateTenant struct {
	Name         string  `json:"name" validate:"omitempty,max=255"`
	LogoURL      *string `json:"logo_url" validate:"omitempty,url"`
	PrimaryColor *string `json:"primary_color" validate:"omitempty,hexcolor"`
	ContactEmail *string `json:"contact_email" validate:"omitempty,email"`
}

func (ut *UpdateTenant) Validate(validate *validator.Validate) error {
	ut.Name = core.CleanString(ut.Name)
	return validate.Struct(ut)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=active suspended deleted"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

type QueryFilter struct {
	Search string `query:"search"`
	Status string `query:"status"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// NewBranch contains information needed to create a new Branch.
type NewBranch struct {
	Name    string `json:"name" validate:"required,max=255"`
	Code    string `json:"code" validate:"required,max=32,slug"`
	Address string `json:"address"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
}

func (nb *NewBranch) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Code = core.CleanString(nb.Code, true /* lower */)
	nb.Address = core.CleanString(nb.Address)
	nb.Phone = core.CleanString(nb.Phone)
	return validate.Struct(nb)
}

type UpdateBranch struct {
	Name    string  `json:"name" validate:"omitempty,max=255"`
	Address *string `json:"address"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	IsMain  bool    `json:"is_main"`
}

func (ub *UpdateBranch) Validate(validate *validator.Validate) error {
	ub.Name = core.CleanString(ub.Name)
	return validate.Struct(ub)
}
