// Package access maps roles to capabilities, per tenant.
package access

import (
	"context"
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

// Capabilities
const (
	CapTenantManage   = "tenant:manage"
	CapUsersView      = "users:view"
	CapUsersManage    = "users:manage"
	CapBranchesManage = "branches:manage"
	CapPoliciesManage = "policies:manage"
	CapRolesManage    = "roles:manage"
)

var (
	AllCapabilities = []string{
		CapTenantManage, CapUsersView, CapUsersManage, CapBranchesManage, CapPoliciesManage, CapRolesManage,
	}

	defaultGrants = map[string][]string{
		user.RoleAdminOwner:     AllCapabilities,
		user.RoleAdminPrincipal: {CapUsersView, CapUsersManage, CapBranchesManage, CapPoliciesManage},
		user.RoleAdmin:          {CapUsersView, CapUsersManage},
		user.RoleTeacher:        {CapUsersView},
		user.RoleStudent:        {},
	}

	ErrOwnerRole = errors.New("the owner role cannot be edited")
	ErrRole      = errors.New("invalid role")

	capabilitiesTag  = "capabilities"
	capabilitiesText = "invalid capabilities"
)

type (
	// Repository stores the per-tenant overrides of the default grants.
	Repository interface {
		// QueryRoleCapabilities returns the overridden roles of a tenant with their capabilities.
		QueryRoleCapabilities(ctx context.Context, tenantID string) (map[string][]string, error)
		// SetRoleCapabilities replaces the capabilities of a role; none restores the defaults.
		SetRoleCapabilities(ctx context.Context, tenantID, role string, caps []string) error
	}

	Grant struct {
		Role         string   `json:"role"`
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
		IsDefault    bool     `json:"is_default"`
	}

	SetCapabilities struct {
		Capabilities []string `json:"capabilities" validate:"required,min=1,capabilities"`
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// InitValidators registers the access validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(capabilitiesTag, func(fl validator.FieldLevel) bool {
		caps, ok := fl.Field().Interface().([]string)
		if !ok {
			return false
		}
		for _, c := range caps {
			if !core.StringInSlice(c, AllCapabilities) {
				return false
			}
		}
		return true
	})
	core.RegisterCustomTranslation(validate, translator, capabilitiesTag, capabilitiesText)
}

func (sc *SetCapabilities) Validate(validate *validator.Validate) error {
	for i, c := range sc.Capabilities {
		sc.Capabilities[i] = core.CleanString(c, true /* lower */)
	}
	return validate.Struct(sc)
}

// Grants returns the effective capabilities of every tenant role.
func (svc *Service) Grants(ctx context.Context, tenantID string) ([]Grant, error) {
	overrides, err := svc.repo.QueryRoleCapabilities(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "querying role capabilities")
	}

	grants := make([]Grant, 0, len(user.Roles))
	for _, role := range user.Roles {
		g := Grant{Role: role.Value, Name: role.Name, IsDefault: true}
		if caps, ok := overrides[role.Value]; ok && role.Value != user.RoleAdminOwner {
			g.Capabilities, g.IsDefault = caps, false
		} else {
			g.Capabilities = defaultGrants[role.Value]
		}
		g.Capabilities = normalize(g.Capabilities)
		grants = append(grants, g)
	}
	return grants, nil
}

// CapabilitiesFor returns the union of the capabilities granted to `roles` within a tenant.
func (svc *Service) CapabilitiesFor(ctx context.Context, tenantID string, roles []string) ([]string, error) {
	if core.StringInSlice(user.RolePlatformAdmin, roles) {
		return normalize(AllCapabilities), nil
	}
	if tenantID == "" || len(roles) == 0 {
		return []string{}, nil
	}

	overrides, err := svc.repo.QueryRoleCapabilities(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "querying role capabilities")
	}

	var caps []string
	for _, role := range roles {
		if roleCaps, ok := overrides[role]; ok && role != user.RoleAdminOwner {
			caps = append(caps, roleCaps...)
		} else {
			caps = append(caps, defaultGrants[role]...)
		}
	}
	return normalize(caps), nil
}

// HasAny reports whether `roles` grant any of `caps` within a tenant.
func (svc *Service) HasAny(ctx context.Context, tenantID string, roles []string, caps ...string) (bool, error) {
	granted, err := svc.CapabilitiesFor(ctx, tenantID, roles)
	if err != nil {
		return false, err
	}
	for _, c := range caps {
		if core.StringInSlice(c, granted) {
			return true, nil
		}
	}
	return false, nil
}

// SetRoleCapabilities overrides the default grant of `role` within a tenant.
func (svc *Service) SetRoleCapabilities(ctx context.Context, tenantID, role string, caps []string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	return svc.repo.SetRoleCapabilities(ctx, tenantID, role, normalize(caps))
}

// ResetRoleCapabilities restores the default grant of `role` within a tenant.
func (svc *Service) ResetRoleCapabilities(ctx context.Context, tenantID, role string) error {
	if err := checkRole(role); err != nil {
		return err
	}
	return svc.repo.SetRoleCapabilities(ctx, tenantID, role, nil)
}

func checkRole(role string) error {
	if !user.IsTenantRole(role) {
		return core.NewFieldValidationError("role", ErrRole)
	}
	if role == user.RoleAdminOwner {
		return core.NewValidationError(ErrOwnerRole)
	}
	return nil
}

// normalize returns a sorted copy of `caps` without duplicates.
func normalize(caps []string) []string {
	out := make([]string, 0, len(caps))
	seen := make(map[string]bool, len(caps))
	for _, c := range caps {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}
