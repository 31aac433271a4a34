// Package policy manages the versioned policy documents a tenant publishes.
package policy

import (
	"context"
	"sort"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
)

// Kinds
const (
	KindPrivacy    = "privacy"
	KindTerms      = "terms"
	KindConduct    = "code-of-conduct"
	KindAdmissions = "admissions"
	KindFees       = "fees"
)

var (
	Kinds = []string{KindPrivacy, KindTerms, KindConduct, KindAdmissions, KindFees}

	// errors
	ErrNotFound  = errors.New("policy not found")
	ErrPublished = errors.New("published policies cannot be modified")
	// ErrVersionConflict is returned when a concurrent draft took the next version.
	ErrVersionConflict = errors.New("this policy version already exists, please retry")

	kindTag  = "policykind"
	kindText = "invalid policy kind"
)

type (
	Policy struct {
		ID          string     `json:"id" db:"id"`
		TenantID    string     `json:"tenant_id" db:"tenant_id"`
		Kind        string     `json:"kind" db:"kind"`
		Title       string     `json:"title" db:"title"`
		Body        string     `json:"body" db:"body"`
		Version     int        `json:"version" db:"version"`
		IsPublished bool       `json:"is_published" db:"is_published"`
		PublishedAt *time.Time `json:"published_at" db:"published_at"` // UTC
		CreatedAt   time.Time  `json:"created_at" db:"created_at"`     // UTC
		UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`     // UTC
	}

	// NewPolicy contains information needed to draft a new Policy version.
	NewPolicy struct {
		Kind  string `json:"kind" validate:"required,policykind"`
		Title string `json:"title" validate:"required,max=200"`
		Body  string `json:"body" validate:"required"`
	}

	UpdatePolicy struct {
		Title string `json:"title" validate:"omitempty,max=200"`
		Body  string `json:"body"`
	}

	QueryFilter struct {
		TenantID      string `query:"-"`
		Kind          string `query:"kind"`
		PublishedOnly bool   `query:"-"`
	}

	Repository interface {
		CreatePolicy(ctx context.Context, p Policy) (Policy, error)
		// QueryPolicies returns the matching policies, latest versions first.
		QueryPolicies(ctx context.Context, filter QueryFilter) ([]Policy, error)
		GetPolicy(ctx context.Context, tenantID, id string) (Policy, error)
		UpdatePolicy(ctx context.Context, p Policy) (Policy, error)
		DeletePolicy(ctx context.Context, tenantID, id string) error
		// LatestVersion returns the highest version of a kind, 0 when none.
		LatestVersion(ctx context.Context, tenantID, kind string) (int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// InitValidators registers the policy validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(kindTag, func(fl validator.FieldLevel) bool {
		return core.StringInSlice(fl.Field().String(), Kinds)
	})
	core.RegisterCustomTranslation(validate, translator, kindTag, kindText)
}

func (np *NewPolicy) Validate(validate *validator.Validate) error {
	np.Kind = core.CleanString(np.Kind, true /* lower */)
	np.Title = core.CleanString(np.Title)
	np.Body = core.CleanString(np.Body)
	return validate.Struct(np)
}

func (up *UpdatePolicy) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	up.Body = core.CleanString(up.Body)
	return validate.Struct(up)
}

// Create drafts the next version of a policy kind.
func (svc *Service) Create(ctx context.Context, tenantID string, np NewPolicy) (Policy, error) {
	latest, err := svc.repo.LatestVersion(ctx, tenantID, np.Kind)
	if err != nil {
		return Policy{}, errors.Wrap(err, "getting latest version")
	}

	now := time.Now().UTC()
	return svc.repo.CreatePolicy(ctx, Policy{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Kind:      np.Kind,
		Title:     np.Title,
		Body:      np.Body,
		Version:   latest + 1,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// QueryPublished returns the latest published version of each kind.
func (svc *Service) QueryPublished(ctx context.Context, tenantID string) ([]Policy, error) {
	policies, err := svc.repo.QueryPolicies(ctx, QueryFilter{TenantID: tenantID, PublishedOnly: true})
	if err != nil {
		return nil, err
	}

	latest := make([]Policy, 0, len(Kinds))
	seen := make(map[string]bool, len(Kinds))
	for _, p := range policies {
		if !seen[p.Kind] {
			seen[p.Kind] = true
			latest = append(latest, p)
		}
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].Kind < latest[j].Kind })
	return latest, nil
}

// GetPublished returns the latest published version of `kind`.
func (svc *Service) GetPublished(ctx context.Context, tenantID, kind string) (Policy, error) {
	policies, err := svc.repo.QueryPolicies(ctx, QueryFilter{TenantID: tenantID, Kind: kind, PublishedOnly: true})
	if err != nil {
		return Policy{}, err
	}
	if len(policies) == 0 {
		return Policy{}, ErrNotFound
	}
	return policies[0], nil
}

// QueryVersions returns every version, drafts included.
func (svc *Service) QueryVersions(ctx context.Context, filter QueryFilter) ([]Policy, error) {
	return svc.repo.QueryPolicies(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Policy, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Policy{}, ErrNotFound
	}
	return svc.repo.GetPolicy(ctx, tenantID, id)
}

func (svc *Service) Update(ctx context.Context, p Policy, up UpdatePolicy) (Policy, error) {
	if p.IsPublished {
		return Policy{}, core.NewValidationError(ErrPublished)
	}
	if up.Title != "" {
		p.Title = up.Title
	}
	if up.Body != "" {
		p.Body = up.Body
	}
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePolicy(ctx, p)
}

// Publish makes `p` the current version of its kind.
func (svc *Service) Publish(ctx context.Context, p Policy) (Policy, error) {
	if p.IsPublished {
		return p, nil
	}
	now := time.Now().UTC()
	p.IsPublished = true
	p.PublishedAt = &now
	p.UpdatedAt = now
	return svc.repo.UpdatePolicy(ctx, p)
}

func (svc *Service) Delete(ctx context.Context, p Policy) error {
	if p.IsPublished {
		return core.NewValidationError(ErrPublished)
	}
	return svc.repo.DeletePolicy(ctx, p.TenantID, p.ID)
}
