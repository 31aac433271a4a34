package tenant_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	cachesvc "github.com/edapp/edapp/services/cache"
	inmemdb "github.com/edapp/edapp/storage/database/inmem"
	testutil "github.com/edapp/edapp/tests"
)

func newService() (*tenant.Service, user.Repository) {
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	svc := tenant.NewService(nil, inmemdb.NewTenantRepository(db), usrRepo, cachesvc.NewMemoryTenantCache(time.Minute))
	return svc, usrRepo
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := newService()
	validate, translator := core.NewValidator()
	tenant.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	nt := tenant.NewTenant{
		Slug: "  Greenwood ",
		Name: "Greenwood High",
		Owner: &user.NewUser{
			Name:            "Grace Owner",
			Email:           "Grace@Greenwood.test",
			Password:        "Tr1cky#Pass",
			PasswordConfirm: "Tr1cky#Pass",
			Roles:           []string{user.RoleStudent},
		},
	}
	require.NoError(t, nt.Validate(ctx, validate, svc))
	assert.Equal(t, "greenwood", nt.Slug)

	greenwood, err := svc.Create(ctx, nt)
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusActive, greenwood.Status)

	branches, err := svc.QueryBranches(ctx, greenwood.ID)
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.True(t, branches[0].IsMain)
	assert.Equal(t, tenant.MainBranchCode, branches[0].Code)

	owner, err := usrRepo.GetUser(ctx, user.GetFilter{TenantID: greenwood.ID, Email: "grace@greenwood.test"})
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleAdminOwner}, owner.Roles)
	assert.Equal(t, branches[0].ID, owner.BranchID)
	assert.NoError(t, owner.CheckPassword("Tr1cky#Pass"))

	dup := tenant.NewTenant{Slug: "greenwood", Name: "Other"}
	err = dup.Validate(ctx, validate, svc)
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, []core.FieldError{{Field: "slug", Error: tenant.ErrSlugExists.Error()}}, vErr.Fields)

	for _, slug := range []string{"admin", " Auth ", "www", "apply-greenwood"} {
		reserved := tenant.NewTenant{Slug: slug, Name: "Reserved"}
		err = reserved.Validate(ctx, validate, svc)
		vErrs, ok := err.(validator.ValidationErrors)
		require.True(t, ok, "%q: want validation errors, got %v", slug, err)
		require.Len(t, vErrs, 1)
		assert.Equal(t, "slug", vErrs[0].Field())
		assert.Equal(t, "this slug is reserved", vErrs[0].Translate(translator))
	}
}

func TestService_GetBySlug(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	greenwood := testutil.CreateTenant(t, svc, "greenwood", "Greenwood High")

	got, err := svc.GetBySlug(ctx, "GreenWood")
	require.NoError(t, err)
	assert.Equal(t, greenwood.ID, got.ID)

	for _, slug := range []string{"", "nope", "-bad-", "a.b"} {
		_, err = svc.GetBySlug(ctx, slug)
		assert.Equal(t, tenant.ErrNotFound, err, slug)
	}

	// status changes invalidate the cached tenant
	_, err = svc.SetStatus(ctx, greenwood, tenant.StatusSuspended)
	require.NoError(t, err)
	got, err = svc.GetBySlug(ctx, "greenwood")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusSuspended, got.Status)

	// deleted tenants keep their slug
	_, err = svc.Delete(ctx, got)
	require.NoError(t, err)
	got, err = svc.GetBySlug(ctx, "greenwood")
	require.NoError(t, err)
	assert.Equal(t, tenant.StatusDeleted, got.Status)
	assert.Error(t, svc.CheckSlugUniqueness(ctx, "greenwood"))
}

func TestService_Discover(t *testing.T) {
	ctx := context.Background()
	svc, usrRepo := newService()
	greenwood := testutil.CreateTenant(t, svc, "greenwood", "Greenwood High")
	riverside := testutil.CreateTenant(t, svc, "riverside", "Riverside Academy")
	hillcrest := testutil.CreateTenant(t, svc, "hillcrest", "Hillcrest")
	closed := testutil.CreateTenant(t, svc, "closed", "Closed School")

	testutil.CreateUser(t, usrRepo, greenwood.ID, "Jane", "", "jane@doe.test", "", nil, true)
	testutil.CreateUser(t, usrRepo, riverside.ID, "Jane", "", "jane@doe.test", "", nil, true)
	testutil.CreateUser(t, usrRepo, hillcrest.ID, "Jane", "", "jane@doe.test", "", nil, false) // inactive account
	testutil.CreateUser(t, usrRepo, closed.ID, "Jane", "", "jane@doe.test", "", nil, true)
	_, err := svc.SetStatus(ctx, closed, tenant.StatusSuspended)
	require.NoError(t, err)

	tenants, err := svc.Discover(ctx, " JANE@doe.test ")
	require.NoError(t, err)
	slugs := make([]string, 0, len(tenants))
	for _, tnt := range tenants {
		slugs = append(slugs, tnt.Slug)
	}
	assert.Equal(t, []string{"greenwood", "riverside"}, slugs)

	tenants, err = svc.Discover(ctx, "nobody@doe.test")
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestService_Branches(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	greenwood := testutil.CreateTenant(t, svc, "greenwood", "Greenwood High")
	riverside := testutil.CreateTenant(t, svc, "riverside", "Riverside Academy")

	north, err := svc.CreateBranch(ctx, greenwood.ID, tenant.NewBranch{Name: "North Campus", Code: "north"})
	require.NoError(t, err)
	assert.False(t, north.IsMain)

	_, err = svc.CreateBranch(ctx, greenwood.ID, tenant.NewBranch{Name: "Again", Code: "north"})
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, "code", vErr.Fields[0].Field)

	// codes are unique per tenant only
	_, err = svc.CreateBranch(ctx, riverside.ID, tenant.NewBranch{Name: "North", Code: "north"})
	require.NoError(t, err)

	// branches are invisible across tenants
	_, err = svc.GetBranch(ctx, riverside.ID, north.ID)
	assert.Equal(t, tenant.ErrBranchNotFound, err)
	_, err = svc.GetBranch(ctx, greenwood.ID, "not-a-uuid")
	assert.Equal(t, tenant.ErrBranchNotFound, err)

	north, err = svc.UpdateBranch(ctx, north, tenant.UpdateBranch{IsMain: true})
	require.NoError(t, err)
	assert.True(t, north.IsMain)

	branches, err := svc.QueryBranches(ctx, greenwood.ID)
	require.NoError(t, err)
	require.Len(t, branches, 2)
	var mains int
	for _, b := range branches {
		if b.IsMain {
			mains++
			assert.Equal(t, north.ID, b.ID)
		}
	}
	assert.Equal(t, 1, mains)

	err = svc.DeleteBranch(ctx, north)
	vErr, ok = err.(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	assert.Equal(t, tenant.ErrMainBranch, vErr.Err)

	require.NoError(t, svc.DeleteBranch(ctx, branches[1]))
	branches, err = svc.QueryBranches(ctx, greenwood.ID)
	require.NoError(t, err)
	assert.Len(t, branches, 1)
}
