package pgrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	testutil "github.com/edapp/edapp/tests"
)

func TestRepositories(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	db := testutil.PrepareDB(t, conf)

	usrRepo := NewUserRepository(db)
	tenantRepo := NewTenantRepository(db)
	tenantSvc := tenant.NewService(db, tenantRepo, usrRepo, nil)

	greenwood, err := tenantSvc.Create(ctx, tenant.NewTenant{
		Slug: "greenwood",
		Name: "Greenwood High",
		Owner: &user.NewUser{
			Name: "Owner", Username: "gwowner", Email: "owner@greenwood.test", Password: "Passw0rd!",
		},
	})
	require.NoError(t, err)
	riverside := testutil.CreateTenant(t, tenantSvc, "riverside", "Riverside Academy")

	t.Run("tenants", func(t *testing.T) {
		assert.Equal(t, tenant.ErrSlugExists, tenantRepo.CheckSlugUniqueness(ctx, "greenwood"))
		assert.NoError(t, tenantRepo.CheckSlugUniqueness(ctx, "hillcrest"))

		_, err := tenantRepo.CreateTenant(ctx, tenant.Tenant{Slug: "greenwood", Name: "Dup", Status: tenant.StatusActive})
		assert.Equal(t, tenant.ErrSlugExists, err)

		got, err := tenantSvc.GetBySlug(ctx, "greenwood")
		require.NoError(t, err)
		assert.Equal(t, greenwood.ID, got.ID)

		_, err = tenantSvc.GetBySlug(ctx, "nope")
		assert.Equal(t, tenant.ErrNotFound, err)

		suspended, err := tenantSvc.SetStatus(ctx, riverside, tenant.StatusSuspended)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusSuspended, suspended.Status)

		tenants, err := tenantRepo.QueryTenants(ctx, &tenant.QueryFilter{Search: "green"}, nil)
		require.NoError(t, err)
		require.Len(t, tenants, 1)
		assert.Equal(t, "greenwood", tenants[0].Slug)
	})

	t.Run("branches", func(t *testing.T) {
		branches, err := tenantRepo.QueryBranches(ctx, greenwood.ID)
		require.NoError(t, err)
		require.Len(t, branches, 1)
		mainBranch := branches[0]
		assert.True(t, mainBranch.IsMain)

		_, err = tenantSvc.CreateBranch(ctx, greenwood.ID, tenant.NewBranch{Name: "Dup", Code: tenant.MainBranchCode})
		assert.IsType(t, &core.ValidationError{}, err)

		north, err := tenantSvc.CreateBranch(ctx, greenwood.ID, tenant.NewBranch{Name: "North Campus", Code: "north"})
		require.NoError(t, err)

		north, err = tenantSvc.UpdateBranch(ctx, north, tenant.UpdateBranch{IsMain: true})
		require.NoError(t, err)
		assert.True(t, north.IsMain)

		mainBranch, err = tenantRepo.GetBranch(ctx, greenwood.ID, mainBranch.ID)
		require.NoError(t, err)
		assert.False(t, mainBranch.IsMain)

		_, err = tenantRepo.GetBranch(ctx, riverside.ID, north.ID)
		assert.Equal(t, tenant.ErrBranchNotFound, err)

		require.NoError(t, tenantSvc.DeleteBranch(ctx, mainBranch))
		assert.Equal(t, tenant.ErrBranchNotFound, tenantRepo.DeleteBranch(ctx, greenwood.ID, mainBranch.ID))
	})

	t.Run("users", func(t *testing.T) {
		teacher := testutil.CreateUser(t, usrRepo, greenwood.ID, "Jane Doe", "janedoe", "jane@doe.test", "Passw0rd!", []string{user.RoleTeacher}, true)
		// same credentials in another tenant
		other := testutil.CreateUser(t, usrRepo, riverside.ID, "Jane Doe", "janedoe", "jane@doe.test", "", nil, true)
		staff := testutil.CreateUser(t, usrRepo, "", "Staff", "staff", "staff@edapp.test", "Passw0rd!", []string{user.RolePlatformAdmin}, true)

		assert.Equal(t, user.ErrUsernameExists, usrRepo.CheckUsernameUniqueness(ctx, greenwood.ID, "janedoe", "", nil))
		assert.Equal(t, user.ErrEmailExists, usrRepo.CheckUsernameUniqueness(ctx, greenwood.ID, "someone", "jane@doe.test", nil))
		assert.NoError(t, usrRepo.CheckUsernameUniqueness(ctx, greenwood.ID, "janedoe", "jane@doe.test", []user.User{teacher}))
		assert.NoError(t, usrRepo.CheckUsernameUniqueness(ctx, "", "janedoe", "", nil))

		_, err := usrRepo.CreateUser(ctx, user.User{TenantID: greenwood.ID, Name: "Dup", Email: "jane@doe.test", PasswordHash: []byte("x")})
		assert.Equal(t, user.ErrEmailExists, err)

		got, err := usrRepo.GetUser(ctx, user.GetFilter{TenantID: riverside.ID, UsernameOrEmail: "jane@doe.test"})
		require.NoError(t, err)
		assert.Equal(t, other.ID, got.ID)

		got, err = usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "staff"})
		require.NoError(t, err)
		assert.Equal(t, staff.ID, got.ID)
		assert.True(t, got.IsPlatformAdmin())

		_, err = usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "janedoe"})
		assert.Equal(t, user.ErrNotFound, err)

		users, err := usrRepo.QueryUsers(ctx, &user.QueryFilter{TenantID: greenwood.ID, Roles: []string{"teacher"}}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, teacher.ID, users[0].ID)

		teacher.LastLogin = time.Now().UTC()
		teacher.Roles = []string{user.RoleTeacher, user.RoleAdmin}
		updated, err := usrRepo.UpdateUser(ctx, teacher)
		require.NoError(t, err)
		assert.Equal(t, teacher.Roles, updated.Roles)
		assert.False(t, updated.LastLogin.IsZero())

		tenants, err := tenantRepo.QueryTenantsByUserEmail(ctx, "jane@doe.test")
		require.NoError(t, err)
		assert.Len(t, tenants, 2)

		// deleting across tenants is a no-op
		require.NoError(t, usrRepo.DeleteUsersByID(ctx, riverside.ID, teacher.ID, "not-a-uuid"))
		_, err = usrRepo.GetUser(ctx, user.GetFilter{ID: teacher.ID})
		assert.NoError(t, err)
	})

	t.Run("access", func(t *testing.T) {
		repo := NewAccessRepository(db)
		require.NoError(t, repo.SetRoleCapabilities(ctx, greenwood.ID, user.RoleTeacher, []string{access.CapUsersView, access.CapPoliciesManage}))
		caps, err := repo.QueryRoleCapabilities(ctx, greenwood.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string][]string{user.RoleTeacher: {access.CapPoliciesManage, access.CapUsersView}}, caps)

		require.NoError(t, repo.SetRoleCapabilities(ctx, greenwood.ID, user.RoleTeacher, nil))
		caps, err = repo.QueryRoleCapabilities(ctx, greenwood.ID)
		require.NoError(t, err)
		assert.Empty(t, caps)
	})

	t.Run("policies", func(t *testing.T) {
		svc := policy.NewService(NewPolicyRepository(db))
		v1, err := svc.Create(ctx, greenwood.ID, policy.NewPolicy{Kind: policy.KindPrivacy, Title: "Privacy", Body: "v1"})
		require.NoError(t, err)
		assert.Equal(t, 1, v1.Version)
		_, err = svc.Publish(ctx, v1)
		require.NoError(t, err)

		v2, err := svc.Create(ctx, greenwood.ID, policy.NewPolicy{Kind: policy.KindPrivacy, Title: "Privacy", Body: "v2"})
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Version)

		current, err := svc.GetPublished(ctx, greenwood.ID, policy.KindPrivacy)
		require.NoError(t, err)
		assert.Equal(t, v1.ID, current.ID)
		require.NotNil(t, current.PublishedAt)

		_, err = svc.GetPublished(ctx, riverside.ID, policy.KindPrivacy)
		assert.Equal(t, policy.ErrNotFound, err)

		require.NoError(t, svc.Delete(ctx, v2))
		assert.IsType(t, &core.ValidationError{}, svc.Delete(ctx, current))
	})
}
