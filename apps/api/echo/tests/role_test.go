package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/user"
)

func rolePath(role string) string {
	return "/v1/roles/" + url.PathEscape(role) + "/capabilities"
}

func findGrant(t *testing.T, grants []access.Grant, role string) access.Grant {
	t.Helper()
	for _, g := range grants {
		if g.Role == role {
			return g
		}
	}
	t.Fatalf("no grant for role %q", role)
	return access.Grant{}
}

func Test_roleApi(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	owner := app.createUser(t, greenwood.ID, "owner1", user.RoleAdminOwner)
	principal := app.createUser(t, greenwood.ID, "princip1", user.RoleAdminPrincipal)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)

	ownerToken := getToken(t, app.conf, owner, &greenwood)
	teacherToken := getToken(t, app.conf, teacher, &greenwood)
	setCaps := func(caps ...string) []byte {
		return marchallObj(t, access.SetCapabilities{Capabilities: caps})
	}

	t.Run("query", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodGet, tenantHost("greenwood"), "/v1/roles", teacherToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var grants []access.Grant
		unmarchall(t, rec.Body.Bytes(), &grants)
		require.Len(t, grants, len(user.Roles))
		assert.Equal(t, access.Grant{Role: user.RoleTeacher, Name: "Teacher", Capabilities: []string{access.CapUsersView}, IsDefault: true},
			findGrant(t, grants, user.RoleTeacher))
		assert.Equal(t, []string{}, findGrant(t, grants, user.RoleStudent).Capabilities)
		assert.Len(t, findGrant(t, grants, user.RoleAdminOwner).Capabilities, len(access.AllCapabilities))
	})

	t.Run("set", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "Capability required", path: rolePath(user.RoleTeacher), token: getToken(t, app.conf, principal, &greenwood),
				body: setCaps(access.CapUsersManage), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
			},
			{
				name: "required fields", path: rolePath(user.RoleTeacher), token: ownerToken, body: []byte("{}"),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"capabilities": "this field is required"}),
			},
			{
				name: "invalid capability", path: rolePath(user.RoleTeacher), token: ownerToken, body: setCaps(access.CapUsersView, "root"),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"capabilities": "invalid capabilities"}),
			},
			{
				name: "owner role", path: rolePath(user.RoleAdminOwner), token: ownerToken, body: setCaps(access.CapUsersView),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "the owner role cannot be edited"}),
			},
			{
				name: "platform role", path: rolePath(user.RolePlatformAdmin), token: ownerToken, body: setCaps(access.CapUsersView),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
			},
			{
				name: "unknown role", path: rolePath("janitor:"), token: ownerToken, body: setCaps(access.CapUsersView),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"role": "invalid role"}),
			},
		}
		for i := range tests {
			tests[i].method = http.MethodPut
			tests[i].host = tenantHost("greenwood")
		}
		runHTTPTests(t, app, tests)

		// teachers can't create users by default
		newStudent := marchallObj(t, user.NewUser{
			Name: "New Student", Username: "student1", Password: testPwd, PasswordConfirm: testPwd, Roles: []string{user.RoleStudent},
		})
		rec := app.do(newAuthRequest(http.MethodPost, tenantHost("greenwood"), "/v1/users", teacherToken, newStudent))
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(newAuthRequest(http.MethodPut, tenantHost("greenwood"), rolePath(user.RoleTeacher), ownerToken,
			setCaps(" Users:Manage", access.CapUsersView, access.CapUsersView)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var grants []access.Grant
		unmarchall(t, rec.Body.Bytes(), &grants)
		assert.Equal(t, access.Grant{
			Role: user.RoleTeacher, Name: "Teacher", Capabilities: []string{access.CapUsersManage, access.CapUsersView},
		}, findGrant(t, grants, user.RoleTeacher))

		rec = app.do(newAuthRequest(http.MethodPost, tenantHost("greenwood"), "/v1/users", teacherToken, newStudent))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		// other tenants keep the defaults
		caps, err := app.accessSvc.CapabilitiesFor(ctx, riverside.ID, []string{user.RoleTeacher})
		require.NoError(t, err)
		assert.Equal(t, []string{access.CapUsersView}, caps)
	})

	t.Run("reset", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodDelete, tenantHost("greenwood"), rolePath(user.RoleTeacher), teacherToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(newAuthRequest(http.MethodDelete, tenantHost("greenwood"), rolePath(user.RoleTeacher), ownerToken))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		grants, err := app.accessSvc.Grants(ctx, greenwood.ID)
		require.NoError(t, err)
		g := findGrant(t, grants, user.RoleTeacher)
		assert.True(t, g.IsDefault)
		assert.Equal(t, []string{access.CapUsersView}, g.Capabilities)
	})
}
