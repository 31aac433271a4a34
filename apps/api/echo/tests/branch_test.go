package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
)

func Test_branchApi(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	principal := app.createUser(t, greenwood.ID, "princip1", user.RoleAdminPrincipal)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)

	mainBranch := func(tenantID string) tenant.Branch {
		branches, err := app.tenantSvc.QueryBranches(ctx, tenantID)
		require.NoError(t, err)
		require.NotEmpty(t, branches)
		return branches[0]
	}
	main := mainBranch(greenwood.ID)
	otherMain := mainBranch(riverside.ID)

	principalToken := getToken(t, app.conf, principal, &greenwood)
	teacherToken := getToken(t, app.conf, teacher, &greenwood)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	notFound := marchallObj(t, httpErr{Error: "branch not found"})

	newBranch := func(name, code string) []byte {
		return marchallObj(t, tenant.NewBranch{Name: name, Code: code, Phone: "+27 21 555 0100"})
	}

	t.Run("create", func(t *testing.T) {
		tests := []httpTest{
			{name: "Capability required", token: teacherToken, body: newBranch("North", "north"), wantCode: http.StatusForbidden, wantData: forbidden},
			{
				name: "required fields", token: principalToken, wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"name": "this field is required", "code": "this field is required"}),
			},
			{
				name: "invalid code", token: principalToken, body: newBranch("North", "north campus"), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"code": "only lowercase letters, digits and inner hyphens are allowed"}),
			},
			{
				name: "duplicate code", token: principalToken, body: newBranch("Main again", " MAIN "), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"code": "a branch with this code already exists"}),
			},
			{name: "created", token: principalToken, body: newBranch("North Campus", "north"), wantCode: http.StatusCreated},
		}
		for i := range tests {
			tests[i].method = http.MethodPost
			tests[i].host = tenantHost("greenwood")
			tests[i].path = "/v1/branches"
		}
		runHTTPTests(t, app, tests)

		// codes are unique per tenant only
		staffToken := getToken(t, app.conf, app.createUser(t, "", "staff1", user.RolePlatformAdmin), nil)
		rec := app.do(newAuthRequest(http.MethodPost, tenantHost("riverside"), "/v1/branches", staffToken, newBranch("North", "north")))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	var north tenant.Branch
	for _, b := range func() []tenant.Branch {
		branches, err := app.tenantSvc.QueryBranches(ctx, greenwood.ID)
		require.NoError(t, err)
		return branches
	}() {
		if b.Code == "north" {
			north = b
		}
	}
	require.NotEmpty(t, north.ID)

	t.Run("read", func(t *testing.T) {
		tests := []httpTest{
			{name: "list", path: "/v1/branches", wantCode: http.StatusOK, wantData: marchallList(t, main, north)},
			{name: "retrieve", path: "/v1/branches/" + north.ID, wantCode: http.StatusOK, wantData: marchallObj(t, north)},
			{name: "branch of another tenant", path: "/v1/branches/" + otherMain.ID, wantCode: http.StatusNotFound, wantData: notFound},
			{name: "invalid id", path: "/v1/branches/lol", wantCode: http.StatusNotFound, wantData: notFound},
		}
		for i := range tests {
			tests[i].method = http.MethodGet
			tests[i].host = tenantHost("greenwood")
			tests[i].token = teacherToken
		}
		runHTTPTests(t, app, tests)
	})

	t.Run("update", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPut, tenantHost("greenwood"), "/v1/branches/"+north.ID, teacherToken,
			marchallObj(t, map[string]string{"name": "North"})))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: forbidden}, rec)

		rec = app.do(newAuthRequest(http.MethodPut, tenantHost("greenwood"), "/v1/branches/"+north.ID, principalToken,
			marchallObj(t, map[string]interface{}{"name": " North Campus (new) ", "address": " 1 Main Rd ", "is_main": true})))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var b tenant.Branch
		unmarchall(t, rec.Body.Bytes(), &b)
		assert.Equal(t, "North Campus (new)", b.Name)
		assert.Equal(t, "1 Main Rd", b.Address)
		assert.Equal(t, "north", b.Code)
		assert.True(t, b.IsMain)

		// a single main branch per tenant
		old, err := app.tenantSvc.GetBranch(ctx, greenwood.ID, main.ID)
		require.NoError(t, err)
		assert.False(t, old.IsMain)
		other, err := app.tenantSvc.GetBranch(ctx, riverside.ID, otherMain.ID)
		require.NoError(t, err)
		assert.True(t, other.IsMain)
	})

	t.Run("destroy", func(t *testing.T) {
		tests := []httpTest{
			{name: "Capability required", path: "/v1/branches/" + main.ID, token: teacherToken, wantCode: http.StatusForbidden, wantData: forbidden},
			{
				name: "main branch", path: "/v1/branches/" + north.ID, token: principalToken, wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, httpErr{Error: "the main branch cannot be deleted"}),
			},
			{name: "deleted", path: "/v1/branches/" + main.ID, token: principalToken, wantCode: http.StatusNoContent},
			{name: "already deleted", path: "/v1/branches/" + main.ID, token: principalToken, wantCode: http.StatusNotFound, wantData: notFound},
		}
		for i := range tests {
			tests[i].method = http.MethodDelete
			tests[i].host = tenantHost("greenwood")
		}
		runHTTPTests(t, app, tests)
	})
}
