package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edapp/edapp/core/user"
	testutil "github.com/edapp/edapp/tests"
)

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	admin := app.createUser(t, greenwood.ID, "admin1", user.RoleAdmin)
	principal := app.createUser(t, greenwood.ID, "princip1", user.RoleAdminPrincipal)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	student := app.createUser(t, greenwood.ID, "student1", user.RoleStudent)
	naughty := testutil.CreateUser(t, app.usrRepo, greenwood.ID, "N Dog", "ndog", "ndog@test.co.za", testPwd, []string{user.RoleStudent}, false) // 😂
	outsider := app.createUser(t, riverside.ID, "outsider1", user.RoleAdmin)
	staff := app.createUser(t, "", "staff1", user.RolePlatformAdmin)

	path := func(search, ordering string, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	adminToken := getToken(t, app.conf, admin, &greenwood)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Capability required", path: "/v1/users", token: getToken(t, app.conf, student, &greenwood),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, naughty, admin, principal, student, teacher),
		},
		{
			name: "Get all (users:view)", path: "/v1/users", token: getToken(t, app.conf, teacher, &greenwood),
			wantData: marchallList(t, naughty, admin, principal, student, teacher),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", "", nil), token: adminToken, wantData: empty},
		{name: "search=TEACH", path: path("TEACH", "", nil), token: adminToken, wantData: marchallList(t, teacher)},
		{name: "search=outsider", path: path("outsider", "", nil), token: adminToken, wantData: empty},
		{name: "role (unknown)", path: path("", "", nil, "lol"), token: adminToken, wantData: empty},
		{name: "role=admin:", path: path("", "", nil, user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin, principal)},
		{
			name: "role=teacher:,student:", path: path("", "", nil, user.RoleTeacher, user.RoleStudent),
			token: adminToken, wantData: marchallList(t, naughty, student, teacher),
		},
		{name: "is_active=false", path: path("", "", bPtr(false)), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "is_active=true", path: path("", "", bPtr(true)), token: adminToken,
			wantData: marchallList(t, admin, principal, student, teacher),
		},
		// ordering
		{
			name: "order by -username", path: path("", "-username", nil), token: adminToken,
			wantData: marchallList(t, teacher, student, principal, naughty, admin),
		},
		{
			name: "unknown ordering fields are ignored", path: path("", "password_hash", nil), token: adminToken,
			wantData: marchallList(t, naughty, admin, principal, student, teacher),
		},
		// tenants
		{
			name: "other tenant", host: tenantHost("riverside"), path: "/v1/users", token: getToken(t, app.conf, outsider, &riverside),
			wantData: marchallList(t, outsider),
		},
		{
			name: "platform admin", host: tenantHost("riverside"), path: "/v1/users", token: getToken(t, app.conf, staff, nil),
			wantData: marchallList(t, outsider),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.host == "" {
			tt.host = tenantHost("greenwood")
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt.request()))
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	admin := app.createUser(t, greenwood.ID, "admin1", user.RoleAdmin)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	app.createUser(t, riverside.ID, "student2", user.RoleStudent)

	adminToken := getToken(t, app.conf, admin, &greenwood)
	newUser := func(uname string, roles ...string) []byte {
		return marchallObj(t, user.NewUser{
			Name: "New " + uname, Username: uname, Email: uname + "@test.co.za",
			Password: testPwd, PasswordConfirm: testPwd, Roles: roles,
		})
	}
	oneOf := "one of username or email is required"

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Capability required", token: getToken(t, app.conf, teacher, &greenwood), body: newUser("student1"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"username":         oneOf,
				"email":            oneOf,
				"password":         "password must contain at least 8 characters",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "password similar to username", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "Someone", Username: "lolcat123", Password: "LolCat123!", PasswordConfirm: "LolCat123!",
			}),
			wantData: marchallObj(t, map[string]string{"password": "password cannot be similar to user attributes"}),
		},
		{
			name: "invalid role", token: adminToken, body: newUser("student1", user.RolePlatformAdmin),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
		{
			name: "role above own", token: adminToken, body: newUser("principal1", user.RoleAdminPrincipal),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "duplicate username", token: adminToken, body: newUser("teacher1"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		},
		{name: "username of another tenant", token: adminToken, body: newUser("student2", user.RoleStudent), wantCode: http.StatusCreated},
		{name: "created", token: adminToken, body: newUser("student1", user.RoleStudent), wantCode: http.StatusCreated},
		{
			name: "platform admin", token: getToken(t, app.conf, app.createUser(t, "", "staff1", user.RolePlatformAdmin), nil),
			body: newUser("owner1", user.RoleAdminOwner), wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.host = tenantHost("greenwood")
		tt.path = "/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.request())
			if tt.wantCode != http.StatusCreated {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)

			var usr user.User
			unmarchall(t, rec.Body.Bytes(), &usr)
			assert.Equal(t, greenwood.ID, usr.TenantID)
			assert.True(t, usr.IsActive)

			stored, err := app.usrSvc.GetByID(context.Background(), usr.ID)
			require.NoError(t, err)
			assert.NoError(t, stored.CheckPassword(testPwd))
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	admin := app.createUser(t, greenwood.ID, "admin1", user.RoleAdmin)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	student := app.createUser(t, greenwood.ID, "student1", user.RoleStudent)
	outsider := app.createUser(t, riverside.ID, "outsider1", user.RoleStudent)

	adminToken := getToken(t, app.conf, admin, &greenwood)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "Auth required", path: "/v1/users/" + student.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "self", path: "/v1/users/" + student.ID, token: getToken(t, app.conf, student, &greenwood), wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{
			name: "someone else (no users:manage)", path: "/v1/users/" + student.ID, token: getToken(t, app.conf, teacher, &greenwood),
			wantCode: http.StatusNotFound, wantData: notFound,
		},
		{name: "manager", path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{name: "unknown", path: "/v1/users/" + outsider.TenantID, token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "invalid id", path: "/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "user of another tenant", path: "/v1/users/" + outsider.ID, token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "roles", path: "/v1/users/roles", token: getToken(t, app.conf, student, &greenwood), wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].host = tenantHost("greenwood")
	}
	runHTTPTests(t, app, tests)
}

func Test_userApi_update(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")

	admin := app.createUser(t, greenwood.ID, "admin1", user.RoleAdmin)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	student := app.createUser(t, greenwood.ID, "student1", user.RoleStudent)

	adminToken := getToken(t, app.conf, admin, &greenwood)
	teacherToken := getToken(t, app.conf, teacher, &greenwood)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	type check func(t *testing.T, usr user.User)
	tests := []struct {
		httpTest
		check check
	}{
		{
			httpTest: httpTest{
				name: "self: name", path: "/v1/users/" + teacher.ID, token: teacherToken,
				body: marchallObj(t, map[string]string{"name": "  Mr Teacher "}), wantCode: http.StatusOK,
			},
			check: func(t *testing.T, usr user.User) {
				assert.Equal(t, "Mr Teacher", usr.Name)
				assert.Equal(t, teacher.Username, usr.Username)
			},
		},
		{httpTest: httpTest{
			name: "self: roles", path: "/v1/users/" + teacher.ID, token: teacherToken,
			body: marchallObj(t, map[string][]string{"roles": {user.RoleAdmin}}), wantCode: http.StatusForbidden, wantData: forbidden,
		}},
		{httpTest: httpTest{
			name: "self: is_active", path: "/v1/users/" + teacher.ID, token: teacherToken,
			body: marchallObj(t, map[string]bool{"is_active": false}), wantCode: http.StatusForbidden, wantData: forbidden,
		}},
		{httpTest: httpTest{
			name: "self: username", path: "/v1/users/" + teacher.ID, token: teacherToken,
			body: marchallObj(t, map[string]string{"username": "teacher2"}), wantCode: http.StatusForbidden, wantData: forbidden,
		}},
		{
			httpTest: httpTest{
				name: "self: password", path: "/v1/users/" + teacher.ID, token: teacherToken,
				body:     marchallObj(t, map[string]string{"password": "LolC@t123", "password_confirm": "LolC@t123"}),
				wantCode: http.StatusOK,
			},
			check: func(t *testing.T, usr user.User) {
				stored, err := app.usrSvc.GetByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NoError(t, stored.CheckPassword("LolC@t123"))
			},
		},
		{httpTest: httpTest{
			name: "self: password mismatch", path: "/v1/users/" + teacher.ID, token: teacherToken,
			body:     marchallObj(t, map[string]string{"password": "LolC@t123", "password_confirm": "lol"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"password_confirm": "password_confirm does not match"}),
		}},
		{
			httpTest: httpTest{
				name: "manager: deactivate", path: "/v1/users/" + student.ID, token: adminToken,
				body: marchallObj(t, map[string]bool{"is_active": false}), wantCode: http.StatusOK,
			},
			check: func(t *testing.T, usr user.User) {
				assert.False(t, usr.IsActive)
				assert.Equal(t, student.Name, usr.Name)
			},
		},
		{
			httpTest: httpTest{
				name: "manager: roles", path: "/v1/users/" + student.ID, token: adminToken,
				body: marchallObj(t, map[string][]string{"roles": {user.RoleTeacher}}), wantCode: http.StatusOK,
			},
			check: func(t *testing.T, usr user.User) {
				assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
			},
		},
		{httpTest: httpTest{
			name: "manager: role above own", path: "/v1/users/" + student.ID, token: adminToken,
			body:     marchallObj(t, map[string][]string{"roles": {user.RoleAdminOwner}}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		}},
		{httpTest: httpTest{
			name: "manager: duplicate username", path: "/v1/users/" + student.ID, token: adminToken,
			body:     marchallObj(t, map[string]string{"username": "teacher1"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"username": "a user with this username already exists"}),
		}},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.host = tenantHost("greenwood")

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.request())
			checkCodeAndData(t, tt.httpTest, rec)
			if tt.check != nil && rec.Code == http.StatusOK {
				var usr user.User
				unmarchall(t, rec.Body.Bytes(), &usr)
				tt.check(t, usr)
			}
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")

	admin := app.createUser(t, greenwood.ID, "admin1", user.RoleAdmin)
	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	student1 := app.createUser(t, greenwood.ID, "student1", user.RoleStudent)
	student2 := app.createUser(t, greenwood.ID, "student2", user.RoleStudent)
	student3 := app.createUser(t, greenwood.ID, "student3", user.RoleStudent)
	outsider := app.createUser(t, riverside.ID, "outsider1", user.RoleStudent)

	adminToken := getToken(t, app.conf, admin, &greenwood)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})
	bulk := func(ids ...string) string {
		return "/v1/users?" + url.Values{"id": ids}.Encode()
	}

	tests := []httpTest{
		{
			name: "self (no users:manage)", path: "/v1/users/" + teacher.ID, token: getToken(t, app.conf, teacher, &greenwood),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "self", path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{
			name: "user of another tenant", path: "/v1/users/" + outsider.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{name: "deleted", path: "/v1/users/" + student1.ID, token: adminToken, wantCode: http.StatusNoContent},
		{
			name: "already deleted", path: "/v1/users/" + student1.ID, token: adminToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "bulk: capability required", path: bulk(student2.ID), token: getToken(t, app.conf, teacher, &greenwood),
			wantCode: http.StatusForbidden, wantData: forbidden,
		},
		{name: "bulk: self", path: bulk(student2.ID, admin.ID), token: adminToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "bulk: no ids", path: "/v1/users", token: adminToken, wantCode: http.StatusNoContent},
		{name: "bulk: deleted", path: bulk(student2.ID, student3.ID, outsider.ID), token: adminToken, wantCode: http.StatusNoContent},
	}
	for i := range tests {
		tests[i].method = http.MethodDelete
		tests[i].host = tenantHost("greenwood")
	}
	runHTTPTests(t, app, tests)

	ctx := context.Background()
	for _, id := range []string{student1.ID, student2.ID, student3.ID} {
		_, err := app.usrSvc.GetByID(ctx, id)
		assert.ErrorIs(t, err, user.ErrNotFound)
	}
	// other tenants are never touched
	for _, id := range []string{admin.ID, teacher.ID, outsider.ID} {
		_, err := app.usrSvc.GetByID(ctx, id)
		assert.NoError(t, err)
	}
}
