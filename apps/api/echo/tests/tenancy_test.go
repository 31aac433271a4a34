package tests

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/edapp/edapp/apps/api/echo"
	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
)

func strPtr(s string) *string { return &s }

func Test_tenancy_guard(t *testing.T) {
	app := setup(t)
	ctx := context.Background()

	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")
	closed := app.createTenant(t, "closed", "Closed School")
	closed, err := app.tenantSvc.SetStatus(ctx, closed, tenant.StatusSuspended)
	require.NoError(t, err)

	teacher := app.createUser(t, greenwood.ID, "teacher1", user.RoleTeacher)
	closedTeacher := app.createUser(t, closed.ID, "teacher2", user.RoleTeacher)
	staff := app.createUser(t, "", "staff1", user.RolePlatformAdmin)

	teacherToken := getToken(t, app.conf, teacher, &greenwood)
	staffToken := getToken(t, app.conf, staff, nil)

	forgedClaims := echoapi.NewUserClaims(app.conf, teacher, riverside.ID, greenwood.Slug)
	forgedToken, err := echoapi.GenerateToken(app.conf, forgedClaims)
	require.NoError(t, err)

	mismatch := marchallObj(t, httpErr{Error: "tenant mismatch"})
	tests := []httpTest{
		{name: "Auth required", host: tenantHost("greenwood"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Own tenant", host: tenantHost("greenwood"), token: teacherToken, wantCode: http.StatusOK},
		{name: "Own tenant (upper case host)", host: "GreenWood.EdApp.co.za.", token: teacherToken, wantCode: http.StatusOK},
		{name: "Other tenant", host: tenantHost("riverside"), token: teacherToken, wantCode: http.StatusForbidden, wantData: mismatch},
		{name: "Other unknown tenant", host: tenantHost("ghost"), token: teacherToken, wantCode: http.StatusForbidden, wantData: mismatch},
		{
			name: "Other tenant (apply host)", host: "apply-riverside." + baseHost, token: teacherToken,
			wantCode: http.StatusForbidden, wantData: mismatch,
		},
		{
			name: "Header fallback (own)", host: "api." + baseHost, token: teacherToken,
			header: map[string]string{"X-Tenant-Slug": "greenwood"}, wantCode: http.StatusOK,
		},
		{
			name: "Header fallback (other)", host: "api." + baseHost, token: teacherToken,
			header: map[string]string{"X-Tenant-Slug": "Riverside"}, wantCode: http.StatusForbidden, wantData: mismatch,
		},
		{
			name: "Host wins over header", host: tenantHost("riverside"), token: teacherToken,
			header: map[string]string{"X-Tenant-Slug": "greenwood"}, wantCode: http.StatusForbidden, wantData: mismatch,
		},
		{
			name: "Claim slug with another tenant ID", host: tenantHost("greenwood"), token: forgedToken,
			wantCode: http.StatusForbidden, wantData: mismatch,
		},
		{
			name: "No tenant", host: "api." + baseHost, token: teacherToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "tenant required"}),
		},
		{
			name: "Invalid header is ignored", host: "api." + baseHost, token: teacherToken,
			header:   map[string]string{"X-Tenant-Slug": "-nope-"},
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "tenant required"}),
		},
		{
			name: "Suspended tenant", host: tenantHost("closed"), token: getToken(t, app.conf, closedTeacher, &closed),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "tenant unavailable"}),
		},
		{name: "Platform admin bypass", host: tenantHost("riverside"), token: staffToken, wantCode: http.StatusOK},
		{name: "Platform admin on suspended tenant", host: tenantHost("closed"), token: staffToken, wantCode: http.StatusOK},
		{
			name: "Platform admin on unknown tenant", host: tenantHost("ghost"), token: staffToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "tenant not found"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/v1/branches"
	}
	runHTTPTests(t, app, tests)
}

func Test_tenantApi_lookupBySlug(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	gone := app.createTenant(t, "gone", "Gone School")
	_, err := app.tenantSvc.Delete(context.Background(), gone)
	require.NoError(t, err)

	resolver := tenant.NewResolver(app.conf.Tenancy.BaseDomains, nil)
	notFound := marchallObj(t, httpErr{Error: "tenant not found"})
	tests := []httpTest{
		{name: "missing slug", path: "/v1/tenants/lookup-by-slug", wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid slug"})},
		{name: "invalid slug", path: "/v1/tenants/lookup-by-slug?slug=-bad", wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid slug"})},
		{name: "unknown slug", path: "/v1/tenants/lookup-by-slug?slug=ghost", wantCode: http.StatusNotFound, wantData: notFound},
		{name: "deleted tenant", path: "/v1/tenants/lookup-by-slug?slug=gone", wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "found", path: "/v1/tenants/lookup-by-slug?slug=GreenWood", wantCode: http.StatusOK,
			wantData: marchallObj(t, greenwood.Public(resolver, "https")),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].host = "auth." + baseHost
	}
	runHTTPTests(t, app, tests)

	t.Run("urls", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodGet, "", "/v1/tenants/lookup-by-slug?slug=greenwood"))
		require.Equal(t, http.StatusOK, rec.Code)

		var pt tenant.PublicTenant
		unmarchall(t, rec.Body.Bytes(), &pt)
		assert.Equal(t, "https://greenwood.edapp.co.za", pt.PortalURL)
		assert.Equal(t, "https://apply-greenwood.edapp.co.za", pt.ApplyURL)
	})
}

func Test_tenantApi_resolve(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	resolver := tenant.NewResolver(app.conf.Tenancy.BaseDomains, nil)
	pt := greenwood.Public(resolver, "https")

	tests := []httpTest{
		{
			name: "tenant host", host: "greenwood.edapp.co.za:8000",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "greenwood.edapp.co.za", Kind: tenant.KindTenant, Slug: strPtr("greenwood"), Tenant: &pt}),
		},
		{
			name: "apply host", host: "apply-greenwood.edapp.co.za",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "apply-greenwood.edapp.co.za", Kind: tenant.KindApply, Slug: strPtr("greenwood"), Tenant: &pt}),
		},
		{
			name: "unknown tenant", host: "ghost.edapp.co.za",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "ghost.edapp.co.za", Kind: tenant.KindTenant, Slug: strPtr("ghost")}),
		},
		{
			name: "admin host", host: "admin.edapp.co.za",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "admin.edapp.co.za", Kind: tenant.KindAdmin}),
		},
		{
			name: "apex", host: "edapp.co.za",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "edapp.co.za", Kind: tenant.KindApex}),
		},
		{
			name: "foreign host", host: "example.com",
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "example.com", Kind: tenant.KindUnknown}),
		},
		{
			name: "header fallback", host: "localhost:3000", header: map[string]string{"X-Tenant-Slug": "greenwood"},
			wantData: marchallObj(t, echoapi.ResolveResponse{Host: "localhost", Kind: tenant.KindApex, Slug: strPtr("greenwood"), Tenant: &pt}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/v1/tenants/resolve"
		tests[i].wantCode = http.StatusOK
	}
	runHTTPTests(t, app, tests)
}

func Test_tenantApi_discover(t *testing.T) {
	app := setup(t)
	ctx := context.Background()
	resolver := tenant.NewResolver(app.conf.Tenancy.BaseDomains, nil)

	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	riverside := app.createTenant(t, "riverside", "Riverside Primary")
	closed := app.createTenant(t, "closed", "Closed School")
	_, err := app.tenantSvc.SetStatus(ctx, closed, tenant.StatusSuspended)
	require.NoError(t, err)
	other := app.createTenant(t, "other", "Other School")

	const email = "parent@test.co.za"
	for _, tnt := range []tenant.Tenant{greenwood, riverside, closed} {
		usr := app.createUser(t, tnt.ID, "parent1")
		usr.Email = email
		_, err := app.usrRepo.UpdateUser(ctx, usr)
		require.NoError(t, err)
	}
	inactive := app.createUser(t, other.ID, "parent2")
	inactive.Email, inactive.IsActive = email, false
	_, err = app.usrRepo.UpdateUser(ctx, inactive)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{
			name: "unknown email", body: marchallObj(t, echoapi.DiscoverRequest{Email: "nobody@test.co.za"}),
			wantCode: http.StatusOK, wantData: []byte("[]"),
		},
		{
			name: "active accounts only", body: marchallObj(t, echoapi.DiscoverRequest{Email: "  Parent@Test.co.za "}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []tenant.PublicTenant{greenwood.Public(resolver, "https"), riverside.Public(resolver, "https")}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].host = "auth." + baseHost
		tests[i].path = "/v1/tenants/discover"
	}
	runHTTPTests(t, app, tests)
}

func Test_siteRoutes_bootstrap(t *testing.T) {
	app := setup(t)
	greenwood := app.createTenant(t, "greenwood", "Greenwood High")
	resolver := tenant.NewResolver(app.conf.Tenancy.BaseDomains, nil)
	pt := greenwood.Public(resolver, "https")

	site := func(kind tenant.Kind, slug *string, path string, tnt *tenant.PublicTenant) []byte {
		return marchallObj(t, echoapi.SiteResponse{Kind: kind, Slug: slug, Path: path, Tenant: tnt})
	}
	tests := []httpTest{
		{name: "tenant root", host: tenantHost("greenwood"), path: "/", wantData: site(tenant.KindTenant, strPtr("greenwood"), "/", &pt)},
		{name: "tenant page", host: tenantHost("greenwood"), path: "/dashboard/classes/", wantData: site(tenant.KindTenant, strPtr("greenwood"), "/dashboard/classes", &pt)},
		{name: "apply page", host: "apply-greenwood." + baseHost, path: "/form", wantData: site(tenant.KindApply, strPtr("greenwood"), "/form", &pt)},
		{name: "admin page", host: "admin." + baseHost, path: "/tenants", wantData: site(tenant.KindAdmin, nil, "/tenants", nil)},
		{name: "auth page", host: "auth." + baseHost, path: "/login", wantData: site(tenant.KindAuth, nil, "/login", nil)},
		{name: "app root", host: "app." + baseHost, path: "/", wantData: site(tenant.KindApp, nil, "/", nil)},
		{name: "internal route on apex", host: baseHost, path: "/tenant/greenwood/about", wantData: site(tenant.KindTenant, strPtr("greenwood"), "/about", &pt)},
		{
			name: "unknown tenant", host: tenantHost("ghost"), path: "/",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "tenant not found"}),
		},
		{
			name: "api routes are not rewritten", host: tenantHost("greenwood"), path: "/v1/tenants/lookup-by-slug?slug=greenwood",
			wantData: marchallObj(t, pt),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		if tests[i].wantCode == 0 {
			tests[i].wantCode = http.StatusOK
		}
	}
	runHTTPTests(t, app, tests)
}

func Test_siteRoutes_proxy(t *testing.T) {
	var gotPath, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotHost = r.URL.Path, r.Host
		_, _ = io.WriteString(w, "frontend")
	}))
	defer upstream.Close()

	app := setup(t, func(conf *core.Config) {
		conf.Tenancy.FrontendUpstream = upstream.URL
	})
	app.createTenant(t, "greenwood", "Greenwood High")

	rec := app.do(newRequest(http.MethodGet, tenantHost("greenwood"), "/dashboard"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "frontend", rec.Body.String())
	assert.Equal(t, "/tenant/greenwood/dashboard", gotPath)
	assert.Equal(t, tenantHost("greenwood"), gotHost)

	// API routes are still served locally
	rec = app.do(newRequest(http.MethodGet, tenantHost("greenwood"), "/health"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
