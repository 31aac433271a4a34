package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/edapp/edapp/apps/api/echo"
	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	cachesvc "github.com/edapp/edapp/services/cache"
	emailsvc "github.com/edapp/edapp/services/email"
	metricsvc "github.com/edapp/edapp/services/metrics"
	inmemdb "github.com/edapp/edapp/storage/database/inmem"
	testutil "github.com/edapp/edapp/tests"
)

const (
	testPwd  = "Sup3r!Secret"
	baseHost = "edapp.co.za"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp is a server wired to in-memory storage.
type testApp struct {
	conf      *core.Config
	server    *echoapi.Server
	mailSvc   *emailsvc.ConsoleServiceMock
	usrRepo   user.Repository
	usrSvc    *user.Service
	tenantSvc *tenant.Service
	accessSvc *access.Service
	policySvc *policy.Service
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	t.Helper()
	conf := testutil.NewConfig()
	conf.Tenancy.BaseDomains = []string{baseHost, "localhost"}
	conf.Tenancy.Scheme = "https"
	conf.Tenancy.TenantHeader = "X-Tenant-Slug"
	conf.Server.AuthRateLimit = 1000
	conf.Server.AuthRateBurst = 1000
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger(t)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)
	access.InitValidators(validate, translator)
	policy.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	core.ParseEmailTemplates(logger, true)

	// set up repos
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	app := &testApp{
		conf:      conf,
		mailSvc:   mailSvc,
		usrRepo:   usrRepo,
		usrSvc:    user.NewService(usrRepo, mailSvc, conf),
		tenantSvc: tenant.NewService(nil, inmemdb.NewTenantRepository(db), usrRepo, cachesvc.NewMemoryTenantCache(time.Minute)),
		accessSvc: access.NewService(inmemdb.NewAccessRepository(db)),
		policySvc: policy.NewService(inmemdb.NewPolicyRepository(db)),
	}

	// set up server
	app.server = echoapi.NewServer(echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Metrics:    metricsvc.NewMetrics(prometheus.NewRegistry()),
		Resolver:   tenant.NewResolver(conf.Tenancy.BaseDomains, conf.Tenancy.ReservedPaths),
		UserSvc:    app.usrSvc,
		TenantSvc:  app.tenantSvc,
		AccessSvc:  app.accessSvc,
		PolicySvc:  app.policySvc,
		HandoffSvc: handoff.NewService(cachesvc.NewMemoryHandoffStore(), conf.Tenancy.HandoffTTL),
	})
	return app
}

func (app *testApp) createTenant(t *testing.T, slug, name string) tenant.Tenant {
	return testutil.CreateTenant(t, app.tenantSvc, slug, name)
}

func (app *testApp) createUser(t *testing.T, tenantID, uname string, roles ...string) user.User {
	return testutil.CreateUser(t, app.usrRepo, tenantID, "User "+uname, uname, uname+"@test.co.za", testPwd, roles, true)
}

// do serves req and returns the recorded response.
func (app *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	host     string
	path     string
	body     []byte
	token    string
	header   map[string]string
	wantCode int
	wantData []byte
}

func tenantHost(slug string) string {
	return slug + "." + baseHost
}

func newAuthRequest(method, host, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	if host != "" {
		req.Host = host
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, host, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, host, path, "", data...)
}

func (tt httpTest) request() *http.Request {
	req := newAuthRequest(tt.method, tt.host, tt.path, tt.token, tt.body)
	for k, v := range tt.header {
		req.Header.Set(k, v)
	}
	return req
}

// getToken issues a token for usr within the tenant t (nil for platform-level sessions).
func getToken(t *testing.T, conf *core.Config, usr user.User, tnt *tenant.Tenant) string {
	var tenantID, slug string
	if tnt != nil {
		tenantID, slug = tnt.ID, tnt.Slug
	}
	token, err := echoapi.GenerateToken(conf, echoapi.NewUserClaims(conf, usr, tenantID, slug))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	return marchallObj(t, objs)
}

func unmarchall(t *testing.T, data []byte, obj interface{}) {
	if err := json.Unmarshal(data, obj); err != nil {
		t.Fatalf("unmarchall() failed: %v; data %s", err, data)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	checkCode(t, tt, rec)
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt.request()))
		})
	}
}
