package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/notice"
	"github.com/sells-group/benefits-notice/internal/notify"
	"github.com/sells-group/benefits-notice/internal/notify/mocks"
	"github.com/sells-group/benefits-notice/internal/roster"
	"github.com/sells-group/benefits-notice/internal/store"
	"github.com/sells-group/benefits-notice/pkg/msgraph"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const adminToken = "admin-secret"

const report = "EMAIL,NAME,LAST LOGIN,INVITATION URL\n" +
	"ana@co.com,Ana Lopez,,https://portal/ana\n" +
	"bo@co.com,Bo Chen,2026-03-01,https://portal/bo\n"

type testAPI struct {
	t    *testing.T
	st   *store.SQLiteStore
	srv  *httptest.Server
	disp *mocks.MockDispatcher
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  errorPayload    `json:"error"`
}

func newTestAPI(t *testing.T, connector *notify.Connector) *testAPI {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	engine := compliance.NewEngine(st, 0)
	tpl, err := notify.LoadTemplates("")
	require.NoError(t, err)
	disp := mocks.NewMockDispatcher(t)
	mailer := notify.NewMailer(st, engine, tpl, notify.NewTokenManager(st, nil),
		map[model.MailProvider]notify.Dispatcher{model.ProviderSMTP: disp},
		notify.Settings{AdminSenderEmail: "admin@benefits.example", AppBaseURL: "https://benefits.example"},
		notify.MailerConfig{Concurrency: 1, Attempts: 1},
	)

	h := New(Config{AdminToken: adminToken, CORSOrigins: []string{"https://admin.example"}}, Deps{
		Store:     st,
		Engine:    engine,
		Roster:    roster.NewImporter(st, 0),
		Notices:   notice.NewService(st),
		Mailer:    mailer,
		Connector: connector,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, st: st, srv: srv, disp: disp}
}

func (a *testAPI) do(method, path string, body io.Reader, contentType string, admin bool) (*http.Response, envelope) {
	a.t.Helper()
	req, err := http.NewRequest(method, a.srv.URL+path, body)
	require.NoError(a.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close() //nolint:errcheck

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(raw, &env))
	} else {
		env.Data = raw
	}
	return resp, env
}

func (a *testAPI) json(method, path string, payload any) (*http.Response, envelope) {
	a.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(a.t, err)
		body = bytes.NewReader(b)
	}
	return a.do(method, path, body, "application/json", true)
}

func (a *testAPI) upload(path, fileName, content string) (*http.Response, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(a.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())
	return a.do(http.MethodPost, path, &buf, mw.FormDataContentType(), true)
}

// seed creates an employer with an active 2026 plan year.
func (a *testAPI) seed() (model.Employer, model.PlanYear) {
	a.t.Helper()
	resp, env := a.json(http.MethodPost, "/v1/employers", map[string]string{"name": "Acme"})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	var emp model.Employer
	require.NoError(a.t, json.Unmarshal(env.Data, &emp))

	resp, env = a.json(http.MethodPost, "/v1/employers/"+emp.ID+"/plan-years",
		map[string]string{"start_date": "2026-01-01", "end_date": "2026-12-31"})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	var py model.PlanYear
	require.NoError(a.t, json.Unmarshal(env.Data, &py))
	return emp, py
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, env := a.do(http.MethodGet, "/healthz", nil, "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", env.Status)

	resp, _ = a.do(http.MethodGet, "/readyz", nil, "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = a.do(http.MethodGet, "/metrics", nil, "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "go_goroutines")
}

func TestAdminAuth(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, env := a.do(http.MethodGet, "/v1/employers", nil, "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", env.Error.Code)
	assert.NotEmpty(t, env.Error.RequestID)

	resp, _ = a.do(http.MethodGet, "/v1/employers?access_token="+adminToken, nil, "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmployersAndPlanYears(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, py := a.seed()
	assert.Equal(t, "Acme", emp.Name)
	assert.Equal(t, model.PlanYearActive, py.Status)

	resp, env := a.json(http.MethodPost, "/v1/employers", map[string]string{"name": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_input", env.Error.Code)

	resp, _ = a.json(http.MethodPost, "/v1/employers/"+emp.ID+"/plan-years",
		map[string]string{"start_date": "2026-12-31", "end_date": "2026-01-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = a.json(http.MethodPost, "/v1/employers/"+emp.ID+"/plan-years",
		map[string]string{"start_date": "01/01/2026", "end_date": "2026-12-31"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, env = a.json(http.MethodPost, "/v1/plan-years/"+py.ID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var closed model.PlanYear
	require.NoError(t, json.Unmarshal(env.Data, &closed))
	assert.Equal(t, model.PlanYearClosed, closed.Status)

	resp, env = a.json(http.MethodGet, "/v1/employers/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestComplianceFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, py := a.seed()
	base := "/v1/employers/" + emp.ID

	resp, env := a.upload(base+"/compliance/imports?dry_run=true", "report.csv", report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var counts compliance.Counts
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.True(t, counts.DryRun)
	assert.Equal(t, 2, counts.CreatedEmployees)

	resp, env = a.json(http.MethodGet, base+"/compliance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "dry run creates no import run")
	assert.Equal(t, "no_import_run", env.Error.Code)

	resp, env = a.upload(base+"/compliance/imports", "report.csv", report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, 1, counts.CompliantSet)
	assert.Equal(t, 1, counts.NoncompliantSet)

	resp, env = a.json(http.MethodGet, base+"/compliance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tbl compliance.Table
	require.NoError(t, json.Unmarshal(env.Data, &tbl))
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 2, tbl.Summary.InScope)
	assert.InDelta(t, 50.0, tbl.Summary.Percent, 0.01)

	var ana model.ComplianceRow
	for _, r := range tbl.Rows {
		if r.Email == "ana@co.com" {
			ana = r
		}
	}
	require.NotEmpty(t, ana.EmployeeID)

	resp, env = a.json(http.MethodPut, "/v1/employees/"+ana.EmployeeID+"/compliance/"+py.ID,
		map[string]any{"override": true, "status": "compliant"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec model.ComplianceRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.True(t, rec.Override)
	assert.Equal(t, model.StatusCompliant, rec.Status)

	resp, _ = a.json(http.MethodPut, "/v1/employees/"+ana.EmployeeID+"/compliance/"+py.ID,
		map[string]any{"override": true, "status": "maybe"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, env = a.json(http.MethodGet, "/v1/employees/"+ana.EmployeeID+"/activity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), string(model.ActivityComplianceOverride))

	resp, env = a.json(http.MethodGet, base+"/compliance/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []model.ImportRun
	require.NoError(t, json.Unmarshal(env.Data, &runs))
	assert.Len(t, runs, 1)

	// Non-JSON responses carry the raw body in Data.
	resp, env = a.do(http.MethodGet, base+"/compliance/export", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "compliance-2026-01-01.xlsx")
	assert.True(t, bytes.HasPrefix(env.Data, []byte("PK")), "xlsx is a zip archive")
}

func TestComplianceImportErrors(t *testing.T) {
	a := newTestAPI(t, nil)

	resp, env := a.upload("/v1/employers/missing/compliance/imports", "report.csv", report)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "employer_not_found", env.Error.Code)

	resp, env = a.json(http.MethodPost, "/v1/employers", map[string]string{"name": "No Plan"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var emp model.Employer
	require.NoError(t, json.Unmarshal(env.Data, &emp))

	resp, env = a.upload("/v1/employers/"+emp.ID+"/compliance/imports", "report.csv", report)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "no_active_plan_year", env.Error.Code)

	emp2, _ := a.seed()
	resp, env = a.upload("/v1/employers/"+emp2.ID+"/compliance/imports", "report.xlsx", "not a workbook")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "spreadsheet_unreadable", env.Error.Code)

	resp, _ = a.json(http.MethodPost, "/v1/employers/"+emp2.ID+"/compliance/imports", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "missing multipart body")
}

func TestRosterImport(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, _ := a.seed()

	resp, env := a.upload("/v1/employers/"+emp.ID+"/roster", "roster.csv",
		"Email,First Name,Last Name,Eligible\nana@co.com,Ana,Lopez,yes\n,No,Email,yes\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res roster.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.SkippedNoEmail)
}

func TestNoticeRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, _ := a.seed()
	resp, _ := a.upload("/v1/employers/"+emp.ID+"/compliance/imports", "report.csv", report)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := a.st.EmployeesByEmail(context.Background(), emp.ID, []string{"ana@co.com"})
	require.NoError(t, err)
	token := got["ana@co.com"].Token

	resp, env := a.do(http.MethodGet, "/n/"+token, nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page notice.Page
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, "Acme", page.EmployerName)
	assert.NotNil(t, page.FirstViewedAt)

	resp, env = a.do(http.MethodPost, "/n/"+token+"/opt-out", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.True(t, page.OptedOut)

	resp, _ = a.do(http.MethodPost, "/n/"+token+"/insurance", strings.NewReader(`{"has_coverage":true,"carrier":"Aetna"}`), "application/json", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = a.do(http.MethodPost, "/n/"+token+"/insurance", strings.NewReader(`{"has_coverage":true}`), "application/json", false)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_input", env.Error.Code)

	resp, env = a.do(http.MethodGet, "/n/not-a-token", nil, "", false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_token", env.Error.Code)
}

func TestSendRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, _ := a.seed()
	base := "/v1/employers/" + emp.ID

	resp, env := a.json(http.MethodPost, base+"/reminders?preview=true", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no_import_run", env.Error.Code)

	resp, _ = a.upload(base+"/compliance/imports", "report.csv", report)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = a.json(http.MethodPost, base+"/reminders?preview=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep notify.Report
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	require.Len(t, rep.Recipients, 1)
	assert.Equal(t, "ana@co.com", rep.Recipients[0].Email)

	a.disp.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Times(2)
	resp, env = a.json(http.MethodPost, base+"/notices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, "smtp", rep.Provider)
}

func TestMailAccountsRoutes(t *testing.T) {
	a := newTestAPI(t, nil)
	emp, _ := a.seed()
	_, err := a.st.UpsertMailAccount(context.Background(), model.MailAccount{
		EmployerID: emp.ID, Provider: model.ProviderGoogle, Email: "hr@acme.com", RefreshToken: "r",
	})
	require.NoError(t, err)

	resp, env := a.json(http.MethodGet, "/v1/employers/"+emp.ID+"/mail-accounts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), "hr@acme.com")
	assert.NotContains(t, string(env.Data), `"r"`, "tokens are never serialized")

	resp, env = a.json(http.MethodGet, "/v1/mail-accounts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestOAuthConnect(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`))
		case "/me":
			_, _ = w.Write([]byte(`{"id":"u1","displayName":"HR","mail":"hr@acme.com"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer provider.Close()

	cfg := &oauth2.Config{
		ClientID:     "mid",
		ClientSecret: "ms",
		Endpoint:     oauth2.Endpoint{AuthURL: provider.URL + "/authorize", TokenURL: provider.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
	}
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "connect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	connector := notify.NewConnector(st,
		map[model.MailProvider]*oauth2.Config{model.ProviderMicrosoft: cfg},
		msgraph.NewClient(msgraph.WithBaseURL(provider.URL)),
	)
	a := newTestAPI(t, connector)
	noRedirect := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/oauth/microsoft/start", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := noRedirect.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)

	bad, err := http.NewRequest(http.MethodGet, a.srv.URL+"/oauth/microsoft/callback?state=wrong&code=c", nil)
	require.NoError(t, err)
	bad.AddCookie(cookies[0])
	resp, err = noRedirect.Do(bad)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	good, err := http.NewRequest(http.MethodGet, a.srv.URL+"/oauth/microsoft/callback?state="+url.QueryEscape(state)+"&code=c", nil)
	require.NoError(t, err)
	good.AddCookie(cookies[0])
	resp, err = noRedirect.Do(good)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	admin, err := st.ListMailAccounts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.Equal(t, "hr@acme.com", admin[0].Email)

	resp2, _ := a.do(http.MethodGet, "/oauth/google/start", nil, "", true)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}
