// Package server exposes the admin API, the employee notice links and the
// mailbox OAuth callbacks over HTTP.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/metrics"
	"github.com/sells-group/benefits-notice/internal/notice"
	"github.com/sells-group/benefits-notice/internal/notify"
	"github.com/sells-group/benefits-notice/internal/roster"
	"github.com/sells-group/benefits-notice/internal/store"
)

// DefaultMaxUploadBytes caps spreadsheet uploads.
const DefaultMaxUploadBytes = 32 << 20

var errInvalidInput = errors.New("server: invalid input")

// Config holds HTTP settings.
type Config struct {
	AdminToken     string
	CORSOrigins    []string
	MaxUploadBytes int64
	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool
}

// Deps are the services behind the API. Mailer and Connector may be nil,
// which disables the send and connect routes.
type Deps struct {
	Store     store.Store
	Engine    *compliance.Engine
	Roster    *roster.Importer
	Notices   *notice.Service
	Mailer    *notify.Mailer
	Connector *notify.Connector
}

// Server routes HTTP requests to the services.
type Server struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate
	now      func() time.Time
}

// New builds the HTTP handler.
func New(cfg Config, deps Deps) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{cfg: cfg, deps: deps, validate: validator.New(), now: time.Now}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeSuccess(w, http.StatusOK, map[string]string{"state": "ok"})
	})
	r.Get("/readyz", s.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/n/{token}", func(r chi.Router) {
		r.Get("/", s.viewNotice)
		r.Post("/opt-out", s.optOut)
		r.Post("/opt-in", s.optIn)
		r.Post("/insurance", s.affirmInsurance)
	})

	r.Get("/oauth/{provider}/callback", s.oauthCallback)
	r.With(adminAuth(s.cfg.AdminToken)).Get("/oauth/{provider}/start", s.oauthStart)

	r.Route("/v1", func(r chi.Router) {
		r.Use(adminAuth(s.cfg.AdminToken))

		r.Get("/employers", s.listEmployers)
		r.Post("/employers", s.createEmployer)
		r.Route("/employers/{employer_id}", func(r chi.Router) {
			r.Get("/", s.getEmployer)
			r.Post("/plan-years", s.createPlanYear)
			r.Post("/roster", s.importRoster)
			r.Post("/compliance/imports", s.importCompliance)
			r.Get("/compliance", s.complianceTable)
			r.Get("/compliance/export", s.exportCompliance)
			r.Get("/compliance/runs", s.importRuns)
			r.Post("/reminders", s.sendReminders)
			r.Post("/notices", s.sendNotices)
			r.Get("/mail-accounts", s.employerMailAccounts)
		})
		r.Post("/plan-years/{plan_year_id}/close", s.closePlanYear)
		r.Put("/employees/{employee_id}/compliance/{plan_year_id}", s.setOverride)
		r.Get("/employees/{employee_id}/activity", s.employeeActivity)
		r.Get("/mail-accounts", s.adminMailAccounts)
	})
	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "not_ready", "store unavailable")
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"state": "ready"})
}
