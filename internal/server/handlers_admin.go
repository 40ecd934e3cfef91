package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/model"
)

type createEmployerRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type createPlanYearRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type overrideRequest struct {
	Override bool   `json:"override"`
	Status   string `json:"status" validate:"required,oneof=compliant noncompliant opted_out"`
}

// decode reads a JSON body into dst and validates its tags.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return eris.Wrapf(errInvalidInput, "server: decode body: %v", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return eris.Wrapf(errInvalidInput, "server: %v", err)
	}
	return nil
}

// upload returns the multipart "file" field.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return "", nil, eris.Wrapf(errInvalidInput, "server: parse upload: %v", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, eris.Wrapf(errInvalidInput, "server: file field required: %v", err)
	}
	defer f.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return "", nil, eris.Wrap(err, "server: read upload")
	}
	return hdr.Filename, buf.Bytes(), nil
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return def
	}
	return min(n, 500)
}

// --- Employers and plan years ---

func (s *Server) listEmployers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListEmployers(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, list)
}

func (s *Server) createEmployer(w http.ResponseWriter, r *http.Request) {
	var req createEmployerRequest
	if err := s.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	emp, err := s.deps.Store.CreateEmployer(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, emp)
}

func (s *Server) getEmployer(w http.ResponseWriter, r *http.Request) {
	emp, err := s.deps.Store.GetEmployer(r.Context(), chi.URLParam(r, "employer_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, emp)
}

func (s *Server) createPlanYear(w http.ResponseWriter, r *http.Request) {
	var req createPlanYearRequest
	if err := s.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	employerID := chi.URLParam(r, "employer_id")
	if _, err := s.deps.Store.GetEmployer(r.Context(), employerID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	// Both dates already passed the datetime validator.
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)
	py, err := s.deps.Store.CreatePlanYear(r.Context(), employerID, start, end)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, py)
}

func (s *Server) closePlanYear(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "plan_year_id")
	if err := s.deps.Store.ClosePlanYear(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	py, err := s.deps.Store.GetPlanYear(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, py)
}

// --- Imports ---

func (s *Server) importRoster(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.upload(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	res, err := s.deps.Roster.Import(r.Context(), chi.URLParam(r, "employer_id"), name, data, queryBool(r, "dry_run"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (s *Server) importCompliance(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.upload(w, r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	counts, err := s.deps.Engine.Import(r.Context(), compliance.Request{
		EmployerID: chi.URLParam(r, "employer_id"),
		PlanYearID: r.URL.Query().Get("plan_year_id"),
		FileName:   name,
		Data:       data,
		DryRun:     queryBool(r, "dry_run"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, counts)
}

// --- Compliance table ---

func (s *Server) complianceTable(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.deps.Engine.Table(r.Context(), chi.URLParam(r, "employer_id"), r.URL.Query().Get("plan_year_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, tbl)
}

func (s *Server) exportCompliance(w http.ResponseWriter, r *http.Request) {
	tbl, err := s.deps.Engine.Table(r.Context(), chi.URLParam(r, "employer_id"), r.URL.Query().Get("plan_year_id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := compliance.ExportXLSX(&buf, tbl); err != nil {
		writeDomainError(w, r, err)
		return
	}
	name := fmt.Sprintf("compliance-%s.xlsx", tbl.PlanYear.StartDate.Format(time.DateOnly))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) importRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.deps.Engine.Runs(r.Context(), chi.URLParam(r, "employer_id"), queryLimit(r, 20))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, runs)
}

func (s *Server) setOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := s.decode(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	employeeID := chi.URLParam(r, "employee_id")
	planYearID := chi.URLParam(r, "plan_year_id")
	err := s.deps.Engine.SetOverride(r.Context(), employeeID, planYearID, req.Override, model.ComplianceStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rec, err := s.deps.Store.GetCompliance(r.Context(), employeeID, planYearID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec)
}

func (s *Server) employeeActivity(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Store.ListActivity(r.Context(), chi.URLParam(r, "employee_id"), queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

// --- Sends ---

func (s *Server) sendReminders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Mailer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "mail_disabled", "mail is not configured")
		return
	}
	rep, err := s.deps.Mailer.SendReminders(r.Context(), chi.URLParam(r, "employer_id"),
		r.URL.Query().Get("plan_year_id"), queryBool(r, "preview"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

func (s *Server) sendNotices(w http.ResponseWriter, r *http.Request) {
	if s.deps.Mailer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "mail_disabled", "mail is not configured")
		return
	}
	rep, err := s.deps.Mailer.SendNotices(r.Context(), chi.URLParam(r, "employer_id"), queryBool(r, "preview"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rep)
}

// --- Mail accounts ---

func (s *Server) employerMailAccounts(w http.ResponseWriter, r *http.Request) {
	s.mailAccounts(w, r, chi.URLParam(r, "employer_id"))
}

func (s *Server) adminMailAccounts(w http.ResponseWriter, r *http.Request) {
	s.mailAccounts(w, r, "")
}

func (s *Server) mailAccounts(w http.ResponseWriter, r *http.Request, employerID string) {
	accts, err := s.deps.Store.ListMailAccounts(r.Context(), employerID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if accts == nil {
		accts = []model.MailAccount{}
	}
	writeSuccess(w, http.StatusOK, accts)
}
