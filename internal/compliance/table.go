package compliance

import (
	"context"
	"errors"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/store"
)

// Summary aggregates a compliance table. Percent is compliant over in-scope,
// rounded to one decimal.
type Summary struct {
	InScope      int     `json:"in_scope"`
	Compliant    int     `json:"compliant"`
	Noncompliant int     `json:"noncompliant"`
	OptedOut     int     `json:"opted_out"`
	Overridden   int     `json:"overridden"`
	MissingLink  int     `json:"missing_link"`
	Percent      float64 `json:"percent"`
}

// Table is the latest import run of a plan year joined with its members'
// compliance state.
type Table struct {
	Run      model.ImportRun       `json:"run"`
	PlanYear model.PlanYear        `json:"plan_year"`
	Rows     []model.ComplianceRow `json:"rows"`
	Summary  Summary               `json:"summary"`
}

// Summarize counts statuses across rows. Overridden rows are counted under
// their status as well as under Overridden.
func Summarize(rows []model.ComplianceRow) Summary {
	s := Summary{InScope: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case model.StatusCompliant:
			s.Compliant++
		case model.StatusOptedOut:
			s.OptedOut++
		default:
			s.Noncompliant++
		}
		if r.Override {
			s.Overridden++
		}
		if missingLink(r) {
			s.MissingLink++
		}
	}
	if s.InScope > 0 {
		s.Percent = math.Round(float64(s.Compliant)*1000/float64(s.InScope)) / 10
	}
	return s
}

// Table loads the compliance table for the latest import run of a plan
// year. An empty planYearID uses the active plan year.
func (e *Engine) Table(ctx context.Context, employerID, planYearID string) (*Table, error) {
	if err := e.checkEmployer(ctx, employerID); err != nil {
		return nil, err
	}
	py, err := e.resolvePlanYear(ctx, employerID, planYearID)
	if err != nil {
		return nil, err
	}

	run, err := e.store.LatestImportRun(ctx, employerID, py.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrNoImportRun, "compliance: plan year %s", py.ID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "compliance: latest import run")
	}

	rows, err := e.store.ComplianceTable(ctx, *run)
	if err != nil {
		return nil, eris.Wrap(err, "compliance: load table")
	}
	return &Table{Run: *run, PlanYear: *py, Rows: rows, Summary: Summarize(rows)}, nil
}

// Runs lists an employer's import runs, newest first.
func (e *Engine) Runs(ctx context.Context, employerID string, limit int) ([]model.ImportRun, error) {
	if err := e.checkEmployer(ctx, employerID); err != nil {
		return nil, err
	}
	runs, err := e.store.ListImportRuns(ctx, employerID, limit)
	return runs, eris.Wrap(err, "compliance: list import runs")
}

// SetOverride sets or clears the manual override on an employee's
// compliance record. The status is stored either way; imports leave it
// alone while the override is set.
func (e *Engine) SetOverride(ctx context.Context, employeeID, planYearID string, override bool, status model.ComplianceStatus) error {
	if !status.Valid() {
		return eris.Wrapf(ErrInvalidStatus, "compliance: %q", status)
	}
	emp, err := e.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return eris.Wrap(err, "compliance: load employee")
	}
	py, err := e.resolvePlanYear(ctx, emp.EmployerID, planYearID)
	if err != nil {
		return err
	}

	if err := e.store.SetComplianceOverride(ctx, emp.ID, py.ID, override, status); err != nil {
		return eris.Wrap(err, "compliance: set override")
	}
	err = e.store.RecordActivity(ctx, model.ActivityEvent{
		EmployerID: emp.EmployerID,
		EmployeeID: emp.ID,
		Kind:       model.ActivityComplianceOverride,
		Detail: map[string]any{
			"plan_year_id": py.ID,
			"override":     override,
			"status":       string(status),
		},
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "compliance: record override activity")
	}

	zap.L().Info("compliance override updated",
		zap.String("employee_id", emp.ID),
		zap.String("plan_year_id", py.ID),
		zap.Bool("override", override),
		zap.String("status", string(status)),
	)
	return nil
}
