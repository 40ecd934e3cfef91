// Package compliance reconciles vendor-portal login reports against an
// employer's roster and active plan year, and derives the compliance table
// and reminder recipients from the latest import run.
package compliance

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/db"
	"github.com/sells-group/benefits-notice/internal/metrics"
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/roster"
	"github.com/sells-group/benefits-notice/internal/sheet"
	"github.com/sells-group/benefits-notice/internal/store"
)

// DefaultBatchSize bounds the rows sent per upsert round-trip.
const DefaultBatchSize = 500

// Request is one compliance import. An empty PlanYearID resolves the
// employer's active plan year.
type Request struct {
	EmployerID string
	PlanYearID string
	FileName   string
	Data       []byte
	DryRun     bool
}

// Counts is the outcome of an import. Upserts, RunID and Members are only
// set by real runs; DryRun tells which shape a caller holds.
type Counts struct {
	DryRun                 bool   `json:"dry_run"`
	PlanYearID             string `json:"plan_year_id"`
	Scanned                int    `json:"scanned"`
	InScope                int    `json:"in_scope"`
	CreatedEmployees       int    `json:"created_employees"`
	MatchedEmployees       int    `json:"matched_employees"`
	CompliantSet           int    `json:"compliant_set"`
	NoncompliantSet        int    `json:"noncompliant_set"`
	OptedOutSet            int    `json:"opted_out_set"`
	SkippedNoEmail         int    `json:"skipped_no_email"`
	SkippedNoEmployeeMatch int    `json:"skipped_no_employee_match"`
	SkippedOverride        int    `json:"skipped_override"`
	Upserts                int    `json:"upserts"`
	RunID                  string `json:"run_id,omitempty"`
	Members                int    `json:"members"`
}

// Engine runs compliance imports against a store.
type Engine struct {
	store     store.Store
	batchSize int
	now       func() time.Time
}

// NewEngine returns an Engine. batchSize below one uses DefaultBatchSize.
func NewEngine(st store.Store, batchSize int) *Engine {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Engine{store: st, batchSize: batchSize, now: time.Now}
}

// Import reconciles one login report. A dry run reads the store but never
// writes to it. A real run applies employee upserts, compliance upserts,
// the import run and its members in that order; a failure part way returns
// a *StorageWriteError and leaves earlier batches committed.
func (e *Engine) Import(ctx context.Context, req Request) (*Counts, error) {
	mode := metrics.ImportMode(metrics.ModeCompliance, req.DryRun)
	defer metrics.TimeImport(mode)()

	if err := e.checkEmployer(ctx, req.EmployerID); err != nil {
		return nil, err
	}
	py, err := e.resolvePlanYear(ctx, req.EmployerID, req.PlanYearID)
	if err != nil {
		return nil, err
	}

	rows, err := sheet.Read(req.FileName, req.Data)
	if err != nil {
		return nil, eris.Wrapf(ErrSpreadsheetUnreadable, "compliance: %s: %v", req.FileName, err)
	}

	norm := roster.NormalizeRows(rows)
	emails := norm.Emails()
	counts := &Counts{
		DryRun:         req.DryRun,
		PlanYearID:     py.ID,
		Scanned:        len(rows),
		InScope:        len(emails),
		SkippedNoEmail: norm.SkippedNoEmail,
	}
	if norm.SkippedNoEmail > 0 {
		zap.L().Debug("compliance: rows without email skipped",
			zap.String("file", req.FileName),
			zap.Int("count", norm.SkippedNoEmail),
		)
	}

	existing, err := e.store.EmployeesByEmail(ctx, req.EmployerID, emails)
	if err != nil {
		return nil, eris.Wrap(err, "compliance: load employees")
	}
	counts.MatchedEmployees = len(existing)

	staged := roster.StageEmployees(req.EmployerID, norm.Unique, existing, false)
	counts.CreatedEmployees = staged.Created

	resolved := existing
	if req.DryRun {
		resolved = withProvisional(existing, staged.Upserts)
	} else {
		for i, batch := range db.Chunk(staged.Upserts, e.batchSize) {
			if _, err := e.store.UpsertEmployees(ctx, batch, store.EmployeeUpsertOptions{}); err != nil {
				return nil, &StorageWriteError{Stage: StageEmployees, Batch: i, Err: err}
			}
		}
		if staged.Created > 0 {
			resolved, err = e.store.EmployeesByEmail(ctx, req.EmployerID, emails)
			if err != nil {
				return nil, eris.Wrap(err, "compliance: reload employees")
			}
		}
	}

	overrides, err := e.store.OverriddenEmployees(ctx, py.ID)
	if err != nil {
		return nil, eris.Wrap(err, "compliance: load overrides")
	}

	upserts, members := e.stageCompliance(*py, norm.All, resolved, overrides, counts)
	tally(upserts, counts)
	recordRowMetrics(counts)
	metrics.ImportsTotal.WithLabelValues(mode).Inc()

	if req.DryRun {
		return counts, nil
	}

	for i, batch := range db.Chunk(upserts, e.batchSize) {
		if _, err := e.store.UpsertCompliance(ctx, batch); err != nil {
			return nil, &StorageWriteError{Stage: StageCompliance, Batch: i, Err: err}
		}
	}
	counts.Upserts = len(upserts)

	run, err := e.store.CreateImportRun(ctx, model.ImportRun{
		EmployerID: req.EmployerID,
		PlanYearID: py.ID,
		FileName:   req.FileName,
	})
	if err != nil {
		return nil, &StorageWriteError{Stage: StageImportRun, Err: err}
	}
	counts.RunID = run.ID

	for i, batch := range db.Chunk(members, e.batchSize) {
		if _, err := e.store.AddImportRunMembers(ctx, run.ID, batch); err != nil {
			return nil, &StorageWriteError{Stage: StageMembers, Batch: i, Err: err}
		}
	}
	counts.Members = len(members)

	zap.L().Info("compliance import complete",
		zap.String("employer_id", req.EmployerID),
		zap.String("plan_year_id", py.ID),
		zap.String("run_id", run.ID),
		zap.String("file", req.FileName),
		zap.Int("scanned", counts.Scanned),
		zap.Int("in_scope", counts.InScope),
		zap.Int("created_employees", counts.CreatedEmployees),
		zap.Int("compliant", counts.CompliantSet),
		zap.Int("noncompliant", counts.NoncompliantSet),
		zap.Int("opted_out", counts.OptedOutSet),
		zap.Int("skipped_override", counts.SkippedOverride),
		zap.Int("members", counts.Members),
	)
	return counts, nil
}

// stageCompliance walks every row with an email, so duplicates contribute
// their own login data and the last one wins. It returns one upsert per
// resolved employee and the run's members in first-seen order.
func (e *Engine) stageCompliance(
	py model.PlanYear,
	rows []roster.Normalized,
	resolved map[string]model.Employee,
	overrides map[string]model.ComplianceStatus,
	counts *Counts,
) ([]model.ComplianceUpsert, []string) {
	now := e.now().UTC()
	var (
		upserts []model.ComplianceUpsert
		members []string
	)
	pos := make(map[string]int)

	for _, n := range rows {
		emp, ok := resolved[n.Email]
		if !ok {
			counts.SkippedNoEmployeeMatch++
			zap.L().Debug("compliance: no employee for row", zap.String("email", n.Email))
			continue
		}

		var login *time.Time
		if n.LoginDate != nil {
			d := model.MidnightUTC(*n.LoginDate)
			login = &d
		}
		u := model.ComplianceUpsert{
			EmployeeID:  emp.ID,
			PlanYearID:  py.ID,
			LastLoginAt: login,
			PortalURL:   n.PortalURL,
			UpdatedAt:   now,
		}
		if status, ok := overrides[emp.ID]; ok {
			u.Status = status
			u.OverrideOnly = true
		} else {
			u.Status, u.CompliantAt = Evaluate(emp, py, login)
		}

		if i, dup := pos[emp.ID]; dup {
			upserts[i] = u
			continue
		}
		pos[emp.ID] = len(upserts)
		upserts = append(upserts, u)
		members = append(members, emp.ID)
	}
	return upserts, members
}

// Evaluate computes the status of an employee without an override. Opt-out
// wins over any login; otherwise a login inside the plan year is
// compliant and records compliant-at.
func Evaluate(emp model.Employee, py model.PlanYear, login *time.Time) (model.ComplianceStatus, *time.Time) {
	if emp.OptedOutAt != nil {
		return model.StatusOptedOut, nil
	}
	if login != nil && py.Contains(*login) {
		at := model.MidnightUTC(*login)
		return model.StatusCompliant, &at
	}
	return model.StatusNoncompliant, nil
}

func tally(upserts []model.ComplianceUpsert, counts *Counts) {
	for _, u := range upserts {
		if u.OverrideOnly {
			counts.SkippedOverride++
			continue
		}
		switch u.Status {
		case model.StatusCompliant:
			counts.CompliantSet++
		case model.StatusOptedOut:
			counts.OptedOutSet++
		default:
			counts.NoncompliantSet++
		}
	}
}

func recordRowMetrics(c *Counts) {
	metrics.AddRows("compliant", c.CompliantSet)
	metrics.AddRows("noncompliant", c.NoncompliantSet)
	metrics.AddRows("opted_out", c.OptedOutSet)
	metrics.AddRows("skipped_override", c.SkippedOverride)
	metrics.AddRows("skipped_no_email", c.SkippedNoEmail)
	metrics.AddRows("skipped_no_employee_match", c.SkippedNoEmployeeMatch)
}

// withProvisional adds the employees a dry run would create, so their rows
// resolve without a write.
func withProvisional(existing map[string]model.Employee, upserts []model.EmployeeUpsert) map[string]model.Employee {
	out := make(map[string]model.Employee, len(existing)+len(upserts))
	for k, v := range existing {
		out[k] = v
	}
	for _, u := range upserts {
		if _, ok := out[u.Email]; ok {
			continue
		}
		out[u.Email] = model.Employee{
			ID:         u.ID,
			EmployerID: u.EmployerID,
			Email:      u.Email,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			Eligible:   u.Eligible,
		}
	}
	return out
}

func (e *Engine) checkEmployer(ctx context.Context, employerID string) error {
	if _, err := e.store.GetEmployer(ctx, employerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrEmployerNotFound, "compliance: employer %s", employerID)
		}
		return eris.Wrap(err, "compliance: load employer")
	}
	return nil
}

// resolvePlanYear loads planYearID, which must belong to the employer, or
// the employer's active plan year when planYearID is empty.
func (e *Engine) resolvePlanYear(ctx context.Context, employerID, planYearID string) (*model.PlanYear, error) {
	if planYearID == "" {
		py, err := e.store.ActivePlanYear(ctx, employerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNoActivePlanYear, "compliance: employer %s", employerID)
		}
		return py, eris.Wrap(err, "compliance: active plan year")
	}

	py, err := e.store.GetPlanYear(ctx, planYearID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && py.EmployerID != employerID) {
		return nil, eris.Wrapf(ErrPlanYearNotFound, "compliance: plan year %s", planYearID)
	}
	return py, eris.Wrap(err, "compliance: load plan year")
}
