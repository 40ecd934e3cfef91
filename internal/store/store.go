package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/sells-group/benefits-notice/internal/db"
	"github.com/sells-group/benefits-notice/internal/model"
)

var (
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidPlanYear is returned when a plan year starts after it ends.
	ErrInvalidPlanYear = errors.New("store: plan year start is after end")
)

// EmployeeUpsertOptions controls which columns an employee upsert may
// change on existing rows. Names are always fill-only.
type EmployeeUpsertOptions struct {
	// UpdateEligible overwrites the eligible flag of existing employees.
	UpdateEligible bool
}

// Store defines the Record Store used by imports, notices and mail.
type Store interface {
	// Employers
	CreateEmployer(ctx context.Context, name string) (*model.Employer, error)
	GetEmployer(ctx context.Context, id string) (*model.Employer, error)
	ListEmployers(ctx context.Context) ([]model.Employer, error)

	// Plan years
	CreatePlanYear(ctx context.Context, employerID string, start, end time.Time) (*model.PlanYear, error)
	GetPlanYear(ctx context.Context, id string) (*model.PlanYear, error)
	ActivePlanYear(ctx context.Context, employerID string) (*model.PlanYear, error)
	ClosePlanYear(ctx context.Context, id string) error

	// Employees
	UpsertEmployees(ctx context.Context, rows []model.EmployeeUpsert, opts EmployeeUpsertOptions) (int64, error)
	EmployeesByEmail(ctx context.Context, employerID string, emails []string) (map[string]model.Employee, error)
	ListEmployees(ctx context.Context, employerID string) ([]model.Employee, error)
	GetEmployee(ctx context.Context, id string) (*model.Employee, error)
	EmployeeByToken(ctx context.Context, token string) (*model.Employee, error)
	SetOptedOut(ctx context.Context, employeeID string, at *time.Time) error
	MarkNoticeViewed(ctx context.Context, employeeID string, at time.Time) error
	AffirmInsurance(ctx context.Context, employeeID string, a model.InsuranceAffirmation) error

	// Compliance
	OverriddenEmployees(ctx context.Context, planYearID string) (map[string]model.ComplianceStatus, error)
	UpsertCompliance(ctx context.Context, rows []model.ComplianceUpsert) (int64, error)
	GetCompliance(ctx context.Context, employeeID, planYearID string) (*model.ComplianceRecord, error)
	SetComplianceOverride(ctx context.Context, employeeID, planYearID string, override bool, status model.ComplianceStatus) error
	MarkReminderSent(ctx context.Context, employeeID, planYearID string, at time.Time) error
	ComplianceTable(ctx context.Context, run model.ImportRun) ([]model.ComplianceRow, error)

	// Import runs
	CreateImportRun(ctx context.Context, run model.ImportRun) (*model.ImportRun, error)
	AddImportRunMembers(ctx context.Context, runID string, employeeIDs []string) (int64, error)
	LatestImportRun(ctx context.Context, employerID, planYearID string) (*model.ImportRun, error)
	ListImportRuns(ctx context.Context, employerID string, limit int) ([]model.ImportRun, error)
	CountImportRuns(ctx context.Context, employerID string) (int, error)

	// Activity
	RecordActivity(ctx context.Context, ev model.ActivityEvent) error
	ListActivity(ctx context.Context, employeeID string, limit int) ([]model.ActivityEvent, error)

	// Mail accounts
	UpsertMailAccount(ctx context.Context, acct model.MailAccount) (*model.MailAccount, error)
	ListMailAccounts(ctx context.Context, employerID string) ([]model.MailAccount, error)
	UpdateMailAccountToken(ctx context.Context, id, accessToken, refreshToken string, expiry *time.Time) error
	MarkMailAccountReconnect(ctx context.Context, id string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Column layouts shared by both backends.
var (
	employeeColumns = []string{
		"id", "employer_id", "email", "first_name", "last_name",
		"eligible", "token", "created_at", "updated_at",
	}
	complianceColumns = []string{
		"employee_id", "plan_year_id", "status", "last_login_at",
		"compliant_at", "portal_url", "updated_at",
	}
)

func employeeRow(e model.EmployeeUpsert, now time.Time) []any {
	return []any{
		e.ID, e.EmployerID, e.Email, e.FirstName, e.LastName,
		e.Eligible, e.Token, now, now,
	}
}

func complianceRow(c model.ComplianceUpsert, now time.Time) []any {
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return []any{
		c.EmployeeID, c.PlanYearID, string(c.Status), c.LastLoginAt,
		c.CompliantAt, c.PortalURL, updated,
	}
}

// splitCompliance separates override-only rows, which must never change
// status or compliant_at, from regular rows.
func splitCompliance(rows []model.ComplianceUpsert) (regular, overrideOnly []model.ComplianceUpsert) {
	for _, r := range rows {
		if r.OverrideOnly {
			overrideOnly = append(overrideOnly, r)
			continue
		}
		regular = append(regular, r)
	}
	return regular, overrideOnly
}

// sortMailAccounts orders accounts most recently updated first.
func sortMailAccounts(accts []model.MailAccount) {
	slices.SortStableFunc(accts, func(a, b model.MailAccount) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
}

func employeeUpsertConfig(opts EmployeeUpsertOptions) db.UpsertConfig {
	update := []string{"updated_at"}
	if opts.UpdateEligible {
		update = append(update, "eligible")
	}
	return db.UpsertConfig{
		Table:        "employees",
		Columns:      employeeColumns,
		ConflictKeys: []string{"employer_id", "email"},
		UpdateCols:   update,
		PreserveCols: []string{"first_name", "last_name"},
	}
}

// complianceUpsertConfig overwrites login and portal link with the latest
// report, null included, so a row reflects only the run that wrote it.
// Override-only rows keep their status and take a login or link only when
// the report carries one.
func complianceUpsertConfig(overrideOnly bool) db.UpsertConfig {
	if overrideOnly {
		return db.UpsertConfig{
			Table:        "employee_plan_year_compliance",
			Columns:      complianceColumns,
			ConflictKeys: []string{"employee_id", "plan_year_id"},
			UpdateCols:   []string{"updated_at"},
			CoalesceCols: []string{"last_login_at", "portal_url"},
		}
	}
	return db.UpsertConfig{
		Table:        "employee_plan_year_compliance",
		Columns:      complianceColumns,
		ConflictKeys: []string{"employee_id", "plan_year_id"},
		UpdateCols:   []string{"status", "last_login_at", "compliant_at", "portal_url", "updated_at"},
	}
}
