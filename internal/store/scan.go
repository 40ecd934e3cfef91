package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/benefits-notice/internal/model"
)

type scannable interface {
	Scan(dest ...any) error
}

const (
	employerSelect = `SELECT id, name, created_at FROM employers`
	planYearSelect = `SELECT id, employer_id, start_date, end_date, status, created_at FROM plan_years`
	employeeSelect = `SELECT id, employer_id, email, first_name, last_name, token, eligible,
		opted_out_at, first_viewed_at, insurance_carrier, insurance_affirmed_at,
		created_at, updated_at FROM employees`
	complianceSelect = `SELECT employee_id, plan_year_id, status, override, last_login_at,
		compliant_at, portal_url, last_reminder_sent_at, updated_at
		FROM employee_plan_year_compliance`
	importRunSelect = `SELECT r.id, r.employer_id, r.plan_year_id, r.file_name, r.created_at,
		(SELECT COUNT(*) FROM import_run_members m WHERE m.run_id = r.id)
		FROM import_runs r`
	activitySelect    = `SELECT id, employer_id, employee_id, kind, detail, created_at FROM activity_events`
	mailAccountSelect = `SELECT id, employer_id, provider, email, display_name, access_token,
		refresh_token, token_expiry, needs_reconnect, created_at, updated_at FROM mail_accounts`
)

func scanEmployer(row scannable) (*model.Employer, error) {
	var e model.Employer
	if err := row.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func scanPlanYear(row scannable) (*model.PlanYear, error) {
	var p model.PlanYear
	var status string
	if err := row.Scan(&p.ID, &p.EmployerID, &p.StartDate, &p.EndDate, &status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Status = model.PlanYearStatus(status)
	p.StartDate = model.MidnightUTC(p.StartDate)
	p.EndDate = model.MidnightUTC(p.EndDate)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanEmployee(row scannable) (*model.Employee, error) {
	var e model.Employee
	err := row.Scan(
		&e.ID, &e.EmployerID, &e.Email, &e.FirstName, &e.LastName, &e.Token, &e.Eligible,
		&e.OptedOutAt, &e.FirstViewedAt, &e.InsuranceCarrier, &e.InsuranceAffirmedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.OptedOutAt = utcPtr(e.OptedOutAt)
	e.FirstViewedAt = utcPtr(e.FirstViewedAt)
	e.InsuranceAffirmedAt = utcPtr(e.InsuranceAffirmedAt)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func scanCompliance(row scannable) (*model.ComplianceRecord, error) {
	var c model.ComplianceRecord
	var status string
	err := row.Scan(
		&c.EmployeeID, &c.PlanYearID, &status, &c.Override, &c.LastLoginAt,
		&c.CompliantAt, &c.PortalURL, &c.LastReminderSentAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ComplianceStatus(status)
	c.LastLoginAt = utcPtr(c.LastLoginAt)
	c.CompliantAt = utcPtr(c.CompliantAt)
	c.LastReminderSentAt = utcPtr(c.LastReminderSentAt)
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func scanImportRun(row scannable) (*model.ImportRun, error) {
	var r model.ImportRun
	if err := row.Scan(&r.ID, &r.EmployerID, &r.PlanYearID, &r.FileName, &r.CreatedAt, &r.MemberCount); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func scanActivity(row scannable) (*model.ActivityEvent, error) {
	var ev model.ActivityEvent
	var kind string
	var detail []byte
	if err := row.Scan(&ev.ID, &ev.EmployerID, &ev.EmployeeID, &kind, &detail, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Kind = model.ActivityKind(kind)
	ev.CreatedAt = ev.CreatedAt.UTC()
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &ev.Detail); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal activity detail")
		}
	}
	return &ev, nil
}

func scanMailAccount(row scannable) (*model.MailAccount, error) {
	var a model.MailAccount
	var provider string
	err := row.Scan(
		&a.ID, &a.EmployerID, &provider, &a.Email, &a.DisplayName, &a.AccessToken,
		&a.RefreshToken, &a.TokenExpiry, &a.NeedsReconnect, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Provider = model.MailProvider(provider)
	a.TokenExpiry = utcPtr(a.TokenExpiry)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func scanComplianceRow(row scannable) (*model.ComplianceRow, error) {
	var r model.ComplianceRow
	var status string
	err := row.Scan(
		&r.EmployeeID, &r.Email, &r.FirstName, &r.LastName, &status, &r.Override,
		&r.LastLoginAt, &r.PortalURL, &r.LastReminderSentAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.ComplianceStatus(status)
	r.LastLoginAt = utcPtr(r.LastLoginAt)
	r.LastReminderSentAt = utcPtr(r.LastReminderSentAt)
	return &r, nil
}

func marshalDetail(detail map[string]any) ([]byte, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(detail)
	return b, eris.Wrap(err, "store: marshal activity detail")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func validatePlanYear(start, end time.Time) error {
	if model.MidnightUTC(start).After(model.MidnightUTC(end)) {
		return eris.Wrapf(ErrInvalidPlanYear, "store: %s after %s",
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return nil
}
