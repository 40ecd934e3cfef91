package model

import "time"

// ComplianceStatus is the per-plan-year login compliance state of an
// employee.
type ComplianceStatus string

const (
	StatusCompliant    ComplianceStatus = "compliant"
	StatusNoncompliant ComplianceStatus = "noncompliant"
	StatusOptedOut     ComplianceStatus = "opted_out"
)

// Valid reports whether s is one of the known statuses.
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNoncompliant, StatusOptedOut:
		return true
	}
	return false
}

// ComplianceRecord is the stored state for one (employee, plan year) pair.
// When Override is true the status was set by hand and imports only refresh
// LastLoginAt and PortalURL.
type ComplianceRecord struct {
	EmployeeID         string           `json:"employee_id"`
	PlanYearID         string           `json:"plan_year_id"`
	Status             ComplianceStatus `json:"status"`
	Override           bool             `json:"override"`
	LastLoginAt        *time.Time       `json:"last_login_at,omitempty"`
	CompliantAt        *time.Time       `json:"compliant_at,omitempty"`
	PortalURL          *string          `json:"portal_url,omitempty"`
	LastReminderSentAt *time.Time       `json:"last_reminder_sent_at,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// ComplianceUpsert is one row of a compliance batch upsert keyed by
// (employee_id, plan_year_id). Regular rows overwrite login and portal URL,
// nil included. OverrideOnly rows refresh the login timestamp and portal
// URL only when set; Status is used solely if the row has to be inserted.
type ComplianceUpsert struct {
	EmployeeID   string
	PlanYearID   string
	Status       ComplianceStatus
	LastLoginAt  *time.Time
	CompliantAt  *time.Time
	PortalURL    *string
	OverrideOnly bool
	UpdatedAt    time.Time
}

// ComplianceRow is one line of the compliance table: an import run member
// joined with its employee and compliance record.
type ComplianceRow struct {
	EmployeeID         string           `json:"employee_id"`
	Email              string           `json:"email"`
	FirstName          *string          `json:"first_name,omitempty"`
	LastName           *string          `json:"last_name,omitempty"`
	Status             ComplianceStatus `json:"status"`
	Override           bool             `json:"override"`
	LastLoginAt        *time.Time       `json:"last_login_at,omitempty"`
	PortalURL          *string          `json:"portal_url,omitempty"`
	LastReminderSentAt *time.Time       `json:"last_reminder_sent_at,omitempty"`
}

// Name returns "First Last" from whichever names are present.
func (r ComplianceRow) Name() string {
	e := Employee{Email: r.Email, FirstName: r.FirstName, LastName: r.LastName}
	return e.DisplayName()
}
