package model

import "time"

// ImportRun is the immutable audit record of one committed compliance
// import. Its members freeze the in-scope roster for that run.
type ImportRun struct {
	ID          string    `json:"id"`
	EmployerID  string    `json:"employer_id"`
	PlanYearID  string    `json:"plan_year_id"`
	FileName    string    `json:"file_name"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActivityKind names an employee engagement or system event.
type ActivityKind string

const (
	ActivityNoticeViewed       ActivityKind = "notice_viewed"
	ActivityOptedOut           ActivityKind = "opted_out"
	ActivityOptedIn            ActivityKind = "opted_in"
	ActivityInsuranceAffirmed  ActivityKind = "insurance_affirmed"
	ActivityNoticeSent         ActivityKind = "notice_sent"
	ActivityReminderSent       ActivityKind = "reminder_sent"
	ActivityComplianceOverride ActivityKind = "compliance_override"
)

// ActivityEvent is an append-only log entry attached to an employee.
type ActivityEvent struct {
	ID         string         `json:"id"`
	EmployerID string         `json:"employer_id"`
	EmployeeID string         `json:"employee_id"`
	Kind       ActivityKind   `json:"kind"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
