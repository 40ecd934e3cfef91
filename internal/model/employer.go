// Package model defines the domain types shared by the store, the
// reconciliation engine, the notice flows and the mail dispatcher.
package model

import "time"

// Employer is a company that uploads rosters and compliance reports.
type Employer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PlanYearStatus is the lifecycle state of a plan year.
type PlanYearStatus string

const (
	PlanYearActive PlanYearStatus = "active"
	PlanYearClosed PlanYearStatus = "closed"
)

// PlanYear is the employer-scoped date window against which vendor-portal
// login compliance is measured. Dates are calendar days; StartDate and
// EndDate carry midnight UTC.
type PlanYear struct {
	ID         string         `json:"id"`
	EmployerID string         `json:"employer_id"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    time.Time      `json:"end_date"`
	Status     PlanYearStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// WindowStart returns the first instant of the plan year (00:00:00 UTC).
func (p PlanYear) WindowStart() time.Time {
	return MidnightUTC(p.StartDate)
}

// WindowEnd returns the last second of the plan year (23:59:59 UTC).
func (p PlanYear) WindowEnd() time.Time {
	return MidnightUTC(p.EndDate).Add(24*time.Hour - time.Second)
}

// Contains reports whether t falls inside the plan year, inclusive on both
// ends.
func (p PlanYear) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.WindowStart()) && !t.After(p.WindowEnd())
}

// MidnightUTC truncates t to the start of its calendar day in UTC.
func MidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
