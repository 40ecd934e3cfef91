package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Employee is the identity anchor for one person at one employer. Email is
// unique per employer and always stored trimmed and lowercased.
type Employee struct {
	ID                  string     `json:"id"`
	EmployerID          string     `json:"employer_id"`
	Email               string     `json:"email"`
	FirstName           *string    `json:"first_name,omitempty"`
	LastName            *string    `json:"last_name,omitempty"`
	Token               string     `json:"-"`
	Eligible            bool       `json:"eligible"`
	OptedOutAt          *time.Time `json:"opted_out_at,omitempty"`
	FirstViewedAt       *time.Time `json:"first_viewed_at,omitempty"`
	InsuranceCarrier    *string    `json:"insurance_carrier,omitempty"`
	InsuranceAffirmedAt *time.Time `json:"insurance_affirmed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasFirstName reports whether a non-blank first name is stored.
func (e Employee) HasFirstName() bool { return !IsBlank(e.FirstName) }

// HasLastName reports whether a non-blank last name is stored.
func (e Employee) HasLastName() bool { return !IsBlank(e.LastName) }

// DisplayName joins the stored names, falling back to the email.
func (e Employee) DisplayName() string {
	var parts []string
	if e.HasFirstName() {
		parts = append(parts, strings.TrimSpace(*e.FirstName))
	}
	if e.HasLastName() {
		parts = append(parts, strings.TrimSpace(*e.LastName))
	}
	if len(parts) == 0 {
		return e.Email
	}
	return strings.Join(parts, " ")
}

// EmployeeUpsert is one row of an employee batch upsert keyed by
// (employer_id, email). Names only fill stored values that are null or
// blank; ID and Token only apply when the row is created.
type EmployeeUpsert struct {
	ID         string
	EmployerID string
	Email      string
	FirstName  *string
	LastName   *string
	Eligible   bool
	Token      string
}

// InsuranceAffirmation is an employee's answer to the insurance question on
// the notice page.
type InsuranceAffirmation struct {
	HasCoverage bool
	Carrier     string
	At          time.Time
}

// IsBlank reports whether s is nil or only whitespace.
func IsBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s or the empty string.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewID returns a fresh row identifier.
func NewID() string { return uuid.NewString() }

// NewToken returns an opaque notice token: 32 lowercase hex characters.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
