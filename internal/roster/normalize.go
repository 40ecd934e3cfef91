// Package roster turns raw spreadsheet rows into canonical employee facts
// and imports employee rosters.
package roster

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/sheet"
)

// Column aliases, checked in priority order and case-insensitively.
var (
	EmailColumns = []string{
		"EMAIL", "Email Address", "E-mail", "Work Email", "Employee Email",
		"Email_Address", "EmailAddress", "User Email",
	}
	FirstNameColumns = []string{
		"FIRST NAME", "First_Name", "FirstName", "First", "Given Name",
		"Employee First Name",
	}
	LastNameColumns = []string{
		"LAST NAME", "Last_Name", "LastName", "Last", "Surname", "Family Name",
		"Employee Last Name",
	}
	FullNameColumns = []string{
		"NAME", "Full Name", "Employee Name", "Employee", "Member Name",
	}
	LoginDateColumns = []string{
		"LAST LOGIN", "Last Login Date", "Last_Login", "LastLogin",
		"Last Login At", "Login Date", "Last Activity", "Last Accessed",
	}
	PortalURLColumns = []string{
		"INVITATION URL", "Invitation Link", "Portal Link", "Portal URL",
		"Attentive Link", "Attentive URL", "Enrollment Link", "Link", "URL",
	}
	EligibleColumns = []string{
		"ELIGIBLE", "Eligibility", "Is Eligible", "Benefits Eligible",
	}
)

// Normalized is the canonical tuple extracted from one row.
type Normalized struct {
	Email     string
	FirstName *string
	LastName  *string
	// HasName is set when the row itself carried any name data.
	HasName   bool
	LoginDate *time.Time
	PortalURL *string
	// Eligible is nil when the row has no eligibility column.
	Eligible *bool
}

// Normalize extracts the canonical fields from row. An empty Email means
// the row is unusable.
func Normalize(row sheet.Row) Normalized {
	n := Normalized{
		Email:     NormalizeEmail(row.LookupString(EmailColumns...)),
		PortalURL: model.StringPtr(row.LookupString(PortalURLColumns...)),
	}

	first := row.LookupString(FirstNameColumns...)
	last := row.LookupString(LastNameColumns...)
	if first == "" && last == "" {
		first, last = SplitFullName(row.LookupString(FullNameColumns...))
	}
	n.FirstName = model.StringPtr(first)
	n.LastName = model.StringPtr(last)
	n.HasName = n.FirstName != nil || n.LastName != nil

	if v, ok := row.Lookup(LoginDateColumns...); ok {
		if t, ok := ParseLoginDate(v); ok {
			n.LoginDate = &t
		}
	}

	if s := row.LookupString(EligibleColumns...); s != "" {
		if b, ok := parseBool(s); ok {
			n.Eligible = &b
		}
	}

	return n
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SplitFullName splits on whitespace: the first token is the first name,
// the remaining tokens joined by single spaces are the last name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// NameFromEmail guesses a capitalized name from the local part of an
// address by splitting on '.', '_', '-' and '+'. Both results are nil when
// the first token is purely numeric or the local part is empty.
func NameFromEmail(email string) (first, last *string) {
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(tokens) == 0 || isDigits(tokens[0]) {
		return nil, nil
	}

	caser := cases.Title(language.English)
	for i, tok := range tokens {
		tokens[i] = caser.String(tok)
	}
	first = model.StringPtr(tokens[0])
	if len(tokens) > 1 {
		last = model.StringPtr(strings.Join(tokens[1:], " "))
	}
	return first, last
}

// BestName resolves the names to write for an employee: names present in
// the row win, then the email-derived guess when the row carried no name
// data at all.
func (n Normalized) BestName() (first, last *string) {
	if n.HasName {
		return n.FirstName, n.LastName
	}
	return NameFromEmail(n.Email)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "1", "eligible":
		return true, true
	case "n", "no", "false", "0", "ineligible", "not eligible":
		return false, true
	}
	return false, false
}
