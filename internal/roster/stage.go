package roster

import (
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/sheet"
)

// Rows is a spreadsheet normalized for import. All keeps every row that has
// an email in sheet order; Unique keeps the first row per email.
type Rows struct {
	All            []Normalized
	Unique         []Normalized
	SkippedNoEmail int
}

// Emails returns the unique emails in first-seen order.
func (r Rows) Emails() []string {
	out := make([]string, len(r.Unique))
	for i, n := range r.Unique {
		out[i] = n.Email
	}
	return out
}

// NormalizeRows normalizes and deduplicates rows by email.
func NormalizeRows(rows []sheet.Row) Rows {
	var out Rows
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		n := Normalize(row)
		if n.Email == "" {
			out.SkippedNoEmail++
			continue
		}
		out.All = append(out.All, n)
		if _, ok := seen[n.Email]; ok {
			continue
		}
		seen[n.Email] = struct{}{}
		out.Unique = append(out.Unique, n)
	}
	return out
}

// Staged is the set of employee writes an import needs.
type Staged struct {
	Upserts   []model.EmployeeUpsert
	Created   int
	Updated   int
	Unchanged int
}

// StageEmployees decides the employee writes for unique rows against the
// existing roster. New employees get a fresh id and token; existing ones
// only get blank names filled. With useEligible the file's eligibility
// column decides the flag when present; otherwise new employees are
// eligible and existing flags are left alone.
func StageEmployees(employerID string, unique []Normalized, existing map[string]model.Employee, useEligible bool) Staged {
	var st Staged
	for _, n := range unique {
		first, last := n.BestName()
		var eligible *bool
		if useEligible {
			eligible = n.Eligible
		}

		cur, ok := existing[n.Email]
		if !ok {
			u := model.EmployeeUpsert{
				ID:         model.NewID(),
				EmployerID: employerID,
				Email:      n.Email,
				FirstName:  first,
				LastName:   last,
				Eligible:   true,
				Token:      model.NewToken(),
			}
			if eligible != nil {
				u.Eligible = *eligible
			}
			st.Upserts = append(st.Upserts, u)
			st.Created++
			continue
		}

		u, changed := fillExisting(cur, first, last, eligible)
		if !changed {
			st.Unchanged++
			continue
		}
		st.Upserts = append(st.Upserts, u)
		st.Updated++
	}
	return st
}

// fillExisting stages the update for an existing employee: blank names take
// the incoming value and eligibility follows the file when the column is
// present. The store keeps non-blank names regardless.
func fillExisting(cur model.Employee, first, last *string, eligible *bool) (model.EmployeeUpsert, bool) {
	u := model.EmployeeUpsert{
		ID:         cur.ID,
		EmployerID: cur.EmployerID,
		Email:      cur.Email,
		Eligible:   cur.Eligible,
		Token:      cur.Token,
	}
	var changed bool
	if !cur.HasFirstName() && first != nil {
		u.FirstName = first
		changed = true
	}
	if !cur.HasLastName() && last != nil {
		u.LastName = last
		changed = true
	}
	if eligible != nil && *eligible != cur.Eligible {
		u.Eligible = *eligible
		changed = true
	}
	return u, changed
}
