package compliance

import "github.com/sells-group/benefits-notice/internal/model"

// Reminders is the outcome of the reminder filter. MissingLinkCount counts
// noncompliant employees left out because the latest import gave them no
// portal URL; re-running the import fixes those, a send cannot.
type Reminders struct {
	Recipients       []model.ComplianceRow `json:"recipients"`
	MissingLinkCount int                   `json:"missing_link_count"`
}

// FilterReminders picks the employees a reminder may go to: noncompliant,
// not overridden, and holding a portal URL.
func FilterReminders(rows []model.ComplianceRow) Reminders {
	var out Reminders
	for _, r := range rows {
		if r.Status != model.StatusNoncompliant || r.Override {
			continue
		}
		if missingLink(r) {
			out.MissingLinkCount++
			continue
		}
		out.Recipients = append(out.Recipients, r)
	}
	return out
}

func missingLink(r model.ComplianceRow) bool {
	return r.Status == model.StatusNoncompliant && !r.Override && model.IsBlank(r.PortalURL)
}
