package compliance

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/benefits-notice/internal/model"
)

const (
	tableSheet   = "Compliance"
	summarySheet = "Summary"
)

var tableHeader = []any{
	"Email", "First Name", "Last Name", "Status", "Override",
	"Last Login", "Portal URL", "Last Reminder Sent",
}

// ExportXLSX writes the table as a workbook with a row per member and a
// summary sheet.
func ExportXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", tableSheet); err != nil {
		return eris.Wrap(err, "compliance: rename sheet")
	}
	if err := f.SetSheetRow(tableSheet, "A1", &tableHeader); err != nil {
		return eris.Wrap(err, "compliance: write header")
	}
	for i, r := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return eris.Wrap(err, "compliance: cell name")
		}
		values := []any{
			r.Email,
			model.Deref(r.FirstName),
			model.Deref(r.LastName),
			string(r.Status),
			r.Override,
			formatDate(r.LastLoginAt),
			model.Deref(r.PortalURL),
			formatDate(r.LastReminderSentAt),
		}
		if err := f.SetSheetRow(tableSheet, cell, &values); err != nil {
			return eris.Wrapf(err, "compliance: write row %d", i)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return eris.Wrap(err, "compliance: add summary sheet")
	}
	s := t.Summary
	summary := [][]any{
		{"Plan Year", t.PlanYear.StartDate.Format(time.DateOnly) + " to " + t.PlanYear.EndDate.Format(time.DateOnly)},
		{"Import Run", t.Run.ID},
		{"File", t.Run.FileName},
		{"In Scope", s.InScope},
		{"Compliant", s.Compliant},
		{"Noncompliant", s.Noncompliant},
		{"Opted Out", s.OptedOut},
		{"Overridden", s.Overridden},
		{"Missing Link", s.MissingLink},
		{"Percent Compliant", s.Percent},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return eris.Wrap(err, "compliance: cell name")
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return eris.Wrapf(err, "compliance: write summary row %d", i)
		}
	}

	return eris.Wrap(f.Write(w), "compliance: write workbook")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
