package compliance

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/benefits-notice/internal/model"
)

func row(email string, status model.ComplianceStatus, override bool, portal string) model.ComplianceRow {
	return model.ComplianceRow{
		EmployeeID: email,
		Email:      email,
		Status:     status,
		Override:   override,
		PortalURL:  model.StringPtr(portal),
	}
}

func TestFilterReminders(t *testing.T) {
	rows := []model.ComplianceRow{
		row("a@co.com", model.StatusNoncompliant, false, "https://p/a"),
		row("b@co.com", model.StatusNoncompliant, false, ""),
		row("c@co.com", model.StatusCompliant, false, ""),
		row("d@co.com", model.StatusCompliant, false, "https://p/d"),
		row("e@co.com", model.StatusNoncompliant, true, "https://p/e"),
		row("f@co.com", model.StatusOptedOut, false, "https://p/f"),
		row("g@co.com", model.StatusNoncompliant, false, "   "),
	}

	got := FilterReminders(rows)
	require.Len(t, got.Recipients, 1)
	assert.Equal(t, "a@co.com", got.Recipients[0].Email)
	assert.Equal(t, 2, got.MissingLinkCount)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]model.ComplianceRow{
		row("a@co.com", model.StatusCompliant, false, "x"),
		row("b@co.com", model.StatusCompliant, true, "x"),
		row("c@co.com", model.StatusNoncompliant, false, ""),
		row("d@co.com", model.StatusOptedOut, false, ""),
		{Email: "e@co.com"},
		row("f@co.com", model.StatusNoncompliant, false, "x"),
	})
	assert.Equal(t, Summary{
		InScope:      6,
		Compliant:    2,
		Noncompliant: 3,
		OptedOut:     1,
		Overridden:   1,
		MissingLink:  1,
		Percent:      33.3,
	}, s)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestTable_LatestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.eng.Table(ctx, f.employer.ID, "")
	assert.True(t, errors.Is(err, ErrNoImportRun))

	f.run(t, report, false)
	second := f.run(t, "EMAIL,LAST LOGIN,URL\nana@co.com,2026-04-01,https://portal/ana\n", false)

	tbl, err := f.eng.Table(ctx, f.employer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, tbl.Run.ID)
	assert.Equal(t, 1, tbl.Run.MemberCount)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "ana@co.com", tbl.Rows[0].Email)
	assert.Equal(t, model.StatusCompliant, tbl.Rows[0].Status)
	assert.Equal(t, 100.0, tbl.Summary.Percent)

	runs, err := f.eng.Runs(ctx, f.employer.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)
}

func TestSetOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	emp := f.seedEmployee(t, "ana@co.com", "Ana")

	assert.True(t, errors.Is(f.eng.SetOverride(ctx, emp.ID, "", true, "bogus"), ErrInvalidStatus))

	require.NoError(t, f.eng.SetOverride(ctx, emp.ID, "", true, model.StatusCompliant))
	rec := f.compliance(t, emp.ID)
	assert.True(t, rec.Override)
	assert.Equal(t, model.StatusCompliant, rec.Status)

	counts := f.run(t, "EMAIL\nana@co.com\n", false)
	assert.Equal(t, 1, counts.SkippedOverride)
	assert.Equal(t, model.StatusCompliant, f.compliance(t, emp.ID).Status)

	require.NoError(t, f.eng.SetOverride(ctx, emp.ID, f.py.ID, false, model.StatusNoncompliant))
	f.run(t, "EMAIL,LAST LOGIN\nana@co.com,2026-05-05\n", false)
	assert.Equal(t, model.StatusCompliant, f.compliance(t, emp.ID).Status)

	events, err := f.st.ListActivity(ctx, emp.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.ActivityComplianceOverride, events[0].Kind)
	assert.Equal(t, false, events[0].Detail["override"])
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t)
	f.run(t, report, false)
	tbl, err := f.eng.Table(context.Background(), f.employer.ID, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, tbl))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close() //nolint:errcheck

	rows, err := wb.GetRows(tableSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Email", rows[0][0])
	assert.Equal(t, "ana@co.com", rows[1][0])
	assert.Equal(t, "compliant", rows[1][3])
	assert.Equal(t, "2026-03-15", rows[1][5])

	summary, err := wb.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"In Scope", "3"}, summary[3])
	assert.Equal(t, []string{"Compliant", "1"}, summary[4])
}
