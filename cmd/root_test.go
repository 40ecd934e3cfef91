package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/config"
	"github.com/sells-group/benefits-notice/internal/model"
	"github.com/sells-group/benefits-notice/internal/notify"
	"github.com/sells-group/benefits-notice/internal/roster"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "employer", "planyear", "roster", "compliance", "notices"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "benefits-notice", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestComplianceCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range complianceCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"import", "table", "export", "remind"} {
		assert.True(t, names[name], "compliance should have subcommand %q", name)
	}
}

func TestCommandFlags(t *testing.T) {
	for _, tc := range []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{complianceImportCmd, []string{"employer", "file", "dry-run", "plan-year"}},
		{complianceExportCmd, []string{"employer", "out", "plan-year"}},
		{complianceRemindCmd, []string{"employer", "preview", "plan-year"}},
		{rosterImportCmd, []string{"employer", "file", "dry-run"}},
		{noticesSendCmd, []string{"employer", "preview"}},
		{planYearCreateCmd, []string{"employer", "start", "end"}},
		{serveCmd, []string{"port"}},
	} {
		for _, f := range tc.flags {
			assert.NotNil(t, tc.cmd.Flags().Lookup(f), "%s should have --%s", tc.cmd.Name(), f)
		}
	}
	assert.Equal(t, "0", serveCmd.Flags().Lookup("port").DefValue)
}

// useSQLite points the commands at a fresh on-disk database.
func useSQLite(t *testing.T) {
	t.Helper()
	cfg = &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "cli.db")},
		Import: config.ImportConfig{BatchSize: 10},
		Mail: config.MailConfig{
			AdminSenderEmail: "admin@benefits.example",
			AppBaseURL:       "https://benefits.example",
			Concurrency:      1,
		},
	}
}

func run(t *testing.T, c *cobra.Command) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	c.SetOut(&out)
	c.SetContext(context.Background())
	t.Cleanup(func() { c.SetOut(nil) })
	require.NoError(t, c.RunE(c, nil))
	return &out
}

func TestCLI_EndToEnd(t *testing.T) {
	useSQLite(t)
	run(t, migrateCmd)

	employerName = "Acme"
	var emp model.Employer
	require.NoError(t, json.Unmarshal(run(t, employerCreateCmd).Bytes(), &emp))
	require.NotEmpty(t, emp.ID)

	planYearEmployer, planYearStart, planYearEnd = emp.ID, "2026-01-01", "2026-12-31"
	var py model.PlanYear
	require.NoError(t, json.Unmarshal(run(t, planYearCreateCmd).Bytes(), &py))
	assert.Equal(t, model.PlanYearActive, py.Status)

	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.csv")
	require.NoError(t, os.WriteFile(rosterPath, []byte("Email,First Name,Last Name\nana@co.com,Ana,Lopez\n"), 0o600))
	importEmployer, importFile, importDryRun, importPlanYear = emp.ID, rosterPath, false, ""
	var res roster.Result
	require.NoError(t, json.Unmarshal(run(t, rosterImportCmd).Bytes(), &res))
	assert.Equal(t, 1, res.Created)

	reportPath := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(reportPath, []byte("EMAIL,LAST LOGIN,INVITATION URL\nana@co.com,,https://portal/ana\n"), 0o600))
	importFile = reportPath
	var counts compliance.Counts
	require.NoError(t, json.Unmarshal(run(t, complianceImportCmd).Bytes(), &counts))
	assert.Equal(t, 1, counts.NoncompliantSet)
	assert.Equal(t, 1, counts.MatchedEmployees)

	var tbl compliance.Table
	require.NoError(t, json.Unmarshal(run(t, complianceTableCmd).Bytes(), &tbl))
	require.Len(t, tbl.Rows, 1)

	exportOut = filepath.Join(dir, "out.xlsx")
	run(t, complianceExportCmd)
	info, err := os.Stat(exportOut)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	remindPreview = true
	t.Cleanup(func() { remindPreview = false })
	var rep notify.Report
	require.NoError(t, json.Unmarshal(run(t, complianceRemindCmd).Bytes(), &rep))
	assert.True(t, rep.Preview)
	require.Len(t, rep.Recipients, 1)

	var list []model.Employer
	require.NoError(t, json.Unmarshal(run(t, employerListCmd).Bytes(), &list))
	assert.Len(t, list, 1)

	planYearID = py.ID
	var closed model.PlanYear
	require.NoError(t, json.Unmarshal(run(t, planYearCloseCmd).Bytes(), &closed))
	assert.Equal(t, model.PlanYearClosed, closed.Status)
}

func TestCLI_Errors(t *testing.T) {
	useSQLite(t)
	run(t, migrateCmd)

	employerName = "   "
	assert.Error(t, employerCreateCmd.RunE(employerCreateCmd, nil))

	planYearStart, planYearEnd = "01/01/2026", "2026-12-31"
	assert.ErrorContains(t, planYearCreateCmd.RunE(planYearCreateCmd, nil), "--start")

	importEmployer, importFile = "missing", filepath.Join(t.TempDir(), "none.csv")
	complianceImportCmd.SetContext(context.Background())
	assert.ErrorContains(t, complianceImportCmd.RunE(complianceImportCmd, nil), "read report file")

	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, migrateCmd.RunE(migrateCmd, nil), "unsupported store driver")

	cfg.Store.Driver = "sqlite"
	cfg.Mail.AppBaseURL = ""
	assert.ErrorContains(t, noticesSendCmd.RunE(noticesSendCmd, nil), "app_base_url")
}
