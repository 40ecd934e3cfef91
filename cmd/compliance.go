package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/benefits-notice/internal/compliance"
	"github.com/sells-group/benefits-notice/internal/roster"
)

var (
	importEmployer string
	importFile     string
	importDryRun   bool
	importPlanYear string

	exportOut string

	remindPreview bool
	noticePreview bool
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Employee roster commands",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an employee roster (CSV or XLSX)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrap(err, "read roster file")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := roster.NewImporter(a.Store, cfg.Import.BatchSize).
			Import(ctx, importEmployer, filepath.Base(importFile), data, importDryRun)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Vendor-portal compliance commands",
}

var complianceImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Reconcile a vendor-portal login report into the plan year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("import"); err != nil {
			return err
		}
		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrap(err, "read report file")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.Engine.Import(ctx, compliance.Request{
			EmployerID: importEmployer,
			PlanYearID: importPlanYear,
			FileName:   filepath.Base(importFile),
			Data:       data,
			DryRun:     importDryRun,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

var complianceTableCmd = &cobra.Command{
	Use:   "table",
	Short: "Show the compliance table of the latest import run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tbl, err := a.Engine.Table(ctx, importEmployer, importPlanYear)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tbl)
	},
}

var complianceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the compliance table to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tbl, err := a.Engine.Table(ctx, importEmployer, importPlanYear)
		if err != nil {
			return err
		}
		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "create export file")
		}
		if err := compliance.ExportXLSX(f, tbl); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "close export file")
		}
		zap.L().Info("compliance exported",
			zap.String("out", exportOut),
			zap.Int("rows", len(tbl.Rows)),
		)
		return nil
	},
}

var complianceRemindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Mail login reminders to noncompliant employees",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("send"); err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mailer, err := a.mailer()
		if err != nil {
			return err
		}
		rep, err := mailer.SendReminders(ctx, importEmployer, importPlanYear, remindPreview)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "Benefits notice commands",
}

var noticesSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Mail the benefits notice link to eligible employees",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("send"); err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		mailer, err := a.mailer()
		if err != nil {
			return err
		}
		rep, err := mailer.SendNotices(ctx, importEmployer, noticePreview)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

func employerFlag(c *cobra.Command) {
	c.Flags().StringVar(&importEmployer, "employer", "", "employer id (required)")
	_ = c.MarkFlagRequired("employer")
}

func planYearFlag(c *cobra.Command) {
	c.Flags().StringVar(&importPlanYear, "plan-year", "", "plan year id (default: the active plan year)")
}

func init() {
	for _, c := range []*cobra.Command{rosterImportCmd, complianceImportCmd} {
		employerFlag(c)
		c.Flags().StringVar(&importFile, "file", "", "path to CSV or XLSX file (required)")
		c.Flags().BoolVar(&importDryRun, "dry-run", false, "report counts without writing")
		_ = c.MarkFlagRequired("file")
	}
	for _, c := range []*cobra.Command{complianceImportCmd, complianceTableCmd, complianceExportCmd, complianceRemindCmd} {
		planYearFlag(c)
	}
	for _, c := range []*cobra.Command{complianceTableCmd, complianceExportCmd, complianceRemindCmd, noticesSendCmd} {
		employerFlag(c)
	}
	complianceExportCmd.Flags().StringVar(&exportOut, "out", "compliance.xlsx", "output path")
	complianceRemindCmd.Flags().BoolVar(&remindPreview, "preview", false, "list recipients without sending")
	noticesSendCmd.Flags().BoolVar(&noticePreview, "preview", false, "list recipients without sending")

	rosterCmd.AddCommand(rosterImportCmd)
	complianceCmd.AddCommand(complianceImportCmd, complianceTableCmd, complianceExportCmd, complianceRemindCmd)
	noticesCmd.AddCommand(noticesSendCmd)
	rootCmd.AddCommand(rosterCmd, complianceCmd, noticesCmd)
}
