package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	employerName string

	planYearEmployer string
	planYearStart    string
	planYearEnd      string
	planYearID       string
)

var employerCmd = &cobra.Command{
	Use:   "employer",
	Short: "Manage employers",
}

var employerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an employer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name := strings.TrimSpace(employerName)
		if name == "" {
			return eris.New("employer name is required (--name)")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		emp, err := a.Store.CreateEmployer(ctx, name)
		if err != nil {
			return eris.Wrap(err, "create employer")
		}
		zap.L().Info("employer created", zap.String("id", emp.ID), zap.String("name", emp.Name))
		return printJSON(cmd.OutOrStdout(), emp)
	},
}

var employerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List employers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.Store.ListEmployers(ctx)
		if err != nil {
			return eris.Wrap(err, "list employers")
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var planYearCmd = &cobra.Command{
	Use:   "planyear",
	Short: "Manage plan years",
}

var planYearCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the active plan year of an employer, closing the previous one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, err := time.Parse(time.DateOnly, planYearStart)
		if err != nil {
			return eris.Wrap(err, "parse --start (YYYY-MM-DD)")
		}
		end, err := time.Parse(time.DateOnly, planYearEnd)
		if err != nil {
			return eris.Wrap(err, "parse --end (YYYY-MM-DD)")
		}
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Store.GetEmployer(ctx, planYearEmployer); err != nil {
			return eris.Wrapf(err, "employer %s", planYearEmployer)
		}
		py, err := a.Store.CreatePlanYear(ctx, planYearEmployer, start, end)
		if err != nil {
			return eris.Wrap(err, "create plan year")
		}
		zap.L().Info("plan year created", zap.String("id", py.ID), zap.String("employer_id", py.EmployerID))
		return printJSON(cmd.OutOrStdout(), py)
	},
}

var planYearCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a plan year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Store.ClosePlanYear(ctx, planYearID); err != nil {
			return eris.Wrap(err, "close plan year")
		}
		py, err := a.Store.GetPlanYear(ctx, planYearID)
		if err != nil {
			return eris.Wrap(err, "reload plan year")
		}
		return printJSON(cmd.OutOrStdout(), py)
	},
}

func init() {
	employerCreateCmd.Flags().StringVar(&employerName, "name", "", "employer name (required)")
	_ = employerCreateCmd.MarkFlagRequired("name")
	employerCmd.AddCommand(employerCreateCmd, employerListCmd)

	planYearCreateCmd.Flags().StringVar(&planYearEmployer, "employer", "", "employer id (required)")
	planYearCreateCmd.Flags().StringVar(&planYearStart, "start", "", "first day, YYYY-MM-DD (required)")
	planYearCreateCmd.Flags().StringVar(&planYearEnd, "end", "", "last day, YYYY-MM-DD (required)")
	for _, f := range []string{"employer", "start", "end"} {
		_ = planYearCreateCmd.MarkFlagRequired(f)
	}
	planYearCloseCmd.Flags().StringVar(&planYearID, "id", "", "plan year id (required)")
	_ = planYearCloseCmd.MarkFlagRequired("id")
	planYearCmd.AddCommand(planYearCreateCmd, planYearCloseCmd)

	rootCmd.AddCommand(employerCmd, planYearCmd)
}
