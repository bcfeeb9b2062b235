package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pharmapos/backend/internal/report"
	"pharmapos/backend/internal/service"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export cash records as xlsx workbooks",
	}

	daily := &cobra.Command{
		Use:     "daily",
		Short:   "Export one row per day between --from and --to",
		Example: `  pharmactl export daily --from 2024-03-01 --to 2024-03-31 --out march.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			out, _ := cmd.Flags().GetString("out")
			return runExport(cmd.Context(), out, func(ctx context.Context, svc *service.Service, w io.Writer) error {
				return exportDaily(ctx, svc, from, to, w)
			})
		},
	}
	daily.Flags().String("from", "", "First day (YYYY-MM-DD, default: today)")
	daily.Flags().String("to", "", "Last day (YYYY-MM-DD, default: --from)")
	daily.Flags().String("out", "daily-records.xlsx", "Output file")

	monthly := &cobra.Command{
		Use:     "monthly",
		Short:   "Export one row per month of --year",
		Example: `  pharmactl export monthly --year 2024 --days --out 2024.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			year, _ := cmd.Flags().GetInt("year")
			withDays, _ := cmd.Flags().GetBool("days")
			out, _ := cmd.Flags().GetString("out")
			return runExport(cmd.Context(), out, func(ctx context.Context, svc *service.Service, w io.Writer) error {
				return exportMonthly(ctx, svc, year, withDays, w)
			})
		},
	}
	monthly.Flags().Int("year", time.Now().Year(), "Calendar year")
	monthly.Flags().Bool("days", false, "Add a sheet per month with its daily rows")
	monthly.Flags().String("out", "monthly-records.xlsx", "Output file")

	cmd.AddCommand(daily, monthly)
	return cmd
}

func runExport(ctx context.Context, out string, write func(ctx context.Context, svc *service.Service, w io.Writer) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, _, closeFn, err := openService(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := write(service.WithActor(ctx, cliActor), svc, f); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return err
	}
	return f.Close()
}

func exportDaily(ctx context.Context, svc *service.Service, from string, to string, w io.Writer) error {
	records, err := svc.DailyRecords(ctx, from, to)
	if err != nil {
		return fmt.Errorf("load daily records: %w", err)
	}
	return report.WriteDaily(w, records)
}

func exportMonthly(ctx context.Context, svc *service.Service, year int, withDays bool, w io.Writer) error {
	months, err := svc.MonthlyRecords(ctx, year)
	if err != nil {
		return fmt.Errorf("load monthly records: %w", err)
	}
	return report.WriteMonthly(w, months, withDays)
}
