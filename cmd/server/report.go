package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"tempo-backend/internal/config"
	"tempo-backend/internal/productivity"
	"tempo-backend/internal/repository"
	"tempo-backend/internal/services"
)

type reportService interface {
	Daily(ctx context.Context, userID int64, start, end string) (*productivity.DailyReport, error)
	Weekly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error)
	Monthly(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, error)
	Report(ctx context.Context, userID int64, start, end string) (*productivity.PeriodReport, productivity.Series, error)
}

var (
	reportUser   int64
	reportStart  string
	reportEnd    string
	reportView   string
	reportFormat string
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a user's productivity report",
		Long: `Print a productivity report straight from the database, bypassing the cache.

Examples:
  tempo report --user 42
  tempo report --user 42 --view weekly --start 2026-03-01 --end 2026-03-07
  tempo report --user 42 --format csv > march.csv`,
		RunE: runReport,
	}

	cmd.Flags().Int64VarP(&reportUser, "user", "u", 0, "user id (required)")
	cmd.Flags().StringVar(&reportStart, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&reportEnd, "end", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&reportView, "view", "report", "daily, weekly, monthly or report")
	cmd.Flags().StringVarP(&reportFormat, "format", "f", "json", "json or csv (csv only for the report view)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportFormat != "json" && reportFormat != "csv" {
		return fmt.Errorf("unknown format %q", reportFormat)
	}
	if reportFormat == "csv" && reportView != "report" {
		return fmt.Errorf("csv output is only available for the report view")
	}

	cfg := config.Load()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := openPostgres(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := services.NewProductivityService(
		repository.NewProductivityRepo(pool),
		repository.NewItemRepo(pool),
		repository.NewSessionRepo(pool),
		nil,
		loc,
	)

	return writeReport(cmd.Context(), cmd.OutOrStdout(), svc, reportUser, reportView, reportFormat, reportStart, reportEnd)
}

func writeReport(ctx context.Context, out io.Writer, svc reportService, userID int64, view, format, start, end string) error {
	var (
		data interface{}
		err  error
	)

	switch view {
	case "daily":
		data, err = svc.Daily(ctx, userID, start, end)
	case "weekly":
		data, err = svc.Weekly(ctx, userID, start, end)
	case "monthly":
		data, err = svc.Monthly(ctx, userID, start, end)
	case "report":
		var series productivity.Series
		data, series, err = svc.Report(ctx, userID, start, end)
		if err == nil && format == "csv" {
			return productivity.WriteCSV(out, series)
		}
	default:
		return fmt.Errorf("unknown view %q", view)
	}
	if err != nil {
		return describe(err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// describe flattens validation field errors into one line for the terminal.
func describe(err error) error {
	var verr *services.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	parts := make([]string, 0, len(verr.Fields))
	for field, msg := range verr.Fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return fmt.Errorf("invalid arguments: %s", strings.Join(parts, "; "))
}
