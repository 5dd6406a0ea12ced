package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/warp/payroll-sync/generic"
	"github.com/warp/payroll-sync/payrun"
	"github.com/warp/payroll-sync/reconcile"
)

var (
	periodStart string
	periodEnd   string

	previewCSV bool

	syncDryRun            bool
	syncSkipLeave         bool
	syncBlockOnUnresolved bool

	importSource string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Compute a pay run without writing anything",
	Args:  cobra.NoArgs,
	RunE:  runPreview,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write a pay run's timesheets and leave to the payroll system",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Store raw time-entry payloads (JSON array, envelope or object)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	for _, c := range []*cobra.Command{previewCmd, syncCmd} {
		c.Flags().StringVar(&periodStart, "start", "", "Period start (YYYY-MM-DD); default is the current calendar period")
		c.Flags().StringVar(&periodEnd, "end", "", "Period end (YYYY-MM-DD)")
	}
	previewCmd.Flags().BoolVar(&previewCSV, "csv", false, "Print pay lines as CSV")

	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Decide without writing")
	syncCmd.Flags().BoolVar(&syncSkipLeave, "skip-leave", false, "Do not write leave applications")
	syncCmd.Flags().BoolVar(&syncBlockOnUnresolved, "block-on-unresolved", false,
		"Write nothing when an employee name or category did not resolve")

	importCmd.Flags().StringVar(&importSource, "source", "file", "Source label stored with each entry")
}

// resolvePeriod parses --start/--end, or asks the payroll calendars when
// both are empty.
func resolvePeriod(ctx context.Context, svc *payrun.Service) (generic.Period, error) {
	if periodStart == "" && periodEnd == "" {
		return svc.CurrentPeriod(ctx, generic.Today())
	}
	if periodStart == "" || periodEnd == "" {
		return generic.Period{}, fmt.Errorf("%w: --start and --end go together", generic.ErrInvalidPeriod)
	}
	start, err := generic.ParseDate(periodStart)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: --start: %v", generic.ErrInvalidPeriod, err)
	}
	end, err := generic.ParseDate(periodEnd)
	if err != nil {
		return generic.Period{}, fmt.Errorf("%w: --end: %v", generic.ErrInvalidPeriod, err)
	}
	return generic.NewPeriod(start, end)
}

func runPreview(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequirePayroll(); err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	period, err := resolvePeriod(ctx, a.service)
	if err != nil {
		return err
	}
	preview, err := a.service.Preview(ctx, period)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if previewCSV {
		return payrun.WriteLinesCSV(out, preview.Lines)
	}
	return printJSON(out, preview)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if err := cfg.RequirePayroll(); err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	period, err := resolvePeriod(ctx, a.service)
	if err != nil {
		return err
	}
	result, err := a.service.Sync(ctx, period, payrun.SyncOptions{
		DryRun:            syncDryRun,
		SkipLeave:         syncSkipLeave,
		BlockOnUnresolved: syncBlockOnUnresolved,
	})
	if err != nil {
		return err
	}

	printSyncResult(cmd.OutOrStdout(), result)
	if result.Blocked {
		return errors.New("sync blocked: unresolved employee names or categories (see warnings)")
	}
	return nil
}

func runImport(cmd *cobra.Command, files []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		res, err := a.store.ImportJSON(ctx, importSource, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(out, "%s: stored %d, skipped %d\n", filepath.Base(path), res.Stored, res.Skipped)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSyncResult(w io.Writer, result *payrun.SyncResult) {
	p := result.Preview
	mode := ""
	if result.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Run %s for %s%s\n", result.RunID, p.Period, mode)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMPLOYEE\tSTATUS\tNOTE")
	for _, d := range result.Decisions {
		name := d.EmployeeName
		if name == "" {
			name = d.EmployeeID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, d.Status, d.Note)
	}
	for _, d := range result.Leave {
		fmt.Fprintf(tw, "%s\tLEAVE %s\t%s %s\n", d.Draft.EmployeeName, d.Status, d.Draft.Label, d.Note)
	}
	tw.Flush()

	fmt.Fprintf(w, "%d created, %d matched, %d differ, %d missing, %d errors; %d warnings\n",
		result.Counts[reconcile.StatusCreate],
		result.Counts[reconcile.StatusExistsMatch],
		result.Counts[reconcile.StatusExistsDiff],
		result.Counts[reconcile.StatusMissingEmployee],
		result.Counts[reconcile.StatusError],
		len(p.Warnings),
	)
	for _, warn := range p.Warnings {
		fmt.Fprintf(w, "  warning: %s: %s\n", warn.Kind, warn.Message)
	}
}
