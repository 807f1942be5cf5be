package commands

import (
	"fmt"
	"log/slog"
	"time"

	"productchecker/internal/extract"
	"productchecker/internal/monitor"
	"productchecker/lib/serviceutil"
	libtelemetry "productchecker/lib/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var runOnce *bool

func init() {
	runOnce = runCmd.Flags().Bool("once", false, "Run a single pass over every product and exit.")
	rootCmd.AddCommand(runCmd)
}

func printPassReport(report monitor.PassReport) {
	t := newTable()
	t.AppendHeader(table.Row{"Pass", "Products", "Recorded", "Fetch failures", "Store failures", "Notified", "Notify failures", "Duration"})
	t.AppendRow(table.Row{
		report.ID,
		report.Products,
		report.Recorded,
		report.FetchFailures,
		report.StoreFailures,
		report.Notified,
		report.NotifyFailures,
		report.Duration.Round(time.Millisecond),
	})
	t.Render()
	if report.Interrupted {
		fmt.Println("pass was interrupted before every product was checked")
	}
}

var runCmd = &cobra.Command{
	Use:   "run [--once]",
	Short: "Checks every product repeatedly, waiting the configured frequency between passes.",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx := serviceutil.SignalContext(cmd.Context())

		f, err := a.newFetcher()
		if err != nil {
			return err
		}
		scheduler := monitor.NewScheduler(
			monitor.Options{DefaultFrequency: a.defaultFrequency()},
			a.store,
			f,
			extract.DefaultRegistry(),
			monitor.NewDispatcher(a.store, a.sink(), a.tel),
			a.time,
			a.tel,
		)

		if *runOnce {
			printPassReport(scheduler.RunPass(ctx))
			return nil
		}

		libtelemetry.InstrumentPerfStats(ctx, 15*time.Second)
		slog.Info("scheduler started", "default_frequency", a.defaultFrequency())
		err = scheduler.Run(ctx)
		slog.Info("scheduler stopped")
		return err
	}),
}
