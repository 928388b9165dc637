package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cda-harvester/internal/model"
)

var harvestOpts harvestFlags

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run one harvest against the listing page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHarvest(ctx, harvestOpts)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.Run(ctx)
		if summary != nil {
			renderSummary(os.Stdout, summary, harvestOpts.DryRun)
		}
		if err != nil {
			zap.L().Error("harvest: run failed", zap.Error(err))
			return eris.Wrap(err, "harvest")
		}
		return nil
	},
}

func init() {
	harvestCmd.Flags().IntVar(&harvestOpts.Limit, "limit", 0, "max number of reports to process (0 = all)")
	harvestCmd.Flags().BoolVar(&harvestOpts.NoBrowser, "no-browser", false, "read the listing with a plain GET instead of Chrome")
	harvestCmd.Flags().BoolVar(&harvestOpts.DryRun, "dry-run", false, "list candidates without downloading")
	rootCmd.AddCommand(harvestCmd)
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// renderSummary prints the run counters, the per-report outcomes, and the
// changes written to the changelog.
func renderSummary(out io.Writer, s *model.RunSummary, dryRun bool) {
	t := newTable(out)
	t.SetTitle("Run " + truncateID(s.RunID))
	t.AppendRows([]table.Row{
		{"Candidates", s.Candidates},
		{"Downloaded", s.Downloaded},
		{"Extracted", s.Extracted},
		{"Failed", s.Failed},
		{"Added", s.Added},
		{"Updated", s.Updated},
		{"Total records", s.TotalRecords},
		{"Duration", (time.Duration(s.DurationMS) * time.Millisecond).String()},
	})
	t.Render()

	if len(s.Outcomes) > 0 {
		o := newTable(out)
		o.AppendHeader(table.Row{"#", "Title", "Stage", "Status", "Detail"})
		for i, r := range s.Outcomes {
			status := "ok"
			detail := r.Source
			switch {
			case dryRun:
				status = "found"
				detail = r.URL
			case !r.OK:
				status = "failed"
				detail = r.Error
			}
			o.AppendRow(table.Row{i + 1, truncate(r.Title, 60), r.Stage, status, truncate(detail, 80)})
		}
		o.Render()
	}

	if len(s.Changes) > 0 {
		c := newTable(out)
		c.AppendHeader(table.Row{"Change"})
		for _, ch := range s.Changes {
			c.AppendRow(table.Row{ch.Description})
		}
		c.Render()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
