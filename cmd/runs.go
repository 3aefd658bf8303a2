package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Lists runs recorded in the run log. Use the rows subcommand to see the logged rows of a stage.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rl, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer rl.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := rl.Runs(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs rows --

var runsRowsCmd = &cobra.Command{
	Use:   "rows",
	Short: "Print the logged rows of a stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rl, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer rl.Close() //nolint:errcheck

		stageName, _ := cmd.Flags().GetString("stage")
		runID, _ := cmd.Flags().GetString("run")
		rows, err := rl.Rows(ctx, stageName, runID)
		if err != nil {
			return eris.Wrap(err, "runs rows")
		}

		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No rows found.")
			return nil
		}

		return rows.Render(os.Stdout, ledger.RenderOptions{
			Title:      stageName,
			MaxPathLen: cfg.Pipeline.MaxPathLen,
		})
	},
}

func init() {
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsRowsCmd.Flags().String("stage", "", "stage name (required)")
	runsRowsCmd.Flags().String("run", "", "run id (default every run)")
	_ = runsRowsCmd.MarkFlagRequired("stage")

	runsCmd.AddCommand(runsRowsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []runlog.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tROWS\tSTARTED\tDURATION\tSTAGES")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t-------\t--------\t------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}

		stages := r.Stages
		if len(stages) > 40 {
			stages = stages[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.Rows,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			stages,
		)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "\t  error: %s\t\t\t\t\n", r.Error)
		}
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
