package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/ledger"
	"github.com/sells-group/rnxpipe/internal/runlog"
)

var (
	ledgerStage string
	ledgerRun   string
	ledgerCSV   string
	ledgerXLSX  string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Move stage ledgers in and out of the run log",
}

// -- ledger export --

var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the logged rows of a stage to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if ledgerCSV == "" && ledgerXLSX == "" {
			return eris.New("ledger export: --csv or --xlsx is required")
		}
		ctx := cmd.Context()

		rl, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer rl.Close() //nolint:errcheck

		rows, err := rl.Rows(ctx, ledgerStage, ledgerRun)
		if err != nil {
			return eris.Wrap(err, "ledger export")
		}
		if err := exportLedger(rows, ledgerStage, ledgerCSV, ledgerXLSX); err != nil {
			return err
		}

		zap.L().Info("ledger exported",
			zap.String("stage", ledgerStage),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

// -- ledger import --

var ledgerImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Record a CSV ledger in the run log as a completed run",
	Long: "Reads a ledger CSV, as written by ledger export, and appends it to the run log " +
		"under a new run so later runs treat its rows as already processed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rl, err := initRunLog(ctx)
		if err != nil {
			return err
		}
		defer rl.Close() //nolint:errcheck

		runID, n, err := importLedger(ctx, rl, ledgerStage, ledgerCSV)
		if err != nil {
			return err
		}

		zap.L().Info("ledger imported",
			zap.String("run_id", runID),
			zap.String("stage", ledgerStage),
			zap.Int64("rows", n),
		)
		return nil
	},
}

func exportLedger(rows ledger.Table, sheet, csvPath, xlsxPath string) error {
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return eris.Wrap(err, "ledger export: create csv")
		}
		if err := rows.WriteCSV(f); err != nil {
			_ = f.Close()
			return eris.Wrap(err, "ledger export: write csv")
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "ledger export: close csv")
		}
	}
	if xlsxPath != "" {
		if err := rows.WriteXLSX(xlsxPath, sheet); err != nil {
			return eris.Wrap(err, "ledger export")
		}
	}
	return nil
}

func importLedger(ctx context.Context, rl runlog.Log, stageName, csvPath string) (string, int64, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return "", 0, eris.Wrap(err, "ledger import: open csv")
	}
	defer f.Close() //nolint:errcheck

	rows, err := ledger.ReadCSV(f)
	if err != nil {
		return "", 0, eris.Wrap(err, "ledger import")
	}

	runID, err := rl.StartRun(ctx, []string{stageName})
	if err != nil {
		return "", 0, eris.Wrap(err, "ledger import: start run")
	}
	n, err := rl.AppendTable(ctx, runID, stageName, rows)
	if ferr := rl.FinishRun(context.WithoutCancel(ctx), runID, err); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return runID, n, eris.Wrap(err, "ledger import")
	}
	return runID, n, nil
}

func init() {
	for _, c := range []*cobra.Command{ledgerExportCmd, ledgerImportCmd} {
		c.Flags().StringVar(&ledgerStage, "stage", "", "stage name (required)")
		c.Flags().StringVar(&ledgerCSV, "csv", "", "CSV file")
		_ = c.MarkFlagRequired("stage")
	}
	ledgerExportCmd.Flags().StringVar(&ledgerRun, "run", "", "run id (default every run)")
	ledgerExportCmd.Flags().StringVar(&ledgerXLSX, "xlsx", "", "XLSX file")
	_ = ledgerImportCmd.MarkFlagRequired("csv")

	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
