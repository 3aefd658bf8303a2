package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rnxpipe/internal/pipeline"
)

var (
	runStages   []string
	runExclude  []string
	runForce    bool
	runDryRun   bool
	runWorkers  int
	runStart    string
	runEnd      string
	runFailFast bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured pipeline",
	Long: "Runs every configured stage in order. Stages outside --stages, or listed in --exclude, " +
		"only plan their outputs so later stages can pick up files produced by earlier runs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ov := runOverrides{Workers: runWorkers, Start: runStart, End: runEnd}
		if cmd.Flags().Changed("fail-fast") {
			ov.FailFast = &runFailFast
		}

		env, err := initPipeline(ctx, ov)
		if err != nil {
			return err
		}
		defer env.Close()

		report, runErr := env.Runner.Run(ctx, pipeline.RunOpts{
			Stages:  runStages,
			Exclude: runExclude,
			Force:   runForce,
			DryRun:  runDryRun,
		})
		if report != nil {
			if err := report.Format(os.Stdout); err != nil {
				zap.L().Warn("print report", zap.Error(err))
			}
			zap.L().Info("pipeline finished",
				zap.String("run_id", report.RunID),
				zap.Int("stages", len(report.Stages)),
				zap.Int("failed_rows", report.Failed()),
				zap.Duration("duration", report.Duration),
			)
		}
		return runErr
	},
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runStages, "stages", nil, "stages to run (default all)")
	f.StringSliceVar(&runExclude, "exclude", nil, "stages to plan but not run")
	f.BoolVar(&runForce, "force", false, "reprocess rows whose output already exists")
	f.BoolVar(&runDryRun, "dry-run", false, "build and filter ledgers without running actions")
	f.IntVar(&runWorkers, "workers", 0, "parallel rows per stage (default from config)")
	f.StringVar(&runStart, "start", "", "first epoch, e.g. 2024-02-28 or \"3 days ago\"")
	f.StringVar(&runEnd, "end", "", "last epoch")
	f.BoolVar(&runFailFast, "fail-fast", false, "stop a stage at its first failed row")
	rootCmd.AddCommand(runCmd)
}
