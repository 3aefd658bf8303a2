package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rnxpipe/internal/config"
	"github.com/sells-group/rnxpipe/internal/epoch"
)

var (
	epochsStart    string
	epochsEnd      string
	epochsPeriod   string
	epochsRound    string
	epochsTZ       string
	epochsEndBound bool
)

var epochsCmd = &cobra.Command{
	Use:   "epochs",
	Short: "Print the epochs of a range",
	Long:  "Prints one epoch per line. Unset flags fall back to pipeline.epochs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rng, err := parseEpochs(epochsFlags(cfg.Pipeline.Epochs), time.Now())
		if err != nil {
			return eris.Wrap(err, "epochs")
		}
		if !rng.Valid() {
			return eris.New("epochs: start and end are required")
		}
		return printEpochs(os.Stdout, rng, epochsEndBound)
	},
}

// epochsFlags overlays the command flags on e.
func epochsFlags(e config.EpochsConfig) config.EpochsConfig {
	for _, f := range []struct {
		dst *string
		v   string
	}{
		{&e.Start, epochsStart},
		{&e.End, epochsEnd},
		{&e.Period, epochsPeriod},
		{&e.Round, epochsRound},
		{&e.Timezone, epochsTZ},
	} {
		if f.v != "" {
			*f.dst = f.v
		}
	}
	return e
}

func printEpochs(w io.Writer, rng *epoch.Range, endBound bool) error {
	for t := range rng.Seq(endBound) {
		if _, err := fmt.Fprintln(w, t.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	f := epochsCmd.Flags()
	f.StringVar(&epochsStart, "start", "", "first epoch")
	f.StringVar(&epochsEnd, "end", "", "last epoch")
	f.StringVar(&epochsPeriod, "period", "", "interval, e.g. 1d, 15min")
	f.StringVar(&epochsRound, "round", "", "floor, ceil or round")
	f.StringVar(&epochsTZ, "tz", "", "time zone name")
	f.BoolVar(&epochsEndBound, "end-bound", false, "print the last second of each interval")
	rootCmd.AddCommand(epochsCmd)
}
