package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Sasuke-inu/immi-case/internal/dataset"
	"github.com/Sasuke-inu/immi-case/internal/pipeline"
)

var mergeOverwrite bool

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Replay outstanding checkpoints into the dataset",
	Long:  "Standalone reconciliation: applies every unarchived checkpoint onto the canonical dataset under the fill-only policy, writes it atomically, and archives the consumed checkpoints. Useful after an interrupted enrich run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		enricher, closeFn, err := buildEnricher()
		if err != nil {
			return err
		}
		defer closeFn()

		ds, err := dataset.Load(cfg.Dataset.Path)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		stats, seqs, err := pipeline.MergeOutstanding(ds, enricher.Checkpoints, nil, mergeOverwrite)
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		out := cmd.OutOrStdout()
		if len(seqs) == 0 {
			fmt.Fprintln(out, "no outstanding checkpoints")
			return nil
		}
		fmt.Fprintf(out, "merged %d checkpoints: %d filled, %d corrected, %d skipped\n",
			len(seqs), stats.Filled, stats.Corrected, stats.Skipped)
		return nil
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeOverwrite, "overwrite", false, "replace non-empty fields instead of fill-only")
	rootCmd.AddCommand(mergeCmd)
}
