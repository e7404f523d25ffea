package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Sasuke-inu/immi-case/internal/dataset"
	"github.com/Sasuke-inu/immi-case/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report per-field coverage of the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := dataset.Load(cfg.Dataset.Path)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		coverage, unresolved := ds.Coverage()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d records in %s\n", len(ds.Records), cfg.Dataset.Path)
		fmt.Fprint(out, model.RenderCoverage(coverage, unresolved))

		fmt.Fprintln(out, "\nweakest fields:")
		keys := ds.FieldKeys()
		for i, k := range keys {
			if i >= 5 {
				break
			}
			fmt.Fprintf(out, "  %-20s %5.1f%%\n", k, coverage[k]*100)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
