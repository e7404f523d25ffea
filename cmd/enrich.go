package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Sasuke-inu/immi-case/internal/annotate"
	"github.com/Sasuke-inu/immi-case/internal/checkpoint"
	"github.com/Sasuke-inu/immi-case/internal/dataset"
	"github.com/Sasuke-inu/immi-case/internal/docstore"
	"github.com/Sasuke-inu/immi-case/internal/extract"
	"github.com/Sasuke-inu/immi-case/internal/model"
	"github.com/Sasuke-inu/immi-case/internal/pipeline"
	"github.com/Sasuke-inu/immi-case/internal/resilience"
	"github.com/Sasuke-inu/immi-case/internal/scheduler"
	"github.com/Sasuke-inu/immi-case/pkg/anthropic"
)

var (
	enrichLimit     int
	enrichTribunal  string
	enrichWorkers   int
	enrichBatchSize int
	enrichOverwrite bool
	enrichDryRun    bool
	enrichRulesOnly bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run the extraction pipeline over pending records",
	Long:  "Selects records with empty fields, runs the deterministic cascade, dispatches the remainder to the annotation service in bounded-concurrency batches, and merges checkpointed results back into the dataset. Safe to interrupt at any point; a restart resumes from the dataset's current state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		enricher, closeFn, err := buildEnricher()
		if err != nil {
			return err
		}
		defer closeFn()

		workers := enrichWorkers
		if workers <= 0 {
			workers = cfg.Enrich.Workers
		}
		batchSize := enrichBatchSize
		if batchSize <= 0 {
			batchSize = cfg.Enrich.BatchSize
		}
		enricher.Dispatcher = scheduler.New(
			newAnnotator(),
			enricher.Checkpoints,
			scheduler.Config{
				Workers:   workers,
				BatchSize: batchSize,
				Retry: resilience.RetryConfig{
					MaxAttempts: cfg.Enrich.MaxAttempts,
				},
			},
		)

		report, err := enricher.Run(ctx, cfg.Dataset.Path, pipeline.Options{
			Filter: dataset.PendingFilter{
				Tribunal: enrichTribunal,
				Limit:    enrichLimit,
			},
			Overwrite:   enrichOverwrite,
			DryRun:      enrichDryRun,
			RulesOnly:   enrichRulesOnly,
			RuleWorkers: cfg.Enrich.RuleWorkers,
		})
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		printReport(cmd, report)
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max number of pending records to process (0 = all)")
	enrichCmd.Flags().StringVar(&enrichTribunal, "tribunal", "", "only process records from this tribunal code")
	enrichCmd.Flags().IntVar(&enrichWorkers, "workers", 0, "concurrent annotation batches (0 = config default)")
	enrichCmd.Flags().IntVar(&enrichBatchSize, "batch-size", 0, "records per annotation batch (0 = config default)")
	enrichCmd.Flags().BoolVar(&enrichOverwrite, "overwrite", false, "replace non-empty fields instead of fill-only")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "preview the deterministic pass without calling the service or writing")
	enrichCmd.Flags().BoolVar(&enrichRulesOnly, "rules-only", false, "skip the annotation pass")
	rootCmd.AddCommand(enrichCmd)
}

// buildEnricher wires the collaborators shared by enrich and merge. The
// dispatcher is attached by the enrich command, which owns the concurrency
// flags.
func buildEnricher() (*pipeline.Enricher, func(), error) {
	vocab, err := extract.LoadVocabulary(cfg.Extract.VocabPath)
	if err != nil {
		return nil, nil, err
	}

	docs, err := docstore.Open(docstore.Config{
		Driver: cfg.Docs.Driver,
		Dir:    cfg.Docs.Dir,
		Path:   cfg.Docs.Path,
	})
	if err != nil {
		return nil, nil, err
	}

	cps, err := checkpoint.NewStore(cfg.Checkpoint.Dir)
	if err != nil {
		docs.Close()
		return nil, nil, err
	}

	return &pipeline.Enricher{
		Docs:        docs,
		Extractor:   extract.New(vocab),
		Checkpoints: cps,
	}, func() { docs.Close() }, nil
}

func newAnnotator() *annotate.Annotator {
	return annotate.New(
		anthropic.NewClient(cfg.Anthropic.Key),
		annotate.Config{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			CallTimeout:       cfg.Anthropic.CallTimeout(),
			RequestsPerSecond: cfg.Anthropic.RequestsPerSecond,
		},
	)
}

func printReport(cmd *cobra.Command, report *model.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s)\n", report.RunID, report.Duration)
	fmt.Fprintf(out, "  records selected:   %d\n", report.RecordsSelected)
	fmt.Fprintf(out, "  sent to annotation: %d\n", report.RecordsAnnotated)
	fmt.Fprintf(out, "  rule fields:        %d\n", report.RuleFields)
	fmt.Fprintf(out, "  model fields:       %d\n", report.ModelFields)
	fmt.Fprintf(out, "  batches:            %d dispatched, %d retried, %d abandoned\n",
		report.BatchesDispatched, report.BatchesRetried, report.BatchesAbandoned)
	fmt.Fprintf(out, "  merge:              %d filled, %d corrected, %d skipped\n",
		report.Filled, report.Corrected, report.Skipped)
	fmt.Fprintf(out, "coverage:\n%s", model.RenderCoverage(report.Coverage, report.Unresolved))
}
