// Package pipeline orchestrates one enrichment run: select pending records
// from the canonical dataset, segment their documents, run the deterministic
// cascade, dispatch what is still missing to the annotation service, and
// reconcile everything back through the checkpoint-then-merge path.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sasuke-inu/immi-case/internal/checkpoint"
	"github.com/Sasuke-inu/immi-case/internal/dataset"
	"github.com/Sasuke-inu/immi-case/internal/docstore"
	"github.com/Sasuke-inu/immi-case/internal/extract"
	"github.com/Sasuke-inu/immi-case/internal/model"
	"github.com/Sasuke-inu/immi-case/internal/scheduler"
	"github.com/Sasuke-inu/immi-case/internal/segment"
)

// Options parameterize a run. They carry no extraction semantics; the field
// specs and vocabulary are fixed in internal/extract.
type Options struct {
	Filter    dataset.PendingFilter
	Overwrite bool
	// DryRun previews what the deterministic pass would fill without
	// calling the annotation service or writing anything.
	DryRun bool
	// RulesOnly skips the annotation pass.
	RulesOnly bool
	// RuleWorkers bounds the deterministic pass; it is pure CPU work with
	// no shared state, so the default is generous.
	RuleWorkers int
}

// Enricher wires the pipeline's collaborators for one or more runs.
type Enricher struct {
	Docs        docstore.Store
	Extractor   *extract.Extractor
	Dispatcher  *scheduler.Dispatcher
	Checkpoints *checkpoint.Store
}

// ruleOutcome is one record's deterministic pass result.
type ruleOutcome struct {
	result  model.ExtractionResult
	pending *scheduler.Pending
}

// Run executes one enrichment run against the dataset at path and returns
// the operator report. Only persistence failures return an error; extractor
// and service failures degrade to "no update" for the affected records.
func (e *Enricher) Run(ctx context.Context, path string, opts Options) (*model.RunReport, error) {
	start := time.Now()
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
	}
	log := zap.L().With(zap.String("run_id", report.RunID))

	ds, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}

	// Overwrite re-derives occupied fields, so selection cannot hinge on
	// emptiness.
	filter := opts.Filter
	filter.IncludeComplete = opts.Overwrite
	pending := ds.Pending(filter)
	report.RecordsSelected = len(pending)
	log.Info("run: selected pending records",
		zap.Int("pending", len(pending)),
		zap.Int("total", len(ds.Records)),
	)

	ruleResults, toAnnotate := e.rulesPass(ctx, pending, opts.RuleWorkers, opts.Overwrite)
	for _, r := range ruleResults {
		report.RuleFields += len(r.Fields)
	}
	report.RecordsAnnotated = len(toAnnotate)

	if opts.DryRun {
		stats := ds.Apply(ruleResults, opts.Overwrite)
		report.Filled = stats.Filled
		report.Corrected = stats.Corrected
		report.Skipped = stats.Skipped
		report.Coverage, report.Unresolved = ds.Coverage()
		report.Duration = time.Since(start).String()
		log.Info("run: dry run, nothing written",
			zap.Int("would_fill", stats.Filled),
			zap.Int("records_needing_annotation", len(toAnnotate)),
		)
		return report, nil
	}

	if !opts.RulesOnly && len(toAnnotate) > 0 {
		outcome, err := e.Dispatcher.Run(ctx, toAnnotate)
		if err != nil {
			// Checkpoint write failed: halt, preserving whatever was
			// durably written. Already-checkpointed batches merge next run.
			return report, err
		}
		report.BatchesDispatched = outcome.Dispatched
		report.BatchesRetried = outcome.Retried
		report.BatchesAbandoned = outcome.Abandoned
		for _, r := range outcome.Results {
			report.ModelFields += len(r.Fields)
		}
	}

	// Merge consumes every outstanding checkpoint first — including units
	// left behind by an interrupted earlier run — then the rules results.
	stats, seqs, err := MergeOutstanding(ds, e.Checkpoints, ruleResults, opts.Overwrite)
	if err != nil {
		return report, err
	}

	report.Filled = stats.Filled
	report.Corrected = stats.Corrected
	report.Skipped = stats.Skipped
	report.Coverage, report.Unresolved = ds.Coverage()
	report.Duration = time.Since(start).String()

	log.Info("run: complete",
		zap.Int("filled", stats.Filled),
		zap.Int("corrected", stats.Corrected),
		zap.Int("checkpoints_merged", len(seqs)),
		zap.Int("abandoned_batches", report.BatchesAbandoned),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report, nil
}

// rulesPass runs the deterministic cascade over every pending record. Pure
// function per record, no shared mutable state; results are collected in
// slot order so output is deterministic regardless of scheduling.
func (e *Enricher) rulesPass(ctx context.Context, pending []model.CaseRecord, workers int, overwrite bool) ([]model.ExtractionResult, []scheduler.Pending) {
	if workers <= 0 {
		workers = 8
	}

	outcomes := make([]ruleOutcome, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, rec := range pending {
		g.Go(func() error {
			targets := rec.Missing()
			if overwrite {
				targets = model.TargetFields
			}
			if len(targets) == 0 {
				return nil
			}

			doc, err := e.Docs.Get(gctx, rec.ID)
			if err != nil {
				if !errors.Is(err, docstore.ErrNotFound) {
					zap.L().Warn("run: document read failed", zap.String("id", rec.ID), zap.Error(err))
				}
				return nil
			}

			segs := segment.Select(doc)
			if segs.Empty() {
				return nil
			}

			found := e.Extractor.Run(targets, segs)
			if len(found) > 0 {
				outcomes[i].result = model.ExtractionResult{
					RecordID: rec.ID,
					Source:   model.SourceRules,
					Fields:   found,
				}
			}

			var still []string
			for _, f := range targets {
				if found[f] == "" {
					still = append(still, f)
				}
			}
			if len(still) > 0 {
				outcomes[i].pending = &scheduler.Pending{
					RecordID: rec.ID,
					Text:     segs.Joined(),
					Missing:  still,
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var results []model.ExtractionResult
	var toAnnotate []scheduler.Pending
	for _, o := range outcomes {
		if !o.result.Empty() {
			results = append(results, o.result)
		}
		if o.pending != nil {
			toAnnotate = append(toAnnotate, *o.pending)
		}
	}
	return results, toAnnotate
}

// MergeOutstanding replays every outstanding checkpoint plus any extra
// results onto the dataset, writes it atomically (after a backup snapshot),
// and archives the consumed checkpoints. Invoked by the enrich run and by
// the standalone merge command.
func MergeOutstanding(ds *dataset.Dataset, store *checkpoint.Store, extra []model.ExtractionResult, overwrite bool) (dataset.MergeStats, []int, error) {
	cps, err := store.LoadAll()
	if err != nil {
		return dataset.MergeStats{}, nil, err
	}

	var stats dataset.MergeStats
	var seqs []int
	for _, cp := range cps {
		stats.Add(ds.Apply(cp.Results, overwrite))
		seqs = append(seqs, cp.Seq)
	}
	stats.Add(ds.Apply(extra, overwrite))

	if stats.Filled == 0 && stats.Corrected == 0 && len(seqs) == 0 {
		return stats, nil, nil
	}

	bak, err := ds.Backup()
	if err != nil {
		return stats, seqs, err
	}
	if err := ds.Save(); err != nil {
		zap.L().Error("merge: save failed, dataset preserved in backup",
			zap.String("backup", bak),
			zap.Error(err),
		)
		return stats, seqs, err
	}
	if err := store.Archive(seqs); err != nil {
		return stats, seqs, err
	}

	zap.L().Info("merge: dataset written",
		zap.Int("filled", stats.Filled),
		zap.Int("corrected", stats.Corrected),
		zap.Int("skipped", stats.Skipped),
		zap.Int("checkpoints", len(seqs)),
		zap.String("backup", bak),
	)
	return stats, seqs, nil
}
