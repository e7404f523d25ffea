// Package scheduler partitions pending records into fixed-size batches and
// dispatches them to the annotation service under a bounded worker pool.
// Batches are independent: each writes only its own records' results, no
// ordering is guaranteed, and one malformed batch never blocks the others.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Sasuke-inu/immi-case/internal/annotate"
	"github.com/Sasuke-inu/immi-case/internal/checkpoint"
	"github.com/Sasuke-inu/immi-case/internal/model"
	"github.com/Sasuke-inu/immi-case/internal/resilience"
)

// Annotator is the one-round-trip-per-batch service boundary.
type Annotator interface {
	Annotate(ctx context.Context, tasks []annotate.Task) (annotate.Reply, error)
}

// Pending is one record queued for the annotation pass.
type Pending struct {
	RecordID string
	Text     string
	Missing  []string
}

// Config parameterizes the dispatch pool.
type Config struct {
	// Workers bounds concurrent batches in flight. Default 4.
	Workers int
	// BatchSize is the number of records per annotation round trip.
	// Default 10.
	BatchSize int
	// Retry is the per-batch retry budget.
	Retry resilience.RetryConfig
}

// Outcome accumulates the whole annotation pass.
type Outcome struct {
	// Results holds every checkpointed batch result.
	Results []model.ExtractionResult
	// CheckpointSeqs are the sequence numbers written during this pass.
	CheckpointSeqs []int

	Dispatched int
	Retried    int
	Abandoned  int
}

// Dispatcher runs the annotation pass. Completed batches are checkpointed
// immediately; only a checkpoint write failure aborts the run.
type Dispatcher struct {
	annotator   Annotator
	checkpoints *checkpoint.Store
	cfg         Config
}

// New builds a dispatcher.
func New(annotator Annotator, checkpoints *checkpoint.Store, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Dispatcher{annotator: annotator, checkpoints: checkpoints, cfg: cfg}
}

// Run dispatches all pending records and returns the accumulated outcome.
// Transient failures and malformed replies are retried per batch up to the
// budget; an exhausted batch is abandoned for this run (its records remain
// pending and are naturally recomputed next run). A persistence failure is
// fatal and cancels the remaining batches.
func (d *Dispatcher) Run(ctx context.Context, pending []Pending) (*Outcome, error) {
	batches := Partition(pending, d.cfg.BatchSize)
	out := &Outcome{Dispatched: len(batches)}
	if len(batches) == 0 {
		return out, nil
	}

	zap.L().Info("scheduler: dispatching",
		zap.Int("records", len(pending)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", d.cfg.Workers),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	var (
		mu      sync.Mutex // guards out.Results/CheckpointSeqs/Abandoned; held only for O(batch) updates
		retried atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for bi, batch := range batches {
		g.Go(func() error {
			log := zap.L().With(zap.Int("batch", bi), zap.Int("size", len(batch)))

			retryCfg := d.cfg.Retry
			retryCfg.ShouldRetry = retryable
			retryCfg.OnRetry = func(attempt int, err error) {
				retried.Add(1)
				log.Warn("scheduler: retrying batch", zap.Int("attempt", attempt), zap.Error(err))
			}

			tasks := toTasks(batch)
			reply, err := resilience.DoVal(gctx, retryCfg, func(ctx context.Context) (annotate.Reply, error) {
				return d.annotator.Annotate(ctx, tasks)
			})
			if err != nil {
				// Abandoned for this run; the records stay pending.
				log.Warn("scheduler: batch abandoned", zap.Error(err))
				mu.Lock()
				out.Abandoned++
				mu.Unlock()
				return nil
			}

			results := applyReply(batch, reply)
			if len(results) == 0 {
				log.Info("scheduler: batch returned no updates")
				return nil
			}

			// Checkpoint before touching the shared accumulator: a crash
			// after this point loses nothing.
			seq, err := d.checkpoints.Write(results)
			if err != nil {
				// PersistenceFailure: halt the run.
				return err
			}

			mu.Lock()
			out.Results = append(out.Results, results...)
			out.CheckpointSeqs = append(out.CheckpointSeqs, seq)
			mu.Unlock()

			log.Info("scheduler: batch checkpointed",
				zap.Int("seq", seq),
				zap.Int("records_updated", len(results)),
			)
			return nil
		})
	}

	err := g.Wait()
	out.Retried = int(retried.Load())
	if err != nil {
		return out, err
	}
	return out, nil
}

// Partition splits pending records into batches of at most size.
func Partition(pending []Pending, size int) [][]Pending {
	if size <= 0 {
		size = 10
	}
	var batches [][]Pending
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, pending[start:end])
	}
	return batches
}

func toTasks(batch []Pending) []annotate.Task {
	tasks := make([]annotate.Task, len(batch))
	for i, p := range batch {
		tasks[i] = annotate.Task{Index: i, Text: p.Text, Missing: p.Missing}
	}
	return tasks
}

// applyReply maps reply items back to record IDs through the exact
// local-index-to-record mapping of this batch. The parser already discards
// out-of-range indices; the bounds check here keeps the invariant local.
func applyReply(batch []Pending, reply annotate.Reply) []model.ExtractionResult {
	var results []model.ExtractionResult
	for _, item := range reply.Items {
		if item.Index < 0 || item.Index >= len(batch) {
			continue
		}
		rec := batch[item.Index]

		// Keep only fields this record actually asked for.
		wanted := make(map[string]bool, len(rec.Missing))
		for _, f := range rec.Missing {
			wanted[f] = true
		}
		fields := make(map[string]string, len(item.Fields))
		for k, v := range item.Fields {
			if wanted[k] && v != "" {
				fields[k] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		results = append(results, model.ExtractionResult{
			RecordID: rec.RecordID,
			Source:   model.SourceModel,
			Fields:   fields,
		})
	}
	return results
}

// retryable marks transient service failures and malformed replies as worth
// another attempt within the batch's budget.
func retryable(err error) bool {
	return resilience.IsTransient(err) || annotate.IsParseError(err)
}
