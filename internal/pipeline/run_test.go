package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sasuke-inu/immi-case/internal/annotate"
	"github.com/Sasuke-inu/immi-case/internal/checkpoint"
	"github.com/Sasuke-inu/immi-case/internal/dataset"
	"github.com/Sasuke-inu/immi-case/internal/docstore"
	"github.com/Sasuke-inu/immi-case/internal/extract"
	"github.com/Sasuke-inu/immi-case/internal/model"
	"github.com/Sasuke-inu/immi-case/internal/resilience"
	"github.com/Sasuke-inu/immi-case/internal/scheduler"
)

// fillAllAnnotator answers every missing field of every task so a run can
// drive records to fully enriched.
type fillAllAnnotator struct {
	mu    sync.Mutex
	calls int
}

func (f *fillAllAnnotator) Annotate(_ context.Context, tasks []annotate.Task) (annotate.Reply, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	var reply annotate.Reply
	for _, t := range tasks {
		fields := make(map[string]string, len(t.Missing))
		for _, m := range t.Missing {
			fields[m] = "annotated-" + m
		}
		reply.Items = append(reply.Items, annotate.Item{Index: t.Index, Fields: fields})
	}
	return reply, nil
}

func (f *fillAllAnnotator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fixture wires a full pipeline over temp dirs: a two-record dataset, one
// document per record, a checkpoint store, and the fake annotator.
type fixture struct {
	enricher    *Enricher
	annotator   *fillAllAnnotator
	checkpoints *checkpoint.Store
	datasetPath string
}

const sampleDoc = `DECISION RECORD

Country of Reference: India
Representative: Nil
Date of Hearing: 21 October 2014

CATCHWORDS
Refugee review - credibility - well-founded fear of persecution

DECISION
The Tribunal affirms the decision under review.
`

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	docsDir := filepath.Join(root, "docs")
	require.NoError(t, os.Mkdir(docsDir, 0o755))
	for _, id := range []string{"r1", "r2"} {
		require.NoError(t, os.WriteFile(filepath.Join(docsDir, id+".txt"), []byte(sampleDoc), 0o644))
	}

	datasetPath := filepath.Join(root, "cases.csv")
	writeDataset(t, datasetPath,
		[]string{"id", "citation", "tribunal"},
		[]string{"r1", "c1", "RRTA"},
		[]string{"r2", "c2", "RRTA"},
	)

	docs, err := docstore.NewDirStore(docsDir)
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	store, err := checkpoint.NewStore(filepath.Join(root, "checkpoints"))
	require.NoError(t, err)

	ann := &fillAllAnnotator{}
	dispatcher := scheduler.New(ann, store, scheduler.Config{
		Workers:   2,
		BatchSize: 10,
		Retry:     resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	})

	return &fixture{
		enricher: &Enricher{
			Docs:        docs,
			Extractor:   extract.New(extract.DefaultVocabulary()),
			Dispatcher:  dispatcher,
			Checkpoints: store,
		},
		annotator:   ann,
		checkpoints: store,
		datasetPath: datasetPath,
	}
}

func writeDataset(t *testing.T, path string, header []string, rows ...[]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, f.Close())
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.RecordsSelected)
	assert.Equal(t, 2, report.RecordsAnnotated)
	assert.Positive(t, report.RuleFields)
	assert.Positive(t, report.ModelFields)
	assert.Equal(t, 1, report.BatchesDispatched)
	assert.Zero(t, report.BatchesAbandoned)
	assert.Positive(t, report.Filled)
	assert.NotEmpty(t, report.RunID)

	// Deterministic values landed.
	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	rec := ds.Get("r1")
	require.NotNil(t, rec)
	assert.Equal(t, "India", rec.Get(model.FieldCountryOfOrigin))
	assert.Equal(t, "no", rec.Get(model.FieldIsRepresented))
	assert.Equal(t, "2014-10-21", rec.Get(model.FieldHearingDate))
	assert.Equal(t, "affirmed", rec.Get(model.FieldOutcome))

	// Service values filled whatever the cascade could not.
	assert.Equal(t, "annotated-representative", rec.Get(model.FieldRepresentative))

	// Consumed checkpoints are archived, not outstanding.
	seqs, err := fx.checkpoints.List()
	require.NoError(t, err)
	assert.Empty(t, seqs)

	// A backup of the pre-merge dataset exists.
	_, err = os.Stat(fx.datasetPath + ".bak")
	assert.NoError(t, err)
}

func TestRun_SecondRunFindsNoPendingWork(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{})
	require.NoError(t, err)
	firstCalls := fx.annotator.callCount()

	// Resume is recomputed from dataset emptiness: a fully enriched dataset
	// yields an empty run.
	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.RecordsSelected)
	assert.Zero(t, report.BatchesDispatched)
	assert.Equal(t, firstCalls, fx.annotator.callCount())
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	before, err := os.ReadFile(fx.datasetPath)
	require.NoError(t, err)

	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{DryRun: true})
	require.NoError(t, err)
	assert.Positive(t, report.Filled)
	assert.Zero(t, fx.annotator.callCount())

	after, err := os.ReadFile(fx.datasetPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	seqs, err := fx.checkpoints.List()
	require.NoError(t, err)
	assert.Empty(t, seqs)
}

func TestRun_RulesOnlySkipsService(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{RulesOnly: true})
	require.NoError(t, err)

	assert.Zero(t, fx.annotator.callCount())
	assert.Zero(t, report.BatchesDispatched)
	assert.Positive(t, report.Filled)

	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	rec := ds.Get("r1")
	assert.Equal(t, "India", rec.Get(model.FieldCountryOfOrigin))
	assert.Empty(t, rec.Get(model.FieldRepresentative))
}

func TestRun_MissingDocumentDegradesToNoUpdate(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	writeDataset(t, fx.datasetPath,
		[]string{"id", "citation", "tribunal"},
		[]string{"r1", "c1", "RRTA"},
		[]string{"ghost", "c9", "RRTA"},
	)

	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{RulesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordsSelected)

	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	assert.Equal(t, "India", ds.Get("r1").Get(model.FieldCountryOfOrigin))
	assert.Empty(t, ds.Get("ghost").Get(model.FieldCountryOfOrigin))
}

func TestRun_LimitCapsSelection(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{
		Filter:    dataset.PendingFilter{Limit: 1},
		RulesOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordsSelected)
}

func TestMergeOutstanding_ReplaysInterruptedCheckpoints(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	// A checkpoint left behind by an interrupted run.
	seq, err := fx.checkpoints.Write([]model.ExtractionResult{{
		RecordID: "r2",
		Source:   model.SourceModel,
		Fields:   map[string]string{model.FieldOutcome: "remitted"},
	}})
	require.NoError(t, err)

	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)

	stats, seqs, err := MergeOutstanding(ds, fx.checkpoints, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Filled)
	assert.Equal(t, []int{seq}, seqs)

	reloaded, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	assert.Equal(t, "remitted", reloaded.Get("r2").Get(model.FieldOutcome))

	outstanding, err := fx.checkpoints.List()
	require.NoError(t, err)
	assert.Empty(t, outstanding)
}

func TestMergeOutstanding_NothingToDo(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)

	stats, seqs, err := MergeOutstanding(ds, fx.checkpoints, nil, false)
	require.NoError(t, err)
	assert.Equal(t, dataset.MergeStats{}, stats)
	assert.Empty(t, seqs)

	// No backup, no rewrite.
	_, err = os.Stat(fx.datasetPath + ".bak")
	assert.True(t, os.IsNotExist(err))
}

func TestRun_FillOnlyVersusOverwrite(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	writeDataset(t, fx.datasetPath,
		[]string{"id", "citation", "tribunal", "country_of_origin"},
		[]string{"r1", "c1", "RRTA", "Nepal"}, // pre-existing value disagrees with the document
		[]string{"r2", "c2", "RRTA", ""},
	)

	_, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{RulesOnly: true})
	require.NoError(t, err)

	ds, err := dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	assert.Equal(t, "Nepal", ds.Get("r1").Get(model.FieldCountryOfOrigin))
	assert.Equal(t, "India", ds.Get("r2").Get(model.FieldCountryOfOrigin))

	// With overwrite, the freshly extracted value corrects the conflict.
	report, err := fx.enricher.Run(context.Background(), fx.datasetPath, Options{RulesOnly: true, Overwrite: true})
	require.NoError(t, err)
	assert.Positive(t, report.Corrected)

	ds, err = dataset.Load(fx.datasetPath)
	require.NoError(t, err)
	assert.Equal(t, "India", ds.Get("r1").Get(model.FieldCountryOfOrigin))
}

func TestRun_MissingDatasetFileFails(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	_, err := fx.enricher.Run(context.Background(), filepath.Join(t.TempDir(), "gone.csv"), Options{})
	assert.Error(t, err)
}
