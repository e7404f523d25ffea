// Package annotate dispatches batches of records that the deterministic
// cascade could not fill to the external annotation service, one combined
// prompt and one round trip per batch.
package annotate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Sasuke-inu/immi-case/internal/resilience"
	"github.com/Sasuke-inu/immi-case/pkg/anthropic"
)

// Task is one record's share of a batch: a local index (compact in the
// prompt; mapped back to the record ID by the scheduler), bounded text, and
// the fields still missing.
type Task struct {
	Index   int
	Text    string
	Missing []string
}

const systemPrompt = `You are a legal data annotator for immigration tribunal decisions. For each numbered record you are given an excerpt and a list of missing fields. Infer values only when the text supports them; omit fields you cannot determine. Reply with ONLY a JSON array, one object per record you can annotate:
[{"index": 0, "fields": {"country_of_origin": "India"}}]
Use the exact field keys given. Values are short canonical strings: country names in English, dates as YYYY-MM-DD, is_represented as "yes" or "no", visa_subclass as the bare number, outcome as one of affirmed/set aside/remitted/varied/dismissed/no jurisdiction. Records you cannot annotate may be omitted from the array.`

// Config holds annotation client settings.
type Config struct {
	Model       string
	MaxTokens   int64
	CallTimeout time.Duration
	// RequestsPerSecond bounds the client-side call rate across workers.
	// Zero disables the limiter.
	RequestsPerSecond float64
}

// Annotator turns a batch of tasks into per-index field maps via one
// Messages call. Safe for concurrent use.
type Annotator struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
}

// New builds an Annotator over the given service client.
func New(client anthropic.Client, cfg Config) *Annotator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Annotator{client: client, cfg: cfg, limiter: limiter}
}

// Annotate performs one round trip for the batch. Transport failures with a
// transient HTTP status and unparsable replies come back as retryable
// errors; the caller's retry policy decides how often to re-dispatch. A
// parsed reply may cover fewer records than the batch: absent indices mean
// "no update".
func (a *Annotator) Annotate(ctx context.Context, tasks []Task) (Reply, error) {
	if len(tasks) == 0 {
		return Reply{}, nil
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return Reply{}, eris.Wrap(err, "annotate: rate limiter")
		}
	}

	cctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	resp, err := a.client.CreateMessage(cctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    systemPrompt,
		Prompt:    BuildPrompt(tasks),
	})
	if err != nil {
		if status, ok := anthropic.StatusCode(err); ok && resilience.IsTransientHTTPStatus(status) {
			return Reply{}, resilience.NewTransientError(err, status)
		}
		return Reply{}, eris.Wrap(err, "annotate: service call")
	}

	resp.Usage.LogCost(a.cfg.Model, "annotate")

	reply, perr := ParseReply(resp.Text, len(tasks))
	if perr != nil {
		zap.L().Warn("annotate: unparsable reply",
			zap.Int("batch_size", len(tasks)),
			zap.String("stop_reason", resp.StopReason),
			zap.Error(perr),
		)
		return Reply{}, perr
	}
	return reply, nil
}

// BuildPrompt enumerates the batch by local index. Indices keep the prompt
// compact; the reply is mapped back to record IDs by the caller.
func BuildPrompt(tasks []Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Annotate the following %d records.\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n### Record %d\n", t.Index)
		fmt.Fprintf(&b, "Missing fields: %s\n", strings.Join(t.Missing, ", "))
		b.WriteString("Text:\n")
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\nReply with the JSON array only.")
	return b.String()
}
