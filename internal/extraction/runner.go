package extraction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"horse.fit/narratives/internal/narrative"
)

const (
	DefaultWorkers       = 4
	DefaultPerItemBudget = 60 * time.Second
	DefaultMaxAttempts   = 3

	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// RunnerOptions controls the batch runner. Zero values use defaults.
type RunnerOptions struct {
	Workers       int
	PerItemBudget time.Duration
	MaxAttempts   int
}

// Runner fans a batch of articles over the collaborator with bounded
// concurrency. A timeout or persistent failure fails that article only;
// the rest of the batch continues.
type Runner struct {
	extractor Extractor
	logger    zerolog.Logger
	opts      RunnerOptions
}

// Outcome pairs one input with its extraction or its failure.
type Outcome struct {
	Input      ArticleInput
	Extraction *narrative.Extraction
	Err        error
}

func NewRunner(extractor Extractor, logger zerolog.Logger, opts RunnerOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.PerItemBudget <= 0 {
		opts.PerItemBudget = DefaultPerItemBudget
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Runner{extractor: extractor, logger: logger, opts: opts}
}

// Run processes the batch and returns one outcome per input, in input order.
func (r *Runner) Run(ctx context.Context, inputs []ArticleInput) []Outcome {
	outcomes := make([]Outcome, len(inputs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = r.runOne(ctx, inputs[idx])
			}
		}()
	}

	for idx := range inputs {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			outcomes[idx] = Outcome{Input: inputs[idx], Err: ctx.Err()}
		}
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (r *Runner) runOne(ctx context.Context, input ArticleInput) Outcome {
	backoff := initialBackoff

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		itemCtx, cancel := context.WithTimeout(ctx, r.opts.PerItemBudget)
		extracted, err := r.extractor.Extract(itemCtx, input)
		cancel()

		if err == nil {
			return Outcome{Input: input, Extraction: extracted}
		}
		lastErr = err

		if !isRateLimited(err) || attempt == r.opts.MaxAttempts {
			break
		}

		r.logger.Warn().
			Err(err).
			Str("article_id", input.ArticleID).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("extraction rate-limited; backing off")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return Outcome{Input: input, Err: ctx.Err()}
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	r.logger.Error().
		Err(lastErr).
		Str("article_id", input.ArticleID).
		Msg("extraction failed; skipping article")
	return Outcome{Input: input, Err: lastErr}
}

func isRateLimited(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate_limit")
}
