package extraction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/narratives/internal/narrative"
)

type stubExtractor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(input ArticleInput, attempt int) (*narrative.Extraction, error)
}

func (s *stubExtractor) Extract(_ context.Context, input ArticleInput) (*narrative.Extraction, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[input.ArticleID]++
	attempt := s.calls[input.ArticleID]
	s.mu.Unlock()
	return s.fn(input, attempt)
}

func (s *stubExtractor) callCount(articleID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[articleID]
}

func TestRunnerPreservesInputOrder(t *testing.T) {
	t.Parallel()

	stub := &stubExtractor{fn: func(input ArticleInput, _ int) (*narrative.Extraction, error) {
		return &narrative.Extraction{NucleusEntity: input.Title}, nil
	}}
	runner := NewRunner(stub, zerolog.Nop(), RunnerOptions{Workers: 4})

	inputs := make([]ArticleInput, 20)
	for i := range inputs {
		inputs[i] = ArticleInput{ArticleID: "id-" + strconv.Itoa(i), Title: "title-" + strconv.Itoa(i)}
	}

	outcomes := runner.Run(context.Background(), inputs)
	if len(outcomes) != len(inputs) {
		t.Fatalf("outcomes: got %d, want %d", len(outcomes), len(inputs))
	}
	for i, out := range outcomes {
		if out.Err != nil {
			t.Fatalf("outcome %d failed: %v", i, out.Err)
		}
		if out.Input.ArticleID != inputs[i].ArticleID {
			t.Fatalf("outcome %d input: got %q, want %q", i, out.Input.ArticleID, inputs[i].ArticleID)
		}
		if out.Extraction.NucleusEntity != inputs[i].Title {
			t.Fatalf("outcome %d extraction: got %q, want %q", i, out.Extraction.NucleusEntity, inputs[i].Title)
		}
	}
}

func TestRunnerFailureIsolation(t *testing.T) {
	t.Parallel()

	boom := errors.New("schema validation failed")
	stub := &stubExtractor{fn: func(input ArticleInput, _ int) (*narrative.Extraction, error) {
		if input.ArticleID == "bad" {
			return nil, boom
		}
		return &narrative.Extraction{NucleusEntity: "SEC"}, nil
	}}
	runner := NewRunner(stub, zerolog.Nop(), RunnerOptions{Workers: 2})

	outcomes := runner.Run(context.Background(), []ArticleInput{
		{ArticleID: "ok-1"}, {ArticleID: "bad"}, {ArticleID: "ok-2"},
	})

	if outcomes[0].Err != nil || outcomes[2].Err != nil {
		t.Fatalf("healthy articles must succeed: %v, %v", outcomes[0].Err, outcomes[2].Err)
	}
	if !errors.Is(outcomes[1].Err, boom) {
		t.Fatalf("failing article error: got %v, want %v", outcomes[1].Err, boom)
	}
	if outcomes[1].Extraction != nil {
		t.Fatal("failed outcome must carry no extraction")
	}
}

func TestRunnerNoRetryOnNonRateLimitError(t *testing.T) {
	t.Parallel()

	stub := &stubExtractor{fn: func(_ ArticleInput, _ int) (*narrative.Extraction, error) {
		return nil, errors.New("invalid request")
	}}
	runner := NewRunner(stub, zerolog.Nop(), RunnerOptions{Workers: 1, MaxAttempts: 3})

	outcomes := runner.Run(context.Background(), []ArticleInput{{ArticleID: "a1"}})
	if outcomes[0].Err == nil {
		t.Fatal("expected failure outcome")
	}
	if got := stub.callCount("a1"); got != 1 {
		t.Fatalf("non-rate-limit errors must not retry: got %d calls, want 1", got)
	}
}

func TestRunnerRetriesRateLimit(t *testing.T) {
	t.Parallel()

	stub := &stubExtractor{fn: func(_ ArticleInput, attempt int) (*narrative.Extraction, error) {
		if attempt == 1 {
			return nil, fmt.Errorf("anthropic: rate_limit_error (429)")
		}
		return &narrative.Extraction{NucleusEntity: "SEC"}, nil
	}}
	runner := NewRunner(stub, zerolog.Nop(), RunnerOptions{Workers: 1, MaxAttempts: 2})

	start := time.Now()
	outcomes := runner.Run(context.Background(), []ArticleInput{{ArticleID: "a1"}})
	if outcomes[0].Err != nil {
		t.Fatalf("retry should recover: %v", outcomes[0].Err)
	}
	if got := stub.callCount("a1"); got != 2 {
		t.Fatalf("calls: got %d, want 2", got)
	}
	if elapsed := time.Since(start); elapsed < initialBackoff {
		t.Fatalf("expected backoff before retry, elapsed %v", elapsed)
	}
}

func TestRunnerRateLimitExhaustsAttempts(t *testing.T) {
	t.Parallel()

	stub := &stubExtractor{fn: func(_ ArticleInput, _ int) (*narrative.Extraction, error) {
		return nil, fmt.Errorf("anthropic: rate_limit_error (429)")
	}}
	runner := NewRunner(stub, zerolog.Nop(), RunnerOptions{Workers: 1, MaxAttempts: 1})

	outcomes := runner.Run(context.Background(), []ArticleInput{{ArticleID: "a1"}})
	if outcomes[0].Err == nil {
		t.Fatal("expected failure outcome")
	}
	if got := stub.callCount("a1"); got != 1 {
		t.Fatalf("calls: got %d, want MaxAttempts=1", got)
	}
}
