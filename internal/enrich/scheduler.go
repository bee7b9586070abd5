package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/calens/calens/internal/logging"
	"github.com/calens/calens/internal/openai"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 5 * time.Second
)

// TextGenerator issues one resolver call for a serialized batch prompt.
// Implementations classify their failures (see openai.Error); the
// scheduler decides retry policy from that classification alone.
type TextGenerator func(ctx context.Context, prompt string) (string, error)

// Scheduler partitions prompt items into fixed-size batches and runs
// them concurrently under a counting admission gate. Each batch call is
// wrapped in a bounded retry loop with exponential backoff for
// transient failures.
type Scheduler struct {
	Generate       TextGenerator
	BatchSize      int
	MaxConcurrency int

	// Retry policy. Zero values fall back to the defaults
	// (5 attempts, 5s base doubling per attempt).
	MaxAttempts int
	BackoffBase time.Duration

	// Sleep is swappable for tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (s *Scheduler) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

func (s *Scheduler) backoffBase() time.Duration {
	if s.BackoffBase > 0 {
		return s.BackoffBase
	}
	return defaultBackoffBase
}

func (s *Scheduler) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Run executes all batches for the given items and returns the parsed
// result objects keyed only by their embedded event_id; ordering across
// batches is not guaranteed. On failure the results from batches that
// did succeed are returned alongside the first error: the caller merges
// what it can and surfaces the failure for the enrichment kind.
func (s *Scheduler) Run(ctx context.Context, items []PromptItem, promptTemplate string) ([]json.RawMessage, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = len(items)
	}

	var batches [][]PromptItem
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}

	concurrency := s.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	gate := make(chan struct{}, concurrency)

	var (
		mu       sync.Mutex
		results  []json.RawMessage
		firstErr error
	)
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func(n int, batch []PromptItem) {
			defer wg.Done()
			gate <- struct{}{}
			defer func() { <-gate }()

			batchResults, err := s.callBatch(ctx, batch, promptTemplate)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.Error("batch failed", err, "batch", n, "items", len(batch))
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results = append(results, batchResults...)
		}(i, batch)
	}
	wg.Wait()

	return results, firstErr
}

// callBatch serializes one batch, issues the call, and retries with
// exponential backoff while the failure is classified transient. A
// response that fails to parse yields zero results without error.
func (s *Scheduler) callBatch(ctx context.Context, batch []PromptItem, promptTemplate string) ([]json.RawMessage, error) {
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	prompt := strings.Replace(promptTemplate, "{events_json}", string(payload), 1)

	attempts := s.maxAttempts()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		text, err := s.Generate(ctx, prompt)
		if err == nil {
			return parseResults(text), nil
		}

		if !openai.IsTransient(err) {
			return nil, err
		}

		lastErr = err
		if attempt < attempts-1 {
			// 5s, 10s, 20s, 40s, 80s
			backoff := s.backoffBase() * (1 << attempt)
			logging.Debug("transient batch failure, backing off", "attempt", attempt, "backoff", backoff)
			s.sleep(backoff)
		}
	}

	return nil, fmt.Errorf("batch retries exhausted: %w", lastErr)
}
