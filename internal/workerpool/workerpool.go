// Package workerpool is the background-job harness (C16). It generalises
// two patterns the teacher keeps as separate, copy-pasted main()s:
// cmd/worker's single-ticker janitor loop (runJanitor on an hourly tick,
// signal-driven graceful shutdown) and cmd/emailworker's poll-batch-retry
// loop (fixed interval, FOR UPDATE SKIP LOCKED batch fetch, per-item
// timeout, exponential backoff). Task turns the first into a reusable
// scheduled job; BatchRunner turns the second into a reusable bounded
// batch processor, so cmd/worker can register session sweep, verification
// token GC, and audit-chain anchoring as Tasks instead of three hand-rolled
// for/select loops.
package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one scheduled background job: Run fires every Interval until the
// scheduler's context is cancelled. RunImmediately mirrors the teacher's
// "directe run bij opstarten" comment in cmd/worker/main.go.
type Task struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool
	Run            func(ctx context.Context) error
}

// Scheduler runs a set of independent Tasks, each on its own ticker, and
// shuts all of them down together when its context is cancelled. Unlike the
// teacher's single-purpose main(), a Scheduler can host any number of
// janitor-style jobs in one process.
type Scheduler struct {
	logger *slog.Logger
	tasks  []Task
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Register adds t to the scheduler. Must be called before Run.
func (s *Scheduler) Register(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run blocks until ctx is cancelled, running every registered task on its
// own ticker concurrently. A panic in one task's Run is recovered and
// logged so one misbehaving job cannot take the whole scheduler down —
// mirroring the recover-and-log discipline C8's audit Append already uses.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			s.runTask(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (s *Scheduler) runTask(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	if t.RunImmediately {
		s.execute(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("task stopped", "task", t.Name)
			return
		case <-ticker.C:
			s.execute(ctx, t)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", t.Name, "panic", r)
		}
	}()
	if err := t.Run(ctx); err != nil {
		s.logger.Error("task failed", "task", t.Name, "error", err)
	}
}

// BatchRunner is a bounded, concurrent batch processor: Fetch pulls up to
// BatchSize items (a SELECT ... FOR UPDATE SKIP LOCKED query is the
// expected shape, per the teacher's processQueue), and Process handles one
// item under its own ItemTimeout so a single slow item cannot starve the
// rest of the batch — the teacher's emailworker enforces the same 15s
// per-email timeout for the same reason.
type BatchRunner[T any] struct {
	Fetch       func(ctx context.Context, batchSize int) ([]T, error)
	Process     func(ctx context.Context, item T) error
	BatchSize   int
	Concurrency int
	ItemTimeout time.Duration
	Logger      *slog.Logger
}

// PollOnce fetches one batch and processes it with bounded concurrency,
// returning once every item in the batch has been attempted. It is the
// single poll cycle the teacher's emailworker runs on every ticker tick.
func (b *BatchRunner[T]) PollOnce(ctx context.Context) (processed int, err error) {
	items, err := b.Fetch(ctx, b.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	concurrency := b.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, item := range items {
		item := item
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			itemCtx, cancel := context.WithTimeout(ctx, b.ItemTimeout)
			defer cancel()
			if perr := b.Process(itemCtx, item); perr != nil {
				b.Logger.Error("batch item failed", "error", perr)
			}
		}()
	}
	wg.Wait()
	return len(items), nil
}

// Backoff returns the teacher's exponential schedule (5m, 10m, 20m, ...)
// for the attempt'th retry (0-indexed), matching the SQL in the teacher's
// markFailed: NOW() + POWER(2, retry_count) * INTERVAL '5 minutes'.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
