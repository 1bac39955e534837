package streaming

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/novatechflow/streamcore/pkg/offset"
	"github.com/novatechflow/streamcore/pkg/progress"
)

const defaultAwaitPollInterval = 100 * time.Millisecond

// sourceKey adapts a Source's stable String() identity to progress.Source.
type sourceKey struct{ Source }

func (k sourceKey) ID() string { return k.String() }

// Config configures a Loop.
type Config struct {
	Sources     []Source
	Sink        Sink
	Rewriter    PlanRewriter
	Executor    PlanExecutor
	MinBatchGap time.Duration
	MaxBatches  int
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Loop is one dedicated worker driving a single streaming query: sleep,
// poll every source, rewrite the plan, execute, and commit under the
// progress lock.
type Loop struct {
	sources  []Source
	sink     Sink
	rewrite  PlanRewriter
	execute  PlanExecutor
	minGap   time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	history  *history
	progress *progress.Tracker

	mu        sync.Mutex
	notifyCh  chan struct{} // closed and replaced under mu each time progress advances or the loop fails
	active    bool
	stopped   bool
	exception *QueryException
	nextBatch int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// notifyLocked wakes every AwaitOffset waiter. Callers must hold l.mu.
func (l *Loop) notifyLocked() {
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
}

// NewLoop constructs and starts a Loop. If sink.CurrentOffset() returns a
// CompositeOffset, StreamProgress is seeded from it — replaying the last
// committed offsets — before the worker starts.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.MinBatchGap <= 0 {
		cfg.MinBatchGap = 10 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	l := &Loop{
		sources:  cfg.Sources,
		sink:     cfg.Sink,
		rewrite:  cfg.Rewriter,
		execute:  cfg.Executor,
		minGap:   cfg.MinBatchGap,
		logger:   logger,
		metrics:  metrics,
		history:  newHistory(cfg.MaxBatches),
		progress: progress.NewTracker(),
		active:   true,
		notifyCh: make(chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if err := l.seedProgress(); err != nil {
		return nil, err
	}

	go l.run()
	return l, nil
}

func (l *Loop) seedProgress() error {
	current, ok := l.sink.CurrentOffset()
	if !ok {
		return nil
	}
	if current.Len() != len(l.sources) {
		panic(fmt.Sprintf("streaming: sink's current offset has %d components, expected %d sources", current.Len(), len(l.sources)))
	}
	for i, src := range l.sources {
		if o := current.At(i); o != nil {
			if err := l.progress.Update(sourceKey{src}, o); err != nil {
				return fmt.Errorf("streaming: seed progress for %s: %w", src, err)
			}
		}
	}
	return nil
}

// Progress exposes the loop's StreamProgress for read-only inspection.
func (l *Loop) Progress() *progress.Tracker { return l.progress }

func (l *Loop) run() {
	defer close(l.doneCh)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-l.stopCh:
			return
		case <-time.After(l.minGap):
		}
		if l.isStoppedOrInactive() {
			return
		}

		start := time.Now()
		batches, err := l.pollSources(ctx)
		if err != nil {
			l.fail("polling sources for new data failed", err)
			return
		}
		if len(batches) == 0 {
			continue
		}

		plan, err := l.rewrite(batches)
		if err != nil {
			l.fail("plan rewrite failed", err)
			return
		}
		result, err := l.execute(ctx, plan)
		if err != nil {
			l.fail("plan execution failed", err)
			return
		}

		updates := make([]progress.BatchUpdate, 0, len(batches))
		for src, b := range batches {
			updates = append(updates, progress.BatchUpdate{Source: sourceKey{src}, Offset: b.EndOffset})
		}

		startOffset := l.progress.ToOffset().String()
		var batchID int64
		commitErr := l.progress.CommitBatch(updates, func(composite offset.CompositeOffset) error {
			if err := l.sink.AddBatch(ctx, composite, result); err != nil {
				return err
			}
			l.mu.Lock()
			l.nextBatch++
			batchID = l.nextBatch
			l.mu.Unlock()
			l.metrics.batchesCompleted.Inc()
			l.metrics.sourcesPerBatch.Observe(float64(len(batches)))
			l.history.add(QueryMetrics{
				BatchID:        batchID,
				StartOffset:    startOffset,
				EndOffset:      composite.String(),
				NumSources:     len(batches),
				ProcessingTime: time.Since(start),
				CompletedAt:    time.Now(),
			})
			return nil
		})
		l.metrics.batchDuration.Observe(time.Since(start).Seconds())
		if commitErr != nil {
			l.fail("sink commit failed", commitErr)
			return
		}
		l.mu.Lock()
		l.notifyLocked()
		l.mu.Unlock()
	}
}

func (l *Loop) isStoppedOrInactive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped || !l.active
}

func (l *Loop) pollSources(ctx context.Context) (map[Source]*Batch, error) {
	batches := make(map[Source]*Batch)
	for _, src := range l.sources {
		last, _ := l.progress.Get(sourceKey{src})
		batch, err := src.GetNextBatch(ctx, last)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
		if batch == nil {
			continue
		}
		if last != nil {
			ord, err := last.CompareTo(batch.EndOffset)
			if err != nil {
				return nil, fmt.Errorf("source %s: compare batch end offset: %w", src, err)
			}
			if ord != offset.Less {
				return nil, fmt.Errorf("source %s: returned batch end offset %s not strictly greater than last committed %s", src, batch.EndOffset, last)
			}
		}
		batches[src] = batch
	}
	return batches, nil
}

func (l *Loop) fail(message string, cause error) {
	l.metrics.batchesFailed.Inc()
	l.mu.Lock()
	end := l.progress.ToOffset()
	exc := &QueryException{
		Message:     message,
		Cause:       cause,
		StartOffset: l.progress.ToOffset(),
		EndOffset:   &end,
	}
	l.exception = exc
	l.active = false
	l.notifyLocked()
	l.mu.Unlock()
	l.logger.Error("streaming query terminated with exception", "message", message, "error", cause)
}

// IsActive reports whether the loop is still running.
func (l *Loop) IsActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Exception returns the captured failure, if the loop terminated
// abnormally.
func (l *Loop) Exception() *QueryException {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exception
}

// History returns the retained per-batch metrics, bounded by MaxBatches.
func (l *Loop) History() []QueryMetrics { return l.history.Snapshot() }

// AwaitOffset blocks until source has advanced to at least offset, waking
// at least every 100ms to re-check. Any exception in the execution loop
// interrupts the wait and is returned.
func (l *Loop) AwaitOffset(source Source, target offset.Offset) error {
	key := sourceKey{source}
	for {
		if exc := l.Exception(); exc != nil {
			return exc
		}
		if current, ok := l.progress.Get(key); ok {
			ord, err := current.CompareTo(target)
			if err != nil {
				return fmt.Errorf("streaming: await offset for %s: %w", source, err)
			}
			if ord != offset.Less {
				return nil
			}
		}
		l.mu.Lock()
		wake := l.notifyCh
		l.mu.Unlock()

		select {
		case <-l.doneCh:
			if exc := l.Exception(); exc != nil {
				return exc
			}
			return nil
		case <-wake:
		case <-time.After(defaultAwaitPollInterval):
		}
	}
}

// AwaitTermination blocks until the execution loop has exited. If it
// exited with an exception, AwaitTermination re-raises it.
func (l *Loop) AwaitTermination() error {
	<-l.doneCh
	if exc := l.Exception(); exc != nil {
		return exc
	}
	return nil
}

// AwaitTerminationTimeout blocks until the loop exits or timeout elapses,
// returning !IsActive() either way. timeout must be positive.
func (l *Loop) AwaitTerminationTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		panic("streaming: AwaitTerminationTimeout requires a positive timeout")
	}
	select {
	case <-l.doneCh:
	case <-time.After(timeout):
	}
	return !l.IsActive()
}

// Stop sets active=false, signals the worker, and joins it. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.active = false
		l.mu.Unlock()
		close(l.stopCh)
	})
	<-l.doneCh
}
