package receiver

import (
	"context"
	"fmt"
)

// Supervisor runs one receiver's loop until ctx is cancelled or it fails.
// Concrete Source implementations (Kinesis, Kafka, an in-memory test
// stream, ...) provide this; the tracker only orchestrates lifecycle.
type Supervisor interface {
	StreamID() int
	PreferredHost() string
	Run(ctx context.Context, tracker *Tracker) error
}

// Scheduler places receiver supervisors onto distinct executors. WarmUp
// submits a no-op job first so the cluster has warm executors before
// receivers are scheduled; Launch submits one single-partition task per
// receiver honoring host affinity.
type Scheduler interface {
	WarmUp(ctx context.Context, hostHints []string) error
	Launch(ctx context.Context, sup Supervisor) error
}

// Start enumerates the given receiver supervisors, submits a warm-up job,
// then schedules one task per receiver so that distinct receivers land on
// distinct executors. Each task's failure is reported via ReportError
// rather than failing Start itself — a single receiver dying does not
// abort the tracker.
func (t *Tracker) Start(ctx context.Context, sups []Supervisor, scheduler Scheduler) error {
	recvCtx, cancel := context.WithCancel(ctx)
	t.cancelRecv = cancel

	hints := make([]string, 0, len(sups))
	for _, s := range sups {
		if h := s.PreferredHost(); h != "" {
			hints = append(hints, h)
		}
	}
	if err := scheduler.WarmUp(recvCtx, hints); err != nil {
		cancel()
		return fmt.Errorf("receiver: warm-up job failed: %w", err)
	}

	for _, sup := range sups {
		sup := sup
		t.launcherWG.Add(1)
		go func() {
			defer t.launcherWG.Done()
			if err := scheduler.Launch(recvCtx, sup); err != nil && recvCtx.Err() == nil {
				t.ReportError(sup.StreamID(), "receiver launch failed", err)
			}
		}()
	}
	return nil
}
