package history

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/infrastructure/logging"
)

const defaultQueueSize = 256

// Recorder persists request outcomes. It implements capture.Observer;
// only OnRequestFinished does anything.
type Recorder struct {
	repo      Repository
	logger    *logging.Logger
	queue     chan Entry
	retention time.Duration
	dropped   atomic.Uint64
}

// NewRecorder creates a recorder. retention <= 0 disables pruning.
func NewRecorder(repo Repository, logger *logging.Logger, retention time.Duration) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		repo:      repo,
		logger:    logger.Component("history"),
		queue:     make(chan Entry, defaultQueueSize),
		retention: retention,
	}
}

// OnRequestFinished queues the outcome for writing. It never blocks.
func (r *Recorder) OnRequestFinished(ev capture.OutcomeEvent) {
	e := Entry{
		Label:       ev.Label,
		RequestType: ev.RequestType,
		Origin:      ev.Origin,
		ProcessID:   ev.Requester.ProcessID,
		FrameID:     ev.Requester.FrameID,
		Result:      ev.Result,
		Devices:     ev.Devices,
		Duration:    ev.Duration,
		FinishedAt:  ev.Time,
	}
	select {
	case r.queue <- e:
	default:
		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			r.logger.Warn("history queue full, dropping outcomes", "dropped", n)
		}
	}
}

// OnStateChanged is a no-op.
func (r *Recorder) OnStateChanged(capture.StateChangeEvent) {}

// OnCapturingLinkSecured is a no-op.
func (r *Recorder) OnCapturingLinkSecured(capture.LinkSecuredEvent) {}

// Dropped returns how many outcomes were lost to a full queue.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Run writes queued outcomes until ctx is cancelled, then drains what is
// already queued. Pruning runs hourly when retention is set.
func (r *Recorder) Run(ctx context.Context) error {
	var prune <-chan time.Time
	if r.retention > 0 {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		prune = ticker.C
		r.prune(ctx)
	}

	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		case <-prune:
			r.prune(ctx)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Error("recording request outcome", "label", e.Label, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	n, err := r.repo.Prune(ctx, time.Now().Add(-r.retention))
	if err != nil {
		r.logger.Error("pruning request history", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("pruned request history", "removed", n)
	}
}
