package worker

import (
	"context"
	"time"

	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/models"
)

// TipStore is the slice of the tip repository the background loops read.
type TipStore interface {
	Insert(ctx context.Context, tip *models.TipRecord) (bool, error)
	Get(ctx context.Context, txID string) (*models.TipRecord, error)
	ListUnprocessed(ctx context.Context, limit int) ([]*models.TipRecord, error)
}

// dispatchBatchLimit bounds one scan so a large backlog drains across ticks
// instead of flooding the queue.
const dispatchBatchLimit = 256

// Dispatcher is the retry scheduler. Each tick it reclaims stale in_progress
// actions, scans for pending actions whose retry time has arrived, and feeds
// them to the pool. Enqueueing the same action twice is harmless: the pool's
// claim is the arbiter.
type Dispatcher struct {
	actions      ActionStore
	tips         TipStore
	pool         *Pool
	interval     time.Duration
	reclaimAfter time.Duration
	logger       *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// DispatcherConfig holds configuration for the retry dispatcher
type DispatcherConfig struct {
	Actions      ActionStore
	Tips         TipStore
	Pool         *Pool
	Interval     time.Duration
	ReclaimAfter time.Duration
	Logger       *logging.Logger
}

// NewDispatcher creates a retry dispatcher
func NewDispatcher(cfg *DispatcherConfig) *Dispatcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	reclaimAfter := cfg.ReclaimAfter
	if reclaimAfter <= 0 {
		reclaimAfter = 5 * time.Minute
	}

	return &Dispatcher{
		actions:      cfg.Actions,
		tips:         cfg.Tips,
		pool:         cfg.Pool,
		interval:     interval,
		reclaimAfter: reclaimAfter,
		logger:       cfg.Logger.WithField("component", "dispatcher"),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop signals the loop and waits for it to finish.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick runs one reclaim-and-dispatch pass.
func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now().UTC()

	reclaimed, err := d.actions.ReclaimStale(ctx, now.Add(-d.reclaimAfter))
	if err != nil {
		d.logger.WithError(err).Error("failed to reclaim stale actions")
	} else if reclaimed > 0 {
		d.logger.WithField("count", reclaimed).Warn("reclaimed stale in-progress actions")
	}

	due, err := d.actions.ListDue(ctx, now, dispatchBatchLimit)
	if err != nil {
		d.logger.WithError(err).Error("failed to scan due actions")
		return
	}

	for _, action := range due {
		tip, err := d.tips.Get(ctx, action.TipTxID)
		if err != nil {
			d.logger.WithError(err).WithField("actionId", action.ID).Error("failed to load tip for due action")
			continue
		}

		if !d.pool.Enqueue(&Task{Action: action, Tip: tip}) {
			// Queue full; the rest of the batch waits for the next tick
			d.logger.Debug("worker queue full, deferring remaining due actions")
			return
		}
	}
}
