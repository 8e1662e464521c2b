package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/metrics"
	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/retry"
	"github.com/creator-rewards/internal/types"
)

// ActionStore is the slice of the action repository the pool and dispatcher
// drive the state machine through.
type ActionStore interface {
	Claim(ctx context.Context, id string) (bool, error)
	Complete(ctx context.Context, id, tipTxID string) error
	Fail(ctx context.Context, id, tipTxID string, status types.ActionStatus, nextRetryAt time.Time, class types.ErrorClass, errMsg string) error
	CreateBatch(ctx context.Context, actions []*models.RewardAction) error
	ListByTip(ctx context.Context, tipTxID string) ([]*models.RewardAction, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.RewardAction, error)
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Task is one unit of work for the pool: an action plus the tip it derives
// from.
type Task struct {
	Action *models.RewardAction
	Tip    *models.TipRecord
}

// Pool executes reward actions on a bounded set of workers. Claiming happens
// inside the pool, so a task can be enqueued from several places (supervisor,
// dispatcher, recovery) and still execute at most once per attempt.
type Pool struct {
	actions   ActionStore
	executors map[types.RewardKind]Executor
	policy    *retry.Policy
	metrics   *metrics.ListenerMetrics
	logger    *logging.Logger

	size    int
	queue   chan *Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	running bool
	mu      sync.Mutex
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	Actions   ActionStore
	Executors map[types.RewardKind]Executor
	Policy    *retry.Policy
	Metrics   *metrics.ListenerMetrics
	Logger    *logging.Logger
	PoolSize  int
	QueueSize int
}

// NewPool creates a worker pool
func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg.Actions == nil {
		return nil, fmt.Errorf("action store cannot be nil")
	}
	if len(cfg.Executors) == 0 {
		return nil, fmt.Errorf("at least one executor is required")
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	policy := cfg.Policy
	if policy == nil {
		policy = retry.DefaultPolicy()
	}

	return &Pool{
		actions:   cfg.Actions,
		executors: cfg.Executors,
		policy:    policy,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.WithField("component", "worker_pool"),
		size:      size,
		queue:     make(chan *Task, queueSize),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithField("workers", p.size).Info("starting worker pool")
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Enqueue offers a task to the pool without blocking. Returns false when the
// queue is full; the dispatcher's next scan will pick the action up again.
func (p *Pool) Enqueue(task *Task) bool {
	select {
	case p.queue <- task:
		return true
	default:
		return false
	}
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-p.queue:
			p.process(ctx, task)
		}
	}
}

func (p *Pool) process(ctx context.Context, task *Task) {
	action := task.Action
	logger := p.logger.WithFields(map[string]interface{}{
		"actionId": action.ID,
		"kind":     action.Kind,
		"txId":     action.TipTxID,
	})

	claimed, err := p.actions.Claim(ctx, action.ID)
	if err != nil {
		logger.WithError(err).Error("failed to claim action")
		return
	}
	if !claimed {
		// Another worker won, or the action already settled
		return
	}
	attempt := action.Attempts + 1

	execErr := p.execute(ctx, task)
	if execErr == nil {
		if err := p.actions.Complete(ctx, action.ID, action.TipTxID); err != nil {
			logger.WithError(err).Error("failed to record action completion")
			return
		}
		if p.metrics != nil && attempt > 1 {
			p.metrics.RecordRetrySuccess()
		}
		logger.WithField("attempt", attempt).Debug("action completed")
		return
	}

	class := types.ClassifyActionError(execErr)
	decision := p.policy.Decide(attempt, class, time.Now().UTC())

	if err := p.actions.Fail(ctx, action.ID, action.TipTxID,
		decision.Status, decision.NextRetryAt, class, execErr.Error()); err != nil {
		logger.WithError(err).Error("failed to record action failure")
		return
	}

	if p.metrics != nil {
		if attempt > 1 {
			p.metrics.RecordRetryFail()
		}
		if decision.Status == types.ActionFailedPermanent {
			p.metrics.RecordMintFailed()
		}
	}

	entry := logger.WithError(execErr).WithFields(map[string]interface{}{
		"attempt":    attempt,
		"errorClass": class,
	})
	if decision.Status == types.ActionFailedPermanent {
		entry.Error("action permanently failed")
	} else {
		entry.WithField("nextRetryAt", decision.NextRetryAt).Warn("action failed, retry scheduled")
	}
}

func (p *Pool) execute(ctx context.Context, task *Task) error {
	exec, ok := p.executors[task.Action.Kind]
	if !ok {
		return types.NewPermanentActionError("dispatch action",
			fmt.Errorf("no executor registered for kind %q", task.Action.Kind))
	}
	return exec.Execute(ctx, task.Action, task.Tip)
}
