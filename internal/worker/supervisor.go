package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creator-rewards/internal/event"
	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/metrics"
	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/planner"
	"github.com/creator-rewards/internal/storage"
	"github.com/creator-rewards/internal/types"
)

// Fetcher is the read surface of the ledger indexer client.
type Fetcher interface {
	FetchSince(ctx context.Context, appID, afterRound uint64) ([]*types.RawTransaction, uint64, error)
	CurrentRound(ctx context.Context) (uint64, error)
}

// ContractSource lists the contract instances to watch.
type ContractSource interface {
	ListActiveContracts(ctx context.Context) ([]*models.CreatorContract, error)
}

// ConfigSource resolves a creator's planner configuration.
type ConfigSource interface {
	GetCreatorConfig(ctx context.Context, creatorWallet string) (*models.CreatorConfig, error)
}

// CheckpointStore persists the ingestion cursor.
type CheckpointStore interface {
	Get(ctx context.Context) (*models.Checkpoint, error)
	Advance(ctx context.Context, round uint64) (bool, error)
	Heartbeat(ctx context.Context, at time.Time) error
}

// Archiver receives recorded tips for analytics. Optional.
type Archiver interface {
	Record(tip *models.TipRecord)
}

// Supervisor drives the ingestion cycle: fetch confirmed transactions past
// the checkpoint, decode and record them, plan reward actions, hand the work
// to the pool, then advance the checkpoint. The checkpoint only moves after
// every tip in the batch is durably recorded, so a crash replays the batch
// and the dedup layer absorbs it.
type Supervisor struct {
	fetcher     Fetcher
	contracts   ContractSource
	configs     ConfigSource
	tips        TipStore
	actions     ActionStore
	checkpoints CheckpointStore
	archive     Archiver
	pool        *Pool
	metrics     *metrics.ListenerMetrics
	logger      *logging.Logger

	pollInterval     time.Duration
	errorBackoffMax  time.Duration
	errorBackoffTrip int

	lastRound        uint64
	consecutiveFails int
	running          bool
	mu               sync.RWMutex
	stopCh           chan struct{}
	doneCh           chan struct{}
}

// SupervisorConfig holds configuration for the poll supervisor
type SupervisorConfig struct {
	Fetcher     Fetcher
	Contracts   ContractSource
	Configs     ConfigSource
	Tips        TipStore
	Actions     ActionStore
	Checkpoints CheckpointStore
	Archive     Archiver // optional
	Pool        *Pool
	Metrics     *metrics.ListenerMetrics
	Logger      *logging.Logger

	PollInterval     time.Duration
	ErrorBackoffMax  time.Duration
	ErrorBackoffTrip int
}

// NewSupervisor creates a poll supervisor
func NewSupervisor(cfg *SupervisorConfig) (*Supervisor, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if cfg.Contracts == nil {
		return nil, fmt.Errorf("contract source cannot be nil")
	}
	if cfg.Configs == nil {
		return nil, fmt.Errorf("config source cannot be nil")
	}
	if cfg.Tips == nil || cfg.Actions == nil || cfg.Checkpoints == nil {
		return nil, fmt.Errorf("tip, action, and checkpoint stores cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("worker pool cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}
	backoffMax := cfg.ErrorBackoffMax
	if backoffMax == 0 {
		backoffMax = 60 * time.Second
	}
	trip := cfg.ErrorBackoffTrip
	if trip <= 0 {
		trip = 5
	}

	return &Supervisor{
		fetcher:          cfg.Fetcher,
		contracts:        cfg.Contracts,
		configs:          cfg.Configs,
		tips:             cfg.Tips,
		actions:          cfg.Actions,
		checkpoints:      cfg.Checkpoints,
		archive:          cfg.Archive,
		pool:             cfg.Pool,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger.WithField("component", "supervisor"),
		pollInterval:     pollInterval,
		errorBackoffMax:  backoffMax,
		errorBackoffTrip: trip,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}, nil
}

// Start loads the checkpoint, replans any tips a crash left without actions,
// and begins polling.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is already running")
	}
	s.running = true
	s.mu.Unlock()

	cp, err := s.checkpoints.Get(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	s.lastRound = cp.LastProcessedRound

	if s.metrics != nil {
		s.metrics.SetRunning(true)
		s.metrics.SetLastProcessedRound(s.lastRound)
	}

	s.logger.WithField("lastProcessedRound", s.lastRound).Info("supervisor starting")

	if err := s.recoverUnplanned(ctx); err != nil {
		s.logger.WithError(err).Warn("startup recovery incomplete, continuing")
	}

	go s.pollLoop(ctx)

	return nil
}

// Stop gracefully stops the supervisor.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		s.logger.Info("supervisor stopped")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetRunning(false)
	}

	return nil
}

// LastProcessedRound returns the round the supervisor has fully ingested.
func (s *Supervisor) LastProcessedRound() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRound
}

func (s *Supervisor) pollLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.consecutiveFails++
				s.logger.WithError(err).WithField("consecutiveFails", s.consecutiveFails).Error("poll tick failed")

				if s.consecutiveFails >= s.errorBackoffTrip {
					s.logger.WithField("backoff", s.errorBackoffMax).Warn("stretching poll interval after repeated failures")
					select {
					case <-time.After(s.errorBackoffMax):
					case <-s.stopCh:
						return
					case <-ctx.Done():
						return
					}
				}
				continue
			}
			s.consecutiveFails = 0
		}
	}
}

// Tick runs one ingestion cycle. Exported for tests.
func (s *Supervisor) Tick(ctx context.Context) error {
	// A prior cycle can record a tip and then fail before planning; the
	// replayed batch dedups into a skip, so stranded tips are replanned
	// here, not only at startup.
	if err := s.recoverUnplanned(ctx); err != nil {
		return fmt.Errorf("failed to replan stranded tips: %w", err)
	}

	contracts, err := s.contracts.ListActiveContracts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list contracts: %w", err)
	}
	snapshot := storage.NewContractSnapshot(contracts)
	normalizer := event.NewNormalizer(snapshot)

	s.mu.RLock()
	afterRound := s.lastRound
	s.mu.RUnlock()

	maxRound := afterRound
	var recorded int

	for _, contract := range contracts {
		txns, high, err := s.fetcher.FetchSince(ctx, contract.AppID, afterRound)
		if err != nil {
			if s.metrics != nil && types.IsTransientFetch(err) {
				s.metrics.RecordIndexerError()
			}
			return fmt.Errorf("failed to fetch transactions for app %d: %w", contract.AppID, err)
		}
		if high > maxRound {
			maxRound = high
		}

		for _, raw := range txns {
			if err := s.processTransaction(ctx, normalizer, raw); err != nil {
				return err
			}
			recorded++
		}
	}

	// Advance only after every tip in the batch is durably recorded
	if maxRound > afterRound {
		if _, err := s.checkpoints.Advance(ctx, maxRound); err != nil {
			return err
		}
		s.mu.Lock()
		s.lastRound = maxRound
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SetLastProcessedRound(maxRound)
		}
	}

	// Stamped only after a fully successful cycle. Repeated failing ticks
	// let the heartbeat go stale so a liveness check treats broken
	// ingestion the same as a dead process.
	now := time.Now().UTC()
	if err := s.checkpoints.Heartbeat(ctx, now); err != nil {
		s.logger.WithError(err).Warn("failed to stamp heartbeat")
	}
	if s.metrics != nil {
		s.metrics.Heartbeat()

		// Lag reporting is best effort
		if head, err := s.fetcher.CurrentRound(ctx); err == nil {
			s.metrics.SetCurrentRound(head)
		}
	}

	if recorded > 0 {
		s.logger.WithFields(map[string]interface{}{
			"transactions": recorded,
			"round":        maxRound,
		}).Info("poll tick processed transactions")
	}

	return nil
}

// processTransaction records one raw transaction and plans its rewards.
// Decode failures are logged and skipped; storage failures abort the tick so
// the checkpoint stays behind the unrecorded tip.
func (s *Supervisor) processTransaction(ctx context.Context, normalizer *event.Normalizer, raw *types.RawTransaction) error {
	ev, err := normalizer.Normalize(raw)
	if err != nil {
		if types.IsDecodeError(err) {
			s.logger.WithError(err).WithField("txId", raw.TxID).Warn("skipping undecodable transaction")
			return nil
		}
		return err
	}

	tip := models.FromTipEvent(ev)
	inserted, err := s.tips.Insert(ctx, tip)
	if err != nil {
		return fmt.Errorf("failed to record tip %s: %w", tip.TxID, err)
	}
	if !inserted {
		// Replayed batch; the tip and its actions already exist
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordTipProcessed()
	}
	if s.archive != nil {
		s.archive.Record(tip)
	}

	return s.planTip(ctx, tip)
}

// planTip computes and persists the reward actions for a tip, then offers
// them to the pool.
func (s *Supervisor) planTip(ctx context.Context, tip *models.TipRecord) error {
	cfg, err := s.configs.GetCreatorConfig(ctx, tip.CreatorWallet)
	if err != nil {
		// The tip is recorded; startup recovery replans it if we fail here
		return fmt.Errorf("failed to load creator config for %s: %w", tip.CreatorWallet, err)
	}

	intents := planner.Plan(tip, cfg)
	actions := make([]*models.RewardAction, 0, len(intents))
	for _, intent := range intents {
		action := models.NewRewardAction(tip.TxID, intent.Kind)
		action.TemplateID = intent.TemplateID
		action.TierName = intent.TierName
		actions = append(actions, action)
	}

	if err := s.actions.CreateBatch(ctx, actions); err != nil {
		return fmt.Errorf("failed to create reward actions for tip %s: %w", tip.TxID, err)
	}

	for _, action := range actions {
		// A full queue is fine: the dispatcher picks pending actions up
		s.pool.Enqueue(&Task{Action: action, Tip: tip})
	}

	return nil
}

// recoverUnplanned replans tips that were recorded but lost their planning
// step to a crash or a failed cycle. Runs at startup and at the top of every
// tick. Tips whose actions exist are left to the dispatcher.
func (s *Supervisor) recoverUnplanned(ctx context.Context) error {
	tips, err := s.tips.ListUnprocessed(ctx, 500)
	if err != nil {
		return err
	}

	var replanned int
	for _, tip := range tips {
		existing, err := s.actions.ListByTip(ctx, tip.TxID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		if err := s.planTip(ctx, tip); err != nil {
			return err
		}
		replanned++
	}

	if replanned > 0 {
		s.logger.WithField("count", replanned).Info("replanned tips left unplanned by previous run")
	}

	return nil
}
