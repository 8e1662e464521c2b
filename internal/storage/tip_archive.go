package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/models"
)

// TipArchive streams recorded tips into ClickHouse for analytics. Writes are
// asynchronous and best effort: the archive sits off the delivery path, so a
// ClickHouse outage slows nothing down and loses at worst one buffered batch.
// Postgres remains the source of truth.
type TipArchive struct {
	db     *ClickHouseDB
	logger *logging.Logger

	events chan *models.TipRecord
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	batchSize     int
	flushInterval time.Duration
}

// NewTipArchive creates a tip archive writer. Call Start to begin flushing.
func NewTipArchive(db *ClickHouseDB, logger *logging.Logger) *TipArchive {
	return &TipArchive{
		db:            db,
		logger:        logger.WithField("component", "tip_archive"),
		events:        make(chan *models.TipRecord, 1024),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		batchSize:     200,
		flushInterval: 5 * time.Second,
	}
}

// Start launches the background flusher.
func (a *TipArchive) Start() {
	go a.flushLoop()
}

// Stop drains the buffer and waits for the final flush.
func (a *TipArchive) Stop() {
	a.once.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

// Record queues a tip for archival. Never blocks: when the buffer is full the
// event is dropped and counted against the log.
func (a *TipArchive) Record(tip *models.TipRecord) {
	select {
	case a.events <- tip:
	default:
		a.logger.WithField("txId", tip.TxID).Warn("archive buffer full, dropping tip event")
	}
}

func (a *TipArchive) flushLoop() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]*models.TipRecord, 0, a.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.insertBatch(batch); err != nil {
			a.logger.WithError(err).WithField("count", len(batch)).Error("failed to archive tip batch")
		}
		batch = batch[:0]
	}

	for {
		select {
		case tip := <-a.events:
			batch = append(batch, tip)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stopCh:
			// Drain whatever is still queued before the final flush
			for {
				select {
				case tip := <-a.events:
					batch = append(batch, tip)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *TipArchive) insertBatch(tips []*models.TipRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO tip_events (
			tx_id, fan_wallet, creator_wallet, app_id,
			amount_micro, memo, round, detected_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, tip := range tips {
		err := batch.Append(
			tip.TxID,
			tip.FanWallet,
			tip.CreatorWallet,
			tip.AppID,
			tip.AmountMicro,
			tip.Memo,
			tip.Round,
			tip.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append to archive batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}
	return nil
}

// EnsureArchiveSchema creates the ClickHouse table if it does not exist.
func EnsureArchiveSchema(ctx context.Context, db *ClickHouseDB) error {
	query := `
		CREATE TABLE IF NOT EXISTS tip_events (
			tx_id String,
			fan_wallet String,
			creator_wallet String,
			app_id UInt64,
			amount_micro UInt64,
			memo String,
			round UInt64,
			detected_at DateTime64(3, 'UTC')
		)
		ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(detected_at)
		ORDER BY (creator_wallet, round, tx_id)
	`
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}
