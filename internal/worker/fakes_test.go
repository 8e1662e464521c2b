package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/creator-rewards/internal/assets"
	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
)

// fakeActionStore mirrors the repository's state machine in memory.
type fakeActionStore struct {
	mu      sync.Mutex
	actions map[string]*models.RewardAction
}

func newFakeActionStore() *fakeActionStore {
	return &fakeActionStore{actions: make(map[string]*models.RewardAction)}
}

// get returns a snapshot, matching what a repository read would hand back.
func (f *fakeActionStore) get(id string) *models.RewardAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok {
		return nil
	}
	copied := *a
	return &copied
}

func (f *fakeActionStore) setNextRetry(id string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok {
		a.NextRetryAt = at
	}
}

func (f *fakeActionStore) Claim(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != types.ActionPending {
		return false, nil
	}
	a.Status = types.ActionInProgress
	a.Attempts++
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *fakeActionStore) Complete(ctx context.Context, id, tipTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != types.ActionInProgress {
		return fmt.Errorf("action %s is not in progress", id)
	}
	a.Status = types.ActionDone
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeActionStore) Fail(ctx context.Context, id, tipTxID string, status types.ActionStatus, nextRetryAt time.Time, class types.ErrorClass, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != types.ActionInProgress {
		return fmt.Errorf("action %s is not in progress", id)
	}
	a.Status = status
	a.NextRetryAt = nextRetryAt
	a.LastErrorClass = class
	a.LastError = errMsg
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeActionStore) CreateBatch(ctx context.Context, actions []*models.RewardAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range actions {
		dup := false
		for _, existing := range f.actions {
			if existing.TipTxID == a.TipTxID && existing.Kind == a.Kind {
				dup = true
				break
			}
		}
		if !dup {
			copied := *a
			f.actions[a.ID] = &copied
		}
	}
	return nil
}

func (f *fakeActionStore) ListByTip(ctx context.Context, tipTxID string) ([]*models.RewardAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RewardAction
	for _, a := range f.actions {
		if a.TipTxID == tipTxID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActionStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.RewardAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RewardAction
	for _, a := range f.actions {
		if a.Status == types.ActionPending && !a.NextRetryAt.After(now) {
			copied := *a
			out = append(out, &copied)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeActionStore) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.actions {
		if a.Status == types.ActionInProgress && a.UpdatedAt.Before(olderThan) {
			a.Status = types.ActionPending
			a.NextRetryAt = time.Now().UTC()
			a.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

type fakeTipStore struct {
	mu   sync.Mutex
	tips map[string]*models.TipRecord
}

func newFakeTipStore() *fakeTipStore {
	return &fakeTipStore{tips: make(map[string]*models.TipRecord)}
}

func (f *fakeTipStore) Insert(ctx context.Context, tip *models.TipRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tips[tip.TxID]; exists {
		return false, nil
	}
	copied := *tip
	f.tips[tip.TxID] = &copied
	return true, nil
}

func (f *fakeTipStore) Get(ctx context.Context, txID string) (*models.TipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tip, ok := f.tips[txID]
	if !ok {
		return nil, fmt.Errorf("tip record not found for tx %s", txID)
	}
	return tip, nil
}

func (f *fakeTipStore) ListUnprocessed(ctx context.Context, limit int) ([]*models.TipRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.TipRecord
	for _, tip := range f.tips {
		if !tip.Processed {
			out = append(out, tip)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type fakeCheckpointStore struct {
	mu    sync.Mutex
	round uint64
	beats int
}

func (f *fakeCheckpointStore) Get(ctx context.Context) (*models.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Checkpoint{LastProcessedRound: f.round}, nil
}

func (f *fakeCheckpointStore) Advance(ctx context.Context, round uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if round <= f.round {
		return false, nil
	}
	f.round = round
	return true, nil
}

func (f *fakeCheckpointStore) Heartbeat(ctx context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	return nil
}

func (f *fakeCheckpointStore) Round() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.round
}

func (f *fakeCheckpointStore) Beats() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beats
}

type fakeFetcher struct {
	mu      sync.Mutex
	txns    map[uint64][]*types.RawTransaction
	head    uint64
	fetches int
	err     error
}

func (f *fakeFetcher) FetchSince(ctx context.Context, appID, afterRound uint64) ([]*types.RawTransaction, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, afterRound, f.err
	}
	maxRound := afterRound
	var out []*types.RawTransaction
	for _, txn := range f.txns[appID] {
		if txn.Round > afterRound {
			out = append(out, txn)
			if txn.Round > maxRound {
				maxRound = txn.Round
			}
		}
	}
	return out, maxRound, nil
}

func (f *fakeFetcher) CurrentRound(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

type fakeRegistry struct {
	contracts []*models.CreatorContract
	configs   map[string]*models.CreatorConfig
	configErr error
}

func (f *fakeRegistry) ListActiveContracts(ctx context.Context) ([]*models.CreatorContract, error) {
	return f.contracts, nil
}

func (f *fakeRegistry) GetCreatorConfig(ctx context.Context, creatorWallet string) (*models.CreatorConfig, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	if cfg, ok := f.configs[creatorWallet]; ok {
		return cfg, nil
	}
	return &models.CreatorConfig{CreatorWallet: creatorWallet}, nil
}

// fakeExecutor returns queued errors, then succeeds.
type fakeExecutor struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeExecutor) Execute(ctx context.Context, action *models.RewardAction, tip *models.TipRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeAssetService records calls and mints deterministic refs.
type fakeAssetService struct {
	mu        sync.Mutex
	mints     []*assets.MintRequest
	transfers []*assets.TransferRequest
	optedIn   map[string]bool
	mintErr   error
}

func newFakeAssetService() *fakeAssetService {
	return &fakeAssetService{optedIn: make(map[string]bool)}
}

func (f *fakeAssetService) MintCollectible(ctx context.Context, req *assets.MintRequest) (*assets.MintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	f.mints = append(f.mints, req)
	return &assets.MintResult{
		AssetRef: "asset-" + req.Reference,
		TxID:     "mint-" + req.Reference,
	}, nil
}

func (f *fakeAssetService) TransferToken(ctx context.Context, req *assets.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	return "transfer-" + req.AssetRef, nil
}

func (f *fakeAssetService) HasOptedIn(ctx context.Context, wallet, assetRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.optedIn[wallet], nil
}

func (f *fakeAssetService) OptIn(ctx context.Context, wallet, assetRef, signerKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optedIn[wallet] = true
	return nil
}
