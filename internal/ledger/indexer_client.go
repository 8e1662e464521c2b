// Package ledger provides the read-only client for the external ledger
// indexer API.
package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/creator-rewards/internal/types"
	"golang.org/x/time/rate"
)

// QueryClient fetches confirmed application-call transactions from the
// indexer. It is a pure read adapter: no side effects, no retained state
// beyond the HTTP client and rate limiter.
type QueryClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	maxTxns int
}

// QueryClientConfig holds configuration for the indexer client
type QueryClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec float64
	MaxTxnsPerPoll int // pagination cap per FetchSince call
}

// NewQueryClient creates a new indexer query client
func NewQueryClient(cfg *QueryClientConfig) (*QueryClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("indexer base URL cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	maxTxns := cfg.MaxTxnsPerPoll
	if maxTxns <= 0 {
		maxTxns = 1000
	}

	return &QueryClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		maxTxns: maxTxns,
	}, nil
}

// indexerTransaction mirrors the indexer's transaction JSON
type indexerTransaction struct {
	ID             string   `json:"id"`
	ConfirmedRound uint64   `json:"confirmed-round"`
	IntraRound     int      `json:"intra-round-offset"`
	Logs           []string `json:"logs"`
	ApplicationTxn struct {
		ApplicationID uint64 `json:"application-id"`
	} `json:"application-transaction"`
}

type transactionsPage struct {
	Transactions []indexerTransaction `json:"transactions"`
	NextToken    string               `json:"next-token"`
}

// FetchSince retrieves confirmed transactions for appID with round > afterRound,
// following next-token pagination up to the per-poll cap. The result is sorted
// by round, then intra-round index, so callers see a stable order even when
// the indexer interleaves pages. Returns the transactions and the highest
// fully fetched round: when the cap cuts pagination short, the trailing round
// may continue behind the next-token, so its transactions are dropped and
// picked up by the next poll. Callers can advance their cursor to the
// returned round without skipping anything.
func (c *QueryClient) FetchSince(ctx context.Context, appID uint64, afterRound uint64) ([]*types.RawTransaction, uint64, error) {
	var (
		all       []*types.RawTransaction
		nextToken string
		maxRound  = afterRound
		truncated bool
	)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, afterRound, &types.TransientFetchError{Op: "rate wait", Err: err}
		}

		page, err := c.fetchPage(ctx, appID, afterRound+1, nextToken)
		if err != nil {
			return nil, afterRound, err
		}

		for _, txn := range page.Transactions {
			if txn.ID == "" || len(txn.Logs) == 0 {
				// Not a tip() call (e.g. pause/unpause); nothing to decode
				continue
			}
			payload, decErr := base64.StdEncoding.DecodeString(txn.Logs[0])
			if decErr != nil {
				// Leave the payload empty; the normalizer reports the
				// DecodeError so the skip is visible in logs and metrics.
				payload = nil
			}
			all = append(all, &types.RawTransaction{
				TxID:       txn.ID,
				Round:      txn.ConfirmedRound,
				IntraRound: txn.IntraRound,
				AppID:      txn.ApplicationTxn.ApplicationID,
				Payload:    payload,
			})
			if txn.ConfirmedRound > maxRound {
				maxRound = txn.ConfirmedRound
			}
		}

		nextToken = page.NextToken
		if nextToken == "" || len(page.Transactions) == 0 {
			break
		}
		if len(all) >= c.maxTxns {
			if !spansRounds(all, maxRound) {
				// The cap landed inside the only round fetched so far.
				// Keep paging until a round boundary appears: returning a
				// partial round would either lose its remainder or stall
				// the cursor forever.
				continue
			}
			// Pagination cap: the trailing round may be incomplete, so it
			// is dropped below and refetched whole on the next tick
			truncated = true
			break
		}
	}

	if truncated {
		all, maxRound = trimRound(all, maxRound)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Round != all[j].Round {
			return all[i].Round < all[j].Round
		}
		return all[i].IntraRound < all[j].IntraRound
	})

	return all, maxRound, nil
}

// spansRounds reports whether txns holds a transaction from a round below
// high, meaning at least one round besides the trailing one is complete.
func spansRounds(txns []*types.RawTransaction, high uint64) bool {
	for _, txn := range txns {
		if txn.Round < high {
			return true
		}
	}
	return false
}

// trimRound drops the transactions of the trailing round and returns the
// highest round among the remainder.
func trimRound(txns []*types.RawTransaction, high uint64) ([]*types.RawTransaction, uint64) {
	kept := txns[:0]
	var maxKept uint64
	for _, txn := range txns {
		if txn.Round == high {
			continue
		}
		kept = append(kept, txn)
		if txn.Round > maxKept {
			maxKept = txn.Round
		}
	}
	return kept, maxKept
}

// CurrentRound returns the ledger's latest confirmed round, used for lag
// reporting only.
func (c *QueryClient) CurrentRound(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, &types.TransientFetchError{Op: "rate wait", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return 0, &types.PermanentFetchError{Op: "build health request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &types.TransientFetchError{Op: "health request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &types.TransientFetchError{Op: "health request",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var health struct {
		Round uint64 `json:"round"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return 0, &types.PermanentFetchError{Op: "decode health response", Err: err}
	}

	return health.Round, nil
}

func (c *QueryClient) fetchPage(ctx context.Context, appID, minRound uint64, nextToken string) (*transactionsPage, error) {
	params := url.Values{}
	params.Set("application-id", strconv.FormatUint(appID, 10))
	params.Set("tx-type", "appl")
	params.Set("min-round", strconv.FormatUint(minRound, 10))
	if nextToken != "" {
		params.Set("next", nextToken)
	}

	endpoint := fmt.Sprintf("%s/v2/transactions?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &types.PermanentFetchError{Op: "build request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &types.TransientFetchError{Op: "transactions request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &types.TransientFetchError{Op: "transactions request",
			Err: fmt.Errorf("indexer returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.PermanentFetchError{Op: "transactions request",
			Err: fmt.Errorf("indexer returned status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.TransientFetchError{Op: "read response", Err: err}
	}

	var page transactionsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &types.PermanentFetchError{Op: "decode response", Err: err}
	}

	return &page, nil
}
