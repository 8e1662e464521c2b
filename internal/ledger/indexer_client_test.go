package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creator-rewards/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*QueryClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewQueryClient(&QueryClientConfig{
		BaseURL:        server.URL,
		RequestsPerSec: 1000, // keep the limiter out of the test's way
	})
	require.NoError(t, err)
	return client, server
}

func txnJSON(id string, round uint64, intra int, appID uint64, payload []byte) map[string]interface{} {
	return map[string]interface{}{
		"id":                 id,
		"confirmed-round":    round,
		"intra-round-offset": intra,
		"logs":               []string{base64.StdEncoding.EncodeToString(payload)},
		"application-transaction": map[string]interface{}{
			"application-id": appID,
		},
	}
}

func TestFetchSince_DecodesAndSortsTransactions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "741", r.URL.Query().Get("application-id"))
		assert.Equal(t, "11", r.URL.Query().Get("min-round"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []interface{}{
				txnJSON("TX-B", 20, 1, 741, []byte("payload-b")),
				txnJSON("TX-C", 20, 0, 741, []byte("payload-c")),
				txnJSON("TX-A", 15, 0, 741, []byte("payload-a")),
			},
		})
	}))

	txns, maxRound, err := client.FetchSince(context.Background(), 741, 10)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, "TX-A", txns[0].TxID)
	assert.Equal(t, "TX-C", txns[1].TxID)
	assert.Equal(t, "TX-B", txns[2].TxID)
	assert.Equal(t, []byte("payload-a"), txns[0].Payload)
	assert.Equal(t, uint64(20), maxRound)
}

func TestFetchSince_FollowsPagination(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("next") {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{txnJSON("TX-1", 11, 0, 741, []byte("p1"))},
				"next-token":   "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{txnJSON("TX-2", 12, 0, 741, []byte("p2"))},
			})
		default:
			t.Errorf("unexpected next token %q", r.URL.Query().Get("next"))
		}
	}))

	txns, maxRound, err := client.FetchSince(context.Background(), 741, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, txns, 2)
	assert.Equal(t, uint64(12), maxRound)
}

func TestFetchSince_CapDropsTrailingIncompleteRound(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("min-round") == "12" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{
					txnJSON("TX-B", 12, 0, 741, []byte("p")),
					txnJSON("TX-C", 12, 1, 741, []byte("p")),
				},
			})
			return
		}
		switch r.URL.Query().Get("next") {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{
					txnJSON("TX-A", 11, 0, 741, []byte("p")),
					txnJSON("TX-B", 12, 0, 741, []byte("p")),
				},
				"next-token": "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{txnJSON("TX-C", 12, 1, 741, []byte("p"))},
			})
		default:
			t.Errorf("unexpected next token %q", r.URL.Query().Get("next"))
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewQueryClient(&QueryClientConfig{
		BaseURL:        server.URL,
		RequestsPerSec: 1000,
		MaxTxnsPerPoll: 2,
	})
	require.NoError(t, err)

	// The cap trips with round 12 still behind the next-token. Only the
	// complete round 11 may be reported, or a cursor advanced to 12 would
	// skip the rest of the round.
	txns, maxRound, err := client.FetchSince(context.Background(), 741, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, txns, 1)
	assert.Equal(t, "TX-A", txns[0].TxID)
	assert.Equal(t, uint64(11), maxRound)

	// The next poll picks round 12 up whole
	txns, maxRound, err = client.FetchSince(context.Background(), 741, 11)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "TX-B", txns[0].TxID)
	assert.Equal(t, "TX-C", txns[1].TxID)
	assert.Equal(t, uint64(12), maxRound)
}

func TestFetchSince_CapFinishesRoundInProgress(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("next") {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{txnJSON("TX-A", 10, 0, 741, []byte("p"))},
				"next-token":   "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transactions": []interface{}{txnJSON("TX-B", 10, 1, 741, []byte("p"))},
			})
		default:
			t.Errorf("unexpected next token %q", r.URL.Query().Get("next"))
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewQueryClient(&QueryClientConfig{
		BaseURL:        server.URL,
		RequestsPerSec: 1000,
		MaxTxnsPerPoll: 1,
	})
	require.NoError(t, err)

	// Round 10 is larger than the cap. Pagination continues past the cap so
	// the round comes back whole instead of split across polls.
	txns, maxRound, err := client.FetchSince(context.Background(), 741, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, txns, 2)
	assert.Equal(t, "TX-A", txns[0].TxID)
	assert.Equal(t, "TX-B", txns[1].TxID)
	assert.Equal(t, uint64(10), maxRound)
}

func TestFetchSince_SkipsNonTipCalls(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []interface{}{
				map[string]interface{}{
					"id":              "TX-PAUSE",
					"confirmed-round": 12,
					"logs":            []string{},
					"application-transaction": map[string]interface{}{
						"application-id": 741,
					},
				},
				txnJSON("TX-TIP", 13, 0, 741, []byte("p")),
			},
		})
	}))

	txns, _, err := client.FetchSince(context.Background(), 741, 10)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "TX-TIP", txns[0].TxID)
}

func TestFetchSince_ServerErrorIsTransient(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, maxRound, err := client.FetchSince(context.Background(), 741, 10)
	require.Error(t, err)
	assert.True(t, types.IsTransientFetch(err))
	assert.Equal(t, uint64(10), maxRound)
}

func TestFetchSince_RateLimitStatusIsTransient(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, _, err := client.FetchSince(context.Background(), 741, 10)
	require.Error(t, err)
	assert.True(t, types.IsTransientFetch(err))
}

func TestFetchSince_ClientErrorIsPermanent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, _, err := client.FetchSince(context.Background(), 741, 10)
	require.Error(t, err)
	assert.False(t, types.IsTransientFetch(err))
}

func TestCurrentRound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]uint64{"round": 12345})
	}))

	round, err := client.CurrentRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), round)
}

func TestNewQueryClient_RequiresBaseURL(t *testing.T) {
	_, err := NewQueryClient(&QueryClientConfig{})
	assert.Error(t, err)
}
