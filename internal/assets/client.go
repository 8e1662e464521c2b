// Package assets wraps the external asset service that mints and transfers
// on-chain tokens. Every failure is classified before it leaves this package:
// the retry scheduler keys entirely off the error class.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/creator-rewards/internal/circuitbreaker"
	"github.com/creator-rewards/internal/config"
	"github.com/creator-rewards/internal/types"
)

// MintRequest asks the asset service to create one token.
type MintRequest struct {
	OwnerWallet string `json:"ownerWallet"`
	Name        string `json:"name"`
	MetadataURL string `json:"metadataUrl"`
	Soulbound   bool   `json:"soulbound"`
	Reference   string `json:"reference"` // tip tx id, for asset service dedup
}

// MintResult is the asset service's record of a created token.
type MintResult struct {
	AssetRef string `json:"assetRef"`
	TxID     string `json:"txId"`
}

// TransferRequest moves a minted token to a recipient wallet.
type TransferRequest struct {
	AssetRef  string `json:"assetRef"`
	ToWallet  string `json:"toWallet"`
	SignerKey string `json:"signerKey,omitempty"` // custodial opt-in only
}

// AssetService is the surface the workers and delivery strategies depend on.
type AssetService interface {
	MintCollectible(ctx context.Context, req *MintRequest) (*MintResult, error)
	TransferToken(ctx context.Context, req *TransferRequest) (string, error)
	HasOptedIn(ctx context.Context, wallet, assetRef string) (bool, error)
	OptIn(ctx context.Context, wallet, assetRef, signerKey string) error
}

// HTTPAssetService talks to the asset service over its REST API, shielded by
// a circuit breaker.
type HTTPAssetService struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPAssetService creates an asset service client from configuration.
func NewHTTPAssetService(cfg *config.AssetConfig) (*HTTPAssetService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("asset service base URL cannot be empty")
	}

	return &HTTPAssetService{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.MintTimeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("asset-service")),
	}, nil
}

// Breaker exposes the circuit breaker for status reporting.
func (s *HTTPAssetService) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// MintCollectible creates a token for the owner wallet.
func (s *HTTPAssetService) MintCollectible(ctx context.Context, req *MintRequest) (*MintResult, error) {
	var result MintResult
	err := s.post(ctx, "/v1/assets/mint", req, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// TransferToken moves a token to the recipient and returns the transfer
// transaction id.
func (s *HTTPAssetService) TransferToken(ctx context.Context, req *TransferRequest) (string, error) {
	var result struct {
		TxID string `json:"txId"`
	}
	if err := s.post(ctx, "/v1/assets/transfer", req, &result); err != nil {
		return "", err
	}
	return result.TxID, nil
}

// HasOptedIn reports whether the wallet can receive the asset.
func (s *HTTPAssetService) HasOptedIn(ctx context.Context, wallet, assetRef string) (bool, error) {
	var result struct {
		OptedIn bool `json:"optedIn"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/assets/%s", wallet, assetRef)
	if err := s.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.OptedIn, nil
}

// OptIn opts the wallet into the asset using the provided signer key.
// Custodial delivery only; fan-held wallets opt in themselves.
func (s *HTTPAssetService) OptIn(ctx context.Context, wallet, assetRef, signerKey string) error {
	req := map[string]string{
		"wallet":    wallet,
		"assetRef":  assetRef,
		"signerKey": signerKey,
	}
	return s.post(ctx, "/v1/assets/opt-in", req, nil)
}

func (s *HTTPAssetService) post(ctx context.Context, path string, body, dest interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return types.NewPermanentActionError("encode request", err)
	}
	return s.do(ctx, http.MethodPost, path, payload, dest)
}

func (s *HTTPAssetService) get(ctx context.Context, path string, dest interface{}) error {
	return s.do(ctx, http.MethodGet, path, nil, dest)
}

func (s *HTTPAssetService) do(ctx context.Context, method, path string, payload []byte, dest interface{}) error {
	return s.breaker.Execute(ctx, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
		if err != nil {
			return types.NewPermanentActionError("build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set("Authorization", "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			// Timeouts and connection resets are worth retrying
			return types.NewTransientActionError("asset service request", err)
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp); err != nil {
			return err
		}

		if dest == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return types.NewPermanentActionError("decode response", err)
		}
		return nil
	})
}

// classifyStatus maps HTTP status codes onto the retry taxonomy: server-side
// trouble is transient, everything else the request itself caused is
// permanent.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return types.NewTransientActionError("asset service request",
			fmt.Errorf("asset service returned status %d", resp.StatusCode))
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewPermanentActionError("asset service request",
			fmt.Errorf("asset service returned status %d: %s", resp.StatusCode, string(msg)))
	}
}
