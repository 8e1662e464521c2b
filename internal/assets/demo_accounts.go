package assets

import (
	"encoding/json"
	"fmt"
	"os"
)

// DemoAccounts maps demo wallet addresses to their signing keys. Custodial
// delivery only works for wallets whose keys the demo environment holds;
// anything else degrades to pending-claim.
type DemoAccounts struct {
	keys map[string]string
}

type demoAccount struct {
	Address   string `json:"address"`
	SignerKey string `json:"signerKey"`
}

// LoadDemoAccounts reads the demo accounts file. A missing file yields an
// empty set, not an error: production deployments run without one.
func LoadDemoAccounts(path string) (*DemoAccounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &DemoAccounts{keys: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read demo accounts file: %w", err)
	}

	var accounts []demoAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse demo accounts file: %w", err)
	}

	keys := make(map[string]string, len(accounts))
	for _, a := range accounts {
		keys[a.Address] = a.SignerKey
	}
	return &DemoAccounts{keys: keys}, nil
}

// NewDemoAccounts builds a set from an explicit map. Used by tests.
func NewDemoAccounts(keys map[string]string) *DemoAccounts {
	if keys == nil {
		keys = map[string]string{}
	}
	return &DemoAccounts{keys: keys}
}

// SignerKey returns the signing key for a wallet, if held.
func (d *DemoAccounts) SignerKey(wallet string) (string, bool) {
	key, ok := d.keys[wallet]
	return key, ok
}

// Len returns the number of held accounts.
func (d *DemoAccounts) Len() int {
	return len(d.keys)
}
