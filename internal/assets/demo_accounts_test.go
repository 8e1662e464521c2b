package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDemoAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo_accounts.json")
	content := `[
		{"address": "WALLETA", "signerKey": "key-a"},
		{"address": "WALLETB", "signerKey": "key-b"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	accounts, err := LoadDemoAccounts(path)
	require.NoError(t, err)

	assert.Equal(t, 2, accounts.Len())
	key, ok := accounts.SignerKey("WALLETA")
	assert.True(t, ok)
	assert.Equal(t, "key-a", key)

	_, ok = accounts.SignerKey("UNKNOWN")
	assert.False(t, ok)
}

func TestLoadDemoAccounts_MissingFileYieldsEmptySet(t *testing.T) {
	accounts, err := LoadDemoAccounts(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, accounts.Len())
}

func TestLoadDemoAccounts_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo_accounts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadDemoAccounts(path)
	assert.Error(t, err)
}
