// Package event decodes the binary tip log emitted by the per-creator tip
// contract into typed tip events.
//
// Log layout:
//
//	sender  — 32 bytes (raw ledger public key)
//	amount  — 8 bytes (uint64, big-endian, micro units)
//	memo    — remaining bytes (UTF-8)
package event

import (
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/types"
)

// minPayloadLen is 32 bytes of sender plus 8 bytes of amount.
const minPayloadLen = 40

// MembershipMemoPrefix marks a tip as a membership purchase. The tier name
// follows the prefix, e.g. "MEMBERSHIP:GOLD".
const MembershipMemoPrefix = "MEMBERSHIP:"

// ContractResolver looks up a known contract instance by application id.
type ContractResolver interface {
	ResolveContract(appID uint64) (*models.CreatorContract, bool)
}

// Normalizer decodes raw transactions into tip events.
type Normalizer struct {
	resolver ContractResolver
}

// NewNormalizer creates a normalizer backed by the given contract resolver.
func NewNormalizer(resolver ContractResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize decodes one raw transaction. It returns a *types.DecodeError when
// the payload is malformed or the application id is not a known contract
// instance; callers skip and log such events without halting the batch.
func (n *Normalizer) Normalize(raw *types.RawTransaction) (*types.TipEvent, error) {
	if len(raw.Payload) < minPayloadLen {
		return nil, &types.DecodeError{TxID: raw.TxID, Reason: "payload shorter than 40 bytes"}
	}

	contract, ok := n.resolver.ResolveContract(raw.AppID)
	if !ok {
		return nil, &types.DecodeError{TxID: raw.TxID, Reason: "unknown contract instance"}
	}

	fanWallet, err := EncodeAddress(raw.Payload[:32])
	if err != nil {
		return nil, &types.DecodeError{TxID: raw.TxID, Reason: "invalid sender public key"}
	}

	amount := binary.BigEndian.Uint64(raw.Payload[32:40])

	memoBytes := raw.Payload[40:]
	memo := string(memoBytes)
	if !utf8.Valid(memoBytes) {
		memo = strings.ToValidUTF8(memo, "")
	}

	return &types.TipEvent{
		TxID:          raw.TxID,
		Round:         raw.Round,
		AppID:         raw.AppID,
		FanWallet:     fanWallet,
		CreatorWallet: contract.CreatorWallet,
		AmountMicro:   amount,
		Memo:          memo,
		DetectedAt:    time.Now().UTC(),
	}, nil
}

// IsMembershipMemo reports whether a memo marks a membership purchase.
func IsMembershipMemo(memo string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(memo)), MembershipMemoPrefix)
}

// MembershipTierName extracts the tier name from a membership memo. Returns
// an empty string for non-membership memos.
func MembershipTierName(memo string) string {
	upper := strings.ToUpper(strings.TrimSpace(memo))
	if !strings.HasPrefix(upper, MembershipMemoPrefix) {
		return ""
	}
	name := strings.TrimPrefix(upper, MembershipMemoPrefix)
	// Tolerate trailing free text after the tier name
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	return name
}

var addrEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeAddress converts a 32-byte ledger public key into its canonical
// address form: base32(pubkey || last 4 bytes of SHA-512/256(pubkey)).
func EncodeAddress(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", &types.DecodeError{Reason: "public key must be 32 bytes"}
	}
	sum := sha512.Sum512_256(pubkey)
	full := make([]byte, 0, 36)
	full = append(full, pubkey...)
	full = append(full, sum[28:]...)
	return addrEncoding.EncodeToString(full), nil
}
