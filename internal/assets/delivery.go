package assets

import (
	"context"

	"github.com/creator-rewards/internal/types"
)

// DeliveryResult is a delivery strategy's outcome for one minted token.
type DeliveryResult struct {
	Status       types.DeliveryStatus
	DeliveryTxID string
}

// DeliveryStrategy decides how a freshly minted token reaches its recipient.
type DeliveryStrategy interface {
	Deliver(ctx context.Context, assetRef, recipientWallet string) (*DeliveryResult, error)
}

// NewDeliveryStrategy selects the strategy for the configured mode.
func NewDeliveryStrategy(mode string, svc AssetService, accounts *DemoAccounts) DeliveryStrategy {
	if mode == "custodial" {
		return &CustodialDelivery{svc: svc, accounts: accounts}
	}
	return &ClaimDelivery{}
}

// ClaimDelivery leaves tokens parked with the service account until the fan
// claims them. Nothing to do at mint time.
type ClaimDelivery struct{}

// Deliver marks the token as awaiting claim.
func (d *ClaimDelivery) Deliver(ctx context.Context, assetRef, recipientWallet string) (*DeliveryResult, error) {
	return &DeliveryResult{Status: types.DeliveryPendingClaim}, nil
}

// CustodialDelivery pushes tokens straight into demo wallets whose keys the
// environment holds, opting the wallet in first when needed. Wallets outside
// the demo set fall back to pending-claim.
type CustodialDelivery struct {
	svc      AssetService
	accounts *DemoAccounts
}

// Deliver opts the recipient in (when the key is held) and transfers the
// token.
func (d *CustodialDelivery) Deliver(ctx context.Context, assetRef, recipientWallet string) (*DeliveryResult, error) {
	signerKey, held := d.accounts.SignerKey(recipientWallet)
	if !held {
		return &DeliveryResult{Status: types.DeliveryPendingClaim}, nil
	}

	optedIn, err := d.svc.HasOptedIn(ctx, recipientWallet, assetRef)
	if err != nil {
		return nil, err
	}
	if !optedIn {
		if err := d.svc.OptIn(ctx, recipientWallet, assetRef, signerKey); err != nil {
			return nil, err
		}
	}

	txID, err := d.svc.TransferToken(ctx, &TransferRequest{
		AssetRef: assetRef,
		ToWallet: recipientWallet,
	})
	if err != nil {
		return nil, err
	}

	return &DeliveryResult{Status: types.DeliveryDelivered, DeliveryTxID: txID}, nil
}
