package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// payout stages delivery of amount of token from the engagement's custody to
// recipient. The treasury fee is skimmed first when the engagement charges
// one; the net amount is pushed to the recipient or credited in the payout
// backend depending on the engagement's payout model. It returns the net
// amount delivered.
func (tx *txn) payout(token, recipient common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	eng := tx.eng
	net := cloneBigInt(amount)
	if eng.FeeBPS > 0 {
		fee, err := applyBPS(amount, eng.FeeBPS)
		if err != nil {
			return nil, err
		}
		if fee.Sign() > 0 {
			tx.stage(Transfer{Kind: TransferMove, Token: token, From: eng.Address, To: eng.Treasury, Amount: fee})
			tx.emit(NewFeeTransferredEvent(eng.ID, token, eng.Treasury, fee))
			tx.payouts = append(tx.payouts, "fee")
			net.Sub(net, fee)
		}
	}
	if net.Sign() == 0 {
		return net, nil
	}
	switch eng.Payout {
	case PayoutPush:
		tx.stage(Transfer{Kind: TransferMove, Token: token, From: eng.Address, To: recipient, Amount: net})
	case PayoutPull:
		backend := tx.engine.backend
		if backend == nil {
			return nil, errNilBackend
		}
		account, err := backend.ClaimAccount(recipient, token)
		if err != nil {
			return nil, fmt.Errorf("escrow: resolve claim account: %w", err)
		}
		tx.stage(Transfer{Kind: TransferMove, Token: token, From: eng.Address, To: account, Amount: net})
	default:
		return nil, fmt.Errorf("escrow: invalid payout model %d", eng.Payout)
	}
	tx.payouts = append(tx.payouts, eng.Payout.String())
	return net, nil
}

// payDirect stages an unconditional transfer that bypasses the fee and the
// payout model. Used for resolver fees.
func (tx *txn) payDirect(token, recipient common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	tx.stage(Transfer{Kind: TransferMove, Token: token, From: tx.eng.Address, To: recipient, Amount: amount})
	tx.payouts = append(tx.payouts, "direct")
}

// settle distributes the engagement's whole balance between the client and
// provider payees and marks the engagement finished. Shared by resolve, rule
// and unlock.
func (tx *txn) settle(clientAward, providerAward *big.Int) error {
	eng := tx.eng
	if _, err := tx.payout(eng.Token, eng.ClientPayee(), clientAward); err != nil {
		return err
	}
	if _, err := tx.payout(eng.Token, eng.ProviderPayee(), providerAward); err != nil {
		return err
	}
	eng.Released = maxBig(eng.Released, eng.Total())
	eng.Milestone = eng.MilestoneCount()
	eng.Locked = false
	return nil
}
