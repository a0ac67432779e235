package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (tx *txn) checkDepositor(from common.Address) error {
	eng := tx.eng
	if eng.RequireVerification && !eng.Verified && from != eng.Client {
		return ErrNotVerified
	}
	return nil
}

func (tx *txn) markVerified() {
	if tx.eng.Verified {
		return
	}
	tx.eng.Verified = true
	tx.emit(NewVerifiedEvent(tx.eng.ID, tx.eng.Client))
}

// Deposit moves amount of the engagement token from the depositor into
// custody. Third-party deposits require the client's verification when the
// engagement demands it.
func (e *Engine) Deposit(id [32]byte, from common.Address, amount *big.Int) error {
	return e.execute("deposit", id, func(tx *txn) error {
		if err := validateAmount(amount); err != nil {
			return err
		}
		if err := tx.checkDepositor(from); err != nil {
			return err
		}
		eng := tx.eng
		tx.stage(Transfer{Kind: TransferMove, Token: eng.Token, From: from, To: eng.Address, Amount: amount})
		tx.emit(NewDepositEvent(eng.ID, from, amount))
		return nil
	})
}

// DepositNative accepts native value for an engagement denominated in the
// wrapped native token and wraps it into custody.
func (e *Engine) DepositNative(id [32]byte, from common.Address, amount *big.Int) error {
	return e.execute("deposit_native", id, func(tx *txn) error {
		if err := validateAmount(amount); err != nil {
			return err
		}
		eng := tx.eng
		wrapped := tx.engine.wrappedNative
		if wrapped == (common.Address{}) || eng.Token != wrapped {
			return ErrInvalidWrappedETH
		}
		if err := tx.checkDepositor(from); err != nil {
			return err
		}
		tx.stage(Transfer{Kind: TransferMove, Token: NativeAsset, From: from, To: wrapped, Amount: amount})
		tx.stage(Transfer{Kind: TransferMint, Token: wrapped, To: eng.Address, Amount: amount})
		tx.emit(NewDepositEvent(eng.ID, from, amount))
		return nil
	})
}

// WrapStrayNative wraps native value that reached the custody account without
// passing through DepositNative.
func (e *Engine) WrapStrayNative(id [32]byte) error {
	return e.execute("wrap_stray_native", id, func(tx *txn) error {
		eng := tx.eng
		wrapped := tx.engine.wrappedNative
		if wrapped == (common.Address{}) || eng.Token != wrapped {
			return ErrInvalidWrappedETH
		}
		stray, err := tx.balanceOf(NativeAsset, eng.Address)
		if err != nil {
			return err
		}
		if stray.Sign() == 0 {
			return ErrBalanceIsZero
		}
		tx.stage(Transfer{Kind: TransferMove, Token: NativeAsset, From: eng.Address, To: wrapped, Amount: stray})
		tx.stage(Transfer{Kind: TransferMint, Token: wrapped, To: eng.Address, Amount: stray})
		tx.emit(NewWrappedStrayETHEvent(eng.ID, stray))
		return nil
	})
}

// Release pays the current milestone to the provider. Once the schedule is
// exhausted it sweeps any remaining balance instead.
func (e *Engine) Release(id [32]byte, caller common.Address) error {
	return e.execute("release", id, func(tx *txn) error {
		return tx.release(caller)
	})
}

func (tx *txn) release(caller common.Address) error {
	eng := tx.eng
	if caller != eng.Client {
		return ErrNotClient
	}
	if eng.Locked {
		return ErrLocked
	}
	balance, err := tx.balance()
	if err != nil {
		return err
	}
	if eng.RequireVerification {
		tx.markVerified()
	}
	if eng.Milestone < eng.MilestoneCount() {
		amount, err := tx.milestoneAmount(eng.Milestone, balance)
		if err != nil {
			return err
		}
		return tx.releaseMilestone(amount)
	}
	if balance.Sign() == 0 {
		return ErrBalanceIsZero
	}
	if _, err := tx.payout(eng.Token, eng.ProviderPayee(), balance); err != nil {
		return err
	}
	eng.Released.Add(eng.Released, balance)
	tx.emit(NewReleaseRemainderEvent(eng.ID, balance))
	return nil
}

// ReleaseMilestone pays every outstanding milestone up to and including index.
func (e *Engine) ReleaseMilestone(id [32]byte, caller common.Address, index uint64) error {
	return e.execute("release_milestone", id, func(tx *txn) error {
		eng := tx.eng
		if caller != eng.Client {
			return ErrNotClient
		}
		if eng.Locked {
			return ErrLocked
		}
		if index < eng.Milestone || index >= eng.MilestoneCount() {
			return ErrInvalidMilestone
		}
		balance, err := tx.balance()
		if err != nil {
			return err
		}
		if eng.RequireVerification {
			tx.markVerified()
		}
		for eng.Milestone <= index {
			amount, err := tx.milestoneAmount(eng.Milestone, balance)
			if err != nil {
				return err
			}
			if err := tx.releaseMilestone(amount); err != nil {
				return err
			}
			balance.Sub(balance, amount)
		}
		return nil
	})
}

// milestoneAmount returns what releasing milestone index pays given the
// available balance. The final milestone absorbs any surplus.
func (tx *txn) milestoneAmount(index uint64, balance *big.Int) (*big.Int, error) {
	eng := tx.eng
	amount := cloneBigInt(eng.Amounts[index])
	if index == eng.MilestoneCount()-1 && amount.Cmp(balance) < 0 {
		amount = cloneBigInt(balance)
	}
	if balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}
	return amount, nil
}

func (tx *txn) releaseMilestone(amount *big.Int) error {
	eng := tx.eng
	if _, err := tx.payout(eng.Token, eng.ProviderPayee(), amount); err != nil {
		return err
	}
	eng.Released.Add(eng.Released, amount)
	tx.emit(NewReleaseEvent(eng.ID, eng.Milestone, amount))
	eng.Milestone++
	return nil
}

// ReleaseTokens sweeps the custody balance of a token other than the
// engagement token to the provider. For the engagement token it behaves
// as Release.
func (e *Engine) ReleaseTokens(id [32]byte, caller, token common.Address) error {
	return e.execute("release_tokens", id, func(tx *txn) error {
		eng := tx.eng
		if token == NativeAsset {
			return ErrInvalidToken
		}
		if token == eng.Token {
			return tx.release(caller)
		}
		if caller != eng.Client {
			return ErrNotClient
		}
		if eng.Locked {
			return ErrLocked
		}
		balance, err := tx.balanceOf(token, eng.Address)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrBalanceIsZero
		}
		if _, err := tx.payout(token, eng.ProviderPayee(), balance); err != nil {
			return err
		}
		tx.emit(NewReleaseTokensEvent(eng.ID, token, balance))
		return nil
	})
}

// Withdraw returns the whole remaining balance to the client once the
// termination time has passed.
func (e *Engine) Withdraw(id [32]byte) error {
	return e.execute("withdraw", id, func(tx *txn) error {
		return tx.withdraw()
	})
}

func (tx *txn) withdraw() error {
	eng := tx.eng
	if !eng.Terminated(tx.now) {
		return ErrNotTerminated
	}
	if eng.Locked {
		return ErrLocked
	}
	balance, err := tx.balance()
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return ErrBalanceIsZero
	}
	if _, err := tx.payout(eng.Token, eng.ClientPayee(), balance); err != nil {
		return err
	}
	eng.Milestone = eng.MilestoneCount()
	tx.emit(NewWithdrawEvent(eng.ID, balance))
	return nil
}

// WithdrawTokens returns the custody balance of another token to the client
// once the termination time has passed. For the engagement token it behaves
// as Withdraw.
func (e *Engine) WithdrawTokens(id [32]byte, token common.Address) error {
	return e.execute("withdraw_tokens", id, func(tx *txn) error {
		eng := tx.eng
		if token == NativeAsset {
			return ErrInvalidToken
		}
		if token == eng.Token {
			return tx.withdraw()
		}
		if !eng.Terminated(tx.now) {
			return ErrNotTerminated
		}
		if eng.Locked {
			return ErrLocked
		}
		balance, err := tx.balanceOf(token, eng.Address)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrBalanceIsZero
		}
		if _, err := tx.payout(token, eng.ClientPayee(), balance); err != nil {
			return err
		}
		tx.emit(NewWithdrawTokensEvent(eng.ID, token, balance))
		return nil
	})
}

// Verify records the client's consent to third-party deposits. Repeated
// calls are no-ops.
func (e *Engine) Verify(id [32]byte, caller common.Address) error {
	return e.execute("verify", id, func(tx *txn) error {
		if caller != tx.eng.Client {
			return ErrNotClient
		}
		tx.markVerified()
		return nil
	})
}

// AddMilestones appends amounts to the schedule. A non-empty details string
// replaces the engagement details.
func (e *Engine) AddMilestones(id [32]byte, caller common.Address, amounts []*big.Int, details string) error {
	return e.execute("add_milestones", id, func(tx *txn) error {
		eng := tx.eng
		if !eng.IsParty(caller) {
			return ErrNotParty
		}
		if eng.Locked {
			return ErrLocked
		}
		if eng.Terminated(tx.now) {
			return ErrTerminated
		}
		if len(amounts) == 0 {
			return ErrNoMilestones
		}
		if len(eng.Amounts)+len(amounts) > MaxMilestones {
			return ErrExceedsMilestoneLimit
		}
		added := make([]*big.Int, len(amounts))
		for i, amt := range amounts {
			if err := validateAmount(amt); err != nil {
				return err
			}
			added[i] = cloneBigInt(amt)
		}
		eng.Amounts = append(eng.Amounts, added...)
		if details != "" {
			eng.Details = details
		}
		tx.emit(NewMilestonesAddedEvent(eng.ID, caller, added, details))
		return nil
	})
}

// UpdateClient hands the client role to next.
func (e *Engine) UpdateClient(id [32]byte, caller, next common.Address) error {
	return e.execute("update_client", id, func(tx *txn) error {
		eng := tx.eng
		if caller != eng.Client {
			return ErrNotClient
		}
		if eng.Locked {
			return ErrLocked
		}
		if next == (common.Address{}) {
			return ErrInvalidClient
		}
		previous := eng.Client
		eng.Client = next
		tx.emit(NewUpdatedClientEvent(eng.ID, previous, next))
		return nil
	})
}

// UpdateProvider hands the provider role to next.
func (e *Engine) UpdateProvider(id [32]byte, caller, next common.Address) error {
	return e.execute("update_provider", id, func(tx *txn) error {
		eng := tx.eng
		if caller != eng.Provider {
			return ErrNotProvider
		}
		if eng.Locked {
			return ErrLocked
		}
		if next == (common.Address{}) {
			return ErrInvalidProvider
		}
		previous := eng.Provider
		eng.Provider = next
		tx.emit(NewUpdatedProviderEvent(eng.ID, previous, next))
		return nil
	})
}

// UpdateClientReceiver redirects client-bound payouts. The zero address
// restores delivery to the client itself.
func (e *Engine) UpdateClientReceiver(id [32]byte, caller, receiver common.Address) error {
	return e.execute("update_client_receiver", id, func(tx *txn) error {
		eng := tx.eng
		if caller != eng.Client {
			return ErrNotClient
		}
		if eng.Locked {
			return ErrLocked
		}
		if receiver == eng.Address {
			return ErrInvalidClientReceiver
		}
		previous := eng.ClientReceiver
		eng.ClientReceiver = receiver
		tx.emit(NewUpdatedClientReceiverEvent(eng.ID, previous, receiver))
		return nil
	})
}

// UpdateProviderReceiver redirects provider-bound payouts. The zero address
// restores delivery to the provider itself.
func (e *Engine) UpdateProviderReceiver(id [32]byte, caller, receiver common.Address) error {
	return e.execute("update_provider_receiver", id, func(tx *txn) error {
		eng := tx.eng
		if caller != eng.Provider {
			return ErrNotProvider
		}
		if eng.Locked {
			return ErrLocked
		}
		if receiver == eng.Address {
			return ErrInvalidProviderReceiver
		}
		previous := eng.ProviderReceiver
		eng.ProviderReceiver = receiver
		tx.emit(NewUpdatedProviderReceiverEvent(eng.ID, previous, receiver))
		return nil
	})
}
