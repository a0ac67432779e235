package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"smartescrow/core/state"
	"smartescrow/native/escrow"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInvalidAmount     = errors.New("bank: invalid amount")
	ErrSupplyOverflow    = errors.New("bank: supply exceeds 256 bits")
)

type holderKey struct {
	token  common.Address
	holder common.Address
}

// Ledger is the value ledger backing engagement custody. Every balance lives
// in the state manager keyed by (token, holder); the native asset uses the
// zero token address.
type Ledger struct {
	mu    sync.Mutex
	state *state.Manager
}

// NewLedger creates a ledger persisting balances through manager.
func NewLedger(manager *state.Manager) *Ledger {
	return &Ledger{state: manager}
}

// BalanceOf returns holder's balance of token.
func (l *Ledger) BalanceOf(token, holder common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state manager required")
	}
	return l.state.Balance(token, holder)
}

// Apply executes the batch atomically. Balances are checked in order, so a
// later transfer may spend value credited by an earlier one in the same batch.
func (l *Ledger) Apply(transfers []escrow.Transfer) error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state manager required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[holderKey]*big.Int)
	order := make([]holderKey, 0, len(transfers)*2)
	supplies := make(map[common.Address]*big.Int)
	load := func(key holderKey) (*big.Int, error) {
		if bal, ok := balances[key]; ok {
			return bal, nil
		}
		bal, err := l.state.Balance(key.token, key.holder)
		if err != nil {
			return nil, err
		}
		balances[key] = bal
		order = append(order, key)
		return bal, nil
	}
	loadSupply := func(token common.Address) (*big.Int, error) {
		if supply, ok := supplies[token]; ok {
			return supply, nil
		}
		supply, err := l.state.Supply(token)
		if err != nil {
			return nil, err
		}
		supplies[token] = supply
		return supply, nil
	}

	for i, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: transfer %d", ErrInvalidAmount, i)
		}
		if t.Kind != escrow.TransferMint {
			from, err := load(holderKey{token: t.Token, holder: t.From})
			if err != nil {
				return err
			}
			if from.Cmp(t.Amount) < 0 {
				return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, t.From.Hex(), from, t.Amount)
			}
			from.Sub(from, t.Amount)
		}
		if t.Kind != escrow.TransferBurn {
			to, err := load(holderKey{token: t.Token, holder: t.To})
			if err != nil {
				return err
			}
			to.Add(to, t.Amount)
		}
		switch t.Kind {
		case escrow.TransferMint:
			supply, err := loadSupply(t.Token)
			if err != nil {
				return err
			}
			supply.Add(supply, t.Amount)
			if _, overflow := uint256.FromBig(supply); overflow {
				return ErrSupplyOverflow
			}
		case escrow.TransferBurn:
			supply, err := loadSupply(t.Token)
			if err != nil {
				return err
			}
			supply.Sub(supply, t.Amount)
			if supply.Sign() < 0 {
				supply.SetInt64(0)
			}
		}
	}

	updates := make([]state.BalanceUpdate, 0, len(order))
	for _, key := range order {
		updates = append(updates, state.BalanceUpdate{Token: key.token, Holder: key.holder, Amount: balances[key]})
	}
	supplyUpdates := make([]state.SupplyUpdate, 0, len(supplies))
	for token, supply := range supplies {
		supplyUpdates = append(supplyUpdates, state.SupplyUpdate{Token: token, Amount: supply})
	}
	return l.state.WriteBalances(updates, supplyUpdates)
}

// Mint credits amount of token to holder out of thin air. Used to seed
// balances for local testing.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) error {
	return l.Apply([]escrow.Transfer{{Kind: escrow.TransferMint, Token: token, To: holder, Amount: amount}})
}

// Transfer moves amount of token between two holders.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	return l.Apply([]escrow.Transfer{{Kind: escrow.TransferMove, Token: token, From: from, To: to, Amount: amount}})
}

// Supply returns the total minted supply of token.
func (l *Ledger) Supply(token common.Address) (*big.Int, error) {
	return l.state.Supply(token)
}
