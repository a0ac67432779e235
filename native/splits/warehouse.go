package splits

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"smartescrow/core/events"
	"smartescrow/core/types"
	"smartescrow/native/escrow"
)

const EventTypeWithdrawn = "splits.withdrawn"

var (
	ErrNothingToWithdraw = errors.New("splits: nothing to withdraw")
	ErrInvalidRecipient  = errors.New("splits: invalid recipient")
)

// Warehouse is the payout-splitting backend of pull engagements. Each
// (recipient, token) pair owns a claim account on the ledger; engagements
// credit it and the recipient later withdraws the accumulated value.
type Warehouse struct {
	address common.Address
	ledger  escrow.Ledger
	emitter events.Emitter
}

// NewWarehouse creates a warehouse identified by address.
func NewWarehouse(address common.Address, ledger escrow.Ledger) *Warehouse {
	return &Warehouse{address: address, ledger: ledger, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (w *Warehouse) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		w.emitter = events.NoopEmitter{}
		return
	}
	w.emitter = emitter
}

// Address returns the warehouse identity.
func (w *Warehouse) Address() common.Address { return w.address }

// ClaimAccount implements escrow.PayoutBackend.
func (w *Warehouse) ClaimAccount(recipient, token common.Address) (common.Address, error) {
	if recipient == (common.Address{}) {
		return common.Address{}, ErrInvalidRecipient
	}
	hash := ethcrypto.Keccak256([]byte("splits"), w.address[:], recipient[:], token[:])
	return common.BytesToAddress(hash[12:]), nil
}

// Balance returns the value recipient can withdraw for token.
func (w *Warehouse) Balance(recipient, token common.Address) (*big.Int, error) {
	account, err := w.ClaimAccount(recipient, token)
	if err != nil {
		return nil, err
	}
	return w.ledger.BalanceOf(token, account)
}

// Withdraw pays recipient everything credited to it for token and returns
// the amount.
func (w *Warehouse) Withdraw(recipient, token common.Address) (*big.Int, error) {
	account, err := w.ClaimAccount(recipient, token)
	if err != nil {
		return nil, err
	}
	amount, err := w.ledger.BalanceOf(token, account)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}
	transfer := escrow.Transfer{Kind: escrow.TransferMove, Token: token, From: account, To: recipient, Amount: amount}
	if err := w.ledger.Apply([]escrow.Transfer{transfer}); err != nil {
		return nil, fmt.Errorf("splits: withdraw: %w", err)
	}
	w.emitter.Emit(withdrawnEvent{evt: &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"recipient": recipient.Hex(),
			"token":     token.Hex(),
			"amount":    amount.String(),
		},
	}})
	return amount, nil
}

type withdrawnEvent struct {
	evt *types.Event
}

func (e withdrawnEvent) EventType() string { return EventTypeWithdrawn }

func (e withdrawnEvent) Event() *types.Event { return e.evt }
