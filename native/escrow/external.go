package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the ledger key of the chain's native currency.
var NativeAsset = common.Address{}

// TransferKind distinguishes plain moves from supply changes.
type TransferKind uint8

const (
	// TransferMove debits From and credits To.
	TransferMove TransferKind = iota
	// TransferMint credits To without a debit. Used to wrap native value.
	TransferMint
	// TransferBurn debits From without a credit.
	TransferBurn
)

// Transfer is a single balance mutation applied by the value ledger.
type Transfer struct {
	Kind   TransferKind
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Inverse returns the transfer that undoes t.
func (t Transfer) Inverse() Transfer {
	inv := Transfer{Token: t.Token, From: t.To, To: t.From, Amount: cloneBigInt(t.Amount)}
	switch t.Kind {
	case TransferMint:
		inv.Kind = TransferBurn
	case TransferBurn:
		inv.Kind = TransferMint
	default:
		inv.Kind = TransferMove
	}
	return inv
}

// Ledger is the external value ledger custodying engagement funds. Apply must
// be all-or-nothing: either every transfer in the batch is applied or none.
type Ledger interface {
	BalanceOf(token, holder common.Address) (*big.Int, error)
	Apply(transfers []Transfer) error
}

// PayoutBackend is the payout-splitting backend used by pull engagements.
// ClaimAccount returns the backend-held account that credits recipient for
// token; recipients withdraw from it later.
type PayoutBackend interface {
	ClaimAccount(recipient, token common.Address) (common.Address, error)
}

// Arbitrator is the external arbitration oracle.
type Arbitrator interface {
	ArbitrationCost(extraData []byte) (*big.Int, error)
	CreateDispute(engagement [32]byte, choices uint64, extraData []byte) (uint64, error)
}

// RulingMessage is the callback an arbitration oracle delivers once a case
// has been decided.
type RulingMessage struct {
	Engagement [32]byte
	Arbitrator common.Address
	DisputeID  uint64
	Ruling     uint64
}

// RulingHandler consumes ruling callbacks.
type RulingHandler interface {
	HandleRuling(msg RulingMessage) error
}

type engineState interface {
	EngagementPut(*Engagement) error
	EngagementGet(id [32]byte) (*Engagement, bool, error)
	ResolutionRatePut(resolver common.Address, rateBPS uint32) error
	ResolutionRateGet(resolver common.Address) (uint32, bool, error)
}
