package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxMilestones bounds the length of a milestone schedule.
	MaxMilestones = 50
	// MaxFeeBPS caps the treasury skim at 10%.
	MaxFeeBPS = 1_000
	// BPSDenominator expresses 100% in basis points.
	BPSDenominator = 10_000
	// MaxTerminationSeconds bounds how far in the future the termination time
	// may be set at creation (5 years).
	MaxTerminationSeconds = 5 * 365 * 24 * 60 * 60
	// DefaultResolutionRateBPS is the resolver fee used when a resolver has not
	// published a rate of its own (5%).
	DefaultResolutionRateBPS = 500
	// NumRulingOptions is the number of non-abstain choices offered to an
	// arbitration oracle: 1 = client, 2 = provider. Ruling 0 splits evenly.
	NumRulingOptions = 2
)

// PayoutModel selects how the router delivers value to a recipient.
type PayoutModel uint8

const (
	// PayoutPush transfers value directly to the recipient on the ledger.
	PayoutPush PayoutModel = iota
	// PayoutPull credits the recipient inside a payout backend; the recipient
	// withdraws later.
	PayoutPull
)

// Valid reports whether the payout model is known.
func (m PayoutModel) Valid() bool { return m == PayoutPush || m == PayoutPull }

func (m PayoutModel) String() string {
	switch m {
	case PayoutPush:
		return "push"
	case PayoutPull:
		return "pull"
	default:
		return fmt.Sprintf("payout(%d)", uint8(m))
	}
}

// ResolutionKind selects the dispute capability of an engagement. Exactly one
// applies per engagement and it never changes after creation.
type ResolutionKind uint8

const (
	// ResolutionNone marks minimal engagements with no lock/resolve surface.
	ResolutionNone ResolutionKind = iota
	// ResolutionIndividual routes disputes to a single resolver identity for
	// a bounded fee.
	ResolutionIndividual
	// ResolutionArbitration routes disputes to an arbitration oracle that
	// rules through a callback.
	ResolutionArbitration
)

// Valid reports whether the resolution kind is known.
func (k ResolutionKind) Valid() bool {
	switch k {
	case ResolutionNone, ResolutionIndividual, ResolutionArbitration:
		return true
	default:
		return false
	}
}

func (k ResolutionKind) String() string {
	switch k {
	case ResolutionNone:
		return "minimal"
	case ResolutionIndividual:
		return "resolvable"
	case ResolutionArbitration:
		return "arbitrable"
	default:
		return fmt.Sprintf("resolution(%d)", uint8(k))
	}
}

// ResolverConfig configures the individual-resolver variant.
type ResolverConfig struct {
	Resolver             common.Address
	ResolutionRateBPS    uint32
	MaxResolutionRateBPS uint32
}

// ArbitrationConfig configures the arbitration-oracle variant. ExtraData is
// opaque to the engine and forwarded to the oracle.
type ArbitrationConfig struct {
	Arbitrator common.Address
	ExtraData  []byte
}

// Engagement captures one escrow instance between a client and a provider.
// Amounts are denominated in the smallest unit of Token.
type Engagement struct {
	ID      [32]byte
	Address common.Address
	Nonce   uint64

	Client           common.Address
	Provider         common.Address
	ClientReceiver   common.Address
	ProviderReceiver common.Address

	Token           common.Address
	Amounts         []*big.Int
	Milestone       uint64
	Released        *big.Int
	TerminationTime int64
	Details         string

	RequireVerification bool
	Verified            bool

	FeeBPS   uint32
	Treasury common.Address

	Payout      PayoutModel
	Resolution  ResolutionKind
	Resolver    ResolverConfig
	Arbitration ArbitrationConfig

	Locked        bool
	DisputeID     uint64
	HasDispute    bool
	RuledDisputes []uint64

	CreatedAt int64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Clone returns a deep copy of the engagement so callers can mutate the copy
// without affecting the stored instance.
func (e *Engagement) Clone() *Engagement {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Amounts = make([]*big.Int, len(e.Amounts))
	for i, amt := range e.Amounts {
		clone.Amounts[i] = cloneBigInt(amt)
	}
	clone.Released = cloneBigInt(e.Released)
	if e.Arbitration.ExtraData != nil {
		clone.Arbitration.ExtraData = append([]byte(nil), e.Arbitration.ExtraData...)
	}
	if e.RuledDisputes != nil {
		clone.RuledDisputes = append([]uint64(nil), e.RuledDisputes...)
	}
	return &clone
}

// Total returns the sum of all scheduled milestone amounts. It is always
// recomputed from the schedule.
func (e *Engagement) Total() *big.Int {
	total := big.NewInt(0)
	if e == nil {
		return total
	}
	for _, amt := range e.Amounts {
		if amt != nil {
			total.Add(total, amt)
		}
	}
	return total
}

// MilestoneCount returns the schedule length.
func (e *Engagement) MilestoneCount() uint64 {
	if e == nil {
		return 0
	}
	return uint64(len(e.Amounts))
}

// ClientPayee returns the identity client-bound payouts are delivered to.
func (e *Engagement) ClientPayee() common.Address {
	if e.ClientReceiver != (common.Address{}) {
		return e.ClientReceiver
	}
	return e.Client
}

// ProviderPayee returns the identity provider-bound payouts are delivered to.
func (e *Engagement) ProviderPayee() common.Address {
	if e.ProviderReceiver != (common.Address{}) {
		return e.ProviderReceiver
	}
	return e.Provider
}

// IsParty reports whether addr is the client or the provider.
func (e *Engagement) IsParty(addr common.Address) bool {
	return addr == e.Client || addr == e.Provider
}

// Terminated reports whether the termination time has passed at now.
func (e *Engagement) Terminated(now int64) bool {
	return now > e.TerminationTime
}

func (e *Engagement) ruled(disputeID uint64) bool {
	for _, id := range e.RuledDisputes {
		if id == disputeID {
			return true
		}
	}
	return false
}

// SanitizeEngagement validates the invariants every stored engagement must
// satisfy and returns a cloned instance. The original is not mutated.
func SanitizeEngagement(e *Engagement) (*Engagement, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil engagement")
	}
	clone := e.Clone()
	if clone.Client == (common.Address{}) {
		return nil, ErrInvalidClient
	}
	if clone.Provider == (common.Address{}) {
		return nil, ErrInvalidProvider
	}
	if len(clone.Amounts) == 0 {
		return nil, ErrNoMilestones
	}
	if len(clone.Amounts) > MaxMilestones {
		return nil, ErrExceedsMilestoneLimit
	}
	for _, amt := range clone.Amounts {
		if err := validateAmount(amt); err != nil {
			return nil, err
		}
	}
	if clone.Milestone > clone.MilestoneCount() {
		return nil, fmt.Errorf("%w: milestone %d beyond schedule", ErrInvalidMilestone, clone.Milestone)
	}
	if clone.Released.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative released", ErrInvalidAmount)
	}
	if clone.FeeBPS > MaxFeeBPS {
		return nil, ErrInvalidFeeBPS
	}
	if clone.FeeBPS > 0 && clone.Treasury == (common.Address{}) {
		return nil, ErrInvalidTreasury
	}
	if !clone.Payout.Valid() {
		return nil, fmt.Errorf("escrow: invalid payout model %d", clone.Payout)
	}
	if !clone.Resolution.Valid() {
		return nil, fmt.Errorf("escrow: invalid resolution kind %d", clone.Resolution)
	}
	switch clone.Resolution {
	case ResolutionNone:
		if clone.Locked {
			return nil, fmt.Errorf("escrow: minimal engagement cannot be locked")
		}
	case ResolutionArbitration:
		if clone.Locked && !clone.HasDispute {
			return nil, fmt.Errorf("escrow: locked arbitrable engagement without dispute id")
		}
	}
	if clone.Resolution != ResolutionArbitration && clone.HasDispute {
		return nil, fmt.Errorf("escrow: dispute id set on %s engagement", clone.Resolution)
	}
	return clone, nil
}
