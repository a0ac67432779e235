package escrow

import "errors"

// Authorization failures.
var (
	ErrNotClient   = errors.New("escrow: caller is not the client")
	ErrNotProvider = errors.New("escrow: caller is not the provider")
	ErrNotParty    = errors.New("escrow: caller is not a party")
	ErrNotResolver = errors.New("escrow: caller is not the resolver")
)

// State-precondition failures.
var (
	ErrLocked        = errors.New("escrow: locked")
	ErrNotLocked     = errors.New("escrow: not locked")
	ErrTerminated    = errors.New("escrow: terminated")
	ErrNotTerminated = errors.New("escrow: not terminated")
	ErrNotVerified   = errors.New("escrow: third-party deposits require client verification")
	ErrUnsupported   = errors.New("escrow: operation not supported by engagement")
	ErrAlreadyRuled  = errors.New("escrow: dispute already ruled")
)

// Input-validation failures.
var (
	ErrInvalidMilestone           = errors.New("escrow: invalid milestone")
	ErrInvalidClient              = errors.New("escrow: invalid client")
	ErrInvalidProvider            = errors.New("escrow: invalid provider")
	ErrInvalidClientReceiver      = errors.New("escrow: invalid client receiver")
	ErrInvalidProviderReceiver    = errors.New("escrow: invalid provider receiver")
	ErrInvalidToken               = errors.New("escrow: invalid token")
	ErrInvalidAmount              = errors.New("escrow: invalid amount")
	ErrAmountOverflow             = errors.New("escrow: amount exceeds 256 bits")
	ErrInvalidResolverData        = errors.New("escrow: invalid resolver data")
	ErrInvalidResolutionRate      = errors.New("escrow: invalid resolution rate")
	ErrInvalidRuling              = errors.New("escrow: invalid ruling")
	ErrIncorrectDisputeID         = errors.New("escrow: incorrect dispute id")
	ErrInvalidRefundBPS           = errors.New("escrow: invalid refund bps")
	ErrInvalidAwardBPS            = errors.New("escrow: invalid award bps")
	ErrInvalidFeeBPS              = errors.New("escrow: invalid fee bps")
	ErrInvalidTreasury            = errors.New("escrow: invalid treasury")
	ErrInvalidWrappedETH          = errors.New("escrow: token is not the wrapped native asset")
	ErrInvalidSignatures          = errors.New("escrow: invalid signatures")
	ErrInsufficientArbitrationFee = errors.New("escrow: arbitration fee not covered")
	ErrNoMilestones               = errors.New("escrow: no milestones")
	ErrExceedsMilestoneLimit      = errors.New("escrow: exceeds milestone limit")
	ErrDurationEnded              = errors.New("escrow: duration ended")
	ErrDurationTooLong            = errors.New("escrow: duration too long")
)

// Resource failures.
var (
	ErrBalanceIsZero       = errors.New("escrow: balance is zero")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
)

// Lookup failures.
var (
	ErrEngagementNotFound = errors.New("escrow: engagement not found")
	ErrEngagementExists   = errors.New("escrow: engagement already exists")
)
