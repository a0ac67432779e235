package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"smartescrow/core/types"
)

const (
	EventTypeCreated                 = "Created"
	EventTypeDeposit                 = "Deposit"
	EventTypeRelease                 = "Release"
	EventTypeReleaseRemainder        = "ReleaseRemainder"
	EventTypeReleaseTokens           = "ReleaseTokens"
	EventTypeWithdraw                = "Withdraw"
	EventTypeWithdrawTokens          = "WithdrawTokens"
	EventTypeLock                    = "Lock"
	EventTypeDispute                 = "Dispute"
	EventTypeEvidence                = "Evidence"
	EventTypeResolve                 = "Resolve"
	EventTypeRule                    = "Rule"
	EventTypeRuling                  = "Ruling"
	EventTypeUnlock                  = "Unlock"
	EventTypeVerified                = "Verified"
	EventTypeMilestonesAdded         = "MilestonesAdded"
	EventTypeUpdatedClient           = "UpdatedClient"
	EventTypeUpdatedProvider         = "UpdatedProvider"
	EventTypeUpdatedClientReceiver   = "UpdatedClientReceiver"
	EventTypeUpdatedProviderReceiver = "UpdatedProviderReceiver"
	EventTypeUpdatedResolutionRate   = "UpdatedResolutionRate"
	EventTypeFeeTransferred          = "FeeTransferred"
	EventTypeWrappedStrayETH         = "WrappedStrayETH"
)

func newEvent(eventType string, id [32]byte) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"id": hex.EncodeToString(id[:]),
		},
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func uintString(v uint64) string { return strconv.FormatUint(v, 10) }

func NewCreatedEvent(eng *Engagement) *types.Event {
	evt := newEvent(EventTypeCreated, eng.ID)
	amounts := make([]string, len(eng.Amounts))
	for i, amt := range eng.Amounts {
		amounts[i] = amountString(amt)
	}
	evt.Attributes["address"] = eng.Address.Hex()
	evt.Attributes["client"] = eng.Client.Hex()
	evt.Attributes["provider"] = eng.Provider.Hex()
	evt.Attributes["token"] = eng.Token.Hex()
	evt.Attributes["amounts"] = strings.Join(amounts, ",")
	evt.Attributes["total"] = amountString(eng.Total())
	evt.Attributes["terminationTime"] = strconv.FormatInt(eng.TerminationTime, 10)
	evt.Attributes["payout"] = eng.Payout.String()
	evt.Attributes["resolution"] = eng.Resolution.String()
	evt.Attributes["feeBPS"] = uintString(uint64(eng.FeeBPS))
	if eng.Details != "" {
		evt.Attributes["details"] = eng.Details
	}
	return evt
}

func NewDepositEvent(id [32]byte, sender common.Address, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeDeposit, id)
	evt.Attributes["sender"] = sender.Hex()
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

// NewReleaseEvent reports a milestone payout. milestone is the index that was
// paid.
func NewReleaseEvent(id [32]byte, milestone uint64, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeRelease, id)
	evt.Attributes["milestone"] = uintString(milestone)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewReleaseRemainderEvent(id [32]byte, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeReleaseRemainder, id)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewReleaseTokensEvent(id [32]byte, token common.Address, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeReleaseTokens, id)
	evt.Attributes["token"] = token.Hex()
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewWithdrawEvent(id [32]byte, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeWithdraw, id)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewWithdrawTokensEvent(id [32]byte, token common.Address, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeWithdrawTokens, id)
	evt.Attributes["token"] = token.Hex()
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewLockEvent(id [32]byte, sender common.Address, details string) *types.Event {
	evt := newEvent(EventTypeLock, id)
	evt.Attributes["sender"] = sender.Hex()
	if details != "" {
		evt.Attributes["details"] = details
	}
	return evt
}

func NewDisputeEvent(id [32]byte, arbitrator common.Address, disputeID uint64) *types.Event {
	evt := newEvent(EventTypeDispute, id)
	evt.Attributes["arbitrator"] = arbitrator.Hex()
	evt.Attributes["disputeId"] = uintString(disputeID)
	return evt
}

func NewEvidenceEvent(id [32]byte, arbitrator common.Address, disputeID uint64, sender common.Address, evidence string) *types.Event {
	evt := newEvent(EventTypeEvidence, id)
	evt.Attributes["arbitrator"] = arbitrator.Hex()
	evt.Attributes["disputeId"] = uintString(disputeID)
	evt.Attributes["sender"] = sender.Hex()
	evt.Attributes["evidence"] = evidence
	return evt
}

func NewResolveEvent(id [32]byte, resolver common.Address, clientAward, providerAward, resolutionFee *big.Int, details string) *types.Event {
	evt := newEvent(EventTypeResolve, id)
	evt.Attributes["resolver"] = resolver.Hex()
	evt.Attributes["clientAward"] = amountString(clientAward)
	evt.Attributes["providerAward"] = amountString(providerAward)
	evt.Attributes["resolutionFee"] = amountString(resolutionFee)
	if details != "" {
		evt.Attributes["details"] = details
	}
	return evt
}

func NewRuleEvent(id [32]byte, arbitrator common.Address, clientAward, providerAward *big.Int, ruling uint64) *types.Event {
	evt := newEvent(EventTypeRule, id)
	evt.Attributes["arbitrator"] = arbitrator.Hex()
	evt.Attributes["clientAward"] = amountString(clientAward)
	evt.Attributes["providerAward"] = amountString(providerAward)
	evt.Attributes["ruling"] = uintString(ruling)
	return evt
}

func NewRulingEvent(id [32]byte, arbitrator common.Address, disputeID, ruling uint64) *types.Event {
	evt := newEvent(EventTypeRuling, id)
	evt.Attributes["arbitrator"] = arbitrator.Hex()
	evt.Attributes["disputeId"] = uintString(disputeID)
	evt.Attributes["ruling"] = uintString(ruling)
	return evt
}

func NewUnlockEvent(id [32]byte, sender common.Address, clientAward, providerAward *big.Int, details string) *types.Event {
	evt := newEvent(EventTypeUnlock, id)
	evt.Attributes["sender"] = sender.Hex()
	evt.Attributes["clientAward"] = amountString(clientAward)
	evt.Attributes["providerAward"] = amountString(providerAward)
	if details != "" {
		evt.Attributes["details"] = details
	}
	return evt
}

func NewVerifiedEvent(id [32]byte, client common.Address) *types.Event {
	evt := newEvent(EventTypeVerified, id)
	evt.Attributes["client"] = client.Hex()
	return evt
}

func NewMilestonesAddedEvent(id [32]byte, sender common.Address, amounts []*big.Int, details string) *types.Event {
	evt := newEvent(EventTypeMilestonesAdded, id)
	values := make([]string, len(amounts))
	for i, amt := range amounts {
		values[i] = amountString(amt)
	}
	evt.Attributes["sender"] = sender.Hex()
	evt.Attributes["amounts"] = strings.Join(values, ",")
	if details != "" {
		evt.Attributes["details"] = details
	}
	return evt
}

func newPartyUpdatedEvent(eventType string, id [32]byte, previous, next common.Address) *types.Event {
	evt := newEvent(eventType, id)
	evt.Attributes["previous"] = previous.Hex()
	evt.Attributes["next"] = next.Hex()
	return evt
}

func NewUpdatedClientEvent(id [32]byte, previous, next common.Address) *types.Event {
	return newPartyUpdatedEvent(EventTypeUpdatedClient, id, previous, next)
}

func NewUpdatedProviderEvent(id [32]byte, previous, next common.Address) *types.Event {
	return newPartyUpdatedEvent(EventTypeUpdatedProvider, id, previous, next)
}

func NewUpdatedClientReceiverEvent(id [32]byte, previous, next common.Address) *types.Event {
	return newPartyUpdatedEvent(EventTypeUpdatedClientReceiver, id, previous, next)
}

func NewUpdatedProviderReceiverEvent(id [32]byte, previous, next common.Address) *types.Event {
	return newPartyUpdatedEvent(EventTypeUpdatedProviderReceiver, id, previous, next)
}

// NewUpdatedResolutionRateEvent is not scoped to an engagement.
func NewUpdatedResolutionRateEvent(resolver common.Address, rateBPS uint32, details string) *types.Event {
	evt := &types.Event{
		Type: EventTypeUpdatedResolutionRate,
		Attributes: map[string]string{
			"resolver": resolver.Hex(),
			"rateBPS":  uintString(uint64(rateBPS)),
		},
	}
	if details != "" {
		evt.Attributes["details"] = details
	}
	return evt
}

func NewFeeTransferredEvent(id [32]byte, token, treasury common.Address, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeFeeTransferred, id)
	evt.Attributes["token"] = token.Hex()
	evt.Attributes["treasury"] = treasury.Hex()
	evt.Attributes["amount"] = amountString(amount)
	return evt
}

func NewWrappedStrayETHEvent(id [32]byte, amount *big.Int) *types.Event {
	evt := newEvent(EventTypeWrappedStrayETH, id)
	evt.Attributes["amount"] = amountString(amount)
	return evt
}
