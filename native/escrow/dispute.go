package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// disputeHandler is the dispute capability of an engagement. Each resolution
// kind has exactly one implementation; operations a kind does not offer fail
// with ErrUnsupported.
type disputeHandler interface {
	lock(tx *txn, caller common.Address, details string, fee *big.Int) error
	resolve(tx *txn, caller common.Address, clientAwardBPS uint32, details string) error
	rule(tx *txn, msg RulingMessage) error
	evidence(tx *txn, caller common.Address, evidence string) error
}

func handlerFor(kind ResolutionKind) disputeHandler {
	switch kind {
	case ResolutionIndividual:
		return resolverHandler{}
	case ResolutionArbitration:
		return arbitrationHandler{}
	default:
		return minimalHandler{}
	}
}

type minimalHandler struct{}

func (minimalHandler) lock(*txn, common.Address, string, *big.Int) error { return ErrUnsupported }

func (minimalHandler) resolve(*txn, common.Address, uint32, string) error { return ErrUnsupported }

func (minimalHandler) rule(*txn, RulingMessage) error { return ErrUnsupported }

func (minimalHandler) evidence(*txn, common.Address, string) error { return ErrUnsupported }

// checkLockable enforces the preconditions shared by every lockable kind and
// returns the current balance.
func (tx *txn) checkLockable(caller common.Address) (*big.Int, error) {
	eng := tx.eng
	if !eng.IsParty(caller) {
		return nil, ErrNotParty
	}
	if eng.Terminated(tx.now) {
		return nil, ErrTerminated
	}
	balance, err := tx.balance()
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrBalanceIsZero
	}
	if eng.Locked {
		return nil, ErrLocked
	}
	return balance, nil
}

type resolverHandler struct{}

func (resolverHandler) lock(tx *txn, caller common.Address, details string, _ *big.Int) error {
	if _, err := tx.checkLockable(caller); err != nil {
		return err
	}
	tx.eng.Locked = true
	tx.emit(NewLockEvent(tx.eng.ID, caller, details))
	tx.disputes = append(tx.disputes, "locked")
	return nil
}

func (resolverHandler) resolve(tx *txn, caller common.Address, clientAwardBPS uint32, details string) error {
	eng := tx.eng
	if !eng.Locked {
		return ErrNotLocked
	}
	if caller != eng.Resolver.Resolver {
		return ErrNotResolver
	}
	if clientAwardBPS > BPSDenominator {
		return ErrInvalidAwardBPS
	}
	balance, err := tx.balance()
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return ErrBalanceIsZero
	}
	fee, remainder, err := splitBPS(balance, eng.Resolver.ResolutionRateBPS)
	if err != nil {
		return err
	}
	clientAward, providerAward, err := splitBPS(remainder, clientAwardBPS)
	if err != nil {
		return err
	}
	tx.payDirect(eng.Token, eng.Resolver.Resolver, fee)
	if err := tx.settle(clientAward, providerAward); err != nil {
		return err
	}
	tx.emit(NewResolveEvent(eng.ID, caller, clientAward, providerAward, fee, details))
	tx.disputes = append(tx.disputes, "resolved")
	return nil
}

func (resolverHandler) rule(*txn, RulingMessage) error { return ErrUnsupported }

func (resolverHandler) evidence(*txn, common.Address, string) error { return ErrUnsupported }

type arbitrationHandler struct{}

func (arbitrationHandler) lock(tx *txn, caller common.Address, details string, fee *big.Int) error {
	if _, err := tx.checkLockable(caller); err != nil {
		return err
	}
	eng := tx.eng
	arb, ok := tx.engine.arbitrator(eng.Arbitration.Arbitrator)
	if !ok {
		return fmt.Errorf("%w: arbitrator %s not registered", ErrInvalidResolverData, eng.Arbitration.Arbitrator.Hex())
	}
	cost, err := arb.ArbitrationCost(eng.Arbitration.ExtraData)
	if err != nil {
		return fmt.Errorf("escrow: quote arbitration cost: %w", err)
	}
	if fee == nil {
		fee = big.NewInt(0)
	}
	if fee.Sign() < 0 || fee.Cmp(cost) < 0 {
		return ErrInsufficientArbitrationFee
	}
	tx.stage(Transfer{Kind: TransferMove, Token: NativeAsset, From: caller, To: eng.Arbitration.Arbitrator, Amount: fee})
	eng.Locked = true
	tx.emit(NewLockEvent(eng.ID, caller, details))
	tx.onCommit(func(tx *txn) error {
		eng := tx.eng
		disputeID, err := arb.CreateDispute(eng.ID, NumRulingOptions, eng.Arbitration.ExtraData)
		if err != nil {
			return fmt.Errorf("escrow: open arbitration case: %w", err)
		}
		eng.DisputeID = disputeID
		eng.HasDispute = true
		tx.emit(NewDisputeEvent(eng.ID, eng.Arbitration.Arbitrator, disputeID))
		if details != "" {
			tx.emit(NewEvidenceEvent(eng.ID, eng.Arbitration.Arbitrator, disputeID, caller, details))
		}
		return nil
	})
	tx.disputes = append(tx.disputes, "locked")
	return nil
}

func (arbitrationHandler) resolve(*txn, common.Address, uint32, string) error { return ErrUnsupported }

func (arbitrationHandler) rule(tx *txn, msg RulingMessage) error {
	eng := tx.eng
	if msg.Arbitrator != eng.Arbitration.Arbitrator {
		return ErrNotResolver
	}
	if eng.ruled(msg.DisputeID) {
		return ErrAlreadyRuled
	}
	if !eng.Locked {
		return ErrNotLocked
	}
	if !eng.HasDispute || msg.DisputeID != eng.DisputeID {
		return ErrIncorrectDisputeID
	}
	if msg.Ruling > NumRulingOptions {
		return ErrInvalidRuling
	}
	balance, err := tx.balance()
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return ErrBalanceIsZero
	}
	var clientAward, providerAward *big.Int
	switch msg.Ruling {
	case 0:
		clientAward, providerAward, err = splitBPS(balance, BPSDenominator/2)
		if err != nil {
			return err
		}
	case 1:
		clientAward, providerAward = balance, big.NewInt(0)
	default:
		clientAward, providerAward = big.NewInt(0), balance
	}
	if err := tx.settle(clientAward, providerAward); err != nil {
		return err
	}
	eng.RuledDisputes = append(eng.RuledDisputes, msg.DisputeID)
	tx.emit(NewRuleEvent(eng.ID, msg.Arbitrator, clientAward, providerAward, msg.Ruling))
	tx.emit(NewRulingEvent(eng.ID, msg.Arbitrator, msg.DisputeID, msg.Ruling))
	tx.disputes = append(tx.disputes, "ruled")
	return nil
}

func (arbitrationHandler) evidence(tx *txn, caller common.Address, evidence string) error {
	eng := tx.eng
	if !eng.IsParty(caller) {
		return ErrNotParty
	}
	if !eng.Locked {
		return ErrNotLocked
	}
	tx.emit(NewEvidenceEvent(eng.ID, eng.Arbitration.Arbitrator, eng.DisputeID, caller, evidence))
	return nil
}

// Lock freezes the engagement pending a dispute outcome. Arbitrable
// engagements require fee to cover the oracle's quoted case cost; the whole
// fee is remitted to the oracle in the native asset.
func (e *Engine) Lock(id [32]byte, caller common.Address, details string, fee *big.Int) error {
	return e.execute("lock", id, func(tx *txn) error {
		return handlerFor(tx.eng.Resolution).lock(tx, caller, details, fee)
	})
}

// Resolve settles a locked engagement through its individual resolver.
// clientAwardBPS is the client's share of the balance left after the
// resolver fee.
func (e *Engine) Resolve(id [32]byte, caller common.Address, clientAwardBPS uint32, details string) error {
	return e.execute("resolve", id, func(tx *txn) error {
		return handlerFor(tx.eng.Resolution).resolve(tx, caller, clientAwardBPS, details)
	})
}

// Rule applies an arbitration ruling delivered by caller.
func (e *Engine) Rule(id [32]byte, caller common.Address, disputeID, ruling uint64) error {
	return e.HandleRuling(RulingMessage{Engagement: id, Arbitrator: caller, DisputeID: disputeID, Ruling: ruling})
}

// HandleRuling consumes a ruling callback. A case is settled at most once;
// replays fail with ErrAlreadyRuled.
func (e *Engine) HandleRuling(msg RulingMessage) error {
	return e.execute("rule", msg.Engagement, func(tx *txn) error {
		return handlerFor(tx.eng.Resolution).rule(tx, msg)
	})
}

// SubmitEvidence attaches an evidence URI to the open arbitration case.
func (e *Engine) SubmitEvidence(id [32]byte, caller common.Address, evidence string) error {
	return e.execute("evidence", id, func(tx *txn) error {
		return handlerFor(tx.eng.Resolution).evidence(tx, caller, evidence)
	})
}
