package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestLockPreconditions(t *testing.T) {
	f := newFixture(t)
	eng := f.createResolvable(t, 100)
	if err := f.engine.Lock(eng.ID, testStranger, "", nil); !errors.Is(err, ErrNotParty) {
		t.Fatalf("expected ErrNotParty, got %v", err)
	}
	if err := f.engine.Lock(eng.ID, f.client, "", nil); !errors.Is(err, ErrBalanceIsZero) {
		t.Fatalf("expected ErrBalanceIsZero, got %v", err)
	}
	f.fund(t, eng, 100)
	if err := f.engine.Lock(eng.ID, f.provider, "ipfs://claim", nil); err != nil {
		t.Fatalf("lock: %v", err)
	}
	expectTypes(t, f.recorder, EventTypeLock)
	if err := f.engine.Lock(eng.ID, f.client, "", nil); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := f.engine.Release(eng.ID, f.client); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected release to be frozen, got %v", err)
	}
	if err := f.engine.AddMilestones(eng.ID, f.client, amounts(1), ""); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected addMilestones to be frozen, got %v", err)
	}
	if err := f.engine.UpdateProviderReceiver(eng.ID, f.provider, testStranger); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected receiver update to be frozen, got %v", err)
	}

	late := f.createResolvable(t, 100)
	f.fund(t, late, 100)
	f.engine.SetNowFunc(func() int64 { return late.TerminationTime + 1 })
	if err := f.engine.Lock(late.ID, f.client, "", nil); !errors.Is(err, ErrTerminated) {
		t.Fatalf("expected ErrTerminated, got %v", err)
	}
}

func TestMinimalEngagementHasNoDisputeSurface(t *testing.T) {
	f := newFixture(t)
	eng := f.create(t, f.params(100))
	f.fund(t, eng, 100)
	if err := f.engine.Lock(eng.ID, f.client, "", nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for lock, got %v", err)
	}
	if err := f.engine.Resolve(eng.ID, testResolver, 0, ""); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for resolve, got %v", err)
	}
	if err := f.engine.Rule(eng.ID, testArbitrator, 1, 1); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for rule, got %v", err)
	}
	if err := f.engine.Unlock(eng.ID, f.client, UnlockData{}, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for unlock, got %v", err)
	}
}

func TestResolveSplitsRemainderAfterResolverFee(t *testing.T) {
	f := newFixture(t)
	eng := f.createResolvable(t, 60, 40)
	f.fund(t, eng, 100)
	if err := f.engine.Resolve(eng.ID, testResolver, 1_000, ""); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
	f.lock(t, eng)
	if err := f.engine.Resolve(eng.ID, f.client, 1_000, ""); !errors.Is(err, ErrNotResolver) {
		t.Fatalf("expected ErrNotResolver, got %v", err)
	}
	if err := f.engine.Resolve(eng.ID, testResolver, BPSDenominator+1, ""); !errors.Is(err, ErrInvalidAwardBPS) {
		t.Fatalf("expected ErrInvalidAwardBPS, got %v", err)
	}
	if err := f.engine.Resolve(eng.ID, testResolver, 1_000, "ipfs://ruling"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := f.balance(t, testToken, testResolver); got != 5 {
		t.Fatalf("expected resolver fee 5, got %d", got)
	}
	if got := f.balance(t, testToken, f.client); got != 9 {
		t.Fatalf("expected client award 9, got %d", got)
	}
	if got := f.balance(t, testToken, f.provider); got != 86 {
		t.Fatalf("expected provider award 86, got %d", got)
	}
	got := f.get(t, eng.ID)
	if got.Locked || got.Milestone != 2 || got.Released.Int64() != 100 {
		t.Fatalf("unexpected post-resolve state: locked=%v milestone=%d released=%s", got.Locked, got.Milestone, got.Released)
	}
	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].Type != EventTypeResolve || evts[0].Attr("resolutionFee") != "5" {
		t.Fatalf("expected single Resolve event, got %v", f.recorder.Types())
	}
}

func TestResolveOnEmptyBalance(t *testing.T) {
	f := newFixture(t)
	params := f.params(100)
	params.Resolution = ResolutionIndividual
	params.Resolver = testResolver
	params.MaxResolutionRateBPS = 1_000
	params.ProviderReceiver = newTestAddress(0x45)
	eng := f.create(t, params)
	f.fund(t, eng, 100)
	f.lock(t, eng)
	f.ledger.balances[testToken][eng.Address] = big.NewInt(0)
	if err := f.engine.Resolve(eng.ID, testResolver, 0, ""); !errors.Is(err, ErrBalanceIsZero) {
		t.Fatalf("expected ErrBalanceIsZero, got %v", err)
	}
}

func TestArbitrationRuling(t *testing.T) {
	f := newFixture(t)
	eng := f.createArbitrable(t, 100)
	f.fund(t, eng, 100)

	f.ledger.credit(NativeAsset, f.client, big.NewInt(2))
	if err := f.engine.Lock(eng.ID, f.client, "", big.NewInt(2)); !errors.Is(err, ErrInsufficientArbitrationFee) {
		t.Fatalf("expected ErrInsufficientArbitrationFee, got %v", err)
	}
	f.ledger.credit(NativeAsset, f.client, big.NewInt(1))
	if err := f.engine.Lock(eng.ID, f.client, "ipfs://case", big.NewInt(3)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	expectTypes(t, f.recorder, EventTypeLock, EventTypeDispute, EventTypeEvidence)
	if got := f.balance(t, NativeAsset, testArbitrator); got != 3 {
		t.Fatalf("expected arbitrator to collect 3, got %d", got)
	}
	locked := f.get(t, eng.ID)
	if !locked.Locked || !locked.HasDispute || locked.DisputeID != 1 {
		t.Fatalf("expected open dispute 1, got %+v", locked)
	}
	f.recorder.Reset()

	if err := f.engine.Rule(eng.ID, f.client, 1, 1); !errors.Is(err, ErrNotResolver) {
		t.Fatalf("expected ErrNotResolver, got %v", err)
	}
	if err := f.engine.Rule(eng.ID, testArbitrator, 7, 1); !errors.Is(err, ErrIncorrectDisputeID) {
		t.Fatalf("expected ErrIncorrectDisputeID, got %v", err)
	}
	if err := f.engine.Rule(eng.ID, testArbitrator, 1, 3); !errors.Is(err, ErrInvalidRuling) {
		t.Fatalf("expected ErrInvalidRuling, got %v", err)
	}
	if err := f.engine.HandleRuling(RulingMessage{Engagement: eng.ID, Arbitrator: testArbitrator, DisputeID: 1, Ruling: 1}); err != nil {
		t.Fatalf("rule: %v", err)
	}
	expectTypes(t, f.recorder, EventTypeRule, EventTypeRuling)
	if got := f.balance(t, testToken, f.client); got != 100 {
		t.Fatalf("expected client award 100, got %d", got)
	}
	if got := f.balance(t, testToken, f.provider); got != 0 {
		t.Fatalf("expected provider award 0, got %d", got)
	}
	if err := f.engine.Rule(eng.ID, testArbitrator, 1, 2); !errors.Is(err, ErrAlreadyRuled) {
		t.Fatalf("expected ErrAlreadyRuled on replay, got %v", err)
	}
	ruled := f.get(t, eng.ID)
	if ruled.Locked || ruled.Released.Int64() != 100 || ruled.Milestone != 1 {
		t.Fatalf("unexpected post-ruling state: %+v", ruled)
	}
}

func TestArbitrationEvenSplit(t *testing.T) {
	f := newFixture(t)
	eng := f.createArbitrable(t, 101)
	f.fund(t, eng, 101)
	f.lock(t, eng)
	if err := f.engine.Rule(eng.ID, testArbitrator, 1, 0); err != nil {
		t.Fatalf("rule: %v", err)
	}
	if got := f.balance(t, testToken, f.client); got != 50 {
		t.Fatalf("expected client 50, got %d", got)
	}
	if got := f.balance(t, testToken, f.provider); got != 51 {
		t.Fatalf("expected provider 51, got %d", got)
	}
}

func TestArbitrationCaseFailureRefundsFee(t *testing.T) {
	f := newFixture(t)
	eng := f.createArbitrable(t, 100)
	f.fund(t, eng, 100)
	f.court.createErr = errors.New("court closed")
	f.ledger.credit(NativeAsset, f.client, big.NewInt(3))
	if err := f.engine.Lock(eng.ID, f.client, "", big.NewInt(3)); err == nil {
		t.Fatalf("expected lock to fail")
	}
	if got := f.balance(t, NativeAsset, f.client); got != 3 {
		t.Fatalf("expected fee refunded, got %d", got)
	}
	if f.get(t, eng.ID).Locked {
		t.Fatalf("engagement must stay unlocked")
	}
	if len(f.recorder.Types()) != 0 {
		t.Fatalf("unexpected events: %v", f.recorder.Types())
	}
}

func TestEvidenceSubmission(t *testing.T) {
	f := newFixture(t)
	resolvable := f.createResolvable(t, 10)
	if err := f.engine.SubmitEvidence(resolvable.ID, f.client, "ipfs://x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	eng := f.createArbitrable(t, 10)
	f.fund(t, eng, 10)
	if err := f.engine.SubmitEvidence(eng.ID, f.client, "ipfs://x"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
	f.lock(t, eng)
	if err := f.engine.SubmitEvidence(eng.ID, testStranger, "ipfs://x"); !errors.Is(err, ErrNotParty) {
		t.Fatalf("expected ErrNotParty, got %v", err)
	}
	if err := f.engine.SubmitEvidence(eng.ID, f.provider, "ipfs://proof"); err != nil {
		t.Fatalf("evidence: %v", err)
	}
	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].Attr("evidence") != "ipfs://proof" || evts[0].Attr("disputeId") != "1" {
		t.Fatalf("unexpected evidence events: %v", evts)
	}
}
