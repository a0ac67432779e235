package escrow

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCreateValidations(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr error
	}{
		{"ok", func(*CreateParams) {}, nil},
		{"zero client", func(p *CreateParams) { p.Client = common.Address{} }, ErrInvalidClient},
		{"zero provider", func(p *CreateParams) { p.Provider = common.Address{} }, ErrInvalidProvider},
		{"zero token", func(p *CreateParams) { p.Token = common.Address{} }, ErrInvalidToken},
		{"no milestones", func(p *CreateParams) { p.Amounts = nil }, ErrNoMilestones},
		{"too many milestones", func(p *CreateParams) { p.Amounts = amounts(make([]int64, 51)...) }, ErrExceedsMilestoneLimit},
		{"zero amount", func(p *CreateParams) { p.Amounts = amounts(10, 0) }, ErrInvalidAmount},
		{"overflow amount", func(p *CreateParams) { p.Amounts = []*big.Int{new(big.Int).Lsh(big.NewInt(1), 256)} }, ErrAmountOverflow},
		{"deadline passed", func(p *CreateParams) { p.TerminationTime = testNow }, ErrDurationEnded},
		{"deadline too far", func(p *CreateParams) { p.TerminationTime = testNow + MaxTerminationSeconds + 1 }, ErrDurationTooLong},
		{"fee too high", func(p *CreateParams) { p.FeeBPS = MaxFeeBPS + 1; p.Treasury = testTreasury }, ErrInvalidFeeBPS},
		{"fee without treasury", func(p *CreateParams) { p.FeeBPS = 100 }, ErrInvalidTreasury},
		{"resolver missing", func(p *CreateParams) { p.Resolution = ResolutionIndividual }, ErrInvalidResolverData},
		{"resolver max too high", func(p *CreateParams) {
			p.Resolution = ResolutionIndividual
			p.Resolver = testResolver
			p.MaxResolutionRateBPS = BPSDenominator + 1
		}, ErrInvalidResolverData},
		{"resolver rate above max", func(p *CreateParams) {
			p.Resolution = ResolutionIndividual
			p.Resolver = testResolver
			p.MaxResolutionRateBPS = 100
		}, ErrInvalidResolverData},
		{"unknown arbitrator", func(p *CreateParams) {
			p.Resolution = ResolutionArbitration
			p.Arbitrator = testStranger
		}, ErrInvalidResolverData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := f.params(10, 20)
			tc.mutate(&params)
			_, err := f.engine.Create(params)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	params := f.params(10)
	first := f.create(t, params)
	if _, err := f.engine.Create(params); !errors.Is(err, ErrEngagementExists) {
		t.Fatalf("expected ErrEngagementExists, got %v", err)
	}
	if first.ID != EngagementID(f.client, f.provider, testToken, params.Nonce) {
		t.Fatalf("unexpected engagement id")
	}
	if first.Address != EngagementAddress(first.ID) {
		t.Fatalf("unexpected custody address")
	}
}

func TestCreateRejectsSelfReceiver(t *testing.T) {
	f := newFixture(t)
	params := f.params(10)
	id := EngagementID(params.Client, params.Provider, params.Token, params.Nonce)
	params.ProviderReceiver = EngagementAddress(id)
	if _, err := f.engine.Create(params); !errors.Is(err, ErrInvalidProviderReceiver) {
		t.Fatalf("expected ErrInvalidProviderReceiver, got %v", err)
	}
}

func TestCreateEmitsCreated(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Create(f.params(10, 15)); err != nil {
		t.Fatalf("create: %v", err)
	}
	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].Type != EventTypeCreated {
		t.Fatalf("expected Created event, got %v", f.recorder.Types())
	}
	if evts[0].Attr("total") != "25" || evts[0].Attr("amounts") != "10,15" {
		t.Fatalf("unexpected created attributes: %v", evts[0].Attributes)
	}
}

func TestResolutionRateSnapshot(t *testing.T) {
	f := newFixture(t)
	first := f.createResolvable(t, 100)
	if first.Resolver.ResolutionRateBPS != DefaultResolutionRateBPS {
		t.Fatalf("expected default rate, got %d", first.Resolver.ResolutionRateBPS)
	}
	if err := f.engine.SetResolutionRate(testResolver, 200, "discount"); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	expectTypes(t, f.recorder, EventTypeUpdatedResolutionRate)
	second := f.createResolvable(t, 100)
	if second.Resolver.ResolutionRateBPS != 200 {
		t.Fatalf("expected published rate, got %d", second.Resolver.ResolutionRateBPS)
	}
	if got := f.get(t, first.ID).Resolver.ResolutionRateBPS; got != DefaultResolutionRateBPS {
		t.Fatalf("existing engagement rate changed to %d", got)
	}
	if err := f.engine.SetResolutionRate(testResolver, BPSDenominator+1, ""); !errors.Is(err, ErrInvalidResolutionRate) {
		t.Fatalf("expected ErrInvalidResolutionRate, got %v", err)
	}
}

func TestLedgerFailureLeavesEngagementUntouched(t *testing.T) {
	f := newFixture(t)
	eng := f.create(t, f.params(10, 10))
	f.fund(t, eng, 10)
	f.ledger.applyErr = errors.New("ledger offline")
	if err := f.engine.Release(eng.ID, f.client); err == nil {
		t.Fatalf("expected release to fail")
	}
	got := f.get(t, eng.ID)
	if got.Milestone != 0 || got.Released.Sign() != 0 {
		t.Fatalf("engagement mutated on failure: milestone=%d released=%s", got.Milestone, got.Released)
	}
	if len(f.recorder.Types()) != 0 {
		t.Fatalf("events emitted on failure: %v", f.recorder.Types())
	}
}

func TestStoreFailureCompensatesTransfers(t *testing.T) {
	f := newFixture(t)
	eng := f.create(t, f.params(10, 10))
	f.fund(t, eng, 10)
	f.state.putErr = errors.New("disk full")
	if err := f.engine.Release(eng.ID, f.client); err == nil {
		t.Fatalf("expected release to fail")
	}
	if got := f.balance(t, testToken, eng.Address); got != 10 {
		t.Fatalf("expected custody restored to 10, got %d", got)
	}
	if got := f.balance(t, testToken, f.provider); got != 0 {
		t.Fatalf("expected provider payout reverted, got %d", got)
	}
}

func TestConcurrentDepositsAreSerialised(t *testing.T) {
	f := newFixture(t)
	params := f.params(1_000)
	params.RequireVerification = false
	eng := f.create(t, params)

	var ledgerMu sync.Mutex
	guarded := &lockedLedger{inner: f.ledger, mu: &ledgerMu}
	f.engine.SetLedger(guarded)
	ledgerMu.Lock()
	f.ledger.credit(testToken, f.client, big.NewInt(100))
	ledgerMu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.engine.Deposit(eng.ID, f.client, big.NewInt(10)); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()
	bal, err := f.engine.Balance(eng.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Int64() != 100 {
		t.Fatalf("expected 100 in custody, got %s", bal)
	}
	if held := f.engine.heldLocks(); held != 0 {
		t.Fatalf("expected engagement locks released, %d still held", held)
	}
}

type lockedLedger struct {
	inner *mockLedger
	mu    *sync.Mutex
}

func (l *lockedLedger) BalanceOf(token, holder common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.BalanceOf(token, holder)
}

func (l *lockedLedger) Apply(transfers []Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Apply(transfers)
}

func TestMissingEngagement(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Release([32]byte{1}, f.client); !errors.Is(err, ErrEngagementNotFound) {
		t.Fatalf("expected ErrEngagementNotFound, got %v", err)
	}
}

func TestEngineRequiresWiring(t *testing.T) {
	engine := NewEngine()
	if _, err := engine.Create(CreateParams{}); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	engine.SetState(newMockState())
	if err := engine.Verify([32]byte{}, common.Address{}); !errors.Is(err, errNilLedger) {
		t.Fatalf("expected errNilLedger, got %v", err)
	}
}

func TestSanitizeEngagementInvariants(t *testing.T) {
	f := newFixture(t)
	base := f.create(t, f.params(10))

	minimalLocked := base.Clone()
	minimalLocked.Locked = true
	if _, err := SanitizeEngagement(minimalLocked); err == nil {
		t.Fatalf("expected minimal locked engagement to be rejected")
	}

	beyond := base.Clone()
	beyond.Milestone = 2
	if _, err := SanitizeEngagement(beyond); !errors.Is(err, ErrInvalidMilestone) {
		t.Fatalf("expected ErrInvalidMilestone, got %v", err)
	}

	stray := base.Clone()
	stray.HasDispute = true
	if _, err := SanitizeEngagement(stray); err == nil {
		t.Fatalf("expected dispute id on minimal engagement to be rejected")
	}
}
