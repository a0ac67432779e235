package escrow

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"smartescrow/core/events"
)

const testNow int64 = 1_700_000_000

var errMockInsufficientFunds = errors.New("mock ledger: insufficient funds")

type mockState struct {
	engagements map[[32]byte]*Engagement
	rates       map[common.Address]uint32
	putErr      error
}

func newMockState() *mockState {
	return &mockState{
		engagements: make(map[[32]byte]*Engagement),
		rates:       make(map[common.Address]uint32),
	}
}

func (m *mockState) EngagementPut(e *Engagement) error {
	if m.putErr != nil {
		return m.putErr
	}
	sanitized, err := SanitizeEngagement(e)
	if err != nil {
		return err
	}
	m.engagements[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) EngagementGet(id [32]byte) (*Engagement, bool, error) {
	eng, ok := m.engagements[id]
	if !ok {
		return nil, false, nil
	}
	return eng.Clone(), true, nil
}

func (m *mockState) ResolutionRatePut(resolver common.Address, rate uint32) error {
	m.rates[resolver] = rate
	return nil
}

func (m *mockState) ResolutionRateGet(resolver common.Address) (uint32, bool, error) {
	rate, ok := m.rates[resolver]
	return rate, ok, nil
}

type mockLedger struct {
	balances map[common.Address]map[common.Address]*big.Int
	applyErr error
	applied  int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (l *mockLedger) BalanceOf(token, holder common.Address) (*big.Int, error) {
	if holders, ok := l.balances[token]; ok {
		if bal, ok := holders[holder]; ok {
			return new(big.Int).Set(bal), nil
		}
	}
	return big.NewInt(0), nil
}

func (l *mockLedger) credit(token, holder common.Address, amount *big.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	bal, ok := holders[holder]
	if !ok {
		bal = big.NewInt(0)
		holders[holder] = bal
	}
	bal.Add(bal, amount)
}

func (l *mockLedger) Apply(transfers []Transfer) error {
	if l.applyErr != nil {
		return l.applyErr
	}
	next := make(map[common.Address]map[common.Address]*big.Int, len(l.balances))
	for token, holders := range l.balances {
		copied := make(map[common.Address]*big.Int, len(holders))
		for holder, bal := range holders {
			copied[holder] = new(big.Int).Set(bal)
		}
		next[token] = copied
	}
	staged := &mockLedger{balances: next}
	for _, t := range transfers {
		if t.Kind != TransferMint {
			bal, _ := staged.BalanceOf(t.Token, t.From)
			if bal.Cmp(t.Amount) < 0 {
				return fmt.Errorf("%w: %s holds %s", errMockInsufficientFunds, t.From.Hex(), bal)
			}
			staged.credit(t.Token, t.From, new(big.Int).Neg(t.Amount))
		}
		if t.Kind != TransferBurn {
			staged.credit(t.Token, t.To, t.Amount)
		}
	}
	l.balances = staged.balances
	l.applied++
	return nil
}

type mockBackend struct{}

func (mockBackend) ClaimAccount(recipient, token common.Address) (common.Address, error) {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("claim"), recipient[:], token[:])[12:]), nil
}

type mockArbitrator struct {
	cost      *big.Int
	nextID    uint64
	createErr error
	opened    [][32]byte
}

func (a *mockArbitrator) ArbitrationCost([]byte) (*big.Int, error) {
	return new(big.Int).Set(a.cost), nil
}

func (a *mockArbitrator) CreateDispute(engagement [32]byte, choices uint64, _ []byte) (uint64, error) {
	if a.createErr != nil {
		return 0, a.createErr
	}
	if choices != NumRulingOptions {
		return 0, fmt.Errorf("unexpected choices %d", choices)
	}
	a.nextID++
	a.opened = append(a.opened, engagement)
	return a.nextID, nil
}

func newTestAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, 20))
}

func newTestKey(t *testing.T, seed byte) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := ethcrypto.ToECDSA(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey)
}

var (
	testToken      = newTestAddress(0x70)
	testOtherToken = newTestAddress(0x71)
	testWrapped    = newTestAddress(0xEE)
	testTreasury   = newTestAddress(0x7E)
	testResolver   = newTestAddress(0x5E)
	testArbitrator = newTestAddress(0xA8)
	testStranger   = newTestAddress(0x99)
)

type fixture struct {
	engine   *Engine
	state    *mockState
	ledger   *mockLedger
	court    *mockArbitrator
	recorder *events.Recorder
	client   common.Address
	provider common.Address
	nonce    uint64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:    newMockState(),
		ledger:   newMockLedger(),
		court:    &mockArbitrator{cost: big.NewInt(3)},
		recorder: &events.Recorder{},
		client:   newTestAddress(0x01),
		provider: newTestAddress(0x02),
	}
	engine := NewEngine()
	engine.SetState(f.state)
	engine.SetLedger(f.ledger)
	engine.SetPayoutBackend(mockBackend{})
	engine.SetWrappedNative(testWrapped)
	engine.SetEmitter(f.recorder)
	engine.SetNowFunc(func() int64 { return testNow })
	engine.RegisterArbitrator(testArbitrator, f.court)
	f.engine = engine
	return f
}

func amounts(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func (f *fixture) params(values ...int64) CreateParams {
	f.nonce++
	return CreateParams{
		Client:          f.client,
		Provider:        f.provider,
		Token:           testToken,
		Amounts:         amounts(values...),
		TerminationTime: testNow + 1_000,
		Nonce:           f.nonce,
	}
}

func (f *fixture) create(t *testing.T, params CreateParams) *Engagement {
	t.Helper()
	eng, err := f.engine.Create(params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.recorder.Reset()
	return eng
}

func (f *fixture) createResolvable(t *testing.T, values ...int64) *Engagement {
	t.Helper()
	params := f.params(values...)
	params.Resolution = ResolutionIndividual
	params.Resolver = testResolver
	params.MaxResolutionRateBPS = 1_000
	return f.create(t, params)
}

func (f *fixture) createArbitrable(t *testing.T, values ...int64) *Engagement {
	t.Helper()
	params := f.params(values...)
	params.Resolution = ResolutionArbitration
	params.Arbitrator = testArbitrator
	return f.create(t, params)
}

// fund mints amount to the client and deposits it.
func (f *fixture) fund(t *testing.T, eng *Engagement, amount int64) {
	t.Helper()
	f.ledger.credit(eng.Token, f.client, big.NewInt(amount))
	if err := f.engine.Deposit(eng.ID, f.client, big.NewInt(amount)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.recorder.Reset()
}

func (f *fixture) balance(t *testing.T, token, holder common.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(token, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (f *fixture) get(t *testing.T, id [32]byte) *Engagement {
	t.Helper()
	eng, err := f.engine.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return eng
}

func (f *fixture) lock(t *testing.T, eng *Engagement) {
	t.Helper()
	var fee *big.Int
	if eng.Resolution == ResolutionArbitration {
		fee = big.NewInt(3)
		f.ledger.credit(NativeAsset, f.client, fee)
	}
	if err := f.engine.Lock(eng.ID, f.client, "ipfs://dispute", fee); err != nil {
		t.Fatalf("lock: %v", err)
	}
	f.recorder.Reset()
}

func expectTypes(t *testing.T, recorder *events.Recorder, want ...string) {
	t.Helper()
	got := recorder.Types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}
