package escrow

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"smartescrow/core/events"
	"smartescrow/core/types"
	"smartescrow/observability"
)

var (
	errNilState   = errors.New("escrow engine: state not configured")
	errNilLedger  = errors.New("escrow engine: ledger not configured")
	errNilBackend = errors.New("escrow engine: payout backend not configured")
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the engagement state machine with its external collaborators:
// the state store, the value ledger, the pull payout backend, arbitration
// oracles and the event emitter. Every operation on one engagement is
// serialised; distinct engagements proceed concurrently.
type Engine struct {
	state         engineState
	ledger        Ledger
	backend       PayoutBackend
	wrappedNative common.Address
	domain        UnlockDomain
	emitter       events.Emitter
	logger        *slog.Logger
	metrics       *observability.EscrowMetrics
	nowFn         func() int64

	mu          sync.Mutex
	locks       map[[32]byte]*engagementLock
	arbitrators map[common.Address]Arbitrator
}

// NewEngine creates an escrow engine with a no-op emitter and a discarding
// logger. Callers wire collaborators through the Set* methods.
func NewEngine() *Engine {
	return &Engine{
		emitter:     events.NoopEmitter{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:     observability.Escrow(),
		nowFn:       func() int64 { return time.Now().Unix() },
		domain:      DefaultUnlockDomain(),
		locks:       make(map[[32]byte]*engagementLock),
		arbitrators: make(map[common.Address]Arbitrator),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the external value ledger.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetPayoutBackend configures the backend credited by pull engagements.
func (e *Engine) SetPayoutBackend(backend PayoutBackend) { e.backend = backend }

// SetWrappedNative configures the token address of the wrapped native asset.
func (e *Engine) SetWrappedNative(token common.Address) { e.wrappedNative = token }

// SetUnlockDomain configures the typed-data domain unlock signatures are
// bound to.
func (e *Engine) SetUnlockDomain(domain UnlockDomain) { e.domain = domain }

// SetLogger overrides the logger. Passing nil restores the discarding logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = logger
}

// SetMetrics overrides the metrics registry. Passing nil disables metrics.
func (e *Engine) SetMetrics(metrics *observability.EscrowMetrics) { e.metrics = metrics }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// RegisterArbitrator makes an arbitration oracle available to arbitrable
// engagements under addr.
func (e *Engine) RegisterArbitrator(addr common.Address, arbitrator Arbitrator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if arbitrator == nil {
		delete(e.arbitrators, addr)
		return
	}
	e.arbitrators[addr] = arbitrator
}

func (e *Engine) arbitrator(addr common.Address) (Arbitrator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	arb, ok := e.arbitrators[addr]
	return arb, ok
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	observability.Events().RecordEvent(event.Type)
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// engagementLock serialises operations on one engagement. Entries are
// dropped from the engine once no caller holds or waits on them.
type engagementLock struct {
	sync.Mutex
	refs int
}

func (e *Engine) lockEngagement(id [32]byte) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &engagementLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) heldLocks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.locks)
}

func (e *Engine) loadEngagement(id [32]byte) (*Engagement, error) {
	eng, ok, err := e.state.EngagementGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || eng == nil {
		return nil, ErrEngagementNotFound
	}
	return eng, nil
}

func (e *Engine) storeEngagement(eng *Engagement) error {
	sanitized, err := SanitizeEngagement(eng)
	if err != nil {
		return err
	}
	return e.state.EngagementPut(sanitized)
}

// txn stages the effects of one operation. Nothing is visible outside the
// engine until commit applies the transfers, runs the hooks, stores the
// engagement and flushes the events.
type txn struct {
	engine    *Engine
	eng       *Engagement
	now       int64
	transfers []Transfer
	hooks     []func(*txn) error
	events    []*types.Event
	payouts   []string
	disputes  []string
}

func (tx *txn) emit(evt *types.Event) { tx.events = append(tx.events, evt) }

func (tx *txn) stage(t Transfer) {
	if t.Amount == nil || t.Amount.Sign() == 0 {
		return
	}
	t.Amount = cloneBigInt(t.Amount)
	tx.transfers = append(tx.transfers, t)
}

func (tx *txn) onCommit(hook func(*txn) error) { tx.hooks = append(tx.hooks, hook) }

// balanceOf reads the ledger balance of holder and applies the transfers
// staged so far.
func (tx *txn) balanceOf(token, holder common.Address) (*big.Int, error) {
	bal, err := tx.engine.ledger.BalanceOf(token, holder)
	if err != nil {
		return nil, fmt.Errorf("escrow: read balance: %w", err)
	}
	out := cloneBigInt(bal)
	for _, t := range tx.transfers {
		if t.Token != token {
			continue
		}
		if t.Kind != TransferMint && t.From == holder {
			out.Sub(out, t.Amount)
		}
		if t.Kind != TransferBurn && t.To == holder {
			out.Add(out, t.Amount)
		}
	}
	return out, nil
}

// balance returns the engagement's current balance of its own token.
func (tx *txn) balance() (*big.Int, error) {
	return tx.balanceOf(tx.eng.Token, tx.eng.Address)
}

func (e *Engine) execute(op string, id [32]byte, fn func(*txn) error) error {
	start := time.Now()
	err := e.run(id, fn)
	e.observe(op, id, err, time.Since(start))
	return err
}

func (e *Engine) observe(op string, id [32]byte, err error, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveOperation(op, err, elapsed)
	}
	if err != nil {
		e.logger.Debug("escrow operation rejected", "operation", op, "engagement", hex.EncodeToString(id[:]), "error", err)
		return
	}
	e.logger.Debug("escrow operation committed", "operation", op, "engagement", hex.EncodeToString(id[:]))
}

func (e *Engine) run(id [32]byte, fn func(*txn) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	release := e.lockEngagement(id)
	defer release()
	eng, err := e.loadEngagement(id)
	if err != nil {
		return err
	}
	tx := &txn{engine: e, eng: eng, now: e.now()}
	if err := fn(tx); err != nil {
		return err
	}
	return e.commit(tx)
}

func (e *Engine) commit(tx *txn) error {
	if len(tx.transfers) > 0 {
		if err := e.ledger.Apply(tx.transfers); err != nil {
			return fmt.Errorf("escrow: apply transfers: %w", err)
		}
	}
	for _, hook := range tx.hooks {
		if err := hook(tx); err != nil {
			e.compensate(tx)
			return err
		}
	}
	if err := e.storeEngagement(tx.eng); err != nil {
		e.compensate(tx)
		return err
	}
	for _, evt := range tx.events {
		e.emit(evt)
	}
	if e.metrics != nil {
		for _, kind := range tx.payouts {
			e.metrics.RecordPayout(kind)
		}
		for _, transition := range tx.disputes {
			e.metrics.RecordDispute(transition)
		}
	}
	return nil
}

// compensate undoes transfers that were applied before a later commit step
// failed.
func (e *Engine) compensate(tx *txn) {
	if len(tx.transfers) == 0 {
		return
	}
	inverse := make([]Transfer, 0, len(tx.transfers))
	for i := len(tx.transfers) - 1; i >= 0; i-- {
		inverse = append(inverse, tx.transfers[i].Inverse())
	}
	if err := e.ledger.Apply(inverse); err != nil {
		e.logger.Error("escrow compensation failed", "engagement", hex.EncodeToString(tx.eng.ID[:]), "error", err)
	}
}

// EngagementID derives the deterministic identifier of an engagement from its
// parties, token and a caller-supplied nonce.
func EngagementID(client, provider, token common.Address, nonce uint64) [32]byte {
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	return ethcrypto.Keccak256Hash(client[:], provider[:], token[:], nonceBytes[:])
}

// EngagementAddress derives the custody account holding an engagement's funds.
func EngagementAddress(id [32]byte) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("escrow"), id[:])[12:])
}

// CreateParams describes a new engagement.
type CreateParams struct {
	Client           common.Address
	Provider         common.Address
	ClientReceiver   common.Address
	ProviderReceiver common.Address
	Token            common.Address
	Amounts          []*big.Int
	TerminationTime  int64
	Details          string
	Nonce            uint64

	RequireVerification bool
	FeeBPS              uint32
	Treasury            common.Address

	Payout               PayoutModel
	Resolution           ResolutionKind
	Resolver             common.Address
	MaxResolutionRateBPS uint32
	Arbitrator           common.Address
	ArbitrationExtraData []byte
}

// Create validates the parameters atomically and persists a new engagement.
func (e *Engine) Create(params CreateParams) (*Engagement, error) {
	start := time.Now()
	eng, err := e.create(params)
	var id [32]byte
	if eng != nil {
		id = eng.ID
	}
	e.observe("create", id, err, time.Since(start))
	return eng, err
}

func (e *Engine) create(params CreateParams) (*Engagement, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if params.Client == (common.Address{}) {
		return nil, ErrInvalidClient
	}
	if params.Provider == (common.Address{}) {
		return nil, ErrInvalidProvider
	}
	if params.Token == (common.Address{}) {
		return nil, ErrInvalidToken
	}
	if len(params.Amounts) == 0 {
		return nil, ErrNoMilestones
	}
	if len(params.Amounts) > MaxMilestones {
		return nil, ErrExceedsMilestoneLimit
	}
	amounts := make([]*big.Int, len(params.Amounts))
	for i, amt := range params.Amounts {
		if err := validateAmount(amt); err != nil {
			return nil, err
		}
		amounts[i] = cloneBigInt(amt)
	}
	now := e.now()
	if params.TerminationTime <= now {
		return nil, ErrDurationEnded
	}
	if params.TerminationTime > now+MaxTerminationSeconds {
		return nil, ErrDurationTooLong
	}
	if params.FeeBPS > MaxFeeBPS {
		return nil, ErrInvalidFeeBPS
	}
	if params.FeeBPS > 0 && params.Treasury == (common.Address{}) {
		return nil, ErrInvalidTreasury
	}
	if !params.Payout.Valid() {
		return nil, fmt.Errorf("escrow: invalid payout model %d", params.Payout)
	}
	if params.Payout == PayoutPull && e.backend == nil {
		return nil, errNilBackend
	}
	eng := &Engagement{
		Nonce:               params.Nonce,
		Client:              params.Client,
		Provider:            params.Provider,
		ClientReceiver:      params.ClientReceiver,
		ProviderReceiver:    params.ProviderReceiver,
		Token:               params.Token,
		Amounts:             amounts,
		Released:            big.NewInt(0),
		TerminationTime:     params.TerminationTime,
		Details:             params.Details,
		RequireVerification: params.RequireVerification,
		FeeBPS:              params.FeeBPS,
		Treasury:            params.Treasury,
		Payout:              params.Payout,
		Resolution:          params.Resolution,
		CreatedAt:           now,
	}
	switch params.Resolution {
	case ResolutionNone:
	case ResolutionIndividual:
		if params.Resolver == (common.Address{}) || params.MaxResolutionRateBPS > BPSDenominator {
			return nil, ErrInvalidResolverData
		}
		rate, err := e.resolutionRateOf(params.Resolver)
		if err != nil {
			return nil, err
		}
		if rate > params.MaxResolutionRateBPS {
			return nil, fmt.Errorf("%w: resolver rate %d exceeds maximum %d", ErrInvalidResolverData, rate, params.MaxResolutionRateBPS)
		}
		eng.Resolver = ResolverConfig{
			Resolver:             params.Resolver,
			ResolutionRateBPS:    rate,
			MaxResolutionRateBPS: params.MaxResolutionRateBPS,
		}
	case ResolutionArbitration:
		if params.Arbitrator == (common.Address{}) {
			return nil, ErrInvalidResolverData
		}
		if _, ok := e.arbitrator(params.Arbitrator); !ok {
			return nil, fmt.Errorf("%w: arbitrator %s not registered", ErrInvalidResolverData, params.Arbitrator.Hex())
		}
		eng.Arbitration = ArbitrationConfig{
			Arbitrator: params.Arbitrator,
			ExtraData:  append([]byte(nil), params.ArbitrationExtraData...),
		}
	default:
		return nil, fmt.Errorf("escrow: invalid resolution kind %d", params.Resolution)
	}
	eng.ID = EngagementID(params.Client, params.Provider, params.Token, params.Nonce)
	eng.Address = EngagementAddress(eng.ID)
	if eng.ClientReceiver == eng.Address {
		return nil, ErrInvalidClientReceiver
	}
	if eng.ProviderReceiver == eng.Address {
		return nil, ErrInvalidProviderReceiver
	}

	release := e.lockEngagement(eng.ID)
	defer release()
	if _, ok, err := e.state.EngagementGet(eng.ID); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrEngagementExists
	}
	if err := e.storeEngagement(eng); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(eng))
	return eng.Clone(), nil
}

func (e *Engine) resolutionRateOf(resolver common.Address) (uint32, error) {
	rate, ok, err := e.state.ResolutionRateGet(resolver)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultResolutionRateBPS, nil
	}
	return rate, nil
}

// SetResolutionRate publishes the fee rate a resolver charges on future
// engagements. Existing engagements keep the rate captured at creation.
func (e *Engine) SetResolutionRate(resolver common.Address, rateBPS uint32, details string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if resolver == (common.Address{}) {
		return ErrInvalidResolverData
	}
	if rateBPS > BPSDenominator {
		return ErrInvalidResolutionRate
	}
	if err := e.state.ResolutionRatePut(resolver, rateBPS); err != nil {
		return err
	}
	e.emit(NewUpdatedResolutionRateEvent(resolver, rateBPS, details))
	return nil
}

// ResolutionRate returns the rate a resolver currently publishes.
func (e *Engine) ResolutionRate(resolver common.Address) (uint32, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.resolutionRateOf(resolver)
}

// view runs fn against a consistent snapshot of the engagement and its
// current balance.
func (e *Engine) view(id [32]byte, fn func(eng *Engagement, balance *big.Int) error) error {
	if err := e.ready(); err != nil {
		return err
	}
	release := e.lockEngagement(id)
	defer release()
	eng, err := e.loadEngagement(id)
	if err != nil {
		return err
	}
	balance, err := e.ledger.BalanceOf(eng.Token, eng.Address)
	if err != nil {
		return fmt.Errorf("escrow: read balance: %w", err)
	}
	return fn(eng, cloneBigInt(balance))
}

// Get returns a deep copy of the engagement.
func (e *Engine) Get(id [32]byte) (*Engagement, error) {
	var out *Engagement
	err := e.view(id, func(eng *Engagement, _ *big.Int) error {
		out = eng.Clone()
		return nil
	})
	return out, err
}

// Balance returns the engagement's current balance of its own token.
func (e *Engine) Balance(id [32]byte) (*big.Int, error) {
	var out *big.Int
	err := e.view(id, func(_ *Engagement, balance *big.Int) error {
		out = balance
		return nil
	})
	return out, err
}
