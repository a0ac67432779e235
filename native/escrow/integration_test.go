package escrow_test

import (
	"bytes"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"smartescrow/core/events"
	"smartescrow/core/state"
	"smartescrow/native/arbitration"
	"smartescrow/native/bank"
	"smartescrow/native/escrow"
	"smartescrow/native/splits"
	"smartescrow/storage"
)

const now int64 = 1_700_000_000

func address(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, 20))
}

type stack struct {
	engine    *escrow.Engine
	ledger    *bank.Ledger
	warehouse *splits.Warehouse
	court     *arbitration.Court
	recorder  *events.Recorder
}

func newStack(t *testing.T, db storage.Database) *stack {
	t.Helper()
	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)
	warehouse := splits.NewWarehouse(address(0x5A), ledger)
	court := arbitration.NewCourt(address(0xA8), manager, big.NewInt(2))
	recorder := &events.Recorder{}

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(ledger)
	engine.SetPayoutBackend(warehouse)
	engine.SetEmitter(recorder)
	engine.SetNowFunc(func() int64 { return now })
	engine.RegisterArbitrator(court.Address(), court)
	court.SetRulingHandler(engine)

	return &stack{engine: engine, ledger: ledger, warehouse: warehouse, court: court, recorder: recorder}
}

func TestPullEngagementThroughArbitration(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	s := newStack(t, db)

	token := address(0x70)
	client := address(0x01)
	provider := address(0x02)
	treasury := address(0x7E)

	eng, err := s.engine.Create(escrow.CreateParams{
		Client:               client,
		Provider:             provider,
		Token:                token,
		Amounts:              []*big.Int{big.NewInt(400), big.NewInt(600)},
		TerminationTime:      now + 86_400,
		Nonce:                1,
		FeeBPS:               100,
		Treasury:             treasury,
		Payout:               escrow.PayoutPull,
		Resolution:           escrow.ResolutionArbitration,
		Arbitrator:           s.court.Address(),
		ArbitrationExtraData: arbitration.EncodeJurors(3),
	})
	require.NoError(t, err)

	require.NoError(t, s.ledger.Mint(token, client, big.NewInt(1_000)))
	require.NoError(t, s.engine.Deposit(eng.ID, client, big.NewInt(1_000)))
	require.NoError(t, s.engine.Release(eng.ID, client))

	owed, err := s.warehouse.Balance(provider, token)
	require.NoError(t, err)
	require.Equal(t, int64(396), owed.Int64())

	require.NoError(t, s.ledger.Mint(escrow.NativeAsset, provider, big.NewInt(6)))
	require.ErrorIs(t, s.engine.Lock(eng.ID, provider, "ipfs://claim", big.NewInt(5)), escrow.ErrInsufficientArbitrationFee)
	require.NoError(t, s.engine.Lock(eng.ID, provider, "ipfs://claim", big.NewInt(6)))

	locked, err := s.engine.Get(eng.ID)
	require.NoError(t, err)
	require.True(t, locked.Locked)
	require.Equal(t, uint64(1), locked.DisputeID)

	require.NoError(t, s.engine.SubmitEvidence(eng.ID, client, "ipfs://counter"))
	require.NoError(t, s.court.GiveRuling(locked.DisputeID, 0))

	owedClient, err := s.warehouse.Balance(client, token)
	require.NoError(t, err)
	owedProvider, err := s.warehouse.Balance(provider, token)
	require.NoError(t, err)
	require.Equal(t, int64(297), owedClient.Int64())
	require.Equal(t, int64(396+297), owedProvider.Int64())

	fees, err := s.ledger.BalanceOf(token, treasury)
	require.NoError(t, err)
	require.Equal(t, int64(4+3+3), fees.Int64())

	require.ErrorIs(t, s.court.GiveRuling(locked.DisputeID, 1), arbitration.ErrCaseRuled)
	require.ErrorIs(t, s.engine.Rule(eng.ID, s.court.Address(), locked.DisputeID, 1), escrow.ErrAlreadyRuled)

	paid, err := s.warehouse.Withdraw(provider, token)
	require.NoError(t, err)
	require.Equal(t, int64(693), paid.Int64())

	final, err := s.engine.Get(eng.ID)
	require.NoError(t, err)
	require.False(t, final.Locked)
	require.Equal(t, uint64(2), final.Milestone)
	require.Equal(t, int64(1_000), final.Released.Int64())

	types := s.recorder.Types()
	require.Contains(t, types, escrow.EventTypeDispute)
	require.Contains(t, types, escrow.EventTypeRuling)
	require.Contains(t, types, escrow.EventTypeFeeTransferred)
}

func TestEngagementSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	s := newStack(t, db)
	token := address(0x70)
	client := address(0x01)
	provider := address(0x02)
	eng, err := s.engine.Create(escrow.CreateParams{
		Client:          client,
		Provider:        provider,
		Token:           token,
		Amounts:         []*big.Int{big.NewInt(10), big.NewInt(10)},
		TerminationTime: now + 60,
		Nonce:           9,
	})
	require.NoError(t, err)
	require.NoError(t, s.ledger.Mint(token, client, big.NewInt(20)))
	require.NoError(t, s.engine.Deposit(eng.ID, client, big.NewInt(20)))
	require.NoError(t, s.engine.Release(eng.ID, client))
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	defer reopened.Close()
	restarted := newStack(t, reopened)

	got, err := restarted.engine.Get(eng.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.Milestone)
	require.Equal(t, int64(10), got.Released.Int64())

	balance, err := restarted.engine.Balance(eng.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance.Int64())
	require.NoError(t, restarted.engine.Release(eng.ID, client))

	providerBalance, err := restarted.ledger.BalanceOf(token, provider)
	require.NoError(t, err)
	require.Equal(t, int64(20), providerBalance.Int64())
}
