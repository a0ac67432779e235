package arbitration

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"smartescrow/core/events"
	"smartescrow/core/state"
	"smartescrow/native/escrow"
	"smartescrow/storage"
)

type recordingHandler struct {
	messages []escrow.RulingMessage
	err      error
}

func (h *recordingHandler) HandleRuling(msg escrow.RulingMessage) error {
	if h.err != nil {
		return h.err
	}
	h.messages = append(h.messages, msg)
	return nil
}

func newTestCourt(t *testing.T) *Court {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewCourt(common.BytesToAddress(bytes.Repeat([]byte{0xA8}, 20)), state.NewManager(db), big.NewInt(3))
}

func TestArbitrationCostScalesWithJurors(t *testing.T) {
	court := newTestCourt(t)
	cost, err := court.ArbitrationCost(nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), cost.Int64())
	cost, err = court.ArbitrationCost(EncodeJurors(5))
	require.NoError(t, err)
	require.Equal(t, int64(15), cost.Int64())
	require.Equal(t, uint64(1), Jurors(EncodeJurors(0)))
}

func TestCasesNumberedSequentially(t *testing.T) {
	court := newTestCourt(t)
	recorder := &events.Recorder{}
	court.SetEmitter(recorder)
	first, err := court.CreateDispute([32]byte{0x01}, escrow.NumRulingOptions, nil)
	require.NoError(t, err)
	second, err := court.CreateDispute([32]byte{0x02}, escrow.NumRulingOptions, EncodeJurors(3))
	require.NoError(t, err)
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(2), second)

	record, err := court.Case(second)
	require.NoError(t, err)
	require.Equal(t, [32]byte{0x02}, record.Engagement)
	require.Equal(t, uint64(3), Jurors(record.ExtraData))
	require.Equal(t, []string{EventTypeCaseOpened, EventTypeCaseOpened}, recorder.Types())

	_, err = court.Case(9)
	require.ErrorIs(t, err, ErrCaseNotFound)
}

func TestGiveRulingDeliversOnce(t *testing.T) {
	court := newTestCourt(t)
	require.ErrorIs(t, court.GiveRuling(1, 1), ErrNoHandler)
	handler := &recordingHandler{}
	court.SetRulingHandler(handler)

	id, err := court.CreateDispute([32]byte{0x07}, escrow.NumRulingOptions, nil)
	require.NoError(t, err)
	require.ErrorIs(t, court.GiveRuling(id, 3), ErrInvalidRuling)

	handler.err = errors.New("engagement busy")
	require.Error(t, court.GiveRuling(id, 2))
	record, err := court.Case(id)
	require.NoError(t, err)
	require.False(t, record.Ruled)

	handler.err = nil
	require.NoError(t, court.GiveRuling(id, 2))
	require.Len(t, handler.messages, 1)
	require.Equal(t, escrow.RulingMessage{Engagement: [32]byte{0x07}, Arbitrator: court.Address(), DisputeID: id, Ruling: 2}, handler.messages[0])
	require.ErrorIs(t, court.GiveRuling(id, 1), ErrCaseRuled)
}
