package arbitration

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"smartescrow/core/events"
	"smartescrow/core/state"
	"smartescrow/core/types"
	"smartescrow/native/escrow"
)

const (
	EventTypeCaseOpened = "arbitration.case_opened"
	EventTypeCaseRuled  = "arbitration.case_ruled"
)

var (
	ErrCaseNotFound  = errors.New("arbitration: case not found")
	ErrCaseRuled     = errors.New("arbitration: case already ruled")
	ErrInvalidRuling = errors.New("arbitration: ruling outside offered choices")
	ErrNoHandler     = errors.New("arbitration: ruling handler not configured")
)

// Case is one dispute submitted to the court.
type Case struct {
	ID         uint64
	Engagement [32]byte
	Choices    uint64
	ExtraData  []byte
	Ruled      bool
	Ruling     uint64
}

// Court is a local arbitration oracle. It quotes a fixed fee per juror,
// numbers cases sequentially from 1 and delivers rulings to a handler.
type Court struct {
	mu      sync.Mutex
	address common.Address
	state   *state.Manager
	caseFee *big.Int
	handler escrow.RulingHandler
	emitter events.Emitter
}

// NewCourt creates a court identified by address that charges caseFee per
// juror.
func NewCourt(address common.Address, manager *state.Manager, caseFee *big.Int) *Court {
	fee := big.NewInt(0)
	if caseFee != nil {
		fee = new(big.Int).Set(caseFee)
	}
	return &Court{address: address, state: manager, caseFee: fee, emitter: events.NoopEmitter{}}
}

// SetRulingHandler configures where rulings are delivered.
func (c *Court) SetRulingHandler(handler escrow.RulingHandler) { c.handler = handler }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (c *Court) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// Address returns the court identity.
func (c *Court) Address() common.Address { return c.address }

// Jurors decodes the juror count carried in arbitration extra data. Empty
// extra data means a single juror.
func Jurors(extraData []byte) uint64 {
	if len(extraData) < 8 {
		return 1
	}
	jurors := binary.BigEndian.Uint64(extraData[:8])
	if jurors == 0 {
		return 1
	}
	return jurors
}

// EncodeJurors produces extra data requesting jurors jurors.
func EncodeJurors(jurors uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, jurors)
	return out
}

// ArbitrationCost implements escrow.Arbitrator.
func (c *Court) ArbitrationCost(extraData []byte) (*big.Int, error) {
	return new(big.Int).Mul(c.caseFee, new(big.Int).SetUint64(Jurors(extraData))), nil
}

func (c *Court) prefix() string {
	return "arbitration/" + hex.EncodeToString(c.address[:])
}

func (c *Court) sequenceKey() []byte { return []byte(c.prefix() + "/seq") }

func (c *Court) caseKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s/cases/%d", c.prefix(), id))
}

// CreateDispute implements escrow.Arbitrator.
func (c *Court) CreateDispute(engagement [32]byte, choices uint64, extraData []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var last uint64
	if _, err := c.state.KVGet(c.sequenceKey(), &last); err != nil {
		return 0, err
	}
	next := last + 1
	record := &Case{
		ID:         next,
		Engagement: engagement,
		Choices:    choices,
		ExtraData:  append([]byte(nil), extraData...),
	}
	if err := c.state.KVPut(c.caseKey(next), record); err != nil {
		return 0, err
	}
	if err := c.state.KVPut(c.sequenceKey(), next); err != nil {
		return 0, err
	}
	c.emit(EventTypeCaseOpened, record)
	return next, nil
}

// Case loads a case by id.
func (c *Court) Case(id uint64) (*Case, error) {
	var record Case
	ok, err := c.state.KVGet(c.caseKey(id), &record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCaseNotFound
	}
	return &record, nil
}

// GiveRuling decides a case and delivers the ruling to the handler. The
// case is only marked ruled once the handler accepted the ruling. The court
// lock is not held during delivery; the handler rejects replays.
func (c *Court) GiveRuling(id, ruling uint64) error {
	if c.handler == nil {
		return ErrNoHandler
	}
	c.mu.Lock()
	record, err := c.Case(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if record.Ruled {
		return ErrCaseRuled
	}
	if ruling > record.Choices {
		return ErrInvalidRuling
	}
	msg := escrow.RulingMessage{
		Engagement: record.Engagement,
		Arbitrator: c.address,
		DisputeID:  id,
		Ruling:     ruling,
	}
	if err := c.handler.HandleRuling(msg); err != nil {
		return fmt.Errorf("arbitration: deliver ruling: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	record.Ruled = true
	record.Ruling = ruling
	if err := c.state.KVPut(c.caseKey(id), record); err != nil {
		return err
	}
	c.emit(EventTypeCaseRuled, record)
	return nil
}

func (c *Court) emit(eventType string, record *Case) {
	evt := &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"court":      c.address.Hex(),
			"caseId":     fmt.Sprintf("%d", record.ID),
			"engagement": hex.EncodeToString(record.Engagement[:]),
		},
	}
	if record.Ruled {
		evt.Attributes["ruling"] = fmt.Sprintf("%d", record.Ruling)
	}
	c.emitter.Emit(courtEvent{evt: evt})
}

type courtEvent struct {
	evt *types.Event
}

func (e courtEvent) EventType() string { return e.evt.Type }

func (e courtEvent) Event() *types.Event { return e.evt }
