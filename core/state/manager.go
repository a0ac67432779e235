package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"smartescrow/storage"
)

// Manager reads and writes RLP-encoded records on top of a key-value
// database. Keys are hashed with keccak256 before they reach the database.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func hashedKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	data, err := m.db.Get(hashedKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(hashedKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.get(key)
	m.mu.RUnlock()
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends value to the byte-slice list stored under key. Duplicate
// values are ignored to keep the index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.get(key)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(hashedKey(key), encoded)
}

// KVGetList decodes the list stored under key into out, which must be a
// pointer to a slice. Missing keys yield an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.get(key)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, err := m.get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// Balance retrieves holder's balance of token.
func (m *Manager) Balance(token, holder common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadBigInt(BalanceKey(token, holder))
}

// Supply retrieves the total minted supply of token.
func (m *Manager) Supply(token common.Address) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadBigInt(SupplyKey(token))
}

// BalanceUpdate sets an absolute balance for one (token, holder) pair.
type BalanceUpdate struct {
	Token  common.Address
	Holder common.Address
	Amount *big.Int
}

// SupplyUpdate sets the absolute total supply of token.
type SupplyUpdate struct {
	Token  common.Address
	Amount *big.Int
}

// WriteBalances commits every update in a single database batch. Either all
// balances change or none do.
func (m *Manager) WriteBalances(balances []BalanceUpdate, supplies []SupplyUpdate) error {
	batch := m.db.NewBatch()
	for _, update := range balances {
		amount := update.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("state: negative balance for %s", update.Holder.Hex())
		}
		encoded, err := rlp.EncodeToBytes(amount)
		if err != nil {
			return err
		}
		batch.Put(hashedKey(BalanceKey(update.Token, update.Holder)), encoded)
	}
	for _, update := range supplies {
		amount := update.Amount
		if amount == nil {
			amount = big.NewInt(0)
		}
		if amount.Sign() < 0 {
			return fmt.Errorf("state: negative supply for %s", update.Token.Hex())
		}
		encoded, err := rlp.EncodeToBytes(amount)
		if err != nil {
			return err
		}
		batch.Put(hashedKey(SupplyKey(update.Token)), encoded)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return batch.Write()
}

// SetBalance stores a single balance.
func (m *Manager) SetBalance(token, holder common.Address, amount *big.Int) error {
	return m.WriteBalances([]BalanceUpdate{{Token: token, Holder: holder, Amount: amount}}, nil)
}
