package state

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	engagementPrefix     = []byte("escrow/engagements/")
	engagementIndexKey   = []byte("escrow/index")
	resolutionRatePrefix = []byte("escrow/resolvers/")
	balancePrefix        = []byte("ledger/balances/")
	supplyPrefix         = []byte("ledger/supply/")
)

// EngagementKey returns the storage key of an engagement record.
func EngagementKey(id [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%s", engagementPrefix, hex.EncodeToString(id[:])))
}

// EngagementIndexKey returns the key listing every stored engagement id.
func EngagementIndexKey() []byte {
	return append([]byte(nil), engagementIndexKey...)
}

// ResolutionRateKey returns the key of a resolver's published rate.
func ResolutionRateKey(resolver common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", resolutionRatePrefix, hex.EncodeToString(resolver[:])))
}

// BalanceKey returns the key of holder's balance of token.
func BalanceKey(token, holder common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", balancePrefix, hex.EncodeToString(token[:]), hex.EncodeToString(holder[:])))
}

// SupplyKey returns the key tracking the total supply of token.
func SupplyKey(token common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", supplyPrefix, hex.EncodeToString(token[:])))
}
