package escrow

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	signatureLength = 65
	// UnlockSignaturesLength is the size of a packed [client, provider]
	// signature pair.
	UnlockSignaturesLength = 2 * signatureLength
)

// UnlockDomain separates unlock signatures between deployments.
type UnlockDomain struct {
	Name    string
	Version string
	ChainID *big.Int
}

// DefaultUnlockDomain returns the domain used when none is configured.
func DefaultUnlockDomain() UnlockDomain {
	return UnlockDomain{Name: "SmartEscrow", Version: "1", ChainID: big.NewInt(1)}
}

// UnlockData is the settlement both parties sign to close a locked engagement
// without adjudication. Milestone pins the agreement to the engagement's
// current schedule position so a signature cannot be replayed after the
// engagement moved on.
type UnlockData struct {
	Milestone uint64
	RefundBPS uint32
	UnlockURI string
}

var unlockTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"UnlockData": {
		{Name: "milestone", Type: "uint256"},
		{Name: "refundBPS", Type: "uint256"},
		{Name: "unlockURI", Type: "string"},
	},
}

// HashUnlock returns the typed-data digest of data bound to domain and the
// engagement custody address.
func HashUnlock(domain UnlockDomain, verifyingContract common.Address, data UnlockData) ([32]byte, error) {
	var out [32]byte
	chainID := domain.ChainID
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	typed := apitypes.TypedData{
		Types:       unlockTypes,
		PrimaryType: "UnlockData",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"milestone": (*math.HexOrDecimal256)(new(big.Int).SetUint64(data.Milestone)),
			"refundBPS": (*math.HexOrDecimal256)(big.NewInt(int64(data.RefundBPS))),
			"unlockURI": data.UnlockURI,
		},
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return out, fmt.Errorf("escrow: hash unlock data: %w", err)
	}
	copy(out[:], hash)
	return out, nil
}

// SignUnlock signs an unlock digest. The recovery id is returned in the
// 27/28 form.
func SignUnlock(hash [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash[:], key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// PackUnlockSignatures concatenates the client and provider signatures in the
// order Unlock expects.
func PackUnlockSignatures(client, provider []byte) []byte {
	out := make([]byte, 0, len(client)+len(provider))
	out = append(out, client...)
	return append(out, provider...)
}

func recoverSigner(hash [32]byte, sig []byte) (common.Address, error) {
	if len(sig) != signatureLength {
		return common.Address{}, ErrInvalidSignatures
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, ErrInvalidSignatures
	}
	pub, err := ethcrypto.SigToPub(hash[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignatures, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// verifyUnlockSignatures requires the first signature to recover to client
// and the second to provider.
func verifyUnlockSignatures(hash [32]byte, signatures []byte, client, provider common.Address) error {
	if len(signatures) != UnlockSignaturesLength {
		return ErrInvalidSignatures
	}
	first, err := recoverSigner(hash, signatures[:signatureLength])
	if err != nil {
		return err
	}
	second, err := recoverSigner(hash, signatures[signatureLength:])
	if err != nil {
		return err
	}
	if first != client || second != provider {
		return ErrInvalidSignatures
	}
	return nil
}

// UnlockHash returns the digest the parties must sign to unlock engagement id
// with data.
func (e *Engine) UnlockHash(id [32]byte, data UnlockData) ([32]byte, error) {
	var out [32]byte
	err := e.view(id, func(eng *Engagement, _ *big.Int) error {
		var err error
		out, err = HashUnlock(e.domain, eng.Address, data)
		return err
	})
	return out, err
}

// Unlock settles a locked engagement by mutual agreement. signatures holds the
// client's signature followed by the provider's; any caller may submit them.
// The client receives RefundBPS of the balance and the provider the rest.
// data.Milestone must equal the engagement's current milestone; a stale
// agreement fails with ErrInvalidMilestone before the balance and signatures
// are checked.
func (e *Engine) Unlock(id [32]byte, caller common.Address, data UnlockData, signatures []byte) error {
	return e.execute("unlock", id, func(tx *txn) error {
		eng := tx.eng
		if eng.Resolution == ResolutionNone {
			return ErrUnsupported
		}
		if !eng.Locked {
			return ErrNotLocked
		}
		if data.RefundBPS > BPSDenominator {
			return ErrInvalidRefundBPS
		}
		if data.Milestone != eng.Milestone {
			return ErrInvalidMilestone
		}
		balance, err := tx.balance()
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrBalanceIsZero
		}
		hash, err := HashUnlock(tx.engine.domain, eng.Address, data)
		if err != nil {
			return err
		}
		if err := verifyUnlockSignatures(hash, signatures, eng.Client, eng.Provider); err != nil {
			return err
		}
		clientAward, providerAward, err := splitBPS(balance, data.RefundBPS)
		if err != nil {
			return err
		}
		if err := tx.settle(clientAward, providerAward); err != nil {
			return err
		}
		tx.emit(NewUnlockEvent(eng.ID, caller, clientAward, providerAward, data.UnlockURI))
		tx.disputes = append(tx.disputes, "unlocked")
		return nil
	})
}
