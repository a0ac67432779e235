package bank

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"smartescrow/core/state"
	"smartescrow/native/escrow"
	"smartescrow/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewLedger(state.NewManager(db))
}

func addr(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, 20))
}

func TestMintAndTransfer(t *testing.T) {
	ledger := newTestLedger(t)
	token := addr(0x70)
	if err := ledger.Mint(token, addr(0x01), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(token, addr(0x01), addr(0x02), big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if bal, _ := ledger.BalanceOf(token, addr(0x01)); bal.Int64() != 60 {
		t.Fatalf("expected sender 60, got %s", bal)
	}
	if bal, _ := ledger.BalanceOf(token, addr(0x02)); bal.Int64() != 40 {
		t.Fatalf("expected recipient 40, got %s", bal)
	}
	if supply, _ := ledger.Supply(token); supply.Int64() != 100 {
		t.Fatalf("expected supply 100, got %s", supply)
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	ledger := newTestLedger(t)
	token := addr(0x70)
	if err := ledger.Mint(token, addr(0x01), big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := ledger.Apply([]escrow.Transfer{
		{Kind: escrow.TransferMove, Token: token, From: addr(0x01), To: addr(0x02), Amount: big.NewInt(10)},
		{Kind: escrow.TransferMove, Token: token, From: addr(0x03), To: addr(0x02), Amount: big.NewInt(1)},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal, _ := ledger.BalanceOf(token, addr(0x01)); bal.Int64() != 10 {
		t.Fatalf("expected untouched balance 10, got %s", bal)
	}
	if bal, _ := ledger.BalanceOf(token, addr(0x02)); bal.Sign() != 0 {
		t.Fatalf("expected no credit, got %s", bal)
	}
}

func TestApplyChainsWithinBatch(t *testing.T) {
	ledger := newTestLedger(t)
	native := escrow.NativeAsset
	wrapped := addr(0xEE)
	custody := addr(0xC0)
	if err := ledger.Mint(native, addr(0x01), big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := ledger.Apply([]escrow.Transfer{
		{Kind: escrow.TransferMove, Token: native, From: addr(0x01), To: wrapped, Amount: big.NewInt(5)},
		{Kind: escrow.TransferMint, Token: wrapped, To: custody, Amount: big.NewInt(5)},
		{Kind: escrow.TransferMove, Token: wrapped, From: custody, To: addr(0x02), Amount: big.NewInt(2)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if bal, _ := ledger.BalanceOf(wrapped, custody); bal.Int64() != 3 {
		t.Fatalf("expected custody 3, got %s", bal)
	}
	if bal, _ := ledger.BalanceOf(native, wrapped); bal.Int64() != 5 {
		t.Fatalf("expected native backing 5, got %s", bal)
	}

	burn := escrow.Transfer{Kind: escrow.TransferMint, Token: wrapped, To: custody, Amount: big.NewInt(3)}.Inverse()
	if err := ledger.Apply([]escrow.Transfer{burn}); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if supply, _ := ledger.Supply(wrapped); supply.Int64() != 2 {
		t.Fatalf("expected wrapped supply 2, got %s", supply)
	}
}

func TestApplyRejectsNonPositive(t *testing.T) {
	ledger := newTestLedger(t)
	err := ledger.Apply([]escrow.Transfer{{Kind: escrow.TransferMint, Token: addr(0x70), To: addr(0x01), Amount: big.NewInt(0)}})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
