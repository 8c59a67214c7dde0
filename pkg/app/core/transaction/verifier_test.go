package transaction

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/crypto"
)

func signed(t *testing.T, v *Verifier, signer *crypto.Signer, tx SignedTransaction) *SignedTransaction {
	t.Helper()
	if err := v.Sign(signer, &tx); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return &tx
}

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier(crypto.DefaultDomain(1337))
	signer, _ := crypto.GenerateKey()
	tx := signed(t, v, signer, SignedTransaction{Type: TxTypeAcceptTrade, TradeID: 4, Nonce: 9})

	data, err := tx.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Deserialize(data)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	addr, err := v.Verify(decoded)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if addr != signer.Address() {
		t.Errorf("addr = %s, want %s", addr.Hex(), signer.Address().Hex())
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier(crypto.DefaultDomain(1337))
	alice, _ := crypto.GenerateKey()
	mallory, _ := crypto.GenerateKey()

	tests := []struct {
		name   string
		mutate func(tx *SignedTransaction)
	}{
		{"other caller", func(tx *SignedTransaction) { tx.Caller = mallory.Address().Hex() }},
		{"changed amount", func(tx *SignedTransaction) { tx.Amount++ }},
		{"changed nonce", func(tx *SignedTransaction) { tx.Nonce++ }},
		{"changed type", func(tx *SignedTransaction) { tx.Type = TxTypeConsumeEnergy }},
		{"short signature", func(tx *SignedTransaction) { tx.Signature = "0xdeadbeef" }},
		{"missing signature", func(tx *SignedTransaction) { tx.Signature = "" }},
		{"bad caller", func(tx *SignedTransaction) { tx.Caller = "alice" }},
		{"unknown type", func(tx *SignedTransaction) { tx.Type = "mint" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := signed(t, v, alice, SignedTransaction{Type: TxTypeAddEnergy, Amount: 10, Nonce: 1})
			tt.mutate(tx)
			if _, err := v.Verify(tx); err == nil {
				t.Fatal("expected verification failure")
			}
		})
	}

	tx := signed(t, v, alice, SignedTransaction{Type: TxTypeRegister, Nonce: 1})
	tx.Caller = mallory.Address().Hex()
	if _, err := v.Verify(tx); !errors.Is(err, ErrBadSignature) {
		t.Errorf("got %v, want ErrBadSignature", err)
	}
}

func TestVerifyAcrossDomains(t *testing.T) {
	signer, _ := crypto.GenerateKey()
	tx := signed(t, NewVerifier(crypto.DefaultDomain(1)), signer, SignedTransaction{Type: TxTypeRegister, Nonce: 1})
	if _, err := NewVerifier(crypto.DefaultDomain(1337)).Verify(tx); err == nil {
		t.Error("signature from another chain id accepted")
	}
}

func TestToCommand(t *testing.T) {
	tx := SignedTransaction{
		Type:   TxTypeCreateTrade,
		Caller: "0x742d35cc6634c0532925a3b844bc9e7595f0beb0",
		Amount: 50,
		Price:  100,
	}
	cmd := tx.ToCommand()
	if cmd.Op != ledger.OpCreateTrade || cmd.Amount != 50 || cmd.Price != 100 {
		t.Errorf("command = %+v", cmd)
	}
	// identities are checksummed so case variants map to one account
	upper := tx
	upper.Caller = "0x742D35CC6634C0532925A3B844BC9E7595F0BEB0"
	if cmd.Caller != upper.ToCommand().Caller {
		t.Errorf("case variants map to %s and %s", cmd.Caller, upper.ToCommand().Caller)
	}
	if cmd.Caller != IdentityOf(common.HexToAddress(tx.Caller)) {
		t.Errorf("caller = %s", cmd.Caller)
	}
}
