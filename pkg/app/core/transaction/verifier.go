package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/gridledger/pkg/crypto"
)

// ErrBadSignature is returned when a transaction is not signed by its caller
var ErrBadSignature = errors.New("signature does not match caller")

// Verifier authenticates signed transactions
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

// NewVerifier creates a verifier for domain
func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{
		eip712Signer: crypto.NewEIP712Signer(domain),
	}
}

// Verify checks structure and signature and returns the authenticated caller
func (v *Verifier) Verify(tx *SignedTransaction) (common.Address, error) {
	if err := tx.Validate(); err != nil {
		return common.Address{}, err
	}

	sigBytes, err := DecodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature: %w", err)
	}

	signer, err := v.eip712Signer.RecoverTxSigner(tx.ToEIP712(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("signature verification failed: %w", err)
	}
	if signer != tx.CallerAddress() {
		return common.Address{}, ErrBadSignature
	}
	return signer, nil
}

// Sign fills tx.Signature using signer. tx.Caller is set to the signer's address.
func (v *Verifier) Sign(signer *crypto.Signer, tx *SignedTransaction) error {
	tx.Caller = signer.Address().Hex()
	sig, err := v.eip712Signer.SignTx(signer, tx.ToEIP712())
	if err != nil {
		return err
	}
	tx.Signature = "0x" + hex.EncodeToString(sig)
	return nil
}

// DecodeSignature decodes a hex signature with or without 0x
func DecodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sigBytes))
	}
	return sigBytes, nil
}
