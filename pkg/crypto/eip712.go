package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain is the domain separator for ledger transactions.
// ChainID keeps signatures from one deployment valid only there.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// DefaultDomain returns the domain for a local node with the given chain id
func DefaultDomain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:              "GridLedger",
		Version:           "1",
		ChainID:           big.NewInt(chainID),
		VerifyingContract: common.Address{}, // off-chain
	}
}

// LedgerTx is the typed message a participant signs to mutate the ledger.
// Amount and Price are signed integers so malformed requests still verify and
// reach the ledger, which rejects them with a validation error.
type LedgerTx struct {
	Type    string
	Caller  common.Address
	Amount  int64
	Price   int64
	TradeID uint64
	Nonce   uint64
}

var ledgerTxTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"LedgerTx": []apitypes.Type{
		{Name: "txType", Type: "string"},
		{Name: "caller", Type: "address"},
		{Name: "amount", Type: "int256"},
		{Name: "price", Type: "int256"},
		{Name: "tradeId", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// EIP712Signer hashes, signs and verifies LedgerTx messages under one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// Domain returns the signer's domain
func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func (e *EIP712Signer) typedData(tx *LedgerTx) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       ledgerTxTypes,
		PrimaryType: "LedgerTx",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"txType":  tx.Type,
			"caller":  tx.Caller.Hex(),
			"amount":  big.NewInt(tx.Amount).String(),
			"price":   big.NewInt(tx.Price).String(),
			"tradeId": new(big.Int).SetUint64(tx.TradeID).String(),
			"nonce":   new(big.Int).SetUint64(tx.Nonce).String(),
		},
	}
}

// HashTx returns the EIP-712 digest of tx:
// keccak256("\x19\x01" || domainSeparator || hashStruct(tx))
func (e *EIP712Signer) HashTx(tx *LedgerTx) ([]byte, error) {
	typedData := e.typedData(tx)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := make([]byte, 0, 2+len(domainSeparator)+len(messageHash))
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, messageHash...)
	return crypto.Keccak256(rawData), nil
}

// SignTx signs tx with signer
func (e *EIP712Signer) SignTx(signer *Signer, tx *LedgerTx) ([]byte, error) {
	hash, err := e.HashTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to hash tx: %w", err)
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign tx: %w", err)
	}
	return signature, nil
}

// RecoverTxSigner returns the address that signed tx
func (e *EIP712Signer) RecoverTxSigner(tx *LedgerTx, signature []byte) (common.Address, error) {
	hash, err := e.HashTx(tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash tx: %w", err)
	}
	return RecoverAddress(hash, signature)
}

// VerifyTxSignature reports whether signature was produced by tx.Caller
func (e *EIP712Signer) VerifyTxSignature(tx *LedgerTx, signature []byte) (bool, error) {
	addr, err := e.RecoverTxSigner(tx, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return addr == tx.Caller, nil
}

// TxToJSON renders tx as eth_signTypedData_v4 input for wallets
func (e *EIP712Signer) TxToJSON(tx *LedgerTx) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(tx), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
