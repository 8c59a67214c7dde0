package transaction

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/crypto"
)

// TxType names the ledger operation a transaction requests
type TxType string

const (
	TxTypeRegister      TxType = "register"
	TxTypeAddEnergy     TxType = "add_energy"
	TxTypeConsumeEnergy TxType = "consume_energy"
	TxTypeAddFunds      TxType = "add_funds"
	TxTypeSetPrice      TxType = "set_price"
	TxTypeCreateTrade   TxType = "create_trade"
	TxTypeAcceptTrade   TxType = "accept_trade"
)

// SignedTransaction is a ledger request signed by its caller over EIP-712.
//
//	{
//	  "type": "create_trade",
//	  "caller": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
//	  "amount": 50,
//	  "price": 100,
//	  "nonce": 3,
//	  "signature": "0x..."
//	}
type SignedTransaction struct {
	Type      TxType `json:"type"`
	Caller    string `json:"caller"`            // Ethereum address (0x...)
	Amount    int64  `json:"amount,omitempty"`  // energy or funds units
	Price     int64  `json:"price,omitempty"`   // set_price, create_trade
	TradeID   uint64 `json:"tradeId,omitempty"` // accept_trade
	Nonce     uint64 `json:"nonce"`             // strictly increasing per caller
	Signature string `json:"signature"`         // hex [R || S || V]
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses and validates a JSON transaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return &tx, nil
}

// Validate checks structure only. Amount and price ranges are the ledger's call.
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if !ledger.Op(tx.Type).Valid() {
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
	if !common.IsHexAddress(tx.Caller) {
		return fmt.Errorf("invalid caller address: %q", tx.Caller)
	}
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	return nil
}

// CallerAddress returns the parsed caller address
func (tx *SignedTransaction) CallerAddress() common.Address {
	return common.HexToAddress(tx.Caller)
}

// Identity returns the ledger identity of the caller: its checksummed address
func (tx *SignedTransaction) Identity() account.Identity {
	return IdentityOf(tx.CallerAddress())
}

// IdentityOf maps an address to a ledger identity
func IdentityOf(addr common.Address) account.Identity {
	return account.Identity(addr.Hex())
}

// ToEIP712 returns the typed message the signature covers
func (tx *SignedTransaction) ToEIP712() *crypto.LedgerTx {
	return &crypto.LedgerTx{
		Type:    string(tx.Type),
		Caller:  tx.CallerAddress(),
		Amount:  tx.Amount,
		Price:   tx.Price,
		TradeID: tx.TradeID,
		Nonce:   tx.Nonce,
	}
}

// ToCommand maps the transaction onto a ledger command
func (tx *SignedTransaction) ToCommand() ledger.Command {
	return ledger.Command{
		Op:      ledger.Op(tx.Type),
		Caller:  tx.Identity(),
		Amount:  tx.Amount,
		Price:   tx.Price,
		TradeID: tx.TradeID,
	}
}
