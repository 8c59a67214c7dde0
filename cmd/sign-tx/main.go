// Command sign-tx builds and signs a ledger transaction and prints it as the
// JSON body for POST /api/v1/tx.
//
//	sign-tx -key $KEY -type create_trade -amount 50 -price 100 -nonce 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/uhyunpark/gridledger/pkg/app/core/transaction"
	"github.com/uhyunpark/gridledger/pkg/crypto"
)

func main() {
	var (
		keyHex  = flag.String("key", "", "hex private key (empty generates one)")
		txType  = flag.String("type", "register", "register|add_energy|consume_energy|add_funds|set_price|create_trade|accept_trade")
		amount  = flag.Int64("amount", 0, "energy or funds amount")
		price   = flag.Int64("price", 0, "price for set_price or create_trade")
		tradeID = flag.Uint64("trade-id", 0, "trade to accept")
		nonce   = flag.Uint64("nonce", 1, "caller nonce, one more than the last accepted")
		chainID = flag.Int64("chain-id", 1337, "EIP-712 domain chain id")
		typed   = flag.Bool("typed", false, "also print eth_signTypedData_v4 input to stderr")
	)
	flag.Parse()

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("key", err)
	}

	tx := &transaction.SignedTransaction{
		Type:    transaction.TxType(*txType),
		Amount:  *amount,
		Price:   *price,
		TradeID: *tradeID,
		Nonce:   *nonce,
	}

	verifier := transaction.NewVerifier(crypto.DefaultDomain(*chainID))
	if err := verifier.Sign(signer, tx); err != nil {
		fail("sign", err)
	}
	if err := tx.Validate(); err != nil {
		fail("validate", err)
	}
	if _, err := verifier.Verify(tx); err != nil {
		fail("verify", err)
	}

	if *typed {
		td, err := crypto.NewEIP712Signer(crypto.DefaultDomain(*chainID)).TxToJSON(tx.ToEIP712())
		if err != nil {
			fail("typed data", err)
		}
		fmt.Fprintln(os.Stderr, td)
	}

	out, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		fail("marshal", err)
	}
	fmt.Println(string(out))
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex != "" {
		return crypto.FromPrivateKeyHex(keyHex)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "generated key %s for %s\n", signer.PrivateKeyHex(), signer.Address().Hex())
	return signer, nil
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
