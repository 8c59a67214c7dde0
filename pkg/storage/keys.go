package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
)

// Key schema:
//
//	acc:<identity>      → Account (JSON)
//	trade:<8-byte id>   → Trade (JSON), big-endian so iteration is id order
//	nonce:<identity>    → last accepted nonce (8 bytes)
//	meta                → Meta (JSON)
const (
	prefixAccount = "acc:"
	prefixTrade   = "trade:"
	prefixNonce   = "nonce:"
	keyMeta       = "meta"
)

func accountKey(id account.Identity) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixAccount, id))
}

func tradeKey(id uint64) []byte {
	return append([]byte(prefixTrade), uint64Bytes(id)...)
}

func nonceKey(id account.Identity) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixNonce, id))
}

func metaKey() []byte { return []byte(keyMeta) }

func uint64Bytes(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func bytesUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
