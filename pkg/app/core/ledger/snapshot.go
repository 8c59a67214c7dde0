package ledger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/price"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

// Snapshot is a complete, serializable copy of ledger state.
// Accounts are sorted by identity and trades by id.
type Snapshot struct {
	Owner       account.Identity  `json:"owner"`
	Price       int64             `json:"price"`
	NextTradeID uint64            `json:"nextTradeId"`
	Grid        int64             `json:"grid"`
	Accounts    []account.Account `json:"accounts"`
	Trades      []trade.Trade     `json:"trades"`
}

// Snapshot copies the current state
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Owner:       l.prices.Owner(),
		Price:       l.prices.Current(),
		NextTradeID: l.book.NextID(),
		Grid:        l.accounts.Grid().Total(),
		Accounts:    l.accounts.List(),
		Trades:      l.book.List(trade.Filter{}),
	}
}

// FromSnapshot rebuilds a ledger from s. The grid aggregate is recomputed from
// the accounts; a stored Grid that disagrees is rejected along with any other
// invariant violation.
func FromSnapshot(s Snapshot) (*Ledger, error) {
	prices, err := price.NewRegister(s.Owner, s.Price)
	if err != nil {
		return nil, err
	}
	accounts := account.NewStore()
	if err := accounts.Restore(s.Accounts); err != nil {
		return nil, err
	}
	book := trade.NewBook()
	if err := book.Restore(s.Trades, s.NextTradeID); err != nil {
		return nil, err
	}

	l := assemble(accounts, prices, book)
	if l.Grid() != s.Grid {
		return nil, &SnapshotError{Field: "grid", Stored: s.Grid, Computed: l.Grid()}
	}
	if err := l.CheckInvariants(); err != nil {
		return nil, err
	}
	return l, nil
}

// SnapshotError reports a stored aggregate that does not match the records
type SnapshotError struct {
	Field    string
	Stored   int64
	Computed int64
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s mismatch: stored %d, computed %d", e.Field, e.Stored, e.Computed)
}

// StateHash returns a Keccak-256 fingerprint of the state. Two ledgers hash
// equal exactly when their snapshots are equal.
func (l *Ledger) StateHash() [32]byte {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte

	putInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putStr := func(s string) {
		putInt(int64(len(s)))
		h.Write([]byte(s))
	}

	putStr(string(l.prices.Owner()))
	putInt(l.prices.Current())
	putInt(int64(l.book.NextID()))

	accs := l.accounts.List()
	putInt(int64(len(accs)))
	for _, a := range accs {
		putStr(string(a.ID))
		putInt(a.EnergyBalance)
		putInt(a.FundsBalance)
	}

	trades := l.book.List(trade.Filter{})
	putInt(int64(len(trades)))
	for _, t := range trades {
		putInt(int64(t.ID))
		putStr(string(t.Seller))
		putStr(string(t.Buyer))
		putInt(t.Amount)
		putInt(t.Price)
		putInt(int64(t.Status))
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// StateHashHex returns StateHash as 0x-prefixed hex
func (l *Ledger) StateHashHex() string {
	sum := l.StateHash()
	return "0x" + hex.EncodeToString(sum[:])
}
