package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/ledger"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

const (
	owner account.Identity = "0x00000000000000000000000000000000000000aA"
	u1    account.Identity = "0x1111111111111111111111111111111111111111"
	u2    account.Identity = "0x2222222222222222222222222222222222222222"
)

func openStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(owner, 100)
	if err != nil {
		t.Fatal(err)
	}
	cmds := []ledger.Command{
		{Op: ledger.OpRegister, Caller: u1},
		{Op: ledger.OpRegister, Caller: u2},
		{Op: ledger.OpAddEnergy, Caller: u1, Amount: 100},
		{Op: ledger.OpAddFunds, Caller: u2, Amount: 10000},
		{Op: ledger.OpCreateTrade, Caller: u1, Amount: 50, Price: 100},
		{Op: ledger.OpCreateTrade, Caller: u1, Amount: 10, Price: 90},
		{Op: ledger.OpAcceptTrade, Caller: u2, TradeID: 0},
	}
	for _, c := range cmds {
		if _, err := l.Execute(c); err != nil {
			t.Fatalf("%s: %v", c.Op, err)
		}
	}
	return l
}

func TestLoadSnapshotEmpty(t *testing.T) {
	s := openStore(t)
	_, ok, err := s.LoadSnapshot()
	if err != nil || ok {
		t.Fatalf("empty db: ok=%v err=%v", ok, err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openStore(t)
	l := sampleLedger(t)

	if err := s.SaveSnapshot(l.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.LoadSnapshot()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, l.Snapshot()) {
		t.Fatalf("snapshot mismatch:\n got %+v\nwant %+v", got, l.Snapshot())
	}

	restored, err := ledger.FromSnapshot(got)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.StateHash() != l.StateHash() {
		t.Error("restored state hash differs")
	}
}

func TestApplyIncremental(t *testing.T) {
	s := openStore(t)
	l := sampleLedger(t)
	if err := s.SaveSnapshot(l.Snapshot()); err != nil {
		t.Fatal(err)
	}

	res, err := l.Execute(ledger.Command{Op: ledger.OpAcceptTrade, Caller: u2, TradeID: 1})
	if err != nil {
		t.Fatal(err)
	}

	u := Update{Nonce: &NonceEntry{Identity: u2, Nonce: 7}}
	for _, id := range res.Accounts {
		acc, _ := l.Account(id)
		u.Accounts = append(u.Accounts, acc)
	}
	for _, id := range res.Trades {
		tr, _ := l.Trade(id)
		u.Trades = append(u.Trades, tr)
	}
	meta := MetaOf(l.Snapshot())
	u.Meta = &meta
	if err := s.Apply(u); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _, err := s.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, l.Snapshot()) {
		t.Errorf("snapshot after apply differs")
	}
	if got.Trades[1].Status != trade.Completed {
		t.Errorf("trade 1 = %+v", got.Trades[1])
	}

	nonces, err := s.LoadNonces()
	if err != nil {
		t.Fatal(err)
	}
	if nonces[u2] != 7 || len(nonces) != 1 {
		t.Errorf("nonces = %v", nonces)
	}
}

func TestTradeKeysSortByID(t *testing.T) {
	s := openStore(t)
	var trades []trade.Trade
	for _, id := range []uint64{256, 1, 70000, 2} {
		trades = append(trades, trade.Trade{ID: id, Seller: u1, Buyer: u1, Amount: 1, Price: 1})
	}
	if err := s.Apply(Update{Trades: trades, Meta: &Meta{Owner: owner, Price: 1, NextTradeID: 70001}}); err != nil {
		t.Fatal(err)
	}
	snap, _, err := s.LoadSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{1, 2, 256, 70000}
	for i, tr := range snap.Trades {
		if tr.ID != want[i] {
			t.Fatalf("trade order %d = %d, want %d", i, tr.ID, want[i])
		}
	}
}

func TestFileJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tx.jsonl")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	id := uint64(3)
	entries := []JournalEntry{
		{Time: time.Unix(0, 0).UTC(), Type: "create_trade", Caller: string(u1), Nonce: 1, OK: true, TradeID: &id, StateHash: "0xab"},
		{Time: time.Unix(1, 0).UTC(), Type: "accept_trade", Caller: string(u1), Nonce: 2, Code: 108, Error: "self_trade", StateHash: "0xab"},
	}
	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	var n int
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		if e.Type != entries[n].Type || e.Code != entries[n].Code {
			t.Errorf("line %d = %+v", n, e)
		}
		n++
	}
	if n != 2 {
		t.Errorf("lines = %d, want 2", n)
	}
}
