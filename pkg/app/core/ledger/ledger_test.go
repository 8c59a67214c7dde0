package ledger

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/price"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

const (
	owner account.Identity = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	u1    account.Identity = "ST1SJ3DTE5DN7X54YDH5D64R3BCB6A2AG2ZQ8YPD5"
	u2    account.Identity = "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(owner, price.DefaultPrice)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func mustExec(t *testing.T, l *Ledger, cmd Command) Result {
	t.Helper()
	res, err := l.Execute(cmd)
	if err != nil {
		t.Fatalf("%s by %s: %v", cmd.Op, cmd.Caller, err)
	}
	return res
}

func TestScenarioA(t *testing.T) {
	l := newLedger(t)
	mustExec(t, l, Command{Op: OpRegister, Caller: u1})
	mustExec(t, l, Command{Op: OpAddEnergy, Caller: u1, Amount: 100})
	mustExec(t, l, Command{Op: OpConsumeEnergy, Caller: u1, Amount: 50})

	acc, _ := l.Account(u1)
	if acc.EnergyBalance != 50 {
		t.Errorf("energy = %d, want 50", acc.EnergyBalance)
	}
	if l.Grid() != 50 {
		t.Errorf("grid = %d, want 50", l.Grid())
	}
}

func TestScenarioB(t *testing.T) {
	l := newLedger(t)
	mustExec(t, l, Command{Op: OpRegister, Caller: u1})
	mustExec(t, l, Command{Op: OpRegister, Caller: u2})
	mustExec(t, l, Command{Op: OpAddEnergy, Caller: u1, Amount: 100})
	mustExec(t, l, Command{Op: OpAddFunds, Caller: u2, Amount: 10000})

	res := mustExec(t, l, Command{Op: OpCreateTrade, Caller: u1, Amount: 50, Price: 100})
	if res.TradeID == nil || *res.TradeID != 0 {
		t.Fatalf("trade id = %v, want 0", res.TradeID)
	}

	res = mustExec(t, l, Command{Op: OpAcceptTrade, Caller: u2, TradeID: 0})
	if res.Receipt == nil || res.Receipt.Cost != 5000 {
		t.Fatalf("receipt = %+v", res.Receipt)
	}
	if !reflect.DeepEqual(res.Accounts, []account.Identity{u1, u2}) {
		t.Errorf("touched accounts = %v", res.Accounts)
	}

	a1, _ := l.Account(u1)
	a2, _ := l.Account(u2)
	if a1.EnergyBalance != 50 || a1.FundsBalance != 5000 {
		t.Errorf("u1 = %+v", a1)
	}
	if a2.EnergyBalance != 50 || a2.FundsBalance != 5000 {
		t.Errorf("u2 = %+v", a2)
	}
}

func TestScenarioC(t *testing.T) {
	l := newLedger(t)
	if l.Price() != 100 {
		t.Fatalf("initial price = %d, want 100", l.Price())
	}
	mustExec(t, l, Command{Op: OpSetPrice, Caller: owner, Price: 200})

	_, err := l.Execute(Command{Op: OpSetPrice, Caller: u1, Price: 300})
	if !errors.Is(err, errs.ErrOwnerOnly) {
		t.Fatalf("got %v, want owner_only", err)
	}
	if l.Price() != 200 {
		t.Errorf("price = %d, want 200", l.Price())
	}
}

func TestScenarioD(t *testing.T) {
	l := newLedger(t)
	mustExec(t, l, Command{Op: OpRegister, Caller: u1})
	mustExec(t, l, Command{Op: OpRegister, Caller: u2})
	mustExec(t, l, Command{Op: OpAddEnergy, Caller: u1, Amount: 100})
	mustExec(t, l, Command{Op: OpCreateTrade, Caller: u1, Amount: 50, Price: 100})

	tests := []struct {
		caller account.Identity
		id     uint64
		want   *errs.Error
	}{
		{u2, 999, errs.ErrTradeNotFound},
		{u2, 0, errs.ErrInsufficientFunds},
		{u1, 0, errs.ErrSelfTrade},
	}
	for _, tt := range tests {
		before := l.StateHash()
		_, err := l.Execute(Command{Op: OpAcceptTrade, Caller: tt.caller, TradeID: tt.id})
		if !errors.Is(err, tt.want) {
			t.Errorf("accept(%s, %d): got %v, want %v", tt.caller, tt.id, err, tt.want)
		}
		if l.StateHash() != before {
			t.Errorf("accept(%s, %d) changed state", tt.caller, tt.id)
		}
	}
}

// Error codes seen by callers of the original contract.
func TestContractErrorCodes(t *testing.T) {
	l := newLedger(t)
	mustExec(t, l, Command{Op: OpRegister, Caller: u1})

	tests := []struct {
		cmd  Command
		code int
	}{
		{Command{Op: OpSetPrice, Caller: u1, Price: 1}, 100},
		{Command{Op: OpAddEnergy, Caller: u2, Amount: 1}, 102},
		{Command{Op: OpConsumeEnergy, Caller: u2, Amount: 1}, 103},
		{Command{Op: OpCreateTrade, Caller: u2, Amount: 1, Price: 1}, 103},
		{Command{Op: OpRegister, Caller: u1}, 104},
		{Command{Op: OpAcceptTrade, Caller: u1, TradeID: 3}, 105},
	}
	for _, tt := range tests {
		_, err := l.Execute(tt.cmd)
		k, ok := errs.KindOf(err)
		if !ok || k.Code() != tt.code {
			t.Errorf("%s: got %v, want code %d", tt.cmd.Op, err, tt.code)
		}
	}
}

func TestExecuteUnknownOp(t *testing.T) {
	l := newLedger(t)
	if _, err := l.Execute(Command{Op: "mint", Caller: u1}); !errs.IsValidation(err) {
		t.Errorf("got %v, want validation error", err)
	}
	if Op("mint").Valid() {
		t.Error("mint reported valid")
	}
	for _, op := range Ops {
		if !op.Valid() {
			t.Errorf("%s reported invalid", op)
		}
	}
}

func TestNewRejectsBadPrice(t *testing.T) {
	if _, err := New(owner, 0); !errs.IsValidation(err) {
		t.Errorf("got %v, want validation error", err)
	}
}

func buildSample(t *testing.T) *Ledger {
	t.Helper()
	l := newLedger(t)
	mustExec(t, l, Command{Op: OpRegister, Caller: u1})
	mustExec(t, l, Command{Op: OpRegister, Caller: u2})
	mustExec(t, l, Command{Op: OpAddEnergy, Caller: u1, Amount: 300})
	mustExec(t, l, Command{Op: OpAddFunds, Caller: u2, Amount: 900})
	mustExec(t, l, Command{Op: OpCreateTrade, Caller: u1, Amount: 5, Price: 7})
	mustExec(t, l, Command{Op: OpCreateTrade, Caller: u1, Amount: 9, Price: 3})
	mustExec(t, l, Command{Op: OpAcceptTrade, Caller: u2, TradeID: 1})
	mustExec(t, l, Command{Op: OpSetPrice, Caller: owner, Price: 120})
	return l
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := buildSample(t)
	snap := l.Snapshot()

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored, err := FromSnapshot(decoded)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.StateHash() != l.StateHash() {
		t.Error("restored ledger hashes differently")
	}
	if !reflect.DeepEqual(restored.Snapshot(), snap) {
		t.Errorf("snapshot mismatch:\n got %+v\nwant %+v", restored.Snapshot(), snap)
	}
	if restored.NextTradeID() != 2 {
		t.Errorf("next trade id = %d, want 2", restored.NextTradeID())
	}
}

func TestFromSnapshotRejectsCorruption(t *testing.T) {
	good := buildSample(t).Snapshot()

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
	}{
		{"grid mismatch", func(s *Snapshot) { s.Grid++ }},
		{"zero price", func(s *Snapshot) { s.Price = 0 }},
		{"negative funds", func(s *Snapshot) { s.Accounts[0].FundsBalance = -1 }},
		{"counter behind trades", func(s *Snapshot) { s.NextTradeID = 1 }},
		{"trade by unknown seller", func(s *Snapshot) {
			s.Trades[0].Seller = "ghost"
			s.Trades[0].Buyer = "ghost"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := good
			s.Accounts = append([]account.Account(nil), good.Accounts...)
			s.Trades = append([]trade.Trade(nil), good.Trades...)
			tt.mutate(&s)
			if _, err := FromSnapshot(s); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	var se *SnapshotError
	s := good
	s.Grid = 1
	if _, err := FromSnapshot(s); !errors.As(err, &se) || se.Field != "grid" {
		t.Errorf("got %v, want grid SnapshotError", err)
	}
}

func TestStateHashTracksChanges(t *testing.T) {
	a := buildSample(t)
	b := buildSample(t)
	if a.StateHash() != b.StateHash() {
		t.Fatal("identical histories hash differently")
	}

	mustExec(t, b, Command{Op: OpAddFunds, Caller: u1, Amount: 1})
	if a.StateHash() == b.StateHash() {
		t.Error("different states hash equal")
	}
	if len(a.StateHashHex()) != 66 {
		t.Errorf("hex hash = %q", a.StateHashHex())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	l := buildSample(t)
	before := l.StateHash()

	c := l.Clone()
	mustExec(t, c, Command{Op: OpSetPrice, Caller: owner, Price: 5})
	mustExec(t, c, Command{Op: OpAcceptTrade, Caller: u2, TradeID: 0})
	mustExec(t, c, Command{Op: OpRegister, Caller: "ST3NEW"})

	if l.StateHash() != before {
		t.Error("mutating the clone changed the original")
	}
}
