package ledger

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

var identities = []account.Identity{owner, u1, u2, "ST3J8EVYHVKH6XXPD61EE8XEHW4Y2K83861225AB1"}

func drawCommand(t *rapid.T, l *Ledger) Command {
	cmd := Command{
		Op:     rapid.SampledFrom(Ops).Draw(t, "op"),
		Caller: rapid.SampledFrom(identities).Draw(t, "caller"),
	}
	switch cmd.Op {
	case OpAddEnergy, OpConsumeEnergy, OpAddFunds:
		cmd.Amount = rapid.Int64Range(-5, 500).Draw(t, "amount")
	case OpSetPrice:
		cmd.Price = rapid.Int64Range(-2, 300).Draw(t, "price")
	case OpCreateTrade:
		cmd.Amount = rapid.Int64Range(-2, 200).Draw(t, "amount")
		cmd.Price = rapid.Int64Range(-2, 50).Draw(t, "price")
	case OpAcceptTrade:
		// mostly existing ids, occasionally one past the end
		cmd.TradeID = rapid.Uint64Range(0, l.NextTradeID()).Draw(t, "tradeId")
	}
	return cmd
}

func totalFunds(l *Ledger) int64 {
	var sum int64
	for _, a := range l.Accounts() {
		sum += a.FundsBalance
	}
	return sum
}

// Random command sequences never break an invariant, failures never change
// state, and trade ids only grow.
func TestLedgerInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, err := New(owner, 100)
		if err != nil {
			t.Fatal(err)
		}
		var lastID *uint64

		steps := rapid.IntRange(1, 80).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			cmd := drawCommand(t, l)

			beforeHash := l.StateHash()
			beforeFunds := totalFunds(l)
			beforeNext := l.NextTradeID()

			res, err := l.Execute(cmd)
			if err != nil {
				if _, ok := errs.KindOf(err); !ok {
					t.Fatalf("step %d %+v: foreign error %v", i, cmd, err)
				}
				if l.StateHash() != beforeHash {
					t.Fatalf("step %d %+v failed with %v but changed state", i, cmd, err)
				}
				if l.NextTradeID() != beforeNext {
					t.Fatalf("step %d: failed op advanced trade counter", i)
				}
				continue
			}

			if err := l.CheckInvariants(); err != nil {
				t.Fatalf("step %d %+v: %v", i, cmd, err)
			}

			wantFunds := beforeFunds
			if cmd.Op == OpAddFunds {
				wantFunds += cmd.Amount
			}
			if got := totalFunds(l); got != wantFunds {
				t.Fatalf("step %d %+v: total funds %d, want %d", i, cmd, got, wantFunds)
			}

			switch cmd.Op {
			case OpCreateTrade:
				id := *res.TradeID
				if id != beforeNext {
					t.Fatalf("step %d: trade id %d, want %d", i, id, beforeNext)
				}
				if lastID != nil && id <= *lastID {
					t.Fatalf("step %d: trade id %d not above %d", i, id, *lastID)
				}
				lastID = &id
			case OpAcceptTrade:
				tr, err := l.Trade(cmd.TradeID)
				if err != nil || tr.Status != trade.Completed || tr.Buyer != cmd.Caller {
					t.Fatalf("step %d: accepted trade = %+v, %v", i, tr, err)
				}
			default:
				if l.NextTradeID() != beforeNext {
					t.Fatalf("step %d: %s advanced trade counter", i, cmd.Op)
				}
			}
		}
	})
}

// Replaying the same commands on a snapshot-restored copy reaches the same state.
func TestSnapshotReplayProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l, _ := New(owner, 100)

		n := rapid.IntRange(0, 40).Draw(t, "prefix")
		for i := 0; i < n; i++ {
			l.Execute(drawCommand(t, l))
		}

		restored, err := FromSnapshot(l.Snapshot())
		if err != nil {
			t.Fatalf("restore: %v", err)
		}

		m := rapid.IntRange(0, 40).Draw(t, "suffix")
		for i := 0; i < m; i++ {
			cmd := drawCommand(t, l)
			_, err1 := l.Execute(cmd)
			_, err2 := restored.Execute(cmd)
			k1, _ := errs.KindOf(err1)
			k2, _ := errs.KindOf(err2)
			if (err1 == nil) != (err2 == nil) || k1 != k2 {
				t.Fatalf("diverged on %+v: %v vs %v", cmd, err1, err2)
			}
		}
		if l.StateHash() != restored.StateHash() {
			t.Fatal("restored ledger diverged")
		}
	})
}
