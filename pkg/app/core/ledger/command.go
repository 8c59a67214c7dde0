package ledger

import (
	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/settlement"
)

// Op names a ledger mutation
type Op string

const (
	OpRegister      Op = "register"
	OpAddEnergy     Op = "add_energy"
	OpConsumeEnergy Op = "consume_energy"
	OpAddFunds      Op = "add_funds"
	OpSetPrice      Op = "set_price"
	OpCreateTrade   Op = "create_trade"
	OpAcceptTrade   Op = "accept_trade"
)

// Ops lists every mutation
var Ops = []Op{
	OpRegister,
	OpAddEnergy,
	OpConsumeEnergy,
	OpAddFunds,
	OpSetPrice,
	OpCreateTrade,
	OpAcceptTrade,
}

// Valid reports whether op is a known mutation
func (op Op) Valid() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Command is a tagged ledger request. Only the fields the op uses are read:
// Amount for energy, funds and trade size, Price for set_price and create_trade,
// TradeID for accept_trade.
type Command struct {
	Op      Op               `json:"op"`
	Caller  account.Identity `json:"caller"`
	Amount  int64            `json:"amount,omitempty"`
	Price   int64            `json:"price,omitempty"`
	TradeID uint64           `json:"tradeId,omitempty"`
}

// Result is what a successful command produced, plus the records it touched so
// a persistence layer can write only those.
type Result struct {
	Op      Op                  `json:"op"`
	TradeID *uint64             `json:"tradeId,omitempty"` // create_trade, accept_trade
	Receipt *settlement.Receipt `json:"receipt,omitempty"` // accept_trade

	Accounts []account.Identity `json:"accounts,omitempty"`
	Trades   []uint64           `json:"trades,omitempty"`
	Meta     bool               `json:"meta,omitempty"` // price or trade counter changed
}

// Execute dispatches cmd to the matching operation. On error the ledger is unchanged.
func (l *Ledger) Execute(cmd Command) (Result, error) {
	res := Result{Op: cmd.Op}

	switch cmd.Op {
	case OpRegister:
		if err := l.Register(cmd.Caller); err != nil {
			return Result{}, err
		}
		res.Accounts = []account.Identity{cmd.Caller}

	case OpAddEnergy:
		if err := l.AddEnergy(cmd.Caller, cmd.Amount); err != nil {
			return Result{}, err
		}
		res.Accounts = []account.Identity{cmd.Caller}

	case OpConsumeEnergy:
		if err := l.ConsumeEnergy(cmd.Caller, cmd.Amount); err != nil {
			return Result{}, err
		}
		res.Accounts = []account.Identity{cmd.Caller}

	case OpAddFunds:
		if err := l.AddFunds(cmd.Caller, cmd.Amount); err != nil {
			return Result{}, err
		}
		res.Accounts = []account.Identity{cmd.Caller}

	case OpSetPrice:
		if err := l.SetPrice(cmd.Caller, cmd.Price); err != nil {
			return Result{}, err
		}
		res.Meta = true

	case OpCreateTrade:
		id, err := l.CreateTrade(cmd.Caller, cmd.Amount, cmd.Price)
		if err != nil {
			return Result{}, err
		}
		res.TradeID = &id
		res.Trades = []uint64{id}
		res.Meta = true

	case OpAcceptTrade:
		r, err := l.AcceptTrade(cmd.Caller, cmd.TradeID)
		if err != nil {
			return Result{}, err
		}
		id := r.Trade.ID
		res.TradeID = &id
		res.Receipt = &r
		res.Accounts = []account.Identity{r.Seller.ID, r.Buyer.ID}
		res.Trades = []uint64{id}

	default:
		return Result{}, errs.Invalid("op")
	}

	return res, nil
}
