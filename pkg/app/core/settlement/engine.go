// Package settlement accepts open trades, moving energy and funds between the
// two parties as one indivisible step.
package settlement

import (
	"errors"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

// Receipt describes a committed settlement
type Receipt struct {
	Trade  trade.Trade     `json:"trade"`
	Cost   int64           `json:"cost"`
	Seller account.Account `json:"seller"`
	Buyer  account.Account `json:"buyer"`
}

// Engine settles trades over an account store and a trade book it does not own
type Engine struct {
	accounts *account.Store
	book     *trade.Book
}

// NewEngine creates an engine over accounts and book
func NewEngine(accounts *account.Store, book *trade.Book) *Engine {
	return &Engine{accounts: accounts, book: book}
}

// AcceptTrade completes trade id with buyer as counterparty.
//
// Checks run in a fixed order: trade exists, is open, buyer is not the seller,
// buyer is registered, cost fits in int64, buyer can pay. The full next state of
// both accounts and the trade is then computed; if the seller no longer holds
// the promised energy or any balance would overflow, the call fails with
// SettlementFailed. Only after that are the account and trade records written.
func (e *Engine) AcceptTrade(buyer account.Identity, id uint64) (Receipt, error) {
	done, err := e.book.PrepareCompletion(id, buyer)
	if err != nil {
		return Receipt{}, err
	}

	payer, ok := e.accounts.Get(buyer)
	if !ok {
		return Receipt{}, errs.New(errs.Unauthorized)
	}

	cost, err := done.TotalCost()
	if err != nil {
		return Receipt{}, err
	}
	if payer.FundsBalance < cost {
		return Receipt{}, errs.New(errs.InsufficientFunds)
	}

	x, err := e.accounts.PrepareExchange(done.Seller, buyer, done.Amount, cost)
	if err != nil {
		if errors.Is(err, errs.ErrOverflow) {
			return Receipt{}, errs.New(errs.SettlementFailed)
		}
		return Receipt{}, err
	}

	e.accounts.CommitExchange(x)
	e.book.CommitCompletion(done)

	return Receipt{
		Trade:  done,
		Cost:   cost,
		Seller: x.Seller,
		Buyer:  x.Buyer,
	}, nil
}
