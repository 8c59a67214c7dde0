// Package ledger is the single owned state of the energy grid: accounts, the grid
// aggregate, the spot price and the trade book, with one method per operation.
//
// A Ledger is a plain value with no internal locking. Exactly one goroutine may
// use it at a time; pkg/app/grid provides that serialization for the node.
package ledger

import (
	"fmt"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/price"
	"github.com/uhyunpark/gridledger/pkg/app/core/settlement"
	"github.com/uhyunpark/gridledger/pkg/app/core/trade"
)

type Ledger struct {
	accounts *account.Store
	prices   *price.Register
	book     *trade.Book
	engine   *settlement.Engine
}

// New creates an empty ledger whose spot price is owned by owner
func New(owner account.Identity, initialPrice int64) (*Ledger, error) {
	prices, err := price.NewRegister(owner, initialPrice)
	if err != nil {
		return nil, err
	}
	return assemble(account.NewStore(), prices, trade.NewBook()), nil
}

func assemble(accounts *account.Store, prices *price.Register, book *trade.Book) *Ledger {
	return &Ledger{
		accounts: accounts,
		prices:   prices,
		book:     book,
		engine:   settlement.NewEngine(accounts, book),
	}
}

// Register creates a zero-balance account for caller
func (l *Ledger) Register(caller account.Identity) error {
	return l.accounts.Register(caller)
}

// AddEnergy records energy produced by caller
func (l *Ledger) AddEnergy(caller account.Identity, amount int64) error {
	return l.accounts.AddEnergy(caller, amount)
}

// ConsumeEnergy records energy drawn by caller
func (l *Ledger) ConsumeEnergy(caller account.Identity, amount int64) error {
	return l.accounts.ConsumeEnergy(caller, amount)
}

// AddFunds deposits funds for caller
func (l *Ledger) AddFunds(caller account.Identity, amount int64) error {
	return l.accounts.AddFunds(caller, amount)
}

// SetPrice replaces the spot price; owner only
func (l *Ledger) SetPrice(caller account.Identity, newPrice int64) error {
	return l.prices.Set(caller, newPrice)
}

// CreateTrade posts an offer by caller to sell amount energy at price per unit
func (l *Ledger) CreateTrade(caller account.Identity, amount, unitPrice int64) (uint64, error) {
	return l.book.Create(l.accounts, caller, amount, unitPrice)
}

// AcceptTrade settles trade id with caller as buyer
func (l *Ledger) AcceptTrade(caller account.Identity, id uint64) (settlement.Receipt, error) {
	return l.engine.AcceptTrade(caller, id)
}

// Account returns a copy of the account for id
func (l *Ledger) Account(id account.Identity) (account.Account, bool) {
	return l.accounts.Get(id)
}

// Accounts returns every account sorted by identity
func (l *Ledger) Accounts() []account.Account {
	return l.accounts.List()
}

// Trade returns a copy of trade id
func (l *Ledger) Trade(id uint64) (trade.Trade, error) {
	return l.book.Lookup(id)
}

// Trades returns trades matching f in id order
func (l *Ledger) Trades(f trade.Filter) []trade.Trade {
	return l.book.List(f)
}

// Grid returns the grid-wide energy total
func (l *Ledger) Grid() int64 { return l.accounts.Grid().Total() }

// Price returns the current spot price
func (l *Ledger) Price() int64 { return l.prices.Current() }

// Owner returns the identity allowed to set the price
func (l *Ledger) Owner() account.Identity { return l.prices.Owner() }

// NextTradeID returns the id the next successful CreateTrade will return
func (l *Ledger) NextTradeID() uint64 { return l.book.NextID() }

// Clone returns an independent deep copy
func (l *Ledger) Clone() *Ledger {
	prices := *l.prices
	return assemble(l.accounts.Clone(), &prices, l.book.Clone())
}

// CheckInvariants verifies every cross-component invariant of the state
func (l *Ledger) CheckInvariants() error {
	if err := l.accounts.CheckInvariants(); err != nil {
		return err
	}
	if err := l.book.CheckInvariants(); err != nil {
		return err
	}
	if l.prices.Current() <= 0 {
		return fmt.Errorf("non-positive spot price %d", l.prices.Current())
	}
	for _, t := range l.book.List(trade.Filter{}) {
		if !l.accounts.Exists(t.Seller) || !l.accounts.Exists(t.Buyer) {
			return fmt.Errorf("trade %d references an unregistered account", t.ID)
		}
	}
	return nil
}
