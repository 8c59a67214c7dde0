// Package trade owns trade records and the trade identifier sequence.
package trade

import (
	"fmt"
	"sort"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
)

// Balances is the view of the account store the book needs at creation time
type Balances interface {
	Get(id account.Identity) (account.Account, bool)
}

// Book stores trades by id and allocates ids.
// Ids start at 0 and the counter advances only when a trade is created.
// Not safe for concurrent use.
type Book struct {
	trades map[uint64]*Trade
	nextID uint64
}

// NewBook creates an empty book
func NewBook() *Book {
	return &Book{
		trades: make(map[uint64]*Trade),
	}
}

// Create posts an Open trade for seller and returns its id.
//
// The seller's energy is checked but not reserved: the same energy can later be
// consumed or promised to another trade. Acceptance then fails closed.
func (b *Book) Create(balances Balances, seller account.Identity, amount, price int64) (uint64, error) {
	if amount <= 0 {
		return 0, errs.Invalid("amount")
	}
	if price <= 0 {
		return 0, errs.Invalid("price")
	}
	acc, ok := balances.Get(seller)
	if !ok || acc.EnergyBalance < amount {
		return 0, errs.New(errs.InsufficientEnergy)
	}

	id := b.nextID
	b.trades[id] = &Trade{
		ID:     id,
		Seller: seller,
		Buyer:  seller,
		Amount: amount,
		Price:  price,
		Status: Open,
	}
	b.nextID++
	return id, nil
}

// Lookup returns a copy of trade id
func (b *Book) Lookup(id uint64) (Trade, error) {
	t, ok := b.trades[id]
	if !ok {
		return Trade{}, errs.New(errs.TradeNotFound)
	}
	return *t, nil
}

// PrepareCompletion checks that trade id exists, is Open and is not the buyer's
// own, and returns the completed record without storing it.
func (b *Book) PrepareCompletion(id uint64, buyer account.Identity) (Trade, error) {
	t, err := b.Lookup(id)
	if err != nil {
		return Trade{}, err
	}
	if !t.IsOpen() {
		return Trade{}, errs.New(errs.TradeNotOpen)
	}
	if buyer == t.Seller {
		return Trade{}, errs.New(errs.SelfTrade)
	}
	return t.completedBy(buyer), nil
}

// CommitCompletion stores a record produced by PrepareCompletion
func (b *Book) CommitCompletion(t Trade) {
	cp := t
	b.trades[t.ID] = &cp
}

// NextID returns the id the next created trade will get
func (b *Book) NextID() uint64 { return b.nextID }

// Len returns the number of trades ever created
func (b *Book) Len() int { return len(b.trades) }

// Filter selects trades for List. A nil Status matches every trade.
type Filter struct {
	Status *Status
	Seller account.Identity // empty matches any
}

// List returns matching trades in ascending id order
func (b *Book) List(f Filter) []Trade {
	out := make([]Trade, 0, len(b.trades))
	for _, t := range b.trades {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Seller != "" && t.Seller != f.Seller {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Restore replaces the book contents. nextID must exceed every trade id.
func (b *Book) Restore(trades []Trade, nextID uint64) error {
	next := make(map[uint64]*Trade, len(trades))
	for i := range trades {
		t := trades[i]
		if err := t.Validate(); err != nil {
			return err
		}
		if t.ID >= nextID {
			return fmt.Errorf("trade id %d not below next id %d", t.ID, nextID)
		}
		if _, dup := next[t.ID]; dup {
			return fmt.Errorf("duplicate trade id %d", t.ID)
		}
		next[t.ID] = &t
	}
	b.trades = next
	b.nextID = nextID
	return nil
}

// Clone returns an independent deep copy
func (b *Book) Clone() *Book {
	out := &Book{
		trades: make(map[uint64]*Trade, len(b.trades)),
		nextID: b.nextID,
	}
	for id, t := range b.trades {
		cp := *t
		out.trades[id] = &cp
	}
	return out
}

// CheckInvariants verifies every trade and the id counter
func (b *Book) CheckInvariants() error {
	for id, t := range b.trades {
		if t.ID != id {
			return fmt.Errorf("trade key mismatch: key=%d, id=%d", id, t.ID)
		}
		if id >= b.nextID {
			return fmt.Errorf("trade id %d not below next id %d", id, b.nextID)
		}
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
