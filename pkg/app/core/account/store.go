package account

import (
	"errors"
	"fmt"
	"sort"

	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/safe"
)

// Store owns every Account and the Grid aggregate.
//
// Store is not safe for concurrent use. The ledger is a single-writer state
// machine; callers serialize access (see pkg/app/grid).
//
// Every mutating method validates and computes the complete next state before
// writing anything, so a returned error means nothing changed.
type Store struct {
	accounts map[Identity]*Account
	grid     Grid
}

// NewStore creates an empty store with a zero grid aggregate
func NewStore() *Store {
	return &Store{
		accounts: make(map[Identity]*Account),
	}
}

// Register creates a zero-balance account for id
func (s *Store) Register(id Identity) error {
	if id == "" {
		return errs.Invalid("caller")
	}
	if _, exists := s.accounts[id]; exists {
		return errs.New(errs.AlreadyRegistered)
	}
	acc := NewAccount(id)
	s.accounts[id] = &acc
	return nil
}

// AddEnergy credits energy to id and to the grid aggregate
func (s *Store) AddEnergy(id Identity, amount int64) error {
	if amount < 0 {
		return errs.Invalid("amount")
	}
	acc, exists := s.accounts[id]
	if !exists {
		return errs.New(errs.Unauthorized)
	}

	balance, err := safe.Add(acc.EnergyBalance, amount)
	if err != nil {
		return errs.New(errs.Overflow)
	}
	grid, err := safe.Add(s.grid.total, amount)
	if err != nil {
		return errs.New(errs.Overflow)
	}

	acc.EnergyBalance = balance
	s.grid.total = grid
	return nil
}

// ConsumeEnergy debits energy from id and from the grid aggregate.
// An unregistered caller has no energy and gets InsufficientEnergy.
func (s *Store) ConsumeEnergy(id Identity, amount int64) error {
	if amount < 0 {
		return errs.Invalid("amount")
	}
	acc, exists := s.accounts[id]
	if !exists || acc.EnergyBalance < amount {
		return errs.New(errs.InsufficientEnergy)
	}

	// balance >= amount and grid >= balance, neither subtraction can underflow
	acc.EnergyBalance -= amount
	s.grid.total -= amount
	return nil
}

// AddFunds credits funds to id
func (s *Store) AddFunds(id Identity, amount int64) error {
	if amount < 0 {
		return errs.Invalid("amount")
	}
	acc, exists := s.accounts[id]
	if !exists {
		return errs.New(errs.Unauthorized)
	}

	balance, err := safe.Add(acc.FundsBalance, amount)
	if err != nil {
		return errs.New(errs.Overflow)
	}
	acc.FundsBalance = balance
	return nil
}

// Get returns a copy of the account for id
func (s *Store) Get(id Identity) (Account, bool) {
	acc, exists := s.accounts[id]
	if !exists {
		return Account{}, false
	}
	return *acc, true
}

// Exists reports whether id is registered
func (s *Store) Exists(id Identity) bool {
	_, exists := s.accounts[id]
	return exists
}

// Len returns the number of registered accounts
func (s *Store) Len() int { return len(s.accounts) }

// Grid returns the grid aggregate
func (s *Store) Grid() Grid { return s.grid }

// List returns copies of all accounts sorted by identity
func (s *Store) List() []Account {
	out := make([]Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Exchange is a computed, not yet applied, swap of energy for funds between a
// seller and a buyer. It holds the complete next state of both accounts.
type Exchange struct {
	Seller Account
	Buyer  Account
}

// PrepareExchange computes the seller and buyer records after moving energy from
// seller to buyer and funds from buyer to seller. Nothing is written.
//
// Overflow is reported as Overflow; a negative resulting balance (for example a
// seller who spent energy promised to an open trade) as SettlementFailed.
func (s *Store) PrepareExchange(seller, buyer Identity, energy, funds int64) (Exchange, error) {
	if energy < 0 || funds < 0 {
		return Exchange{}, errs.Invalid("exchange")
	}
	if seller == buyer {
		return Exchange{}, errs.New(errs.SelfTrade)
	}
	from, ok := s.accounts[seller]
	if !ok {
		return Exchange{}, errs.New(errs.SettlementFailed)
	}
	to, ok := s.accounts[buyer]
	if !ok {
		return Exchange{}, errs.New(errs.Unauthorized)
	}

	next := Exchange{Seller: *from, Buyer: *to}

	var err error
	steps := []struct {
		dst  *int64
		op   func(int64, int64) (int64, error)
		diff int64
	}{
		{&next.Seller.EnergyBalance, safe.Sub, energy},
		{&next.Seller.FundsBalance, safe.Add, funds},
		{&next.Buyer.EnergyBalance, safe.Add, energy},
		{&next.Buyer.FundsBalance, safe.Sub, funds},
	}
	for _, st := range steps {
		if *st.dst, err = st.op(*st.dst, st.diff); err != nil {
			if errors.Is(err, safe.ErrOverflow) {
				return Exchange{}, errs.New(errs.Overflow)
			}
			return Exchange{}, err
		}
	}

	if next.Seller.Validate() != nil || next.Buyer.Validate() != nil {
		return Exchange{}, errs.New(errs.SettlementFailed)
	}
	return next, nil
}

// CommitExchange writes a prepared Exchange. Energy only moves between the two
// accounts, so the grid aggregate is unchanged.
func (s *Store) CommitExchange(x Exchange) {
	seller := x.Seller
	buyer := x.Buyer
	s.accounts[seller.ID] = &seller
	s.accounts[buyer.ID] = &buyer
}

// Restore replaces the store contents with accounts and recomputes the grid
// aggregate from them. Used when loading a persisted snapshot.
func (s *Store) Restore(accounts []Account) error {
	next := make(map[Identity]*Account, len(accounts))
	var grid int64
	for i := range accounts {
		acc := accounts[i]
		if err := acc.Validate(); err != nil {
			return err
		}
		if _, dup := next[acc.ID]; dup {
			return fmt.Errorf("duplicate account %s", acc.ID)
		}
		total, err := safe.Add(grid, acc.EnergyBalance)
		if err != nil {
			return fmt.Errorf("grid aggregate overflows: %w", err)
		}
		grid = total
		next[acc.ID] = &acc
	}
	s.accounts = next
	s.grid = Grid{total: grid}
	return nil
}

// Clone returns an independent deep copy
func (s *Store) Clone() *Store {
	out := &Store{
		accounts: make(map[Identity]*Account, len(s.accounts)),
		grid:     s.grid,
	}
	for id, acc := range s.accounts {
		cp := *acc
		out.accounts[id] = &cp
	}
	return out
}

// CheckInvariants verifies non-negative balances and that the grid aggregate
// equals the sum of energy balances.
func (s *Store) CheckInvariants() error {
	var sum int64
	for id, acc := range s.accounts {
		if acc.ID != id {
			return fmt.Errorf("account key mismatch: key=%s, id=%s", id, acc.ID)
		}
		if err := acc.Validate(); err != nil {
			return err
		}
		var err error
		if sum, err = safe.Add(sum, acc.EnergyBalance); err != nil {
			return fmt.Errorf("energy sum overflows: %w", err)
		}
	}
	if sum != s.grid.total {
		return fmt.Errorf("grid aggregate %d != sum of energy balances %d", s.grid.total, sum)
	}
	return nil
}
