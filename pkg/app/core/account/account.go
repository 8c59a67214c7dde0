package account

import (
	"fmt"
)

// Identity is an authenticated caller token. The core never interprets it;
// two identities are the same caller iff they are equal strings.
type Identity string

// Account is a prosumer's ledger record.
// Both balances are non-negative at every observable point.
type Account struct {
	ID            Identity `json:"id"`
	EnergyBalance int64    `json:"energyBalance"` // energy units
	FundsBalance  int64    `json:"fundsBalance"`  // smallest currency unit
}

// NewAccount creates an account with zero balances
func NewAccount(id Identity) Account {
	return Account{ID: id}
}

// Validate checks account invariants
func (a Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("account has empty identity")
	}
	if a.EnergyBalance < 0 {
		return fmt.Errorf("negative energy balance for %s: %d", a.ID, a.EnergyBalance)
	}
	if a.FundsBalance < 0 {
		return fmt.Errorf("negative funds balance for %s: %d", a.ID, a.FundsBalance)
	}
	return nil
}
