// Package price holds the owner-controlled reference spot price.
package price

import (
	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
)

// DefaultPrice is the spot price a fresh grid starts with.
const DefaultPrice int64 = 100

// Register owns the current spot price. Only the owner identity may change it.
// Trades carry their own price; this value is a reference only.
type Register struct {
	owner   account.Identity
	current int64
}

// NewRegister creates a register for owner starting at initial.
// A non-positive initial price is a configuration error.
func NewRegister(owner account.Identity, initial int64) (*Register, error) {
	if initial <= 0 {
		return nil, errs.Invalid("price")
	}
	return &Register{owner: owner, current: initial}, nil
}

// Set replaces the price. The new price must be positive and caller must be the owner.
func (r *Register) Set(caller account.Identity, newPrice int64) error {
	if newPrice <= 0 {
		return errs.Invalid("price")
	}
	if caller != r.owner {
		return errs.New(errs.OwnerOnly)
	}
	r.current = newPrice
	return nil
}

// Current returns the spot price
func (r *Register) Current() int64 { return r.current }

// Owner returns the identity allowed to call Set
func (r *Register) Owner() account.Identity { return r.owner }
