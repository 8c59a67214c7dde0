package trade

import (
	"fmt"

	"github.com/uhyunpark/gridledger/pkg/app/core/account"
	"github.com/uhyunpark/gridledger/pkg/app/core/errs"
	"github.com/uhyunpark/gridledger/pkg/safe"
)

// Status represents the lifecycle state of a trade
type Status int8

const (
	Open Status = iota
	Completed
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of String
func ParseStatus(s string) (Status, error) {
	switch s {
	case "open":
		return Open, nil
	case "completed":
		return Completed, nil
	default:
		return 0, fmt.Errorf("unknown trade status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s != Open && s != Completed {
		return nil, fmt.Errorf("invalid trade status %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Trade is an offer to sell Amount energy at Price per unit.
//
// While Open, Buyer equals Seller as the "unaccepted" placeholder.
// Once Completed, Buyer is the acceptor and the trade never changes again.
type Trade struct {
	ID     uint64           `json:"id"`
	Seller account.Identity `json:"seller"`
	Buyer  account.Identity `json:"buyer"`
	Amount int64            `json:"amount"` // energy units
	Price  int64            `json:"price"`  // funds per energy unit
	Status Status           `json:"status"`
}

// TotalCost returns Amount × Price, failing with Overflow instead of wrapping
func (t Trade) TotalCost() (int64, error) {
	cost, err := safe.Mul(t.Amount, t.Price)
	if err != nil {
		return 0, errs.New(errs.Overflow)
	}
	return cost, nil
}

// IsOpen returns true if the trade can still be accepted
func (t Trade) IsOpen() bool { return t.Status == Open }

// completedBy returns the trade as it looks after buyer accepted it
func (t Trade) completedBy(buyer account.Identity) Trade {
	t.Buyer = buyer
	t.Status = Completed
	return t
}

// Validate checks trade invariants
func (t Trade) Validate() error {
	if t.Amount <= 0 {
		return fmt.Errorf("trade %d: non-positive amount %d", t.ID, t.Amount)
	}
	if t.Price <= 0 {
		return fmt.Errorf("trade %d: non-positive price %d", t.ID, t.Price)
	}
	switch t.Status {
	case Open:
		if t.Buyer != t.Seller {
			return fmt.Errorf("trade %d: open with buyer %s != seller %s", t.ID, t.Buyer, t.Seller)
		}
	case Completed:
		if t.Buyer == t.Seller {
			return fmt.Errorf("trade %d: completed with buyer == seller %s", t.ID, t.Seller)
		}
	default:
		return fmt.Errorf("trade %d: invalid status %d", t.ID, t.Status)
	}
	return nil
}
