// Package errs defines the closed set of failure kinds returned by the ledger core.
//
// Every core operation fails with exactly one *Error whose Kind callers can branch on.
// Messages are derived from the kind; Field only names the offending argument of a
// validation failure and never changes behaviour.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates ledger failures. Numeric values are stable wire codes.
type Kind uint16

const (
	OwnerOnly          Kind = 100
	Unauthorized       Kind = 102
	InsufficientEnergy Kind = 103
	AlreadyRegistered  Kind = 104
	TradeNotFound      Kind = 105
	TradeNotOpen       Kind = 106
	InsufficientFunds  Kind = 107
	SelfTrade          Kind = 108
	Validation         Kind = 110
	Overflow           Kind = 111
	SettlementFailed   Kind = 112
)

// Kinds lists every kind in code order.
var Kinds = []Kind{
	OwnerOnly,
	Unauthorized,
	InsufficientEnergy,
	AlreadyRegistered,
	TradeNotFound,
	TradeNotOpen,
	InsufficientFunds,
	SelfTrade,
	Validation,
	Overflow,
	SettlementFailed,
}

func (k Kind) String() string {
	switch k {
	case OwnerOnly:
		return "owner_only"
	case Unauthorized:
		return "unauthorized"
	case InsufficientEnergy:
		return "insufficient_energy"
	case AlreadyRegistered:
		return "already_registered"
	case TradeNotFound:
		return "trade_not_found"
	case TradeNotOpen:
		return "trade_not_open"
	case InsufficientFunds:
		return "insufficient_funds"
	case SelfTrade:
		return "self_trade"
	case Validation:
		return "validation_error"
	case Overflow:
		return "overflow"
	case SettlementFailed:
		return "settlement_failed"
	default:
		return "unknown"
	}
}

// Code returns the stable numeric code.
func (k Kind) Code() int { return int(k) }

// ParseKind maps a String() value back to its Kind.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Error is the only error type produced by the core.
type Error struct {
	Kind  Kind
	Field string // set for Validation only
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("ledger: %s (%s)", e.Kind, e.Field)
	}
	return "ledger: " + e.Kind.String()
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSelfTrade) works
// regardless of Field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrOwnerOnly          = &Error{Kind: OwnerOnly}
	ErrUnauthorized       = &Error{Kind: Unauthorized}
	ErrInsufficientEnergy = &Error{Kind: InsufficientEnergy}
	ErrAlreadyRegistered  = &Error{Kind: AlreadyRegistered}
	ErrTradeNotFound      = &Error{Kind: TradeNotFound}
	ErrTradeNotOpen       = &Error{Kind: TradeNotOpen}
	ErrInsufficientFunds  = &Error{Kind: InsufficientFunds}
	ErrSelfTrade          = &Error{Kind: SelfTrade}
	ErrValidation         = &Error{Kind: Validation}
	ErrOverflow           = &Error{Kind: Overflow}
	ErrSettlementFailed   = &Error{Kind: SettlementFailed}
)

// New returns a fresh error of the given kind.
func New(k Kind) *Error { return &Error{Kind: k} }

// Invalid returns a Validation error naming the offending field.
func Invalid(field string) *Error { return &Error{Kind: Validation, Field: field} }

// KindOf extracts the kind from err. ok is false for nil or foreign errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsValidation reports a malformed request.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Validation
}

// IsBusiness reports a well-formed request the current state cannot satisfy.
func IsBusiness(err error) bool {
	k, ok := KindOf(err)
	return ok && k != Validation
}
