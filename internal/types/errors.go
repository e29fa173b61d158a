package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is wrapped by every rejected status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// UnsupportedTickerError means a target instrument's price could not be
// resolved (delisted, not yet listed, or a pricing-service miss). It is never
// retried: the owning account is suspended until the condition clears.
type UnsupportedTickerError struct {
	Ticker string
}

func (e *UnsupportedTickerError) Error() string {
	return fmt.Sprintf("unsupported ticker: %s", e.Ticker)
}

// MinBaseViolationError means the account's evaluable base amount is below
// the minimum required to hold a diversified basket.
type MinBaseViolationError struct {
	Base    decimal.Decimal
	Minimum decimal.Decimal
}

func (e *MinBaseViolationError) Error() string {
	return fmt.Sprintf("base amount %s below minimum %s", e.Base, e.Minimum)
}

// StopOrderOperationError is a policy violation that halts order operations
// for the account (bad weight sums, reconfirmed illegal states).
type StopOrderOperationError struct {
	Reason string
}

func (e *StopOrderOperationError) Error() string {
	return "stop order operation: " + e.Reason
}

// PreconditionFailedError is a bad-input failure from a collaborator, most
// commonly the vendor trading API. Reported, never propagated raw.
type PreconditionFailedError struct {
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return "precondition failed: " + e.Reason
}

// ErrorClass is the structured failure classification attached to queues and
// order logs at the point of failure. The substring matcher below remains as
// a fallback for historical rows that predate the column.
type ErrorClass string

const (
	ErrorClassNone               ErrorClass = ""
	ErrorClassPriceResolution    ErrorClass = "PRICE_RESOLUTION"
	ErrorClassWeightSum          ErrorClass = "WEIGHT_SUM"
	ErrorClassMinBase            ErrorClass = "MIN_BASE"
	ErrorClassTransactionHistory ErrorClass = "TRANSACTION_HISTORY"
	ErrorClassPortfolioType      ErrorClass = "PORTFOLIO_TYPE"
	ErrorClassSellFail           ErrorClass = "SELL_FAIL"
	ErrorClassPasswordIncident   ErrorClass = "PASSWORD_INCIDENT"
)

// notePatterns classifies legacy free-text queue notes. Order matters: a note
// is assigned the first matching class.
var notePatterns = []struct {
	class    ErrorClass
	patterns []string
}{
	{ErrorClassPriceResolution, []string{"unsupported ticker", "price not found"}},
	{ErrorClassWeightSum, []string{"weight sum", "stop order operation"}},
	{ErrorClassMinBase, []string{"below minimum", "min base"}},
	{ErrorClassTransactionHistory, []string{"precondition failed", "transaction history"}},
	{ErrorClassPortfolioType, []string{"portfolio not found", "unknown portfolio"}},
	{ErrorClassSellFail, []string{"sell failed", "liquidation failed"}},
	{ErrorClassPasswordIncident, []string{"password"}},
}

// ClassifyNote maps a free-text diagnostic note to an error class.
func ClassifyNote(note string) ErrorClass {
	lower := strings.ToLower(note)
	for _, p := range notePatterns {
		for _, pat := range p.patterns {
			if strings.Contains(lower, pat) {
				return p.class
			}
		}
	}
	return ErrorClassNone
}

// ClassifyError maps a basket/execution failure to an error class at the
// point of failure, ahead of any note matching.
func ClassifyError(err error) ErrorClass {
	var unsupported *UnsupportedTickerError
	var minBase *MinBaseViolationError
	var stop *StopOrderOperationError
	var precondition *PreconditionFailedError
	switch {
	case errors.As(err, &unsupported):
		return ErrorClassPriceResolution
	case errors.As(err, &minBase):
		return ErrorClassMinBase
	case errors.As(err, &stop):
		return ErrorClassWeightSum
	case errors.As(err, &precondition):
		return ErrorClassTransactionHistory
	default:
		return ErrorClassNone
	}
}

// ManualInterventionClasses are the buckets an operator has to clear by hand
// before a failed liquidation may retry.
func ManualInterventionClasses() []ErrorClass {
	return []ErrorClass{
		ErrorClassPriceResolution,
		ErrorClassMinBase,
		ErrorClassTransactionHistory,
	}
}

// MaxNoteLength bounds queue notes so raw exception text cannot bloat storage
// or confuse the note classifier.
const MaxNoteLength = 255

// TruncateNote trims a diagnostic note to the persisted bound.
func TruncateNote(note string) string {
	if len(note) <= MaxNoteLength {
		return note
	}
	return note[:MaxNoteLength]
}
