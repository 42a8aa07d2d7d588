// Package engineerr defines the categorized error taxonomy returned by the
// Paper Engine and Trading Bot so callers can branch on failure class with
// errors.As instead of matching message strings.
package engineerr

import "fmt"

// ValidationKind enumerates the reasons place_order can be rejected before
// any state mutation happens.
type ValidationKind string

const (
	BadQty          ValidationKind = "BAD_QTY"
	BadPrice        ValidationKind = "BAD_PRICE"
	UnknownSymbol   ValidationKind = "UNKNOWN_SYMBOL"
	MarketClosed    ValidationKind = "MARKET_CLOSED"
	InsufficientFunds ValidationKind = "INSUFFICIENT_FUNDS"
	RiskLimit       ValidationKind = "RISK_LIMIT"
	SafetyGuard     ValidationKind = "SAFETY_GUARD"
)

// ValidationError rejects a request before any order, position, or fund
// state changes — the caller's input or current state makes it invalid.
type ValidationError struct {
	Kind ValidationKind
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Msg)
}

func NewValidationError(kind ValidationKind, msg string) error {
	return &ValidationError{Kind: kind, Msg: msg}
}

// RiskLimitError rejects a request because it would breach a configured
// risk gate (max loss per day, max trades per day, max positions).
type RiskLimitError struct {
	Limit string
	Msg   string
}

func (e *RiskLimitError) Error() string {
	return fmt.Sprintf("risk limit %s: %s", e.Limit, e.Msg)
}

func NewRiskLimitError(limit, msg string) error {
	return &RiskLimitError{Limit: limit, Msg: msg}
}

// UpstreamTransientError wraps a failure from an external dependency
// (broker API, LTP fetch) that is expected to be retryable.
type UpstreamTransientError struct {
	Source string
	Err    error
}

func (e *UpstreamTransientError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Source, e.Err)
}

func (e *UpstreamTransientError) Unwrap() error { return e.Err }

func NewUpstreamTransientError(source string, err error) error {
	return &UpstreamTransientError{Source: source, Err: err}
}

// PersistenceError wraps a failure to durably record a state change.
// Per the spec's persist-on-every-mutation contract, the caller must treat
// the in-memory mutation as not committed when this is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// SafetyGuardError is returned whenever a code path would route an order to
// a live broker while the engine is configured for paper trading only.
type SafetyGuardError struct {
	Msg string
}

func (e *SafetyGuardError) Error() string {
	return fmt.Sprintf("safety guard: %s", e.Msg)
}

func NewSafetyGuardError(msg string) error {
	return &SafetyGuardError{Msg: msg}
}
