// Package amm implements the pure, side-effect-free AMM math kernel (C1):
// per-kind swap output, slippage, multi-hop aggregation, market impact, and
// the optimal-input trade-size search. Every exported function returns a
// typed error from the MathError taxonomy; none panics on untrusted input.
package amm

import (
	"errors"
	"fmt"
)

// Code enumerates the MathError taxonomy from spec §4.1/§7.
type Code string

const (
	InsufficientLiquidity Code = "InsufficientLiquidity"
	Overflow              Code = "Overflow"
	UnsupportedPool       Code = "UnsupportedPool"
	ConvergenceFailure    Code = "ConvergenceFailure"
	DomainError           Code = "DomainError"
)

// MathError is the single wrapped error type returned by every amm
// function; Code identifies the taxonomy member for callers that need to
// branch (errors.As), while Err carries the underlying cause if any.
type MathError struct {
	Code Code
	Msg  string
	Err  error
}

func (e *MathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("amm: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("amm: %s: %s", e.Code, e.Msg)
}

func (e *MathError) Unwrap() error { return e.Err }

func newErr(code Code, msg string) *MathError {
	return &MathError{Code: code, Msg: msg}
}

func wrapErr(code Code, msg string, err error) *MathError {
	return &MathError{Code: code, Msg: msg, Err: err}
}

// IsCode reports whether err is a *MathError with the given code.
func IsCode(err error, code Code) bool {
	var me *MathError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
