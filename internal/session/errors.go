package session

import (
	"errors"
	"fmt"
)

// ErrCode classifies internal failures before they are translated to a
// QuitReason at a phase boundary (spec.md §7).
type ErrCode int

const (
	ErrNone ErrCode = iota
	ErrCanceled
	ErrNetwork
	ErrParseAddr
	ErrInvalidData
	ErrVersionMismatch
	ErrDisconnected
	ErrUnknown
)

func (c ErrCode) String() string {
	switch c {
	case ErrCanceled:
		return "canceled"
	case ErrNetwork:
		return "network"
	case ErrParseAddr:
		return "parse-addr"
	case ErrInvalidData:
		return "invalid-data"
	case ErrVersionMismatch:
		return "version-mismatch"
	case ErrDisconnected:
		return "disconnected"
	case ErrUnknown:
		return "unknown"
	default:
		return "none"
	}
}

// Sentinel errors usable with errors.Is.
var (
	// ErrStopped indicates the session was cancelled via Stop before the
	// phase in progress could complete.
	ErrStopped = errors.New("session stopped")

	// ErrNoAddrinfo indicates host resolution produced no usable candidate.
	ErrNoAddrinfo = errors.New("no address candidates")

	// ErrAllCandidatesFailed indicates every resolved address refused or
	// failed to connect.
	ErrAllCandidatesFailed = errors.New("all connection candidates failed")
)

// PhaseError wraps a failure from one phase of the session machine with the
// QuitReason it was translated to, grounded on b2bua.StateTransitionError's
// shape: a small struct carrying enough context for logs without losing the
// underlying cause via Unwrap.
type PhaseError struct {
	Phase  string
	Reason QuitReason
	Cause  error
}

func (e *PhaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("phase %s: %s: %v", e.Phase, e.Reason, e.Cause)
	}
	return fmt.Sprintf("phase %s: %s", e.Phase, e.Reason)
}

func (e *PhaseError) Unwrap() error {
	return e.Cause
}
