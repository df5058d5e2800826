package priceproviders

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failed lookup for routing decisions.
type ErrorKind string

const (
	// KindExhausted: the credential (or the whole pool) behind this
	// provider is out of quota. The router moves to the next provider.
	KindExhausted ErrorKind = "exhausted"
	// KindTransient: timeout, connection failure or upstream 5xx. Worth
	// retrying against the same provider.
	KindTransient ErrorKind = "transient"
	// KindNotFound: the hotel has no match at this provider. Not an error
	// to the end caller.
	KindNotFound ErrorKind = "not_found"
	// KindFatal: authentication or contract failure. The provider is
	// skipped for the rest of the scan session.
	KindFatal ErrorKind = "fatal"
)

// Error is a lookup failure tagged with the provider it came from and a
// kind the router dispatches on.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// KindOf extracts the classification from an error chain. Untagged errors
// default to transient, which is the safe assumption for network work.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// ClassifyStatus maps an upstream HTTP status to an error kind. 2xx never
// reaches here.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == 401 || code == 403:
		return KindFatal
	case code == 402 || code == 429:
		return KindExhausted
	case code == 404:
		return KindNotFound
	default:
		return KindTransient
	}
}

// ClassifyTransport tags a request-level failure (no HTTP response) as
// transient. Context cancellation propagates untouched so callers can
// distinguish a cancelled scan from a flaky upstream.
func ClassifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewError(provider, KindTransient, err)
}
