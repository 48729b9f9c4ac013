package types

import (
	"errors"
	"fmt"
)

// ErrMissingRequired marks a record that cannot be persisted because a
// required identity field is empty.
var ErrMissingRequired = errors.New("missing required field")

// FailureKind classifies a terminal fetch failure.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureTimeout
	FailureConnection
	FailureHTTPStatus
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection"
	case FailureHTTPStatus:
		return "http_status"
	default:
		return "unknown"
	}
}

// FetchError wraps a terminal fetch failure, after retries are exhausted.
// The caller treats it as "item unavailable", never as a reason to abort
// the run.
type FetchError struct {
	URL        string
	Kind       FailureKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s failed (%s, status %d, %d attempts): %v",
			e.URL, e.Kind, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s, %d attempts): %v", e.URL, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps a response-decoding failure: malformed JSON, a missing
// embedded-state marker, or an unexpected payload shape. It is distinct
// from FetchError so callers can tell a bad response from no response, but
// for the stop heuristic both count as a failed page.
type ParseError struct {
	Source string
	URL    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s) for %s: %v", e.Source, e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure, including rejection of records
// missing required fields.
type StoreError struct {
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error (%s): %v", e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
