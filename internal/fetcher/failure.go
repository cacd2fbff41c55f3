package fetcher

import (
	"fmt"
)

// FailureKind classifies why a request produced no payload.
type FailureKind int

const (
	// FailureTransport covers DNS, connection and TLS errors.
	FailureTransport FailureKind = iota + 1
	// FailureTimeout means the per-attempt deadline expired.
	FailureTimeout
	// FailureStatus means the endpoint answered with a non-2xx status.
	FailureStatus
	// FailureMalformed means the body was empty, too large or not a payload.
	FailureMalformed
	// FailureCanceled means the run was aborted while probing.
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureStatus:
		return "status"
	case FailureMalformed:
		return "malformed"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Failure is the typed outcome of an unsuccessful request. It is a value
// returned to the caller, never a reason to abort the run.
type Failure struct {
	Kind   FailureKind
	Status int // HTTP status for FailureStatus
	Err    error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == FailureStatus:
		return fmt.Sprintf("fetch failed: %s %d", f.Kind, f.Status)
	case f.Err != nil:
		return fmt.Sprintf("fetch failed: %s: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("fetch failed: %s", f.Kind)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is what one request returns: either a payload or a Failure.
type Result struct {
	Payload []byte
	Failure *Failure
}

// OK reports whether the request produced a payload.
func (r Result) OK() bool { return r.Failure == nil }
