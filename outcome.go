package reqbridge

import (
	"net/http"
	"strings"
)

// FailureMarker is the first argument passed to failure callbacks. It carries
// no information, and exists for compatibility with the legacy callback
// signature, (reason, error).
const FailureMarker = "unsuccessful"

type (
	// Outcome is the result of exactly one completed [Request], produced by
	// the worker, and consumed exactly once by [Dispatcher.Drain].
	//
	// The concrete type is one of [*Success], [*Failure] or [*FreeHandle].
	Outcome interface {
		outcome()
	}

	// Success is a completed exchange, with a registered success callback.
	Success struct {
		Header   http.Header
		Body     []byte
		Status   int
		Callback Handle
		// Unused is the paired failure handle, to be released without
		// invocation, or NoHandle.
		Unused Handle
	}

	// Failure is a transport-level failure, with a registered failure
	// callback.
	Failure struct {
		Message  string
		Callback Handle
		// Unused is the paired success handle, to be released without
		// invocation, or NoHandle.
		Unused Handle
	}

	// FreeHandle is a completed request whose relevant callback was never
	// registered. Handle is the counterpart to release, and may be NoHandle
	// (fire-and-forget requests still produce an outcome, keeping the
	// pending count exact).
	FreeHandle struct {
		Handle Handle
	}
)

func (*Success) outcome()    {}
func (*Failure) outcome()    {}
func (*FreeHandle) outcome() {}

// newOutcome builds the outcome for a finished request, given the handles
// moved out of it, and exactly one of resp or err.
func newOutcome(success, failure Handle, resp *Response, err error) Outcome {
	if err == nil {
		if success.Valid() {
			return &Success{
				Callback: success,
				Status:   resp.Status,
				Header:   resp.Header,
				Body:     resp.Body,
				Unused:   failure,
			}
		}
		return &FreeHandle{Handle: failure}
	}
	if failure.Valid() {
		return &Failure{
			Callback: failure,
			Message:  err.Error(),
			Unused:   success,
		}
	}
	return &FreeHandle{Handle: success}
}

// flattenHeader converts a response header into the callback form: lower-case
// names, the last value winning for repeated headers.
func flattenHeader(header http.Header) map[string]string {
	m := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) == 0 {
			continue
		}
		m[strings.ToLower(k)] = v[len(v)-1]
	}
	return m
}
