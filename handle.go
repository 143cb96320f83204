package reqbridge

import (
	"strconv"
)

// Handle is an opaque, host-owned token referencing a retained callback.
// The zero value, [NoHandle], means no callback was registered.
type Handle uint64

// NoHandle is the absent handle.
const NoHandle Handle = 0

// Valid reports whether h references a retained callback.
func (h Handle) Valid() bool { return h != NoHandle }

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h == NoHandle {
		return "none"
	}
	return strconv.FormatUint(uint64(h), 10)
}

// Host models the embedding environment. All methods are called on the host
// goroutine only, from within [Dispatcher.Submit], [Dispatcher.Drain],
// [Dispatcher.Shutdown] or [Dispatcher.Close].
type Host interface {
	// Call invokes the callback retained by h. An error indicates the
	// callback failed (e.g. threw), it does not affect handle ownership.
	Call(h Handle, args ...any) error

	// Release frees the retention held by h. Each handle is released
	// exactly once.
	Release(h Handle)

	// StartPolling installs poll as the host's polling trigger, to be
	// invoked periodically on the host goroutine until StopPolling. It must
	// not invoke poll synchronously. An error means the trigger could not
	// be installed, e.g. the host is shutting down, in which case
	// StopPolling won't be called.
	StartPolling(poll func()) error

	// StopPolling removes the polling trigger.
	StopPolling()
}
