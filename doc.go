// Package reqbridge lets a single-threaded, cooperatively scheduled host (e.g.
// a script runtime driven by an event loop) issue HTTP requests that execute
// on a separate worker goroutine, with the results delivered back to the host
// goroutine, one at a time, at a point the host chooses.
//
// # Architecture
//
// A [Dispatcher] owns two unbounded FIFO queues and a worker goroutine:
//
//	host goroutine                      worker goroutine
//	--------------                      ----------------
//	Submit(req) ---- dispatch queue ---> spawn task per request
//	                                       |  Transport.RoundTrip
//	Drain()     <---- result queue ------ push exactly one Outcome
//
// [Dispatcher.Submit] never blocks. It increments the pending counter and, if
// needed, installs the host's polling trigger via [Host.StartPolling].
// [Dispatcher.Drain] is that trigger: it receives every [Outcome] currently
// available without waiting, invokes the relevant callback, releases handles
// and deregisters the trigger once nothing is pending.
//
// # Handles
//
// Callbacks are referenced by opaque [Handle] values, owned by the [Host].
// Every handle carried by a submitted [Request] is released exactly once:
// either right after its callback is invoked, or explicitly, when it is the
// unused side of a success/failure pair.
//
// # Thread Safety
//
//   - [Dispatcher.Submit], [Dispatcher.Drain], [Dispatcher.Pending] and
//     [Dispatcher.Polling] must only be called from the host goroutine.
//   - [Dispatcher.Shutdown] and [Dispatcher.Close] must be called from the
//     host goroutine, and block until the worker has exited.
//   - [Transport] implementations must be safe for concurrent use.
//
// # Usage
//
//	d, err := reqbridge.New(host,
//	    reqbridge.WithLogger(logger),
//	    reqbridge.WithMaxConcurrency(32),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	u, _ := url.Parse("https://example.com")
//	if err := d.Submit(&reqbridge.Request{URL: u, Success: h}); err != nil {
//	    // configuration error, nothing was dispatched
//	}
package reqbridge
