package reqbridge

import (
	"context"
	"net/url"
	"runtime"
	"testing"
	"time"
)

type (
	fakeCall struct {
		Args   []any
		Handle Handle
	}

	// fakeHost is a strict Host, it panics on double (de)registration of the
	// polling trigger, or releasing NoHandle.
	fakeHost struct {
		released map[Handle]int
		poll     func()
		callFn   func(h Handle, args []any) error
		startErr error
		calls    []fakeCall
		starts   int
		stops    int
	}

	transportFunc func(ctx context.Context, req *Request) (*Response, error)
)

func (f transportFunc) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

func newFakeHost() *fakeHost {
	return &fakeHost{released: make(map[Handle]int)}
}

func (x *fakeHost) Call(h Handle, args ...any) error {
	x.calls = append(x.calls, fakeCall{Handle: h, Args: args})
	if x.callFn != nil {
		return x.callFn(h, args)
	}
	return nil
}

func (x *fakeHost) Release(h Handle) {
	if !h.Valid() {
		panic(`released NoHandle`)
	}
	x.released[h]++
}

func (x *fakeHost) StartPolling(poll func()) error {
	if x.poll != nil {
		panic(`already polling`)
	}
	if poll == nil {
		panic(`nil poll`)
	}
	if x.startErr != nil {
		return x.startErr
	}
	x.poll = poll
	x.starts++
	return nil
}

func (x *fakeHost) StopPolling() {
	if x.poll == nil {
		panic(`not polling`)
	}
	x.poll = nil
	x.stops++
}

// drainAll invokes the installed polling trigger until nothing is pending.
func drainAll(t *testing.T, host *fakeHost, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 5)
	for d.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf(`timed out with %d pending`, d.Pending())
		}
		if host.poll == nil {
			t.Fatal(`polling trigger not installed`)
		}
		host.poll()
		time.Sleep(time.Millisecond)
	}
}

func mustParseURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func okTransport(status int, body string) transportFunc {
	return func(ctx context.Context, req *Request) (*Response, error) {
		return &Response{Status: status, Body: []byte(body)}, nil
	}
}

// checkNumGoroutines returns a func to defer, failing the test if the
// number of goroutines does not return to the starting value, within timeout.
func checkNumGoroutines(timeout time.Duration) func(t *testing.T) {
	before := runtime.NumGoroutine()
	return func(t *testing.T) {
		t.Helper()
		deadline := time.Now().Add(timeout)
		for {
			after := runtime.NumGoroutine()
			if after <= before {
				return
			}
			if time.Now().After(deadline) {
				t.Errorf(`goroutine leak: %d before, %d after`, before, after)
				return
			}
			time.Sleep(time.Millisecond * 10)
		}
	}
}
