package gojareqbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	reqbridge "github.com/joeycumines/go-reqbridge"
	"github.com/joeycumines/logiface"
)

// Module provides HTTP requests to a [goja.Runtime], driven by a
// goja_nodejs [eventloop.EventLoop]. It implements [reqbridge.Host], with
// JavaScript functions as the callbacks referenced by handles.
//
// Other than construction, every method must be called on the loop
// goroutine, or after the loop has stopped.
type Module struct {
	runtime      *goja.Runtime
	loop         *eventloop.EventLoop
	logger       *logiface.Logger[logiface.Event]
	dispatcher   *reqbridge.Dispatcher
	callbacks    map[reqbridge.Handle]goja.Callable
	interval     *eventloop.Interval
	pollInterval time.Duration
	nextHandle   reqbridge.Handle
}

var _ reqbridge.Host = (*Module)(nil)

// errLoopTerminated is returned by [Module.StartPolling] (and therefore
// thrown by reqwest) once the loop no longer accepts timers.
var errLoopTerminated = errors.New("gojareqbridge: event loop terminated")

// New creates a new [Module] bound to the given [goja.Runtime], which must
// be the runtime of the loop provided via [WithLoop]. It starts the
// dispatcher's worker, so [Module.Close] or [Module.Shutdown] must be
// called once the Module is no longer needed.
//
// New panics if runtime is nil.
func New(runtime *goja.Runtime, opts ...Option) (*Module, error) {
	if runtime == nil {
		panic("gojareqbridge: runtime must not be nil")
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	m := &Module{
		runtime:      runtime,
		loop:         cfg.loop,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
		callbacks:    make(map[reqbridge.Handle]goja.Callable),
	}

	dispatcherOpts := append([]reqbridge.Option{reqbridge.WithLogger(cfg.logger)}, cfg.dispatcherOpts...)
	m.dispatcher, err = reqbridge.New(m, dispatcherOpts...)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Runtime returns the [goja.Runtime] this module is bound to.
func (m *Module) Runtime() *goja.Runtime {
	return m.runtime
}

// Dispatcher returns the underlying dispatcher.
func (m *Module) Dispatcher() *reqbridge.Dispatcher {
	return m.dispatcher
}

// Enable sets the global reqwest function on the runtime.
func (m *Module) Enable() {
	_ = m.runtime.Set("reqwest", m.runtime.ToValue(m.jsRequest))
}

// Require returns a [require.ModuleLoader] exporting this module's API:
//
//	registry.RegisterNativeModule("reqwest", m.Require())
//
//	const reqwest = require('reqwest');
//	reqwest.request({url: 'https://example.com', success: (status, body, headers) => {}});
//	reqwest.pending();
//	reqwest.FAILURE_MARKER;
//
// The loader panics if used with a different runtime.
func (m *Module) Require() require.ModuleLoader {
	return func(runtime *goja.Runtime, module *goja.Object) {
		if runtime != m.runtime {
			panic(runtime.NewGoError(errors.New("gojareqbridge: module is bound to a different runtime")))
		}
		exports := module.Get("exports").(*goja.Object)
		m.SetupExports(exports)
	}
}

// SetupExports wires the module's JS API onto the given exports object.
//
// Exports:
//   - request: submits a request, see [Module.Enable]
//   - pending: returns the number of requests awaiting delivery
//   - FAILURE_MARKER: the first argument passed to failure callbacks
func (m *Module) SetupExports(exports *goja.Object) {
	_ = exports.Set("request", m.runtime.ToValue(m.jsRequest))
	_ = exports.Set("pending", m.runtime.ToValue(func(goja.FunctionCall) goja.Value {
		return m.runtime.ToValue(m.dispatcher.Pending())
	}))
	_ = exports.Set("FAILURE_MARKER", reqbridge.FailureMarker)
}

// Live returns the number of callbacks currently retained.
func (m *Module) Live() int {
	return len(m.callbacks)
}

// Acquire retains fn, returning a handle that must be released exactly once.
func (m *Module) Acquire(fn goja.Callable) reqbridge.Handle {
	m.nextHandle++
	m.callbacks[m.nextHandle] = fn
	return m.nextHandle
}

// Release implements [reqbridge.Host].
func (m *Module) Release(h reqbridge.Handle) {
	if _, ok := m.callbacks[h]; !ok {
		m.logger.Err().
			Stringer(`handle`, h).
			Log(`released unknown handle`)
		return
	}
	delete(m.callbacks, h)
}

// Call implements [reqbridge.Host]. Byte slices are passed as strings, and
// string maps as plain objects. A JavaScript exception is returned as an
// error.
func (m *Module) Call(h reqbridge.Handle, args ...any) error {
	fn, ok := m.callbacks[h]
	if !ok {
		return fmt.Errorf("gojareqbridge: unknown handle %s", h)
	}
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		values[i] = m.toValue(arg)
	}
	_, err := fn(goja.Undefined(), values...)
	return err
}

// StartPolling implements [reqbridge.Host], using an interval, which also
// keeps the loop alive while requests are pending. It fails once the loop has
// been terminated.
func (m *Module) StartPolling(poll func()) error {
	if m.interval != nil {
		m.loop.ClearInterval(m.interval)
		m.interval = nil
	}
	interval := m.loop.SetInterval(func(*goja.Runtime) { poll() }, m.pollInterval)
	if interval == nil {
		return errLoopTerminated
	}
	m.interval = interval
	return nil
}

// StopPolling implements [reqbridge.Host].
func (m *Module) StopPolling() {
	if m.interval == nil {
		return
	}
	m.loop.ClearInterval(m.interval)
	m.interval = nil
}

// Shutdown waits for in-flight requests, see [reqbridge.Dispatcher.Shutdown].
// Undelivered callbacks are released without being called.
func (m *Module) Shutdown(ctx context.Context) error {
	return m.dispatcher.Shutdown(ctx)
}

// Close cancels in-flight requests, see [reqbridge.Dispatcher.Close].
func (m *Module) Close() error {
	return m.dispatcher.Close()
}

func (m *Module) toValue(v any) goja.Value {
	switch v := v.(type) {
	case []byte:
		return m.runtime.ToValue(string(v))
	case map[string]string:
		obj := m.runtime.NewObject()
		for k, s := range v {
			_ = obj.Set(k, s)
		}
		return obj
	default:
		return m.runtime.ToValue(v)
	}
}
