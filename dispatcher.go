package reqbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// Dispatcher bridges a single-threaded [Host] and a worker goroutine
// performing HTTP requests. Instances must be initialized using [New].
//
// Other than [New], every method must be called from the host goroutine.
type Dispatcher struct {
	// betteralign:ignore

	host     Host
	logger   *logiface.Logger[logiface.Event]
	dispatch *queue[*Request]
	results  *queue[Outcome]
	done     <-chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	// poll is the method value passed to Host.StartPolling
	poll           func()
	defaultTimeout time.Duration

	// host goroutine only, no synchronization
	pending  int
	polling  bool
	draining bool
	closed   bool
}

// New initializes a [Dispatcher], starting its worker goroutine. It blocks
// only until the worker is ready to receive requests.
//
// The [Dispatcher.Shutdown] and/or [Dispatcher.Close] methods should be
// called when the Dispatcher is no longer needed.
func New(host Host, opts ...Option) (*Dispatcher, error) {
	if host == nil {
		return nil, ErrNilHost
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		host:           host,
		logger:         cfg.logger,
		defaultTimeout: cfg.defaultTimeout,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.poll = d.Drain

	var pair queuePair
	pair, d.done = startWorker(d.ctx, cfg)
	d.dispatch, d.results = pair.dispatch, pair.results

	return d, nil
}

// Submit validates req, applies defaults, then hands it to the worker. It
// never blocks. The host's polling trigger is installed, if it isn't
// already.
//
// A [*RequestError] is returned if req is invalid, in which case ownership of
// its handles remains with the caller. Otherwise, the handles will be
// released by a later [Dispatcher.Drain] (or on shutdown). [ErrClosed] is
// returned after [Dispatcher.Shutdown] or [Dispatcher.Close]. If the polling
// trigger can't be installed, the host's error is returned, and the request
// is not dispatched. The caller keeps its handles in every error case.
//
// Submit may be called from within callbacks.
func (d *Dispatcher) Submit(req *Request) error {
	if d.closed {
		return ErrClosed
	}

	if err := req.normalize(d.defaultTimeout); err != nil {
		return err
	}

	// nothing may be dispatched unless something will poll for the outcome
	if err := d.startPolling(); err != nil {
		return err
	}

	if err := d.dispatch.push(req); err != nil {
		if d.pending == 0 {
			d.stopPolling()
		}
		return err
	}

	d.pending++

	d.logger.Debug().
		Str(`method`, req.Method).
		Str(`url`, req.URL.String()).
		Int(`pending`, d.pending).
		Log(`request submitted`)

	return nil
}

// Drain delivers every outcome currently available, without waiting for
// more. It is the polling trigger installed via [Host.StartPolling], and is
// safe to call spuriously, including re-entrantly, from a callback, where it
// is a no-op.
//
// Once nothing is pending the polling trigger is removed. A panicking callback
// propagates, after its handle has been released, and its request counted.
func (d *Dispatcher) Drain() {
	if d.draining {
		return
	}
	d.draining = true
	defer func() { d.draining = false }()

	for d.pending > 0 {
		outcome, status := d.results.tryRecv()
		switch status {
		case recvEmpty:
			return
		case recvClosed:
			// only possible if the worker exited early, nothing more can arrive
			d.logger.Crit().
				Int(`pending`, d.pending).
				Log(`result queue closed with requests pending`)
			d.pending = 0
			d.stopPolling()
			return
		}
		d.deliver(outcome)
	}

	d.stopPolling()

	if n := d.results.size(); n != 0 {
		d.logger.Crit().
			Int(`queued`, n).
			Log(`outcomes queued with nothing pending`)
		panic(&InvariantError{Message: fmt.Sprintf("%d outcome(s) queued with nothing pending", n)})
	}
}

// Pending returns the number of submitted requests whose outcome has not yet
// been delivered.
func (d *Dispatcher) Pending() int {
	return d.pending
}

// Polling reports whether the polling trigger is currently installed.
func (d *Dispatcher) Polling() bool {
	return d.polling
}

// Shutdown immediately prevents further requests via Submit, then waits for
// all in-flight requests to complete. Outcomes not yet delivered are
// discarded, releasing their handles without invoking them. An error will be
// returned if ctx is canceled prior to this, causing a forced Close.
func (d *Dispatcher) Shutdown(ctx context.Context) (err error) {
	d.stop()

	select {
	case <-ctx.Done():
		if d.ctx.Err() == nil {
			err = ctx.Err() // indicating we forcibly closed
		}
		d.cancel()
		<-d.done
	case <-d.done:
		d.cancel()
	}

	d.discard()

	return err
}

// Close immediately cancels all in-flight requests, and prevents further
// requests via Submit, blocking until the worker has exited. Outcomes not yet
// delivered are discarded, releasing their handles without invoking them.
func (d *Dispatcher) Close() error {
	d.stop()
	d.cancel()
	<-d.done
	d.discard()
	return nil
}

func (d *Dispatcher) stop() {
	d.stopPolling()
	if !d.closed {
		d.closed = true
		d.dispatch.close()
	}
}

// deliver consumes a single outcome. The pending decrement and the callback
// release are both deferred, so they occur even if the callback panics.
func (d *Dispatcher) deliver(outcome Outcome) {
	defer func() {
		// a callback may have closed the dispatcher, which resets pending
		if d.pending > 0 {
			d.pending--
		}
	}()

	switch o := outcome.(type) {
	case *Success:
		d.release(o.Unused)
		d.invoke(o.Callback, o.Status, o.Body, flattenHeader(o.Header))

	case *Failure:
		d.release(o.Unused)
		d.invoke(o.Callback, FailureMarker, o.Message)

	case *FreeHandle:
		d.release(o.Handle)

	default:
		panic(&InvariantError{Message: fmt.Sprintf("unexpected outcome type %T", outcome)})
	}
}

func (d *Dispatcher) invoke(h Handle, args ...any) {
	defer d.host.Release(h)
	if err := d.host.Call(h, args...); err != nil {
		d.logger.Warning().
			Stringer(`handle`, h).
			Err(err).
			Log(`callback failed`)
	}
}

func (d *Dispatcher) release(h Handle) {
	if h.Valid() {
		d.host.Release(h)
	}
}

// discard releases the handles of any remaining outcomes, without invoking
// them. Only valid after the worker has exited.
func (d *Dispatcher) discard() {
	var n int
	for {
		outcome, status := d.results.tryRecv()
		if status != recvOK {
			break
		}
		n++
		switch o := outcome.(type) {
		case *Success:
			d.release(o.Callback)
			d.release(o.Unused)
		case *Failure:
			d.release(o.Callback)
			d.release(o.Unused)
		case *FreeHandle:
			d.release(o.Handle)
		}
	}

	if n != 0 {
		d.logger.Info().
			Int(`discarded`, n).
			Log(`discarded undelivered outcomes`)
	}

	d.pending = 0
}

func (d *Dispatcher) startPolling() error {
	if d.polling {
		return nil
	}
	if err := d.host.StartPolling(d.poll); err != nil {
		d.logger.Err().
			Err(err).
			Int(`pending`, d.pending).
			Log(`failed to install polling trigger`)
		return fmt.Errorf("reqbridge: start polling: %w", err)
	}
	d.polling = true
	return nil
}

func (d *Dispatcher) stopPolling() {
	if !d.polling {
		return
	}
	d.polling = false
	d.host.StopPolling()
}
