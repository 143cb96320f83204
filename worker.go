package reqbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
)

type (
	// worker owns the receiving end of the dispatch queue, and the sending
	// end of the result queue.
	worker struct {
		ctx       context.Context
		transport Transport
		limiter   *catrate.Limiter
		logger    *logiface.Logger[logiface.Event]
		dispatch  *queue[*Request]
		results   *queue[Outcome]
		// done is closed after results is closed, and every task has exited
		done           chan struct{}
		maxConcurrency int
	}

	// queuePair is handed back by the worker, once it is ready to receive.
	queuePair struct {
		dispatch *queue[*Request]
		results  *queue[Outcome]
	}
)

// startWorker spawns the worker goroutine, blocking only until it has built
// the queues. The worker exits after the dispatch queue is closed and every
// task has finished. Cancelling ctx aborts in-flight requests.
func startWorker(ctx context.Context, cfg *dispatcherOptions) (queuePair, <-chan struct{}) {
	w := &worker{
		ctx:            ctx,
		transport:      cfg.transport,
		limiter:        cfg.limiter,
		logger:         cfg.logger,
		maxConcurrency: cfg.maxConcurrency,
		done:           make(chan struct{}),
	}
	ready := make(chan queuePair)
	go w.run(ready)
	return <-ready, w.done
}

func (w *worker) run(ready chan<- queuePair) {
	defer close(w.done)

	w.dispatch = newQueue[*Request]()
	w.results = newQueue[Outcome]()
	ready <- queuePair{dispatch: w.dispatch, results: w.results}

	w.logger.Debug().Log(`worker started`)
	defer w.logger.Debug().Log(`worker stopped`)

	var group errgroup.Group
	if w.maxConcurrency > 0 {
		group.SetLimit(w.maxConcurrency)
	}

	for {
		req, ok := w.dispatch.recv()
		if !ok {
			break
		}
		// may block on the limit, which only delays receiving
		group.Go(func() error {
			w.handle(req)
			return nil
		})
	}

	_ = group.Wait()
	w.results.close()
}

// handle performs a single request, pushing exactly one outcome.
func (w *worker) handle(req *Request) {
	success, failure := req.handles()

	var (
		resp *Response
		err  error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Crit().
					Str(`url`, req.URL.String()).
					Any(`panic`, r).
					Log(`transport panicked`)
				resp, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()
		resp, err = w.roundTrip(req)
	}()

	if err != nil {
		w.logger.Debug().
			Str(`method`, req.Method).
			Str(`url`, req.URL.String()).
			Err(err).
			Log(`request failed`)
	} else {
		w.logger.Debug().
			Str(`method`, req.Method).
			Str(`url`, req.URL.String()).
			Int(`status`, resp.Status).
			Log(`request completed`)
	}

	if err := w.results.push(newOutcome(success, failure, resp, err)); err != nil {
		w.logger.Err().
			Err(err).
			Stringer(`success`, success).
			Stringer(`failure`, failure).
			Log(`outcome discarded`)
	}
}

func (w *worker) roundTrip(req *Request) (*Response, error) {
	if err := w.ctx.Err(); err != nil {
		return nil, err
	}

	if next, ok := w.limiter.Allow(req.URL.Host); !ok {
		return nil, fmt.Errorf("rate limit exceeded for %s, retry after %s", req.URL.Host, next.UTC().Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(w.ctx, req.Timeout)
	defer cancel()

	resp, err := w.transport.RoundTrip(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("reqbridge: transport %T returned a nil response", w.transport)
	}
	return resp, err
}
