package reqbridge

import (
	"sync"
)

// chunkSize is the number of values per node in a queue's linked list.
const chunkSize = 64

type (
	// queue is an unbounded, multi-producer, single-consumer FIFO, built as a
	// chunked linked list. It backs both the dispatch queue (host to worker)
	// and the result queue (worker tasks to host).
	queue[T any] struct { // betteralign:ignore
		mu     sync.Mutex
		head   *chunk[T]
		tail   *chunk[T]
		length int
		closed bool
		// wake has a buffer of one, and is signalled on push or close, to
		// unblock the (single) consumer in recv
		wake chan struct{}
		pool *sync.Pool
	}

	// chunk is a fixed-size node, with read/write cursors for O(1) push and
	// pop without shifting.
	chunk[T any] struct {
		values  [chunkSize]T
		next    *chunk[T]
		readPos int
		pos     int
	}

	recvStatus int
)

const (
	recvOK recvStatus = iota
	recvEmpty
	recvClosed
)

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		wake: make(chan struct{}, 1),
		pool: &sync.Pool{New: func() any { return new(chunk[T]) }},
	}
}

// push appends v, and never blocks. It fails only if the queue is closed.
func (q *queue[T]) push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if q.tail == nil {
		q.tail = q.newChunk()
		q.head = q.tail
	} else if q.tail.pos == len(q.tail.values) {
		c := q.newChunk()
		q.tail.next = c
		q.tail = c
	}

	q.tail.values[q.tail.pos] = v
	q.tail.pos++
	q.length++
	q.mu.Unlock()

	q.signal()
	return nil
}

// recv blocks until a value is available, returning false once the queue is
// closed and fully drained. Single consumer only.
func (q *queue[T]) recv() (T, bool) {
	for {
		v, status := q.tryRecv()
		switch status {
		case recvOK:
			return v, true
		case recvClosed:
			return v, false
		}
		<-q.wake
	}
}

// tryRecv is the non-blocking variant of recv. Values pushed before close are
// still delivered, recvClosed is only reported once the queue is empty.
func (q *queue[T]) tryRecv() (v T, status recvStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == 0 {
		if q.closed {
			return v, recvClosed
		}
		return v, recvEmpty
	}

	c := q.head
	v = c.values[c.readPos]
	var zero T
	c.values[c.readPos] = zero
	c.readPos++
	q.length--

	if c.readPos == c.pos {
		if c == q.tail {
			// only chunk, reset the cursors for reuse
			c.readPos, c.pos = 0, 0
		} else {
			q.head = c.next
			q.returnChunk(c)
		}
	}

	return v, recvOK
}

// close prevents further pushes. It is idempotent.
func (q *queue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *queue[T]) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

func (q *queue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[T]) newChunk() *chunk[T] {
	c := q.pool.Get().(*chunk[T])
	c.next = nil
	c.readPos, c.pos = 0, 0
	return c
}

// returnChunk recycles an exhausted chunk, slots are already zeroed by
// tryRecv.
func (q *queue[T]) returnChunk(c *chunk[T]) {
	c.next = nil
	c.readPos, c.pos = 0, 0
	q.pool.Put(c)
}
