package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 2 * time.Second
)

var (
	errWriterClosed = errors.New("reading writer is closed")
	errQueueFull    = errors.New("reading write queue is full")
)

// asyncWriter serializes inserts through one goroutine. Enqueue never
// blocks: a full queue loses the reading.
type asyncWriter struct {
	write   func(context.Context, Reading) error
	onError func(Reading, error)
	timeout time.Duration

	queue   chan Reading
	closed  bool
	mu      sync.RWMutex
	once    sync.Once
	wg      sync.WaitGroup
	pending sync.WaitGroup
}

func newAsyncWriter(write func(context.Context, Reading) error, queueSize int, onError func(Reading, error)) *asyncWriter {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w := &asyncWriter{
		write:   write,
		onError: onError,
		timeout: defaultWriteTimeout,
		queue:   make(chan Reading, queueSize),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer w.wg.Done()
	for r := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.write(ctx, r)
		cancel()
		if err != nil && w.onError != nil {
			w.onError(r, err)
		}
		w.pending.Done()
	}
}

func (w *asyncWriter) enqueue(r Reading) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.pending.Add(1)
	select {
	case w.queue <- r:
		return nil
	default:
		w.pending.Done()
		return errQueueFull
	}
}

func (w *asyncWriter) close(ctx context.Context) error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	return waitGroupContext(ctx, &w.wg)
}

func (w *asyncWriter) waitIdle(ctx context.Context) error {
	return waitGroupContext(ctx, &w.pending)
}

func waitGroupContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
