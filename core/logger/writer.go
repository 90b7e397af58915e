package logger

import (
	"io"
	"sync"
	"sync/atomic"
)

// asyncWriter fans log lines out to its sinks from a single goroutine so
// handlers never block on slow file or terminal writes.
type asyncWriter struct {
	queue   chan []byte
	barrier chan chan struct{}
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	sinks   []io.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, queueSize int) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		queue:   make(chan []byte, queueSize),
		barrier: make(chan chan struct{}),
		done:    make(chan struct{}),
		sinks:   sinks,
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.fanOut(line)
		case ack := <-w.barrier:
			// drain what was queued before the barrier
			for n := len(w.queue); n > 0; n-- {
				w.fanOut(<-w.queue)
			}
			close(ack)
		}
	}
}

func (w *asyncWriter) fanOut(line []byte) {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			w.setErr(err)
		}
	}
}

// Write queues a copy of p. It blocks only when the queue is full; lines
// written after Close are dropped.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 || w.closed.Load() {
		return nil
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush returns once every line queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan struct{})
	select {
	case w.barrier <- ack:
		<-ack
	case <-w.done:
	}
	return w.firstErr()
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.queue)
	})
	<-w.done
	return w.firstErr()
}

func (w *asyncWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
