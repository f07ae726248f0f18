package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

const writerQueueSize = 256

// asyncWriter moves formatted lines off the dispatch goroutine. A single
// drain goroutine fans lines out to buffered sinks and flushes them whenever
// the queue runs empty, so bursts are written in one syscall per sink.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool

	sinks   []*bufio.Writer
	failed  atomic.Pointer[error]
	dropped atomic.Uint64
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		lines:   make(chan []byte, writerQueueSize),
		flushes: make(chan chan error),
		stopped: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.drain()
	return w
}

func (w *asyncWriter) drain() {
	defer close(w.stopped)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.fail(w.flushSinks())
				return
			}
			w.fail(w.writeSinks(line))
			if len(w.lines) == 0 {
				w.fail(w.flushSinks())
			}
		case ack := <-w.flushes:
			ack <- w.flushSinks()
		}
	}
}

// Write queues a copy of p. Once the queue is full the caller waits, so log
// lines are never lost while the writer is open. Lines written after Close
// go straight to stderr and are counted as dropped.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		_, _ = os.Stderr.Write(p)
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until everything queued so far reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.stopped:
		return nil
	}
}

// Close drains pending lines and stops the writer. It is safe to call more
// than once.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.mu.Unlock()
	<-w.stopped
	if n := w.dropped.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "logger: %d lines written after close\n", n)
	}
	return w.err()
}

// Dropped reports how many lines bypassed the sinks after Close.
func (w *asyncWriter) Dropped() uint64 { return w.dropped.Load() }

func (w *asyncWriter) writeSinks(line []byte) error {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fail records the first sink error; later writes report it.
func (w *asyncWriter) fail(err error) {
	if err != nil {
		w.failed.CompareAndSwap(nil, &err)
	}
}

func (w *asyncWriter) err() error {
	if p := w.failed.Load(); p != nil {
		return *p
	}
	return nil
}
