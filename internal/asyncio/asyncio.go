// Package asyncio provides a non-blocking writer backed by a rotating log
// file. Writes are handed to a bounded channel and drained by a dedicated
// goroutine; a caller on the real-time path is never made to wait on disk
// I/O, and a writer that falls behind drops lines rather than blocking.
package asyncio

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const queueCapacity = 256

// Writer wraps a lumberjack.Logger with a drop-on-full async queue.
type Writer struct {
	logger  *lumberjack.Logger
	lines   chan string
	done    chan struct{}
	dropped uint64
	mu      sync.Mutex
}

// Options mirrors the subset of lumberjack.Logger fields this package
// exposes.
type Options struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New opens filename (creating it and its rotation policy per opts) and
// starts the drain goroutine.
func New(opts Options) *Writer {
	w := &Writer{
		logger: &lumberjack.Logger{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
		lines: make(chan string, queueCapacity),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for line := range w.lines {
		fmt.Fprintln(w.logger, line)
	}
}

// WriteLine enqueues a line for the background writer. Non-blocking: if
// the queue is full, the line is dropped and DroppedCount is incremented.
func (w *Writer) WriteLine(line string) {
	select {
	case w.lines <- line:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Write implements io.Writer by enqueueing p as a single line, so a Writer
// can back a standard library *log.Logger via log.New/SetOutput. The
// trailing newline log.Logger appends is stripped since WriteLine adds its
// own when flushing to the underlying lumberjack.Logger.
func (w *Writer) Write(p []byte) (int, error) {
	w.WriteLine(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// DroppedCount returns the number of lines dropped due to a full queue.
func (w *Writer) DroppedCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close drains the queue and closes the underlying log file. Calling Close
// again after it has returned is a no-op that returns nil.
func (w *Writer) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.lines)
	<-w.done
	return w.logger.Close()
}
