// Package tracecap keeps a bounded, in-memory ring of recent Cartesian
// samples and can export the current contents as a NumPy .npy array. It is
// deliberately decoupled from any connection/session state: recording a
// sample is a single mutex-guarded append, and Export is a one-shot
// snapshot-then-write, never a long-lived open file handle.
package tracecap

import (
	"fmt"
	"os"
	"sync"

	"github.com/sbinet/npyio"
)

// Sample is one recorded Cartesian pose, independent of the root package's
// CartesianPosition type.
type Sample struct {
	X, Y, Z, A, B, C float64
	TimestampUs      uint64
	IPOC             uint64
}

// Recorder is a fixed-capacity ring buffer of the most recent samples.
type Recorder struct {
	mu       sync.Mutex
	capacity int
	buf      []Sample
	next     int
	filled   bool
}

// New creates a Recorder holding at most capacity samples. capacity must be
// greater than zero; callers gate construction on Config.TraceCapacity > 0.
func New(capacity int) *Recorder {
	return &Recorder{
		capacity: capacity,
		buf:      make([]Sample, capacity),
	}
}

// Record appends a sample, overwriting the oldest entry once the ring is
// full.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = s
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}
}

// Snapshot returns the currently held samples in chronological order.
func (r *Recorder) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.filled {
		n = r.capacity
	}
	out := make([]Sample, n)
	if !r.filled {
		copy(out, r.buf[:n])
		return out
	}
	copy(out, r.buf[r.next:])
	copy(out[r.capacity-r.next:], r.buf[:r.next])
	return out
}

// row is the flat layout written to the .npy array: one row per sample,
// eight float64 columns (X, Y, Z, A, B, C, IPOC, TimestampUs).
type row [8]float64

// Export writes the current ring contents to path as a 2-D float64 .npy
// array, one row per sample in chronological order. It is a one-shot
// snapshot: samples recorded after Export returns are not included, and
// Export never holds the ring's lock for the duration of the file write.
func Export(r *Recorder, path string) error {
	samples := r.Snapshot()
	rows := make([]row, len(samples))
	for i, s := range samples {
		rows[i] = row{s.X, s.Y, s.Z, s.A, s.B, s.C, float64(s.IPOC), float64(s.TimestampUs)}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tracecap: create %s: %w", path, err)
	}
	defer f.Close()

	if err := npyio.Write(f, rows); err != nil {
		return fmt.Errorf("tracecap: write %s: %w", path, err)
	}
	return nil
}
