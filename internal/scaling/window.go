// Package scaling adjusts per-role worker pool sizes from queue pressure and
// task latency. It only decides sizes; an external execution platform
// realizes the scale commands.
package scaling

import "sync"

// Window is a fixed-size rolling window of latency samples in milliseconds.
type Window struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

// NewWindow creates a window holding the given number of samples.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 20
	}
	return &Window{
		samples: make([]float64, size),
	}
}

// Add records a sample, evicting the oldest when full.
func (w *Window) Add(ms float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = ms
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// Avg returns the mean of the recorded samples, or zero when empty.
func (w *Window) Avg() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.count()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / float64(n)
}

// Count returns the number of recorded samples.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count()
}

func (w *Window) count() int {
	if w.filled {
		return len(w.samples)
	}
	return w.next
}
