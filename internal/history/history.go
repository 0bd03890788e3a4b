// Package history keeps a fixed number of recent measurement results in
// memory. It is the run pipeline's only persistence; nothing is written to
// disk and nothing survives the process.
package history

import (
	"sort"
	"sync"

	"netgauge/internal/engine"
)

const DefaultCapacity = 100

// Buffer is a fixed-size ring of results. Once full, the oldest entry is
// overwritten. Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	results []engine.Result
	next    int
	cap     int
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{cap: capacity}
}

// Add records a result, evicting the oldest when the buffer is full.
func (b *Buffer) Add(r *engine.Result) {
	if r == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) < b.cap {
		b.results = append(b.results, *r)
		return
	}
	b.results[b.next] = *r
	b.next = (b.next + 1) % b.cap
}

// Len returns the number of stored results.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Recent returns up to n results, newest first.
func (b *Buffer) Recent(n int) []engine.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || len(b.results) == 0 {
		return nil
	}
	out := append([]engine.Result(nil), b.results...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AverageDownloadMbps returns the mean download speed over the buffer.
func (b *Buffer) AverageDownloadMbps() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) == 0 {
		return 0
	}
	var sum float64
	for i := range b.results {
		sum += b.results[i].DownloadMbps()
	}
	return sum / float64(len(b.results))
}

// AverageUploadMbps returns the mean upload speed over the buffer.
func (b *Buffer) AverageUploadMbps() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) == 0 {
		return 0
	}
	var sum float64
	for i := range b.results {
		sum += b.results[i].UploadMbps()
	}
	return sum / float64(len(b.results))
}
