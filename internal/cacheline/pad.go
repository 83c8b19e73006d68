// Package cacheline re-exports the platform cache-line pad used to keep
// hot, independently-written counters off the same cache line.
package cacheline

import "golang.org/x/sys/cpu"

// Pad is one cache line of padding bytes that keeps the fields around it on
// separate cache lines on every architecture x/sys/cpu knows about.
type Pad = cpu.CacheLinePad
