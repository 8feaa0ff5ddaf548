// Package lifecycle tracks the process phase reported by /health.
package lifecycle

import "sync/atomic"

// Phase is the serving phase of the process.
type Phase int32

const (
	// PhaseStarting lasts until initial cache warming has finished.
	PhaseStarting Phase = iota
	PhaseReady
	// PhaseShuttingDown is entered on SIGTERM/SIGINT and never left.
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseReady:
		return "ready"
	case PhaseShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

var phase atomic.Int32

// Set moves the process to p.
func Set(p Phase) {
	phase.Store(int32(p))
}

// Current returns the process phase.
func Current() Phase {
	return Phase(phase.Load())
}

// MarkReady leaves PhaseStarting. It does nothing once shutdown has begun.
func MarkReady() bool {
	return phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseReady))
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return Current() == PhaseShuttingDown
}
