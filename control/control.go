// Package control implements the asynchronous control-signal channel
// between a connection's supervisor and its running I/O workers.
//
// A Channel carries a coalescing set of edge-triggered signals. Any
// goroutine may Send without blocking; the owning worker selects on
// Wake and drains the pending set with Collect. Two identical signals
// sent before the worker observes them collapse into one wake-up,
// while distinct pending kinds are all visible at the next Collect.
package control

import "sync/atomic"

// Signal is one control request for a running worker. Values are bit
// flags so a pending set can coalesce in a single word.
type Signal uint32

const (
	// Ping wakes the worker without changing state. Used to probe
	// liveness or to unblock a wait before issuing another signal.
	Ping Signal = 1 << iota
	// Pause suspends descriptor I/O until Resume or Terminate.
	Pause
	// Resume restarts a paused worker.
	Resume
	// Drop discards internally buffered, not-yet-processed data
	// without closing any channel.
	Drop
	// Terminate asks the worker to exit its loop and run the release
	// path.
	Terminate
)

// String returns the signal set in a log-friendly form.
func (s Signal) String() string {
	names := []struct {
		bit  Signal
		name string
	}{
		{Ping, "ping"},
		{Pause, "pause"},
		{Resume, "resume"},
		{Drop, "drop"},
		{Terminate, "terminate"},
	}
	out := ""
	for _, n := range names {
		if s&n.bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "none"
	}
	return out
}

// Has reports whether the set contains the given signal.
func (s Signal) Has(sig Signal) bool {
	return s&sig != 0
}

// Channel is a lock-free, coalescing signal channel associated 1:1
// with a worker. The zero value is not usable; use NewChannel.
type Channel struct {
	pending atomic.Uint32
	wake    chan struct{}
}

// NewChannel creates an empty signal channel.
func NewChannel() *Channel {
	return &Channel{wake: make(chan struct{}, 1)}
}

// Send adds sig to the pending set and wakes the worker. It never
// blocks: if a wake-up is already queued the new signal rides along
// with it.
func (c *Channel) Send(sig Signal) {
	c.pending.Or(uint32(sig))
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Wake returns the channel a worker selects on while waiting for
// data. A receive means at least one signal is pending; the worker
// must follow up with Collect.
func (c *Channel) Wake() <-chan struct{} {
	return c.wake
}

// Collect atomically takes and clears the pending signal set. It
// returns zero when nothing is pending, which lets a worker call it
// opportunistically on its liveness tick.
func (c *Channel) Collect() Signal {
	return Signal(c.pending.Swap(0))
}
