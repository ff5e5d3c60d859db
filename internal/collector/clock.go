package collector

import "sync/atomic"

// Clock is a monotonic logical clock stamping bundles in completion order.
//
// Completion order is monotonic in stream offset, so Seq doubles as a stable
// ordering key in the store. Wall-clock time is never used for ordering.
//
// The zero value starts at 0. Safe for concurrent use, though the collector's
// single-threaded design means only one goroutine calls Next().
type Clock struct {
	seq atomic.Int64
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
