// Package collector implements the bundle correlation state machine.
//
// The collector consumes one typed packet at a time and recognizes the fixed
// subsequence that records a virtualization context switch:
//
//	PIP, PAD x8, VMCS, TSC
//
// separated by arbitrary unrelated packets. Each recognized sequence emits
// exactly one fully-formed Bundle; partial bundles are never observable
// outside the collector.
//
// The collector is deterministic and strictly single-threaded: one instance
// per decode session, all transitions in the caller's goroutine.
package collector

import "github.com/dorsal-lab/vmbundle/internal/packet"

// padRunLength is the run of padding packets the trace hardware emits
// between a context-root change and its VM-state-region packet. It is a
// property of the trace-generation convention, not tunable.
const padRunLength = 8

// Phase is the collector's position inside the recognition sequence.
type Phase int

const (
	// Idle: waiting for a context-root change to open a sequence.
	Idle Phase = iota

	// HaveRoot: root stored, counting the padding run.
	HaveRoot

	// HaveRootPadded: full padding run seen, waiting for the VM-state base.
	HaveRootPadded

	// HaveRootAndBase: root and base stored, waiting for the terminating
	// timestamp.
	HaveRootAndBase
)

// String returns the phase name for diagnostics.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case HaveRoot:
		return "have-root"
	case HaveRootPadded:
		return "have-root-padded"
	case HaveRootAndBase:
		return "have-root-and-base"
	default:
		return "unknown"
	}
}

// Collector holds the correlation state for one decode session.
//
// State is session-scoped by construction: create one Collector per session
// and discard it when the session ends. The zero value is ready to use.
//
// INVARIANTS:
//   - padCount never exceeds padRunLength-1 between calls; it resets to 0
//     exactly when the run completes and on emission.
//   - A Bundle is returned only on the Idle transition out of
//     HaveRootAndBase, fully formed.
type Collector struct {
	phase    Phase
	padCount int

	rootOffset uint64
	root       packet.ContextRoot
	base       packet.VMStateBase

	clock Clock
}

// New creates a collector in the Idle phase.
func New() *Collector {
	return &Collector{}
}

// Phase returns the current phase. Exposed for diagnostics and tests.
func (c *Collector) Phase() Phase {
	return c.phase
}

// PadCount returns the pending padding count. Exposed for tests.
func (c *Collector) PadCount() int {
	return c.padCount
}

// OnPacket advances the state machine by one packet and returns a completed
// Bundle, or nil.
//
// OnPacket never fails: unrecognized and out-of-order packets are silently
// absorbed. In particular a second context-root change arriving while a
// sequence is open does NOT restart the sequence - it is absorbed and the
// open sequence keeps the first root. O(1) per call.
func (c *Collector) OnPacket(p packet.Packet) *Bundle {
	switch p.Kind {
	case packet.KindContextRootChange:
		if c.phase == Idle {
			c.root = p.Root
			c.rootOffset = p.Offset
			c.phase = HaveRoot
		}
		return nil

	case packet.KindPadding:
		if c.phase == HaveRoot {
			c.padCount++
			if c.padCount == padRunLength {
				c.padCount = 0
				c.phase = HaveRootPadded
			}
		}
		return nil

	case packet.KindVMStateBase:
		if c.phase == HaveRootPadded {
			c.base = p.Base
			c.phase = HaveRootAndBase
		}
		return nil

	case packet.KindTimestamp:
		if c.phase == HaveRootAndBase {
			bundle := &Bundle{
				Seq:    c.clock.Next(),
				Offset: c.rootOffset,
				Root:   c.root,
				Base:   c.base,
				TSC:    p.TSC,
			}
			c.root = packet.ContextRoot{}
			c.base = packet.VMStateBase{}
			c.rootOffset = 0
			c.padCount = 0
			c.phase = Idle
			return bundle
		}
		return nil

	default:
		return nil
	}
}
