// Package testutil provides scripted packet sources and packet builders for
// driver, collector, and harness tests.
package testutil

import (
	"github.com/dorsal-lab/vmbundle/internal/packet"
	"github.com/dorsal-lab/vmbundle/internal/trace"
)

// step is one scripted NextPacket outcome.
type step struct {
	pkt packet.Packet
	err error
}

// ScriptedSource is a trace.PacketSource replaying a fixed script.
//
// Decode errors injected into the script are consumed like real ones: the
// driver gets the error, calls SyncForward, and the script resumes with the
// next step. Sync behavior is scriptable to exercise the failure paths of
// the resynchronization protocol.
type ScriptedSource struct {
	steps  []step
	pos    int
	offset uint64

	failInitialSync  bool
	failNextSync     bool
	SyncForwardCalls int
}

// NewScriptedSource creates an empty scripted source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{}
}

// AddPackets appends packets to the script.
func (s *ScriptedSource) AddPackets(pkts ...packet.Packet) *ScriptedSource {
	for _, p := range pkts {
		s.steps = append(s.steps, step{pkt: p})
	}
	return s
}

// AddDecodeError injects a decode error at this point in the script.
func (s *ScriptedSource) AddDecodeError(offset uint64, cause string) *ScriptedSource {
	s.steps = append(s.steps, step{err: &trace.DecodeError{Offset: offset, Cause: cause}})
	return s
}

// FailInitialSync makes the first SyncForward fail, before any packet.
func (s *ScriptedSource) FailInitialSync() *ScriptedSource {
	s.failInitialSync = true
	return s
}

// FailNextSyncForward makes the next recovery SyncForward fail.
func (s *ScriptedSource) FailNextSyncForward() *ScriptedSource {
	s.failNextSync = true
	return s
}

// SyncTo implements trace.PacketSource.
func (s *ScriptedSource) SyncTo(offset uint64) error {
	s.offset = offset
	return nil
}

// SyncForward implements trace.PacketSource.
func (s *ScriptedSource) SyncForward() error {
	s.SyncForwardCalls++
	if s.SyncForwardCalls == 1 && s.failInitialSync {
		return &trace.SyncError{Offset: s.offset, Cause: "scripted initial sync failure"}
	}
	if s.SyncForwardCalls > 1 && s.failNextSync {
		s.failNextSync = false
		return &trace.SyncError{Offset: s.offset, Cause: "scripted sync failure"}
	}
	return nil
}

// NextPacket implements trace.PacketSource.
func (s *ScriptedSource) NextPacket() (packet.Packet, error) {
	if s.pos >= len(s.steps) {
		return packet.Packet{}, trace.ErrEndOfStream
	}
	st := s.steps[s.pos]
	s.pos++
	if st.err != nil {
		return packet.Packet{}, st.err
	}
	s.offset = st.pkt.Offset
	return st.pkt, nil
}

// CurrentOffset implements trace.PacketSource.
func (s *ScriptedSource) CurrentOffset() uint64 {
	return s.offset
}
