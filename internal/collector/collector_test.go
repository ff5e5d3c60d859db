package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsal-lab/vmbundle/internal/packet"
)

// feed runs a packet slice through the collector and returns every emitted
// bundle.
func feed(c *Collector, pkts []packet.Packet) []*Bundle {
	var bundles []*Bundle
	for _, p := range pkts {
		if b := c.OnPacket(p); b != nil {
			bundles = append(bundles, b)
		}
	}
	return bundles
}

func validSequence(off, root uint64, nr uint32, base, tsc uint64) []packet.Packet {
	pkts := []packet.Packet{packet.ContextRootChange(off, root, nr)}
	for i := 0; i < 8; i++ {
		pkts = append(pkts, packet.Padding(off+1+uint64(i)))
	}
	pkts = append(pkts, packet.VMStateRegionBase(off+9, base))
	pkts = append(pkts, packet.TimestampValue(off+10, tsc))
	return pkts
}

func TestCollector_SingleBundle(t *testing.T) {
	c := New()
	bundles := feed(c, validSequence(0x100, 0x1000, 1, 0x2000, 42))

	require.Len(t, bundles, 1)
	b := bundles[0]
	assert.Equal(t, uint64(0x1000), b.Root.Addr)
	assert.Equal(t, uint32(1), b.Root.NR)
	assert.Equal(t, uint64(0x2000), b.Base.Addr)
	assert.Equal(t, uint64(42), b.TSC.Value)
	assert.Equal(t, uint64(0x100), b.Offset, "bundle carries the offset of the opening root change")
	assert.Equal(t, int64(1), b.Seq)
	assert.Equal(t, Idle, c.Phase(), "collector returns to idle after emission")
}

func TestCollector_SevenPadsDoNotAdvance(t *testing.T) {
	c := New()

	c.OnPacket(packet.ContextRootChange(0, 0x1000, 1))
	for i := 0; i < 7; i++ {
		require.Nil(t, c.OnPacket(packet.Padding(uint64(1+i))))
	}
	assert.Equal(t, HaveRoot, c.Phase(), "seven pads must not complete the run")

	// VMCS before the 8th pad is absorbed; the sequence is stuck at
	// HaveRoot and the terminating TSC emits nothing.
	require.Nil(t, c.OnPacket(packet.VMStateRegionBase(8, 0x2000)))
	assert.Equal(t, HaveRoot, c.Phase())
	require.Nil(t, c.OnPacket(packet.TimestampValue(9, 42)))
	assert.Equal(t, HaveRoot, c.Phase())
}

func TestCollector_ExtraPadsBeforeRunDoNotBlock(t *testing.T) {
	c := New()

	// Pads while idle are ignored entirely.
	for i := 0; i < 5; i++ {
		require.Nil(t, c.OnPacket(packet.Padding(uint64(i))))
	}
	assert.Equal(t, Idle, c.Phase())
	assert.Equal(t, 0, c.PadCount())

	bundles := feed(c, validSequence(10, 0x1000, 0, 0x2000, 7))
	require.Len(t, bundles, 1)
}

// TestCollector_SecondRootAbsorbed documents the absorb-not-restart
// behavior: a context-root change arriving while a sequence is open is
// ignored, it does not restart the sequence, and the open sequence keeps
// the first root. Two back-to-back root changes therefore produce exactly
// one bundle, carrying the first payload; the second event's correlation is
// dropped.
func TestCollector_SecondRootAbsorbed(t *testing.T) {
	c := New()

	pkts := []packet.Packet{
		packet.ContextRootChange(0, 0x1000, 1),
		packet.ContextRootChange(1, 0xdead, 0),
	}
	for i := 0; i < 8; i++ {
		pkts = append(pkts, packet.Padding(uint64(2+i)))
	}
	pkts = append(pkts, packet.VMStateRegionBase(10, 0x2000))
	pkts = append(pkts, packet.TimestampValue(11, 42))

	bundles := feed(c, pkts)
	require.Len(t, bundles, 1)
	assert.Equal(t, uint64(0x1000), bundles[0].Root.Addr, "bundle uses the first root change")
	assert.Equal(t, uint32(1), bundles[0].Root.NR)
}

func TestCollector_RootAbsorbedInEveryOpenPhase(t *testing.T) {
	phases := []struct {
		name  string
		setup []packet.Packet
		want  Phase
	}{
		{"have-root", []packet.Packet{packet.ContextRootChange(0, 0x1000, 1)}, HaveRoot},
		{"have-root-padded", append([]packet.Packet{packet.ContextRootChange(0, 0x1000, 1)}, pads(8)...), HaveRootPadded},
		{"have-root-and-base", append(append([]packet.Packet{packet.ContextRootChange(0, 0x1000, 1)}, pads(8)...), packet.VMStateRegionBase(9, 0x2000)), HaveRootAndBase},
	}

	for _, tc := range phases {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			feed(c, tc.setup)
			require.Equal(t, tc.want, c.Phase())

			padBefore := c.PadCount()
			b := c.OnPacket(packet.ContextRootChange(99, 0xdead, 0))
			assert.Nil(t, b, "absorbed root change emits nothing")
			assert.Equal(t, tc.want, c.Phase(), "absorbed root change leaves the phase unchanged")
			assert.Equal(t, padBefore, c.PadCount())
		})
	}
}

func TestCollector_PadCountInvariant(t *testing.T) {
	c := New()
	c.OnPacket(packet.ContextRootChange(0, 0x1000, 1))

	for i := 0; i < 7; i++ {
		c.OnPacket(packet.Padding(uint64(1 + i)))
		assert.LessOrEqual(t, c.PadCount(), 7, "pad count never exceeds 7 while waiting")
	}
	c.OnPacket(packet.Padding(8))
	assert.Equal(t, 0, c.PadCount(), "pad count resets exactly upon reaching 8")
	assert.Equal(t, HaveRootPadded, c.Phase())

	// Further pads in the padded phase change nothing.
	c.OnPacket(packet.Padding(9))
	assert.Equal(t, 0, c.PadCount())
	assert.Equal(t, HaveRootPadded, c.Phase())
}

func TestCollector_OtherPacketsIgnoredEverywhere(t *testing.T) {
	c := New()
	pkts := validSequence(0, 0x1000, 1, 0x2000, 42)

	// Interleave an ignorable packet after every step of the sequence.
	var bundles []*Bundle
	for i, p := range pkts {
		if b := c.OnPacket(p); b != nil {
			bundles = append(bundles, b)
		}
		require.Nil(t, c.OnPacket(packet.Other(uint64(100+i))))
	}

	require.Len(t, bundles, 1)
	assert.Equal(t, uint64(0x1000), bundles[0].Root.Addr)
}

func TestCollector_BackToBackSequences(t *testing.T) {
	c := New()

	pkts := validSequence(0, 0x1000, 1, 0x2000, 42)
	pkts = append(pkts, validSequence(20, 0x3000, 0, 0x4000, 43)...)
	bundles := feed(c, pkts)

	require.Len(t, bundles, 2)
	assert.Equal(t, int64(1), bundles[0].Seq)
	assert.Equal(t, int64(2), bundles[1].Seq)
	assert.Equal(t, uint64(0x3000), bundles[1].Root.Addr)
	assert.Equal(t, uint64(43), bundles[1].TSC.Value)
}

// The second sequence must re-earn its full padding run; emission resets
// everything, not just the root and base.
func TestCollector_SecondSequenceNeedsFullPadRun(t *testing.T) {
	c := New()
	feed(c, validSequence(0, 0x1000, 1, 0x2000, 42))
	require.Equal(t, Idle, c.Phase())

	pkts := []packet.Packet{packet.ContextRootChange(20, 0x3000, 0)}
	pkts = append(pkts, pads(7)...)
	pkts = append(pkts, packet.VMStateRegionBase(28, 0x4000))
	pkts = append(pkts, packet.TimestampValue(29, 43))

	bundles := feed(c, pkts)
	assert.Empty(t, bundles, "seven pads after an emission must not complete a bundle")
	assert.Equal(t, HaveRoot, c.Phase())
}

func TestCollector_TimestampWithoutBaseAbsorbed(t *testing.T) {
	c := New()
	c.OnPacket(packet.ContextRootChange(0, 0x1000, 1))

	require.Nil(t, c.OnPacket(packet.TimestampValue(1, 42)))
	assert.Equal(t, HaveRoot, c.Phase())

	require.Nil(t, New().OnPacket(packet.TimestampValue(0, 42)), "timestamp while idle emits nothing")
}

func TestCollector_VMCSWhileIdleAbsorbed(t *testing.T) {
	c := New()
	require.Nil(t, c.OnPacket(packet.VMStateRegionBase(0, 0x2000)))
	assert.Equal(t, Idle, c.Phase())
}

func pads(n int) []packet.Packet {
	pkts := make([]packet.Packet, n)
	for i := range pkts {
		pkts[i] = packet.Padding(uint64(i))
	}
	return pkts
}
