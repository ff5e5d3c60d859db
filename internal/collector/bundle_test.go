package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dorsal-lab/vmbundle/internal/packet"
)

func TestBundleID_Deterministic(t *testing.T) {
	b := Bundle{
		Seq:    1,
		Offset: 0x100,
		Root:   packet.ContextRoot{Addr: 0x1000, NR: 1},
		Base:   packet.VMStateBase{Addr: 0x2000},
		TSC:    packet.Timestamp{Value: 42},
	}

	assert.Equal(t, b.ID(), b.ID())
	assert.Len(t, b.ID(), 64, "hex sha-256")

	// Seq is emission bookkeeping, not content: two decodes of the same
	// trace may number bundles identically or not, the ID must not care.
	b2 := b
	b2.Seq = 99
	assert.Equal(t, b.ID(), b2.ID())
}

func TestBundleID_DistinguishesContent(t *testing.T) {
	base := Bundle{
		Offset: 0x100,
		Root:   packet.ContextRoot{Addr: 0x1000, NR: 1},
		Base:   packet.VMStateBase{Addr: 0x2000},
		TSC:    packet.Timestamp{Value: 42},
	}

	mutations := map[string]Bundle{}

	b := base
	b.Root.Addr = 0x1001
	mutations["root"] = b

	b = base
	b.Root.NR = 0
	mutations["nr"] = b

	b = base
	b.Base.Addr = 0x2001
	mutations["base"] = b

	b = base
	b.TSC.Value = 43
	mutations["tsc"] = b

	b = base
	b.Offset = 0x101
	mutations["offset"] = b

	for name, mutated := range mutations {
		assert.NotEqual(t, base.ID(), mutated.ID(), "changing %s must change the ID", name)
	}
}

func TestClock_Monotonic(t *testing.T) {
	var c Clock
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
