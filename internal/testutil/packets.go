package testutil

import "github.com/dorsal-lab/vmbundle/internal/packet"

// Pads returns n padding packets at consecutive offsets starting at offset.
func Pads(offset uint64, n int) []packet.Packet {
	pkts := make([]packet.Packet, n)
	for i := range pkts {
		pkts[i] = packet.Padding(offset + uint64(i))
	}
	return pkts
}

// Others returns n ignorable packets at consecutive offsets.
func Others(offset uint64, n int) []packet.Packet {
	pkts := make([]packet.Packet, n)
	for i := range pkts {
		pkts[i] = packet.Other(offset + uint64(i))
	}
	return pkts
}

// ValidSequence returns the minimal packet sequence completing one bundle:
// a context-root change, the 8-pad run, the VM-state base, and the
// terminating timestamp, at synthetic consecutive offsets starting at offset.
func ValidSequence(offset, root uint64, nr uint32, base, tsc uint64) []packet.Packet {
	pkts := []packet.Packet{packet.ContextRootChange(offset, root, nr)}
	pkts = append(pkts, Pads(offset+1, 8)...)
	pkts = append(pkts, packet.VMStateRegionBase(offset+9, base))
	pkts = append(pkts, packet.TimestampValue(offset+10, tsc))
	return pkts
}
