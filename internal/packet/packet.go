// Package packet defines the typed trace packets consumed by the bundle
// collector.
//
// Packets are a tagged variant: every decoded packet carries a Kind plus the
// payload struct for that kind. Only the four kinds relevant to
// virtualization-context correlation are distinguished; everything else the
// decoder recognizes surfaces as KindOther and is cheaply ignorable
// downstream.
package packet

// Kind tags the packet variant.
type Kind int

const (
	// KindOther is any decoded packet the collector does not care about.
	KindOther Kind = iota

	// KindContextRootChange reports a change of the guest/host page-table
	// root ("PIP"), signaling a virtualization context switch.
	KindContextRootChange

	// KindPadding is a filler packet with no payload ("PAD").
	KindPadding

	// KindVMStateBase reports the physical base address of the
	// hardware-maintained VM control structure ("VMCS").
	KindVMStateBase

	// KindTimestamp carries a hardware timestamp counter value ("TSC").
	KindTimestamp
)

// String returns the wire mnemonic for the kind.
func (k Kind) String() string {
	switch k {
	case KindContextRootChange:
		return "PIP"
	case KindPadding:
		return "PAD"
	case KindVMStateBase:
		return "VMCS"
	case KindTimestamp:
		return "TSC"
	default:
		return "OTHER"
	}
}

// ContextRoot is the payload of a context-root-change packet.
type ContextRoot struct {
	// Addr is the new page-table root address.
	Addr uint64

	// NR is the non-root flag reported alongside the root change.
	NR uint32
}

// VMStateBase is the payload of a VM-state-region-base packet.
type VMStateBase struct {
	Addr uint64
}

// Timestamp is the payload of a timestamp packet.
type Timestamp struct {
	Value uint64
}

// Packet is one decoded trace packet.
//
// Offset is the byte offset in the trace stream at which the packet was
// found. It is used only for diagnostics and bundle provenance, never for
// correlation decisions.
type Packet struct {
	Kind   Kind
	Offset uint64

	// Payload fields; only the one matching Kind is meaningful.
	Root ContextRoot
	Base VMStateBase
	TSC  Timestamp
}

// ContextRootChange builds a PIP packet.
func ContextRootChange(offset, addr uint64, nr uint32) Packet {
	return Packet{Kind: KindContextRootChange, Offset: offset, Root: ContextRoot{Addr: addr, NR: nr}}
}

// Padding builds a PAD packet.
func Padding(offset uint64) Packet {
	return Packet{Kind: KindPadding, Offset: offset}
}

// VMStateRegionBase builds a VMCS packet.
func VMStateRegionBase(offset, addr uint64) Packet {
	return Packet{Kind: KindVMStateBase, Offset: offset, Base: VMStateBase{Addr: addr}}
}

// TimestampValue builds a TSC packet.
func TimestampValue(offset, value uint64) Packet {
	return Packet{Kind: KindTimestamp, Offset: offset, TSC: Timestamp{Value: value}}
}

// Other builds a packet of a kind the collector ignores.
func Other(offset uint64) Packet {
	return Packet{Kind: KindOther, Offset: offset}
}
