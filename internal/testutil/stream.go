package testutil

import "encoding/binary"

// Raw byte builders for synthetic trace streams, used by decoder and
// end-to-end tests.

// PSB returns the 16-byte stream synchronization marker.
func PSB() []byte {
	return []byte{
		0x02, 0x82, 0x02, 0x82, 0x02, 0x82, 0x02, 0x82,
		0x02, 0x82, 0x02, 0x82, 0x02, 0x82, 0x02, 0x82,
	}
}

// PIPBytes encodes a context-root-change packet. root must be 32-byte
// aligned, as produced by real hardware.
func PIPBytes(root uint64, nr uint32) []byte {
	raw := ((root >> 5) << 1) | uint64(nr&1)
	return append([]byte{0x02, 0x43}, le(raw, 6)...)
}

// VMCSBytes encodes a VM-state-region-base packet. base must be page
// aligned.
func VMCSBytes(base uint64) []byte {
	return append([]byte{0x02, 0xc8}, le(base>>12, 5)...)
}

// TSCBytes encodes a timestamp packet.
func TSCBytes(value uint64) []byte {
	return append([]byte{0x19}, le(value, 7)...)
}

// PadBytes returns n padding packet bytes.
func PadBytes(n int) []byte {
	return make([]byte, n)
}

func le(v uint64, n int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:n]
}
