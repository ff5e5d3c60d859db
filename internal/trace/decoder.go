package trace

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dorsal-lab/vmbundle/internal/packet"
)

// Opcode bytes of the packet layer. Extended opcodes follow the 0x02 escape.
const (
	opcPad  = 0x00
	opcExt  = 0x02
	opcTSC  = 0x19
	opcMTC  = 0x59
	opcMode = 0x99
)

// Extended opcodes (second byte after opcExt).
const (
	extPSB    = 0x82
	extPSBEnd = 0x23
	extPIP    = 0x43
	extVMCS   = 0xc8
	extCBR    = 0x03
	extTNT64  = 0xa3
	extOVF    = 0xf3
	extStop   = 0x83
	extTMA    = 0x73
	extPWRE   = 0x22
	extPWRX   = 0xa2
	extMWait  = 0xc2
	extMNT    = 0xc3
	extExstop = 0x62 // bit 7 carries the IP flag
)

// psbPattern is the 16-byte stream synchronization marker. SyncForward scans
// for a full occurrence of it.
var psbPattern = []byte{
	0x02, 0x82, 0x02, 0x82, 0x02, 0x82, 0x02, 0x82,
	0x02, 0x82, 0x02, 0x82, 0x02, 0x82, 0x02, 0x82,
}

// Decoder is the in-repo PacketSource: a packet-layer decoder over a loaded
// trace buffer. It types the four packet kinds the collector correlates,
// skips over the rest by length, and reports anything it cannot frame as a
// decode error so the driver can resynchronize past it.
//
// It deliberately stops at the packet layer: no instruction-pointer
// reconstruction, no control flow, no CPU errata.
type Decoder struct {
	buf *Buffer
	pos uint64
}

// NewDecoder creates a decoder over the given buffer. The cursor starts at
// offset 0; callers sync before pulling packets.
func NewDecoder(buf *Buffer) *Decoder {
	return &Decoder{buf: buf}
}

// CurrentOffset returns the cursor position relative to the buffer start.
func (d *Decoder) CurrentOffset() uint64 {
	return d.pos
}

// SyncTo positions the cursor at an absolute buffer offset.
func (d *Decoder) SyncTo(offset uint64) error {
	if offset > d.buf.Size() {
		return &SyncError{Offset: offset, Cause: "offset beyond buffer"}
	}
	d.pos = offset
	return nil
}

// SyncForward advances the cursor to the next synchronization marker at or
// after the current offset.
func (d *Decoder) SyncForward() error {
	if d.pos >= d.buf.Size() {
		return &SyncError{Offset: d.pos, Cause: "no sync point before end of stream"}
	}
	idx := bytes.Index(d.buf.Bytes[d.pos:], psbPattern)
	if idx < 0 {
		return &SyncError{Offset: d.pos, Cause: "no sync point before end of stream"}
	}
	d.pos += uint64(idx)
	return nil
}

// NextPacket decodes one packet at the cursor and advances past it.
//
// A packet that would extend past the end of the buffer terminates the
// stream cleanly, matching decoder convention for truncated tails.
func (d *Decoder) NextPacket() (packet.Packet, error) {
	if d.pos >= d.buf.Size() {
		return packet.Packet{}, ErrEndOfStream
	}

	off := d.pos
	opc := d.buf.Bytes[d.pos]

	switch opc {
	case opcPad:
		d.pos++
		return packet.Padding(off), nil

	case opcTSC:
		payload, err := d.take(off, 8)
		if err != nil {
			return packet.Packet{}, err
		}
		return packet.TimestampValue(off, leN(payload[1:8])), nil

	case opcMTC:
		if _, err := d.take(off, 2); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case opcMode:
		if _, err := d.take(off, 2); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case opcExt:
		return d.nextExtended(off)
	}

	// TNT-8 packets are header-only with a clear low bit; PAD and the
	// extension escape were handled above.
	if opc&0x01 == 0 {
		d.pos++
		return packet.Other(off), nil
	}

	// TIP/FUP family: low five bits select the packet, the top three encode
	// the IP compression and with it the payload length.
	switch opc & 0x1f {
	case 0x0d, 0x01, 0x11, 0x1d: // TIP, TIP.PGD, TIP.PGE, FUP
		size, ok := ipPayloadSize(opc >> 5)
		if !ok {
			return packet.Packet{}, &DecodeError{Offset: off, Cause: fmt.Sprintf("reserved IP compression in opcode 0x%02x", opc)}
		}
		if _, err := d.take(off, 1+size); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil
	}

	return packet.Packet{}, &DecodeError{Offset: off, Cause: fmt.Sprintf("unknown opcode 0x%02x", opc)}
}

// nextExtended decodes a packet behind the 0x02 escape byte.
func (d *Decoder) nextExtended(off uint64) (packet.Packet, error) {
	if d.pos+1 >= d.buf.Size() {
		return packet.Packet{}, ErrEndOfStream
	}
	ext := d.buf.Bytes[d.pos+1]

	switch ext {
	case extPSB:
		payload, err := d.take(off, uint64(len(psbPattern)))
		if err != nil {
			return packet.Packet{}, err
		}
		if !bytes.Equal(payload, psbPattern) {
			return packet.Packet{}, &DecodeError{Offset: off, Cause: "malformed sync marker"}
		}
		return packet.Other(off), nil

	case extPIP:
		payload, err := d.take(off, 8)
		if err != nil {
			return packet.Packet{}, err
		}
		raw := leN(payload[2:8])
		return packet.ContextRootChange(off, (raw>>1)<<5, uint32(raw&1)), nil

	case extVMCS:
		payload, err := d.take(off, 7)
		if err != nil {
			return packet.Packet{}, err
		}
		return packet.VMStateRegionBase(off, leN(payload[2:7])<<12), nil

	case extPSBEnd, extOVF, extStop:
		if _, err := d.take(off, 2); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extCBR:
		if _, err := d.take(off, 4); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extTMA:
		if _, err := d.take(off, 7); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extTNT64:
		if _, err := d.take(off, 10); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extExstop, extExstop | 0x80:
		if _, err := d.take(off, 2); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extPWRE:
		if _, err := d.take(off, 4); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extPWRX:
		if _, err := d.take(off, 7); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extMWait:
		if _, err := d.take(off, 10); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil

	case extMNT:
		payload, err := d.take(off, 11)
		if err != nil {
			return packet.Packet{}, err
		}
		if payload[2] != 0x88 {
			return packet.Packet{}, &DecodeError{Offset: off, Cause: fmt.Sprintf("malformed maintenance packet 0x%02x", payload[2])}
		}
		return packet.Other(off), nil
	}

	// PTW: bits [4:0] select the packet, bit 5 the payload width.
	if ext&0x1f == 0x12 {
		size := uint64(4)
		if ext&0x20 != 0 {
			size = 8
		}
		if _, err := d.take(off, 2+size); err != nil {
			return packet.Packet{}, err
		}
		return packet.Other(off), nil
	}

	return packet.Packet{}, &DecodeError{Offset: off, Cause: fmt.Sprintf("unknown extended opcode 0x%02x", ext)}
}

// take consumes n bytes at the cursor and returns them. A packet truncated
// by the end of the buffer ends the stream.
func (d *Decoder) take(off, n uint64) ([]byte, error) {
	if d.pos+n > d.buf.Size() {
		return nil, ErrEndOfStream
	}
	payload := d.buf.Bytes[off : off+n]
	d.pos += n
	return payload, nil
}

// ipPayloadSize maps an IP compression value to the number of payload bytes
// that follow a TIP/FUP header. Values 5 and 7 are reserved.
func ipPayloadSize(ipc byte) (uint64, bool) {
	switch ipc {
	case 0:
		return 0, true
	case 1:
		return 2, true
	case 2:
		return 4, true
	case 3, 4:
		return 6, true
	case 6:
		return 8, true
	default:
		return 0, false
	}
}

// leN reads up to 8 little-endian bytes into a uint64.
func leN(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}
