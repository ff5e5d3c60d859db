package trace

import "github.com/dorsal-lab/vmbundle/internal/packet"

// PacketSource produces typed packets with byte offsets from a trace stream.
//
// The driver is the only consumer. The contract mirrors a packet-level
// hardware trace decoder:
//
//   - SyncTo positions the cursor at an absolute offset.
//   - SyncForward advances the cursor to the next valid synchronization
//     point at or after the current offset, returning *SyncError when no
//     such point remains.
//   - NextPacket decodes one packet at the cursor. It returns ErrEndOfStream
//     on clean exhaustion and *DecodeError on a malformed packet; after a
//     decode error the caller is expected to SyncForward before pulling
//     again.
//   - CurrentOffset reports the cursor for diagnostics.
type PacketSource interface {
	SyncTo(offset uint64) error
	SyncForward() error
	NextPacket() (packet.Packet, error)
	CurrentOffset() uint64
}
