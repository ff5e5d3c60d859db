package collector

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/dorsal-lab/vmbundle/internal/packet"
)

// Bundle is one fully-correlated virtualization context-switch record:
// the context-root change that opened the sequence, the VM-state-region
// base that followed the padding run, and the timestamp that closed it.
//
// Bundles are immutable once emitted and have no identity beyond emission
// order (Seq) and content (ID).
type Bundle struct {
	// Seq is the logical completion sequence within the session, starting
	// at 1.
	Seq int64

	// Offset is the stream byte offset of the opening context-root-change
	// packet. Diagnostics and provenance only.
	Offset uint64

	Root packet.ContextRoot
	Base packet.VMStateBase
	TSC  packet.Timestamp
}

// ID returns the content-addressed identity of the bundle: a hex SHA-256
// over the payload fields and the opening offset.
//
// The store keys bundles on this ID with ON CONFLICT DO NOTHING, which makes
// re-decoding the same trace into the same database idempotent.
func (b Bundle) ID() string {
	var buf [36]byte
	binary.BigEndian.PutUint64(buf[0:], b.Root.Addr)
	binary.BigEndian.PutUint32(buf[8:], b.Root.NR)
	binary.BigEndian.PutUint64(buf[12:], b.Base.Addr)
	binary.BigEndian.PutUint64(buf[20:], b.TSC.Value)
	binary.BigEndian.PutUint64(buf[28:], b.Offset)
	sum := sha256.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}
