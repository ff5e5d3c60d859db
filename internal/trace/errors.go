package trace

import (
	"errors"
	"fmt"
)

// ErrEndOfStream signals normal exhaustion of the packet stream.
// It is not a failure; the driver terminates its loop successfully on it.
var ErrEndOfStream = errors.New("end of stream")

// Range errors reported by the buffer loader. Parse failures and
// empty/negative ranges are ErrInvalidRange; ranges that name bytes beyond
// the file are ErrRangeOutOfBounds.
var (
	ErrInvalidRange     = errors.New("invalid range")
	ErrRangeOutOfBounds = errors.New("range out of bounds")
)

// DecodeError reports a malformed packet at a specific stream offset.
//
// Decode errors are never fatal by themselves: the driver logs them and asks
// the source to resynchronize forward.
type DecodeError struct {
	Offset uint64
	Cause  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset 0x%x: %s", e.Offset, e.Cause)
}

// SyncError reports that the source could not locate a valid
// resynchronization point at or after the given offset.
type SyncError struct {
	Offset uint64
	Cause  string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync error at offset 0x%x: %s", e.Offset, e.Cause)
}
