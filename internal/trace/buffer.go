// Package trace owns the raw side of a decode session: loading a trace byte
// range from disk, the PacketSource contract the driver consumes, and the
// packet-layer decoder that implements it.
package trace

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Buffer is an owned byte range [Begin, Begin+len(Bytes)) loaded from a
// backing trace file. It is exclusively owned by one decode session; the
// source file is not retained open after loading.
type Buffer struct {
	Path  string
	Begin uint64
	Bytes []byte
}

// Size returns the number of loaded bytes.
func (b *Buffer) Size() uint64 {
	return uint64(len(b.Bytes))
}

// Load materializes a trace buffer from a file argument of the form
//
//	<path>[:<begin>[-<end>]]
//
// begin and end accept C-style numeric literals (decimal, 0x hex, 0 octal).
// With no range the whole file is loaded; with only begin, end defaults to
// the file size.
//
// Validation order, each a distinct failure: numeric parse failure is
// ErrInvalidRange; begin at or past the file size, or end past it, is
// ErrRangeOutOfBounds; an empty or negative range (end <= begin) is
// ErrInvalidRange.
func Load(arg string) (*Buffer, error) {
	path, rangeSpec, hasRange := strings.Cut(arg, ":")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("determine size of %s: %w", path, err)
	}
	size := uint64(info.Size())

	begin := uint64(0)
	end := size
	if hasRange {
		begin, end, err = parseRange(rangeSpec, size)
		if err != nil {
			return nil, err
		}
	}

	if begin >= size {
		return nil, fmt.Errorf("offset 0x%x outside of %s: %w", begin, path, ErrRangeOutOfBounds)
	}
	if end > size {
		return nil, fmt.Errorf("range 0x%x outside of %s: %w", end, path, ErrRangeOutOfBounds)
	}
	if end <= begin {
		return nil, fmt.Errorf("range 0x%x-0x%x of %s: %w", begin, end, path, ErrInvalidRange)
	}

	content := make([]byte, end-begin)
	if _, err := file.ReadAt(content, int64(begin)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return &Buffer{Path: path, Begin: begin, Bytes: content}, nil
}

// parseRange parses "<begin>" or "<begin>-<end>". end defaults to the file
// size when absent.
func parseRange(spec string, size uint64) (uint64, uint64, error) {
	beginStr, endStr, hasEnd := strings.Cut(spec, "-")

	begin, err := strconv.ParseUint(beginStr, 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range %q: %w", spec, ErrInvalidRange)
	}

	end := size
	if hasEnd {
		end, err = strconv.ParseUint(endStr, 0, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad range %q: %w", spec, ErrInvalidRange)
		}
	}

	return begin, end, nil
}
