package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/dorsal-lab/vmbundle/internal/collector"
)

// Format selects the framing of the JSON document.
type Format int

const (
	// FormatStrict emits one valid JSON document: the bundle array wrapped
	// in an object, no trailing commas, payloads as "0x..." strings.
	FormatStrict Format = iota

	// FormatCompat reproduces the historical output byte-for-byte: the
	// bundle array is not wrapped in an object, every element carries a
	// trailing comma, and payloads are bare hex digits. The result is not
	// valid JSON; it exists for downstream tooling that already parses this
	// shape.
	FormatCompat
)

// ParseFormat maps a config/flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "strict":
		return FormatStrict, nil
	case "compat":
		return FormatCompat, nil
	default:
		return FormatStrict, fmt.Errorf("unknown output format %q (strict|compat)", s)
	}
}

// JSON writes the bundle document to a file, one element per completed
// bundle. The file is created (or truncated) on Open.
type JSON struct {
	path   string
	format Format

	w     io.WriteCloser
	count int
}

// NewJSON creates a JSON sink writing to path.
func NewJSON(path string, format Format) *JSON {
	return &JSON{path: path, format: format}
}

// NewJSONWriter creates a JSON sink over an arbitrary writer. Used by tests
// and the harness to capture the document in memory.
func NewJSONWriter(w io.Writer, format Format) *JSON {
	if wc, ok := w.(io.WriteCloser); ok {
		return &JSON{w: wc, format: format}
	}
	return &JSON{w: nopCloser{w}, format: format}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Open creates the output file and writes the document opening.
func (j *JSON) Open() error {
	if j.w == nil {
		f, err := os.Create(j.path)
		if err != nil {
			return fmt.Errorf("create %s: %w", j.path, err)
		}
		j.w = f
	}

	var err error
	switch j.format {
	case FormatCompat:
		_, err = io.WriteString(j.w, "\"bundle\": [\n")
	default:
		_, err = io.WriteString(j.w, "{\n  \"bundle\": [")
	}
	if err != nil {
		return fmt.Errorf("write document header: %w", err)
	}
	return nil
}

// WriteBundle appends one bundle element.
func (j *JSON) WriteBundle(b collector.Bundle) error {
	var err error
	switch j.format {
	case FormatCompat:
		err = j.writeCompat(b)
	default:
		err = j.writeStrict(b)
	}
	if err != nil {
		return fmt.Errorf("write bundle %d: %w", b.Seq, err)
	}
	j.count++
	return nil
}

// Count returns the number of bundles written so far.
func (j *JSON) Count() int {
	return j.count
}

// Close writes the document closing and closes the underlying file.
func (j *JSON) Close() error {
	var err error
	switch j.format {
	case FormatCompat:
		_, err = io.WriteString(j.w, "]\n")
	default:
		if j.count > 0 {
			_, err = io.WriteString(j.w, "\n  ]\n}\n")
		} else {
			_, err = io.WriteString(j.w, "]\n}\n")
		}
	}
	if err != nil {
		j.w.Close()
		return fmt.Errorf("write document footer: %w", err)
	}
	return j.w.Close()
}

func (j *JSON) writeStrict(b collector.Bundle) error {
	sep := ",\n"
	if j.count == 0 {
		sep = "\n"
	}
	_, err := fmt.Fprintf(j.w,
		"%s    {\n"+
			"      \"packet\": [\n"+
			"        { \"id\": \"PIP\", \"payload\": \"0x%x\", \"nr\": %d },\n"+
			"        { \"id\": \"VMCS\", \"payload\": \"0x%x\" },\n"+
			"        { \"id\": \"TSC\", \"payload\": \"0x%x\" }\n"+
			"      ]\n"+
			"    }",
		sep, b.Root.Addr, b.Root.NR, b.Base.Addr, b.TSC.Value)
	return err
}

// writeCompat mirrors the historical writer exactly, trailing commas and tab
// indentation included.
func (j *JSON) writeCompat(b collector.Bundle) error {
	_, err := fmt.Fprintf(j.w,
		"\t{\n"+
			"\t\t\"packet\": [\n"+
			"\t\t\t{\n\t\t\t\t\"id\": \"PIP\",\n\t\t\t\t\"payload\": %x,\n\t\t\t\t\"nr\": %d\n\t\t\t},\n"+
			"\t\t\t{\n\t\t\t\t\"id\": \"VMCS\",\n\t\t\t\t\"payload\": %x\n\t\t\t},\n"+
			"\t\t\t{\n\t\t\t\t\"id\": \"TSC\",\n\t\t\t\t\"payload\": %x\n\t\t\t}\n"+
			"\t\t]\n\t},\n",
		b.Root.Addr, b.Root.NR, b.Base.Addr, b.TSC.Value)
	return err
}
