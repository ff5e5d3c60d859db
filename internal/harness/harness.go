package harness

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dorsal-lab/vmbundle/internal/collector"
	"github.com/dorsal-lab/vmbundle/internal/driver"
	"github.com/dorsal-lab/vmbundle/internal/sink"
)

// Result is the outcome of one scenario execution.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool

	// Errors lists expectation violations. Empty when Pass is true.
	Errors []string

	// Bundles are the bundles emitted, in completion order.
	Bundles []collector.Bundle

	// Document is the strict JSON document the run produced, for golden
	// comparison.
	Document []byte
}

// AddError records a violation and fails the result.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario: the scripted stream is pulled through the real
// driver into a fresh collector, bundles are captured in memory and written
// to a strict JSON document, and the expectations are checked.
func Run(s *Scenario) (*Result, error) {
	src := s.buildSource()
	mem := &sink.Memory{}

	var doc bytes.Buffer
	jsonSink := sink.NewJSONWriter(&doc, sink.FormatStrict)

	out := sink.Multi(mem, jsonSink)
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("scenario %s: open sink: %w", s.Name, err)
	}
	runErr := driver.Run(context.Background(), src, collector.New(), out)
	if closeErr := out.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, runErr)
	}

	result := &Result{Pass: true, Bundles: mem.Bundles, Document: doc.Bytes()}
	checkExpectations(s, result)
	return result, nil
}

func checkExpectations(s *Scenario, r *Result) {
	want := s.Expect.Bundles
	if len(r.Bundles) != len(want) {
		r.AddError("expected %d bundles, got %d", len(want), len(r.Bundles))
		return
	}
	for i, exp := range want {
		got := r.Bundles[i]
		if got.Root.Addr != exp.Root {
			r.AddError("bundle %d: root %#x, want %#x", i, got.Root.Addr, exp.Root)
		}
		if got.Root.NR != exp.NR {
			r.AddError("bundle %d: nr %d, want %d", i, got.Root.NR, exp.NR)
		}
		if got.Base.Addr != exp.Base {
			r.AddError("bundle %d: vmcs base %#x, want %#x", i, got.Base.Addr, exp.Base)
		}
		if got.TSC.Value != exp.TSC {
			r.AddError("bundle %d: tsc %#x, want %#x", i, got.TSC.Value, exp.TSC)
		}
	}
}
