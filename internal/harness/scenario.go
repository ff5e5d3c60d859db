// Package harness runs yaml-defined packet scenarios through the real
// driver and collector and validates the emitted bundles.
//
// Scenarios are conformance tests for the correlation protocol: each one
// scripts a packet sequence (including injected decode errors) and states
// the bundles that must come out. The resulting strict JSON document can
// additionally be compared against a golden file.
package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dorsal-lab/vmbundle/internal/packet"
	"github.com/dorsal-lab/vmbundle/internal/testutil"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Packets is the scripted stream, in order.
	Packets []PacketStep `yaml:"packets"`

	// Expect states the bundles the stream must produce, in order.
	Expect Expectation `yaml:"expect"`
}

// PacketStep is one step of the scripted stream.
type PacketStep struct {
	// Kind is one of pip, pad, vmcs, tsc, other, decode-error.
	Kind string `yaml:"kind"`

	// Count repeats pad/other steps; defaults to 1.
	Count int `yaml:"count,omitempty"`

	// Offset fixes the packet's stream offset; steps without one get
	// consecutive synthetic offsets.
	Offset uint64 `yaml:"offset,omitempty"`

	Root  uint64 `yaml:"root,omitempty"`
	NR    uint32 `yaml:"nr,omitempty"`
	Base  uint64 `yaml:"base,omitempty"`
	Value uint64 `yaml:"value,omitempty"`

	// Cause annotates an injected decode error.
	Cause string `yaml:"cause,omitempty"`
}

// Expectation states the required outcome.
type Expectation struct {
	Bundles []ExpectedBundle `yaml:"bundles"`
}

// ExpectedBundle is one required bundle, by payload.
type ExpectedBundle struct {
	Root uint64 `yaml:"root"`
	NR   uint32 `yaml:"nr"`
	Base uint64 `yaml:"base"`
	TSC  uint64 `yaml:"tsc"`
}

// LoadScenario reads one scenario from a yaml file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	for i, st := range s.Packets {
		if err := validateStep(st); err != nil {
			return nil, fmt.Errorf("scenario %s: packet %d: %w", path, i, err)
		}
	}
	return &s, nil
}

func validateStep(st PacketStep) error {
	switch st.Kind {
	case "pip", "pad", "vmcs", "tsc", "other", "decode-error":
		return nil
	default:
		return fmt.Errorf("unknown packet kind %q", st.Kind)
	}
}

// buildSource compiles the scripted stream into a packet source.
func (s *Scenario) buildSource() *testutil.ScriptedSource {
	src := testutil.NewScriptedSource()
	next := uint64(0)

	offsetFor := func(st PacketStep) uint64 {
		if st.Offset != 0 {
			next = st.Offset
		}
		off := next
		next++
		return off
	}

	for _, st := range s.Packets {
		count := st.Count
		if count <= 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			off := offsetFor(st)
			switch st.Kind {
			case "pip":
				src.AddPackets(packet.ContextRootChange(off, st.Root, st.NR))
			case "pad":
				src.AddPackets(packet.Padding(off))
			case "vmcs":
				src.AddPackets(packet.VMStateRegionBase(off, st.Base))
			case "tsc":
				src.AddPackets(packet.TimestampValue(off, st.Value))
			case "other":
				src.AddPackets(packet.Other(off))
			case "decode-error":
				cause := st.Cause
				if cause == "" {
					cause = "scripted decode error"
				}
				src.AddDecodeError(off, cause)
			}
		}
	}
	return src
}
