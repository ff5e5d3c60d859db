// Package sink persists completed bundles.
//
// Sinks are append-only and incremental: every bundle is flushed as soon as
// it completes, so a fatal error mid-run still leaves a usable document with
// all bundles completed up to that point.
package sink

import "github.com/dorsal-lab/vmbundle/internal/collector"

// Sink receives completed bundles in emission order.
//
// Open and Close bracket the collection; WriteBundle appends one element.
// Implementations are not required to be safe for concurrent use - the
// driver writes strictly sequentially.
type Sink interface {
	Open() error
	WriteBundle(b collector.Bundle) error
	Close() error
}

// Multi fans bundles out to several sinks. The first error from any sink
// stops the operation and is returned; Close is still attempted on every
// sink.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Open() error {
	for _, s := range m {
		if err := s.Open(); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) WriteBundle(b collector.Bundle) error {
	for _, s := range m {
		if err := s.WriteBundle(b); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Memory collects bundles in memory. Used by tests and the scenario harness.
type Memory struct {
	Bundles []collector.Bundle
}

func (m *Memory) Open() error { return nil }

func (m *Memory) WriteBundle(b collector.Bundle) error {
	m.Bundles = append(m.Bundles, b)
	return nil
}

func (m *Memory) Close() error { return nil }
