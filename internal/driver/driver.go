// Package driver runs the decode loop: it pulls packets from a PacketSource,
// feeds the bundle collector, forwards completed bundles to the sink, and
// drives the resynchronization protocol on decode errors.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dorsal-lab/vmbundle/internal/collector"
	"github.com/dorsal-lab/vmbundle/internal/sink"
	"github.com/dorsal-lab/vmbundle/internal/trace"
)

// Run decodes one session to completion.
//
// Protocol:
//  1. Position the source at offset 0 and sync forward. Failure here - no
//     valid sync point anywhere in the stream - fails the whole run.
//  2. Pull packets one at a time. Each packet is fully processed (collector
//     transition plus optional sink write) before the next is requested.
//  3. On a decode error, log a diagnostic with the offset and cause, then
//     sync forward from the current offset and resume. If that sync fails,
//     the run fails. There is no retry cap; recovery attempts are bounded
//     only by the remaining stream length.
//
// Collector state is deliberately NOT reset across a resynchronization: a
// corrupted span may fall between packets unrelated to an open sequence, and
// the sequence is allowed to complete after recovery.
//
// The sink must already be open; the caller brackets Open/Close so that a
// failed run still leaves the document properly framed around the bundles
// completed so far.
func Run(ctx context.Context, src trace.PacketSource, col *collector.Collector, out sink.Sink) error {
	if err := src.SyncTo(0); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	if err := src.SyncForward(); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pkt, err := src.NextPacket()
		if err != nil {
			if errors.Is(err, trace.ErrEndOfStream) {
				slog.Debug("end of stream", "offset", src.CurrentOffset())
				return nil
			}

			var decodeErr *trace.DecodeError
			if !errors.As(err, &decodeErr) {
				return fmt.Errorf("next packet: %w", err)
			}

			slog.Warn("decode error, resynchronizing",
				"offset", decodeErr.Offset,
				"cause", decodeErr.Cause,
			)
			if syncErr := src.SyncForward(); syncErr != nil {
				return fmt.Errorf("resynchronize after decode error: %w", syncErr)
			}
			continue
		}

		bundle := col.OnPacket(pkt)
		if bundle == nil {
			continue
		}

		slog.Debug("bundle completed",
			"seq", bundle.Seq,
			"offset", bundle.Offset,
			"root", fmt.Sprintf("%#x", bundle.Root.Addr),
			"vmcs_base", fmt.Sprintf("%#x", bundle.Base.Addr),
			"tsc", fmt.Sprintf("%#x", bundle.TSC.Value),
		)
		if err := out.WriteBundle(*bundle); err != nil {
			return fmt.Errorf("write bundle %d: %w", bundle.Seq, err)
		}
	}
}
