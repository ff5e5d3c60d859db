package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dorsal-lab/vmbundle/internal/collector"
)

// Session describes one decode run.
type Session struct {
	ID         string
	TracePath  string
	RangeBegin uint64
	RangeEnd   uint64
	StartedAt  time.Time
}

// CreateSession inserts a session record.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, trace_path, range_begin, range_end, started_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.TracePath,
		int64(sess.RangeBegin),
		int64(sess.RangeEnd),
		sess.StartedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

// WriteBundle inserts one bundle row under the given session.
//
// The row is keyed on the bundle's content-addressed ID with ON CONFLICT DO
// NOTHING: writing the same bundle twice (for example re-decoding the same
// trace range) is silently idempotent.
func (s *Store) WriteBundle(ctx context.Context, sessionID string, b collector.Bundle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bundles
		(id, session_id, seq, stream_offset, root, root_nr, vmcs_base, tsc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		b.ID(),
		sessionID,
		b.Seq,
		int64(b.Offset),
		fmt.Sprintf("%#x", b.Root.Addr),
		b.Root.NR,
		fmt.Sprintf("%#x", b.Base.Addr),
		fmt.Sprintf("%#x", b.TSC.Value),
	)
	if err != nil {
		return fmt.Errorf("write bundle %d: %w", b.Seq, err)
	}
	return nil
}
