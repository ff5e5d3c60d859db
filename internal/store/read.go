package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BundleRecord is one stored bundle, with hex columns parsed back to values.
type BundleRecord struct {
	ID        string
	SessionID string
	Seq       int64
	Offset    uint64
	Root      uint64
	RootNR    uint32
	Base      uint64
	TSC       uint64
}

// BundleFilter narrows a bundle query. Zero fields do not filter.
type BundleFilter struct {
	// SessionID restricts to one decode session.
	SessionID string

	// Root restricts to bundles whose context root equals this address.
	// HasRoot distinguishes "no filter" from root 0.
	Root    uint64
	HasRoot bool

	// Limit caps the number of rows; 0 means no cap.
	Limit int
}

// ReadBundles returns bundles matching the filter, ordered by session and
// completion sequence.
func (s *Store) ReadBundles(ctx context.Context, f BundleFilter) ([]BundleRecord, error) {
	query, args := buildBundleQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read bundles: %w", err)
	}
	defer rows.Close()

	var records []BundleRecord
	for rows.Next() {
		var rec BundleRecord
		var offset int64
		var rootHex, baseHex, tscHex string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Seq, &offset, &rootHex, &rec.RootNR, &baseHex, &tscHex); err != nil {
			return nil, fmt.Errorf("scan bundle row: %w", err)
		}
		rec.Offset = uint64(offset)
		if rec.Root, err = parseHexColumn("root", rootHex); err != nil {
			return nil, err
		}
		if rec.Base, err = parseHexColumn("vmcs_base", baseHex); err != nil {
			return nil, err
		}
		if rec.TSC, err = parseHexColumn("tsc", tscHex); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read bundles: %w", err)
	}
	return records, nil
}

// CountBundles returns the number of bundles matching the filter.
func (s *Store) CountBundles(ctx context.Context, f BundleFilter) (int, error) {
	where, args := buildBundleWhere(f)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bundles"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bundles: %w", err)
	}
	return count, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_path, range_begin, range_end, started_at
		FROM sessions ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess       Session
			begin, end int64
			startedAt  string
		)
		if err := rows.Scan(&sess.ID, &sess.TracePath, &begin, &end, &startedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.RangeBegin = uint64(begin)
		sess.RangeEnd = uint64(end)
		if sess.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parse session timestamp %q: %w", startedAt, err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// buildBundleQuery compiles a filter into a SELECT. Filters map to WHERE
// clauses with bound parameters; results are ordered deterministically.
func buildBundleQuery(f BundleFilter) (string, []any) {
	where, args := buildBundleWhere(f)

	var sb strings.Builder
	sb.WriteString("SELECT id, session_id, seq, stream_offset, root, root_nr, vmcs_base, tsc FROM bundles")
	sb.WriteString(where)
	sb.WriteString(" ORDER BY session_id, seq")
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}
	return sb.String(), args
}

func buildBundleWhere(f BundleFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.HasRoot {
		clauses = append(clauses, "root = ?")
		args = append(args, fmt.Sprintf("%#x", f.Root))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func parseHexColumn(column, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s column %q: %w", column, value, err)
	}
	return v, nil
}
