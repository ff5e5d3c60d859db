package sink

import (
	"context"

	"github.com/dorsal-lab/vmbundle/internal/collector"
	"github.com/dorsal-lab/vmbundle/internal/store"
)

// Store forwards bundles to a SQLite bundle store under one session.
// The store itself is owned by the caller; Close here does not close it.
type Store struct {
	ctx       context.Context
	store     *store.Store
	sessionID string
}

// NewStore creates a store sink writing under the given session ID.
func NewStore(ctx context.Context, st *store.Store, sessionID string) *Store {
	return &Store{ctx: ctx, store: st, sessionID: sessionID}
}

func (s *Store) Open() error { return nil }

func (s *Store) WriteBundle(b collector.Bundle) error {
	return s.store.WriteBundle(s.ctx, s.sessionID, b)
}

func (s *Store) Close() error { return nil }
