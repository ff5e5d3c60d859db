package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorsal-lab/vmbundle/internal/collector"
	"github.com/dorsal-lab/vmbundle/internal/packet"
	"github.com/dorsal-lab/vmbundle/internal/store"
)

// seedStore creates a store with one session and two bundles and returns
// the database path and the session ID.
func seedStore(t *testing.T) (string, string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "bundles.db")

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sess := store.Session{
		ID:        store.NewSessionID(),
		TracePath: "trace.pt",
		RangeEnd:  4096,
		StartedAt: time.Now(),
	}
	require.NoError(t, st.CreateSession(ctx, sess))

	bundles := []collector.Bundle{
		{
			Seq:    1,
			Offset: 16,
			Root:   packet.ContextRoot{Addr: 0x1a4000, NR: 1},
			Base:   packet.VMStateBase{Addr: 0x5000},
			TSC:    packet.Timestamp{Value: 0x77},
		},
		{
			Seq:    2,
			Offset: 64,
			Root:   packet.ContextRoot{Addr: 0x2b8000},
			Base:   packet.VMStateBase{Addr: 0x6000},
			TSC:    packet.Timestamp{Value: 0x99},
		},
	}
	for _, b := range bundles {
		require.NoError(t, st.WriteBundle(ctx, sess.ID, b))
	}
	return db, sess.ID
}

func TestQuery_TextTable(t *testing.T) {
	db, _ := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SEQ")
	assert.Contains(t, stdout, "0x1a4000")
	assert.Contains(t, stdout, "0x2b8000")
	assert.Contains(t, stdout, "2 bundles")
}

func TestQuery_JSON(t *testing.T) {
	db, sessID := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--format", "json")
	require.NoError(t, err)

	var rows []bundleRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, sessID, rows[0].Session)
	assert.Equal(t, int64(1), rows[0].Seq)
	assert.Equal(t, "0x1a4000", rows[0].Root)
	assert.Equal(t, uint32(1), rows[0].RootNR)
	assert.Equal(t, "0x5000", rows[0].Base)
	assert.Equal(t, "0x77", rows[0].TSC)
}

func TestQuery_RootFilter(t *testing.T) {
	db, _ := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--root", "0x2b8000")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0x2b8000")
	assert.NotContains(t, stdout, "0x1a4000")
	assert.Contains(t, stdout, "1 bundles")
}

func TestQuery_RootFilterNoMatch(t *testing.T) {
	db, _ := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--root", "0xdead000")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 bundles")
}

func TestQuery_SessionFilter(t *testing.T) {
	db, sessID := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--session", sessID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 bundles")

	stdout, err = executeCommand(t, "query", "--db", db, "--session", "no-such-session")
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 bundles")
}

func TestQuery_Limit(t *testing.T) {
	db, _ := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 bundles")
}

func TestQuery_Sessions(t *testing.T) {
	db, sessID := seedStore(t)

	stdout, err := executeCommand(t, "query", "--db", db, "--sessions")
	require.NoError(t, err)
	assert.Contains(t, stdout, sessID)
	assert.Contains(t, stdout, "trace.pt")
	assert.Contains(t, stdout, "1 sessions")
}

func TestQuery_BadRoot(t *testing.T) {
	db, _ := seedStore(t)

	_, err := executeCommand(t, "query", "--db", db, "--root", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestQuery_MissingDBFlag(t *testing.T) {
	_, err := executeCommand(t, "query")
	require.Error(t, err)
}
