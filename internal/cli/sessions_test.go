package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/showclock/internal/store"
)

func seedSessions(t *testing.T, dbPath string, sessions ...store.Session) {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	for _, s := range sessions {
		require.NoError(t, st.PutSession(context.Background(), s))
	}
}

func TestSessionsList(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "show.db")
	seedSessions(t, dbPath,
		store.Session{ID: "a", Name: "Matinee", MaxFrames: 250},
		store.Session{ID: "b", Name: "Evening"},
	)

	out, err := execute(t, "sessions", "list", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []SessionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)

	byID := map[string]SessionInfo{}
	for _, s := range resp.Data {
		byID[s.ID] = s
	}
	assert.Equal(t, "Matinee", byID["a"].Name)
	assert.Equal(t, int64(250), byID["a"].MaxFrames)
	assert.Equal(t, "Evening", byID["b"].Name)

	text, err := execute(t, "sessions", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, text, "Matinee")
	assert.Contains(t, text, "max_frames=250")
}

func TestSessionsList_Empty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "show.db")

	out, err := execute(t, "sessions", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "no sessions\n", out)
}

func TestSessionsDelete(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "show.db")
	seedSessions(t, dbPath, store.Session{ID: "a"})

	out, err := execute(t, "sessions", "delete", "a", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted session a")

	_, err = execute(t, "sessions", "delete", "a", "--db", dbPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
