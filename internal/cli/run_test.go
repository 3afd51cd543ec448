package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/showclock/internal/store"
	"github.com/roach88/showclock/internal/timecode"
	"github.com/roach88/showclock/internal/timeline"
)

const testConfigYAML = `
session:
  max_frames: 90000
  looping: false
  standard: pal
broadcaster:
  nice: 0
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "showclock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o644))
	return path
}

func TestRun_PrintsTimecodeAndStoresSession(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "show.db")
	out := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run",
		"--config", writeConfig(t),
		"--db", dbPath,
		"--session", "main",
		"--name", "Main show",
		"--duration", "300ms",
		"--format", "json",
	})
	require.NoError(t, cmd.Execute())

	var records []timecodeRecord
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var rec timecodeRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec), sc.Text())
		records = append(records, rec)
	}
	require.NotEmpty(t, records)

	first := records[0]
	require.NotNil(t, first.Playing)
	assert.True(t, *first.Playing)

	var lastFrame int64
	for _, rec := range records {
		if rec.Event == "" {
			assert.GreaterOrEqual(t, rec.Frame, lastFrame, "frames never go backwards")
			lastFrame = rec.Frame
			tc, err := timecode.Parse(rec.Timecode, timecode.PAL25)
			require.NoError(t, err)
			assert.Equal(t, rec.Frame, timecode.TimecodeToFrameCount(tc, timecode.PAL25))
		}
	}
	assert.Greater(t, lastFrame, int64(0))

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.GetSession(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "Main show", sess.Name)

	doc, err := st.LoadSettings(context.Background(), "main")
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"timecodeStandard": 4`)
}

func TestRun_Paused(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--config", writeConfig(t), "--duration", "100ms", "--paused"})

	require.NoError(t, cmd.Execute())
	assert.NotContains(t, out.String(), "playing")
	assert.False(t, strings.Contains(out.String(), "00:00:00:01"))
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  speed: -1\n"), 0o644))

	_, err := execute(t, "run", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--config", writeConfig(t)})

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, cmd.ExecuteContext(ctx))
}

func TestPrintEvents_ReportsTransportState(t *testing.T) {
	tl, err := timeline.New(timeline.WithMaxFrames(100), timeline.WithNice(0))
	require.NoError(t, err)
	t.Cleanup(tl.Close)

	events := make(chan timeline.Event, 4)
	events <- timeline.Event{Kind: timeline.PlayingStateChanged, Playing: true, State: timeline.Playing}
	events <- timeline.Event{Kind: timeline.PlayingStateChanged, State: timeline.Paused}
	events <- timeline.Event{Kind: timeline.PlayingStateChanged, State: timeline.Stopped}
	events <- timeline.Event{Kind: timeline.Finished}
	close(events)

	out := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out, ErrWriter: out}
	printEvents(f, tl, events, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, strings.Join([]string{
		"00:00:00:00 playing",
		"00:00:00:00 paused",
		"00:00:00:00 stopped",
		"00:00:00:00 finished",
	}, "\n")+"\n", out.String())
}

func TestPrintEvents_JSONCarriesState(t *testing.T) {
	tl, err := timeline.New(timeline.WithMaxFrames(100), timeline.WithNice(0))
	require.NoError(t, err)
	t.Cleanup(tl.Close)

	events := make(chan timeline.Event, 1)
	events <- timeline.Event{Kind: timeline.PlayingStateChanged, State: timeline.Stopped}
	close(events)

	out := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: out}
	printEvents(f, tl, events, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.JSONEq(t, `{"frame":0,"timecode":"00:00:00:00","playing":false,"state":"stopped","event":"playing_state_changed"}`, out.String())
}
