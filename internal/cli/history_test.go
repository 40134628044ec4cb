package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRequiresRegistry(t *testing.T) {
	_, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistoryEmpty(t *testing.T) {
	out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--db", filepath.Join(t.TempDir(), "nestc.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No artifacts recorded.")
}

func TestHistoryListsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nestc.db")

	_, err := execute(t, newRunCommand(runCommand("text", "run-ok")), scalePipeline, "--db", db)
	require.NoError(t, err)
	_, err = execute(t, newRunCommand(runCommand("text")), blurPipeline, "-g", "blur", "--db", db, "--fill", "src=2")
	require.NoError(t, err)

	out, err := execute(t, NewHistoryCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 scale artifact")
	assert.Contains(t, out, "(1 run(s), 0 failed)")
	assert.Contains(t, out, "#2 ok run-ok")
	assert.Contains(t, out, "#3 blur artifact")

	out, err = execute(t, NewHistoryCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)
	_, entries := decode[[]HistoryEntry](t, out)
	require.Len(t, entries, 2)
	assert.Equal(t, "scale", entries[0].Pipeline)
	assert.Equal(t, "blur", entries[1].Pipeline)
	require.Len(t, entries[1].Runs, 1)
	assert.Equal(t, "ok", entries[1].Runs[0].Status)
	assert.Equal(t, int64(4), entries[1].Runs[0].Seq)
}
