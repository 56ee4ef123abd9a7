package cli

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "sweep", "recompute", "replay", "migrate", "seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestRecomputeArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing level", []string{"recompute"}, "accepts 1 arg"},
		{"all with level", []string{"recompute", "--all", "7"}, "unknown command"},
		{"bad level", []string{"recompute", "abc"}, "invalid level id"},
		{"zero level", []string{"recompute", "0"}, "invalid level id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCommand()
			root.SetArgs(append(tt.args, "--config", t.TempDir()))
			root.SetOut(&bytes.Buffer{})
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMissingConfig(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"sweep", "--config", t.TempDir()})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestSeedMissingFixture(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"seed", "does-not-exist.yaml", "--config", t.TempDir()})
	err := root.Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
