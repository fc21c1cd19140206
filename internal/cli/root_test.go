package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("EPCORE_DB", "")
	t.Setenv("EPCORE_OPTIONS", "")
	t.Setenv("EPCORE_LOG_LEVEL", "")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"convert", "validate", "devices", "measure"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.DefValue)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "yaml", "devices")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
