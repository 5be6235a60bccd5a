package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediabatch/internal/config"
)

func testConfig() *config.Config {
	return config.DefaultConfig()
}

func TestRootCommand_Help(t *testing.T) {
	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "serve")
	assert.Contains(t, buf.String(), "run")
	assert.Contains(t, buf.String(), "list")
}

func TestRunCommand_RequiresURL(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "url")
}

func TestRunCommand_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("MEDIABATCH_STORAGE_ENDPOINT", "")
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--url", "https://media.example.com/list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCommandContext_LogLevelOverride(t *testing.T) {
	ctx := &commandContext{logLevel: "debug"}
	cfg, err := ctx.ensureConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	logger, err := ctx.ensureLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
