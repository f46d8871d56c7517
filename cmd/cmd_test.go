package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandMetadata(t *testing.T) {
	assert.Equal(t, "taskpilot", rootCmd.Use)
	assert.Equal(t, Version, rootCmd.Version)

	names := make([]string, 0)
	for _, sub := range rootCmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "run")
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := newRunCmd()

	task := runCmd.Flags().Lookup("task")
	require.NotNil(t, task)
	assert.Equal(t, "", task.DefValue)

	outdir := runCmd.Flags().Lookup("outdir")
	require.NotNil(t, outdir)
	assert.Equal(t, "./output", outdir.DefValue)

	for _, name := range []string{"cookies", "start-url", "login-wait", "headless"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag %s should exist", name)
	}
}

func TestRunCommandFlagParsing(t *testing.T) {
	runCmd := newRunCmd()
	require.NoError(t, runCmd.Flags().Parse([]string{
		"--task", "create a project",
		"--outdir", "/tmp/out",
		"--cookies", "cookies.json",
	}))

	task, err := runCmd.Flags().GetString("task")
	require.NoError(t, err)
	assert.Equal(t, "create a project", task)

	outdir, err := runCmd.Flags().GetString("outdir")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", outdir)
}
