package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"harvest", "runs", "dataset"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "cda-harvester", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestHarvestCommand_Flags(t *testing.T) {
	tests := []struct {
		name string
		def  string
	}{
		{"limit", "0"},
		{"no-browser", "false"},
		{"dry-run", "false"},
	}
	for _, tt := range tests {
		flag := harvestCmd.Flags().Lookup(tt.name)
		require.NotNil(t, flag, "harvest command should have --%s flag", tt.name)
		assert.Equal(t, tt.def, flag.DefValue)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q", name)
	}
}

func TestDatasetCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range datasetCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"stats", "show", "export"} {
		assert.True(t, names[name], "expected dataset subcommand %q", name)
	}
}
