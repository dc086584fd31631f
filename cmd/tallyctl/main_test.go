package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	name, args := parseArgs(nil)
	assert.Equal(t, "help", name)
	assert.Empty(t, args)

	name, args = parseArgs([]string{"seed", "-visits", "50"})
	assert.Equal(t, "seed", name)
	assert.Equal(t, []string{"-visits", "50"}, args)
}

func TestFindCommand(t *testing.T) {
	for _, name := range []string{"create-user", "change-password", "issue-token", "migrate", "seed", "verify-site", "exclude-ip", "status", "help"} {
		cmd := findCommand(name)
		require.NotNil(t, cmd, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Description())
	}
	assert.Nil(t, findCommand("create-admin-user"))
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	assert.Contains(t, buf.String(), "Usage: tallyctl")
	for _, cmd := range commands {
		assert.Contains(t, buf.String(), cmd.Name())
	}
}
