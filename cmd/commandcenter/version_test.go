package main

import (
	"bytes"
	"testing"

	"github.com/pysugar/command-center/internal/version"
	"github.com/stretchr/testify/assert"
)

func TestVersionCmd_Executes(t *testing.T) {
	original := version.Version
	version.Version = "v1.2.3"
	defer func() { version.Version = original }()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "commandcenter v1.2.3")
}

func TestAccountsCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range accountsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "remove", "connect"} {
		assert.True(t, names[want], "missing accounts %s", want)
	}
}
