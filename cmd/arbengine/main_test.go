package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_TestModeCompletesCleanlyWithNoPools(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"arbengine", "--config", "/nonexistent-config.yaml", "--test"}
	assert.Equal(t, exitOK, run())
}

func TestRun_InvalidModeFlagReturnsConfigErrorExitCode(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"arbengine", "--config", "/nonexistent-config.yaml", "--mode", "BOGUS"}
	assert.Equal(t, exitConfigError, run())
}
