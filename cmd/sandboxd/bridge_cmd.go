package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/sandboxkit/corebundle/internal/bridge"
)

// newStdioBridge launches cmdline as a child process and wires an
// internal/bridge.Bridge over its stdin/stdout: a concrete stand-in
// for a parent frame's file-resolver channel when the engine runs as a
// demonstration host rather than embedded in a browser.
func newStdioBridge(cmdline string) (*bridge.Bridge, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, fmt.Errorf("sandboxd: empty --bridge-cmd")
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("sandboxd: starting bridge process: %w", err)
	}

	return bridge.New(stdout, stdin), nil
}
