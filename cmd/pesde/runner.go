package main

import (
	"context"
	"os"
	"os/exec"
)

// shellRunner is the concrete project.Runner this binary wires in: it
// shells out to the `lune` binary, the same "drive an external
// toolchain rather than reimplement it" pattern the teacher's
// orizon-bootstrap tool uses for heavyweight external steps. Sandboxing
// or executing arbitrary user code beyond this single documented launch
// path is explicitly out of scope (spec.md Non-goals).
type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, dir string, entry string, args []string) error {
	cmdArgs := append([]string{entry}, args...)

	cmd := exec.CommandContext(ctx, "lune", cmdArgs...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
