package patch

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// gitCommand builds a validated *exec.Cmd invoking the system git binary,
// the same narrow allow-one-command approach used elsewhere in this
// codebase's toolchain-shelling helpers: refuse to run anything but git,
// and reject arguments that look like shell metacharacters rather than
// plain git flags/paths, since every argument here ultimately traces back
// to a package name or a filesystem path under our control.
func gitCommand(ctx context.Context, dir string, args ...string) (*exec.Cmd, error) {
	for i, arg := range args {
		if err := validateArg(arg); err != nil {
			return nil, fmt.Errorf("invalid git argument %d %q: %w", i, arg, err)
		}
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	return cmd, nil
}

func validateArg(arg string) error {
	if len(arg) == 0 {
		return fmt.Errorf("empty argument")
	}

	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("null byte in argument")
	}

	for _, pattern := range []string{";", "&", "|", "`", "$(", "${", "\n"} {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("disallowed shell metacharacter %q", pattern)
		}
	}

	return nil
}

// run executes cmd, returning its combined stdout and a descriptive error
// (including captured stderr) on non-zero exit.
func run(cmd *exec.Cmd) (string, error) {
	var stdout, stderr strings.Builder

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", strings.Join(cmd.Args, " "), err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
