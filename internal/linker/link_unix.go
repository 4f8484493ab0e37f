//go:build !windows

package linker

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// symlinksSupported probes parentDir (which must already exist) for
// symlink creation rights the cheap way real tooling does it: attempt
// one and judge by the result, rather than trusting a static OS
// assumption — bind mounts, some network filesystems, and restricted
// containers can all disable symlinks on an otherwise-POSIX host.
func symlinksSupported(parentDir string) bool {
	probe := filepath.Join(parentDir, ".symlink-probe")
	target := filepath.Join(parentDir, ".symlink-probe-target")

	defer unix.Unlink(probe)
	defer unix.Unlink(target)

	if err := unix.Symlink(target, probe); err != nil {
		return false
	}

	return true
}
