//go:build windows

package linker

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// symlinksSupported probes parentDir for symlink creation rights.
// Windows requires either Developer Mode (unprivileged symlinks,
// introduced in Windows 10) or SeCreateSymbolicLinkPrivilege; rather
// than inspect either setting directly, attempt a real symlink the same
// way the unix build does, falling back to hardlinks/copies on the
// common "not privileged" failure.
func symlinksSupported(parentDir string) bool {
	probe := filepath.Join(parentDir, ".symlink-probe")
	target := filepath.Join(parentDir, ".symlink-probe-target")

	defer os.Remove(probe)
	defer os.Remove(target)

	err := windows.CreateSymbolicLink(
		windows.StringToUTF16Ptr(probe),
		windows.StringToUTF16Ptr(target),
		windows.SYMBOLIC_LINK_FLAG_ALLOW_UNPRIVILEGED_CREATE,
	)

	return err == nil
}
