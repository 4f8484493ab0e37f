package linker

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const linkMarkerFile = ".link-method"

// linkPackageDir makes srcDir's contents appear at destDir, preferring a
// symlink, falling back to a hard-linked tree, then a full copy — spec
// §4.5: "If the host filesystem does not support symlinks, fall back to
// hard links then to copies, recording the choice in the lockfile to
// keep reproducibility declared." Re-running with the same (srcDir,
// destDir) pair is a no-op (spec §4.5's idempotency rule).
func linkPackageDir(srcDir, destDir string) (LinkMethod, error) {
	if method, ok := existingLinkMethod(destDir, srcDir); ok {
		return method, nil
	}

	if err := os.RemoveAll(destDir); err != nil {
		return "", err
	}

	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}

	if symlinksSupported(parent) {
		if err := os.Symlink(srcDir, destDir); err == nil {
			return LinkSymlink, nil
		}
	}

	if err := hardlinkTree(srcDir, destDir); err == nil {
		if err := writeLinkMarker(destDir, LinkHardlink); err != nil {
			return "", err
		}

		return LinkHardlink, nil
	}

	if err := copyTree(srcDir, destDir); err != nil {
		return "", err
	}

	if err := writeLinkMarker(destDir, LinkCopy); err != nil {
		return "", err
	}

	return LinkCopy, nil
}

// existingLinkMethod reports whether destDir is already correctly
// linked to srcDir, short-circuiting the idempotent re-run case without
// touching disk beyond the stat/read needed to check.
func existingLinkMethod(destDir, srcDir string) (LinkMethod, bool) {
	info, err := os.Lstat(destDir)
	if err != nil {
		return "", false
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(destDir)
		if err != nil || target != srcDir {
			return "", false
		}

		return LinkSymlink, true
	}

	if !info.IsDir() {
		return "", false
	}

	data, err := os.ReadFile(filepath.Join(destDir, linkMarkerFile))
	if err != nil {
		return "", false
	}

	return LinkMethod(strings.TrimSpace(string(data))), true
}

func writeLinkMarker(destDir string, method LinkMethod) error {
	return os.WriteFile(filepath.Join(destDir, linkMarkerFile), []byte(method), 0o644)
}

func hardlinkTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		dest := filepath.Join(destDir, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dest, 0o755)
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(linkTarget, dest)
		default:
			return os.Link(path, dest)
		}
	})
}

func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		dest := filepath.Join(destDir, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dest, 0o755)
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(linkTarget, dest)
		default:
			return copyFile(path, dest, d)
		}
	})
}

func copyFile(src, dest string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
