// Package patch implements the stage/diff/apply workflow of spec §4.6:
// a package's store contents are copied into a scratch git repository so
// a user can edit them freely, the edits are captured as a textual
// patch recorded in the manifest, and that patch is reapplied with
// strict context matching every time the package is later materialized.
package patch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

const initialCommitMessage = "unmodified upstream snapshot"

// Handle is a staged package ready for editing, returned by Stage.
type Handle struct {
	Dir string
	ID  pkgid.ID
}

// Stage copies storeContentsDir into a fresh temporary directory and
// commits it as-is in a throwaway git repository, giving Commit a known
// baseline to diff the user's edits against.
func Stage(ctx context.Context, id pkgid.ID, storeContentsDir string) (*Handle, error) {
	dir, err := os.MkdirTemp("", "pesde-patch-")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	if err := copyDir(storeContentsDir, dir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("copy package contents to staging directory: %w", err)
	}

	for _, args := range [][]string{
		{"init", "--quiet"},
		{"config", "user.email", "pesde@localhost"},
		{"config", "user.name", "pesde"},
		{"add", "-A"},
		{"commit", "--quiet", "--allow-empty", "-m", initialCommitMessage},
	} {
		cmd, err := gitCommand(ctx, dir, args...)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}

		if _, err := run(cmd); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("stage %s: %w", id, err)
		}
	}

	return &Handle{Dir: dir, ID: id}, nil
}

// Commit diffs h's working tree against its initial commit, writes the
// result to <projectRoot>/patches/<name>-<version>-<target>.patch, and
// returns the path relative to projectRoot along with the manifest
// entry recording the relation (spec §4.6's patch_commit). An unedited
// staging directory produces no patch.
func Commit(ctx context.Context, h *Handle, projectRoot string) (string, manifest.PatchEntry, error) {
	cmd, err := gitCommand(ctx, h.Dir, "diff", "--no-color", "HEAD")
	if err != nil {
		return "", manifest.PatchEntry{}, err
	}

	diff, err := run(cmd)
	if err != nil {
		return "", manifest.PatchEntry{}, fmt.Errorf("diff staged package %s: %w", h.ID, err)
	}

	if strings.TrimSpace(diff) == "" {
		return "", manifest.PatchEntry{}, fmt.Errorf("no changes to commit for %s", h.ID)
	}

	patchesDir := filepath.Join(projectRoot, "patches")
	if err := os.MkdirAll(patchesDir, 0o755); err != nil {
		return "", manifest.PatchEntry{}, err
	}

	fileName := fmt.Sprintf("%s-%s-%s.patch", sanitizeName(h.ID.Name), h.ID.Version.String(), h.ID.Target)
	relFile := filepath.Join("patches", fileName)

	if err := os.WriteFile(filepath.Join(projectRoot, relFile), []byte(diff), 0o644); err != nil {
		return "", manifest.PatchEntry{}, fmt.Errorf("write patch file: %w", err)
	}

	entry := manifest.PatchEntry{
		Name:    string(h.ID.Name),
		Version: h.ID.Version.String(),
		Target:  string(h.ID.Target),
		File:    filepath.ToSlash(relFile),
	}

	return relFile, entry, nil
}

// Apply applies patchFile (an absolute or cwd-relative path) against
// targetDir with git's default strict context matching — any hunk that
// doesn't match verbatim fails the whole apply rather than fuzzing in,
// per spec §4.6: "Patch application failures are fatal."
func Apply(ctx context.Context, patchFile, targetDir string) error {
	abs, err := filepath.Abs(patchFile)
	if err != nil {
		return err
	}

	cmd, err := gitCommand(ctx, targetDir, "apply", "--whitespace=nowarn", abs)
	if err != nil {
		return err
	}

	if _, err := run(cmd); err != nil {
		return engineerr.PatchApplyFailed(filepath.Base(patchFile), err)
	}

	return nil
}

func sanitizeName(name pkgid.Name) string {
	return strings.ReplaceAll(string(name), "/", "-")
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		dest := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}

		if d.Type()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(target, dest)
		}

		return copyFile(path, dest, d)
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
