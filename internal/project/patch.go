package project

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/patch"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// loadLockfileOrEmpty loads the lockfile at path, or returns an empty,
// non-nil Lockfile if none has been written yet.
func loadLockfileOrEmpty(path string) (*lockfile.Lockfile, error) {
	lf, err := lockfile.Load(path)
	if err != nil {
		return nil, err
	}

	if lf == nil {
		lf = &lockfile.Lockfile{Root: map[string]string{}}
	}

	return lf, nil
}

// Patch stages alias's currently-locked package contents for editing,
// per spec §4.6: a scratch git checkout the caller is free to modify
// before calling PatchCommit.
func (p *Project) Patch(ctx context.Context, alias pkgid.Alias) (*patch.Handle, error) {
	id, err := p.lockedID(alias)
	if err != nil {
		return nil, err
	}

	return patch.Stage(ctx, id, p.contentsDirFor(id))
}

// LockedID resolves alias to the pkgid.ID currently recorded in the
// lockfile, exposed so a caller that only has a staging directory path
// on disk (e.g. resuming `patch-commit` in a later process) can
// reconstruct a patch.Handle without re-running Patch.
func (p *Project) LockedID(alias pkgid.Alias) (pkgid.ID, error) {
	return p.lockedID(alias)
}

// PatchCommit diffs h's staging directory against its recorded baseline,
// writes the resulting patch file under <project>/patches, and records
// it in the manifest so future installs reapply it (spec §4.6).
func (p *Project) PatchCommit(ctx context.Context, h *patch.Handle) (manifest.PatchEntry, error) {
	_, entry, err := patch.Commit(ctx, h, p.Root)
	if err != nil {
		return manifest.PatchEntry{}, err
	}

	replaced := false

	for i, existing := range p.Manifest.Patches {
		if existing.Name == entry.Name && existing.Version == entry.Version && existing.Target == entry.Target {
			p.Manifest.Patches[i] = entry
			replaced = true

			break
		}
	}

	if !replaced {
		p.Manifest.Patches = append(p.Manifest.Patches, entry)
	}

	if err := p.saveManifest(); err != nil {
		return manifest.PatchEntry{}, err
	}

	return entry, nil
}

// lockedID resolves alias to the pkgid.ID currently recorded in the
// lockfile, the identity Patch needs to locate store contents.
func (p *Project) lockedID(alias pkgid.Alias) (pkgid.ID, error) {
	lf, err := loadLockfileOrEmpty(p.lockfilePath())
	if err != nil {
		return pkgid.ID{}, err
	}

	key, ok := lf.Root[string(alias)]
	if !ok {
		return pkgid.ID{}, fmt.Errorf("patch %s: no locked entry, run install first", alias)
	}

	for _, e := range lf.Packages {
		if e.Key != key {
			continue
		}

		v, err := pkgid.ParseVersion(e.Version)
		if err != nil {
			return pkgid.ID{}, err
		}

		target, err := pkgid.ParseTargetKind(e.Target)
		if err != nil {
			return pkgid.ID{}, err
		}

		name, err := pkgid.ParseName(e.Name)
		if err != nil {
			return pkgid.ID{}, err
		}

		return pkgid.ID{Source: e.Source, Name: name, Version: v, Target: target}, nil
	}

	return pkgid.ID{}, fmt.Errorf("patch %s: locked entry %s not found", alias, key)
}

// contentsDirFor exposes the store's on-disk contents directory for id,
// used by Patch as the staging baseline for every id. The store holds
// contents only for tarball-backed ids (registry sources); for
// git/workspace/path ids this directory is not populated.
func (p *Project) contentsDirFor(id pkgid.ID) string {
	return p.store.ContentsDir(id)
}

// patchEntryFor finds the manifest's recorded patch for id, if any.
func (p *Project) patchEntryFor(id pkgid.ID) *manifest.PatchEntry {
	for i, e := range p.Manifest.Patches {
		if e.Name == string(id.Name) && e.Version == id.Version.String() && e.Target == string(id.Target) {
			return &p.Manifest.Patches[i]
		}
	}

	return nil
}

// patchedContentsDir applies id's recorded patch (if any) on top of a
// private copy of storeDir (the directory store.Ensure actually
// returned — a shared CAS entry for registry ids, or a driver-owned
// checkout for git/workspace/path ids) and returns that copy's
// directory, leaving storeDir itself untouched. Reused across installs:
// a patched copy is only rebuilt if absent.
func (p *Project) patchedContentsDir(ctx context.Context, id pkgid.ID, storeDir string) (string, error) {
	entry := p.patchEntryFor(id)
	if entry == nil {
		return storeDir, nil
	}

	cacheDir, err := p.Config.StoreDir()
	if err != nil {
		return "", err
	}

	dest := filepath.Join(cacheDir, "patched", sanitizeID(id))

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		return dest, nil
	}

	if err := copyDir(storeDir, dest); err != nil {
		return "", err
	}

	if err := patch.Apply(ctx, filepath.Join(p.Root, entry.File), dest); err != nil {
		os.RemoveAll(dest)
		return "", err
	}

	return dest, nil
}

func sanitizeID(id pkgid.ID) string {
	return fmt.Sprintf("%s-%s-%s", sanitizePathSegment(string(id.Name)), id.Version.String(), id.Target)
}

func sanitizePathSegment(s string) string {
	out := make([]rune, 0, len(s))

	for _, r := range s {
		if r == '/' || r == '\\' {
			out = append(out, '-')
			continue
		}

		out = append(out, r)
	}

	return string(out)
}

// copyDir recursively copies src into dest, used to give a patch
// application step its own private directory rather than mutating the
// shared content store.
func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dest, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(linkTarget, target)
		default:
			return copyRegularFile(path, target)
		}
	})
}

func copyRegularFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)

	return err
}
