package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// PathDriver reads a dev-only local path dependency directly from disk,
// the same as WorkspaceDriver but without membership registration (spec
// §4.1: "permitted only for dev dependencies in the root manifest").
type PathDriver struct {
	cache   *manifest.Cache
	rootDir string
}

// NewPathDriver resolves relative paths against rootDir (the consuming
// project's directory).
func NewPathDriver(cache *manifest.Cache, rootDir string) *PathDriver {
	return &PathDriver{cache: cache, rootDir: rootDir}
}

func (d *PathDriver) resolve(relPath string) (string, *manifest.Manifest, error) {
	abs := filepath.Join(d.rootDir, relPath)

	m, err := d.cache.Load(filepath.Join(abs, manifest.FileName))
	if err != nil {
		return "", nil, fmt.Errorf("load path dependency %s: %w", relPath, err)
	}

	return abs, m, nil
}

// ListVersions for a path dependency has no constraint space and no
// name-indexed listing: it always returns an error, and callers reach
// the referenced manifest by relative path through
// FetchManifest/FetchContents instead (path dependencies carry their
// path, not a package name, as the addressing key).
func (d *PathDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]VersionEntry, error) {
	return nil, fmt.Errorf("path driver has no name-indexed version listing; resolve by relative_path instead")
}

// FetchManifestAt is the path driver's actual entry point: callers
// address a path dependency by its relative_path, not a PackageName,
// since a dev-only path dependency has no registered name independent of
// the manifest it points at.
func (d *PathDriver) FetchManifestAt(ctx context.Context, relPath string) (*manifest.Manifest, error) {
	_, m, err := d.resolve(relPath)
	return m, err
}

func (d *PathDriver) FetchContentsAt(ctx context.Context, relPath string) (Contents, string, error) {
	abs, _, err := d.resolve(relPath)
	if err != nil {
		return Contents{}, "", err
	}

	return Contents{LocalDir: abs}, "", nil
}

// FetchManifest and FetchContents satisfy Driver for uniformity with the
// other source kinds, dispatching on id.Source.RelativePath.
func (d *PathDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	return d.FetchManifestAt(ctx, id.Source.RelativePath)
}

func (d *PathDriver) FetchContents(ctx context.Context, id pkgid.ID) (Contents, string, error) {
	return d.FetchContentsAt(ctx, id.Source.RelativePath)
}
