package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// WorkspaceDriver reads workspace-member manifests directly from the root
// manifest's `workspace.members` paths. Spec §4.1: "always returns one
// version equal to the member's declared version; contents are the
// member's source tree, not copied but symlinked."
type WorkspaceDriver struct {
	cache *manifest.Cache
	// memberDir maps a member_name (as declared in DependencySpec or
	// derived from its own manifest's Name) to its absolute directory.
	memberDir map[string]string
}

// NewWorkspaceDriver indexes workspace members by name, resolving each
// member path relative to rootDir.
func NewWorkspaceDriver(cache *manifest.Cache, rootDir string, memberPaths []string) (*WorkspaceDriver, error) {
	d := &WorkspaceDriver{cache: cache, memberDir: map[string]string{}}

	for _, rel := range memberPaths {
		abs := filepath.Join(rootDir, rel)

		m, err := cache.Load(filepath.Join(abs, manifest.FileName))
		if err != nil {
			return nil, fmt.Errorf("load workspace member %s: %w", rel, err)
		}

		d.memberDir[m.Name] = abs
	}

	return d, nil
}

func (d *WorkspaceDriver) dirFor(name pkgid.Name) (string, *manifest.Manifest, error) {
	dir, ok := d.memberDir[string(name)]
	if !ok {
		return "", nil, engineerr.NotFound(fmt.Sprintf("workspace member %s", name))
	}

	m, err := d.cache.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return "", nil, err
	}

	return dir, m, nil
}

func (d *WorkspaceDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]VersionEntry, error) {
	_, m, err := d.dirFor(name)
	if err != nil {
		return nil, err
	}

	v, err := pkgid.ParseVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("workspace member %s: %w", name, err)
	}

	return []VersionEntry{{Version: v, Target: m.Target.Kind}}, nil
}

func (d *WorkspaceDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	_, m, err := d.dirFor(id.Name)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (d *WorkspaceDriver) FetchContents(ctx context.Context, id pkgid.ID) (Contents, string, error) {
	dir, _, err := d.dirFor(id.Name)
	if err != nil {
		return Contents{}, "", err
	}

	return Contents{LocalDir: dir}, "", nil
}
