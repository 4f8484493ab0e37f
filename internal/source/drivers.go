package source

import (
	"fmt"
	"sync"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// Drivers is the resolver's single entry point for obtaining the right
// Driver for a SourceRef, lazily constructing and caching one
// RegistryDriver per distinct index URL.
type Drivers struct {
	cacheDir string
	auth     RegistryAuth

	git  *GitDriver
	path *PathDriver

	mu        sync.Mutex
	registries map[string]*RegistryDriver
}

// New builds a Drivers set rooted at cacheDir (normally the content
// store's root), with auth used to resolve per-index bearer tokens.
func New(cacheDir string, auth RegistryAuth, manifestCache *manifest.Cache, projectRoot string) *Drivers {
	return &Drivers{
		cacheDir:   cacheDir,
		auth:       auth,
		git:        NewGitDriver(cacheDir),
		path:       NewPathDriver(manifestCache, projectRoot),
		registries: map[string]*RegistryDriver{},
	}
}

// Git exposes the shared git driver directly, since the resolver needs
// its RefResolver.ResolveRef method before a PackageId can be formed.
func (d *Drivers) Git() *GitDriver { return d.git }

// Path exposes the shared path driver, addressed by relative path rather
// than by SourceRef (see PathDriver's doc comment).
func (d *Drivers) Path() *PathDriver { return d.path }

// Registry returns (creating if necessary) the driver for indexURL.
func (d *Drivers) Registry(indexURL string) *RegistryDriver {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rd, ok := d.registries[indexURL]; ok {
		return rd
	}

	rd := NewRegistryDriver(indexURL, d.cacheDir, d.auth)
	d.registries[indexURL] = rd

	return rd
}

// For dispatches a SourceRef to its Driver. Workspace refs are served by
// whichever WorkspaceDriver the caller constructed for the current
// project (passed in explicitly, since membership is project-scoped,
// unlike the other three kinds which are process-global).
func (d *Drivers) For(ref pkgid.SourceRef, workspace *WorkspaceDriver) (Driver, error) {
	switch ref.Kind {
	case pkgid.SourceRegistry:
		return d.Registry(ref.IndexURL), nil
	case pkgid.SourceGit:
		return d.git, nil
	case pkgid.SourceWorkspace:
		if workspace == nil {
			return nil, fmt.Errorf("source ref %s requires a workspace driver but none is configured", ref)
		}

		return workspace, nil
	case pkgid.SourcePath:
		return d.path, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", ref.Kind)
	}
}
