// Package project is the top-level orchestration layer `cmd/pesde` calls
// into: it owns a project's manifest and lockfile, and wires the
// resolver, store, download, linker, patch, and signing packages into
// the install/update/add/patch/run operations of spec §6. It is the
// direct analogue of the teacher's combined
// packagemanager.Manager + LocalManager.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/config"
	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/signing"
	"github.com/pesde-pm/pesde/internal/source"
	"github.com/pesde-pm/pesde/internal/store"
)

// Project is a single project directory (one pesde.json, one lockfile,
// one dependency directory tree) bound to the engine's shared,
// process-wide collaborators (store, config).
type Project struct {
	Root     string
	Manifest *manifest.Manifest
	Config   *config.Config

	store         *store.Store
	drivers       *source.Drivers
	workspace     *source.WorkspaceDriver
	manifestCache *manifest.Cache
	keys          *signing.KeyStore
}

// Open loads root's manifest and wires every collaborator needed to
// operate on it: the shared content store, the source drivers (registry/
// git/path), and — if the manifest declares workspace members — the
// workspace driver.
func Open(root string, cfg *config.Config) (*Project, error) {
	m, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		return nil, err
	}

	storeDir, err := cfg.StoreDir()
	if err != nil {
		return nil, err
	}

	st, err := store.New(storeDir)
	if err != nil {
		return nil, err
	}

	cache := manifest.NewCache()

	var workspace *source.WorkspaceDriver
	if len(m.Workspace.Members) > 0 {
		workspace, err = source.NewWorkspaceDriver(cache, root, m.Workspace.Members)
		if err != nil {
			return nil, fmt.Errorf("index workspace members: %w", err)
		}
	}

	drivers := source.New(storeDir, cfg, cache, root)

	keysDir := filepath.Join(storeDir, "keys")

	keys, err := signing.NewKeyStore(keysDir)
	if err != nil {
		return nil, err
	}

	return &Project{
		Root:          root,
		Manifest:      m,
		Config:        cfg,
		store:         st,
		drivers:       drivers,
		workspace:     workspace,
		manifestCache: cache,
		keys:          keys,
	}, nil
}

// Init writes a fresh pesde.json for a new project at root, refusing to
// overwrite an existing one (spec's `init` contract point).
func Init(root string, name string, target manifest.Target) error {
	path := filepath.Join(root, manifest.FileName)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	m := &manifest.Manifest{
		Name:    name,
		Version: "0.1.0",
		Target:  target,
	}

	return m.Save(path)
}

func (p *Project) lockfilePath() string {
	return filepath.Join(p.Root, lockfile.FileName)
}

// LockfilePath exposes the project's lockfile location for callers (the
// CLI's `outdated`/`list` commands) that need to load it directly rather
// than through an operation that also resolves or fetches.
func (p *Project) LockfilePath() string { return p.lockfilePath() }

func (p *Project) manifestPath() string {
	return filepath.Join(p.Root, manifest.FileName)
}

// saveManifest persists the in-memory manifest back to pesde.json.
func (p *Project) saveManifest() error {
	return p.Manifest.Save(p.manifestPath())
}

// KeyStore exposes the project's signing key store, for `publish -y` to
// share one on-disk location with everything else this engine caches.
func (p *Project) KeyStore() *signing.KeyStore { return p.keys }
