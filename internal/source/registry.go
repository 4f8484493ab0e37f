package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"golang.org/x/sync/singleflight"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// indexEntry is one line of a registry index file: newline-delimited JSON,
// one entry per published (name, version, target), per spec §4.1.
type indexEntry struct {
	Version          string                              `json:"version"`
	Target           string                              `json:"target"`
	TarballURL       string                              `json:"tarball_url"`
	Digest           string                              `json:"digest"`
	Dependencies     map[string]manifest.DependencySpec `json:"dependencies,omitempty"`
	PeerDependencies map[string]manifest.DependencySpec `json:"peer_dependencies,omitempty"`
	DevDependencies  map[string]manifest.DependencySpec `json:"dev_dependencies,omitempty"`
}

// RegistryDriver serves package metadata and contents from a git-backed
// index (cloned/updated locally) plus an HTTP object store for tarballs,
// per spec §4.1's Registry driver description.
type RegistryDriver struct {
	indexURL string
	cacheDir string
	auth     RegistryAuth
	client   *http.Client

	sf singleflight.Group

	mu      sync.RWMutex
	entries map[pkgid.Name][]indexEntry // populated lazily, one fetch per name
}

// NewRegistryDriver builds a driver for the index at indexURL, cloning or
// updating it under cacheDir/index on first use.
func NewRegistryDriver(indexURL, cacheDir string, auth RegistryAuth) *RegistryDriver {
	return &RegistryDriver{
		indexURL: indexURL,
		cacheDir: cacheDir,
		auth:     auth,
		client:   &http.Client{},
		entries:  map[pkgid.Name][]indexEntry{},
	}
}

func (d *RegistryDriver) indexRepoDir() string {
	return filepath.Join(d.cacheDir, "index")
}

// ensureIndex clones the index repository on first use and fetches
// updates thereafter, coalescing concurrent callers via singleflight the
// way the teacher's HTTPRegistry coalesces concurrent HTTP lookups.
func (d *RegistryDriver) ensureIndex(ctx context.Context) error {
	_, err, _ := d.sf.Do("ensure-index", func() (any, error) {
		dir := d.indexRepoDir()

		if _, statErr := os.Stat(filepath.Join(dir, ".git")); statErr == nil {
			repo, openErr := git.PlainOpen(dir)
			if openErr != nil {
				return nil, fmt.Errorf("open index clone: %w", openErr)
			}

			wt, wtErr := repo.Worktree()
			if wtErr != nil {
				return nil, wtErr
			}

			pullErr := wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
			if pullErr != nil && pullErr != git.NoErrAlreadyUpToDate {
				return nil, engineerr.NetworkTransient(pullErr, "pull registry index")
			}

			return nil, nil
		}

		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return nil, mkErr
		}

		_, cloneErr := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
			URL:   d.indexURL,
			Depth: 1,
		})
		if cloneErr != nil {
			return nil, engineerr.NetworkFatal(cloneErr, "clone registry index")
		}

		return nil, nil
	})

	return err
}

// entryPath mirrors spec §4.1's `scope/name/<file>` index layout.
func (d *RegistryDriver) entryPath(name pkgid.Name) string {
	parts := strings.SplitN(string(name), "/", 2)
	return filepath.Join(d.indexRepoDir(), parts[0], parts[1])
}

func (d *RegistryDriver) loadEntries(ctx context.Context, name pkgid.Name) ([]indexEntry, error) {
	d.mu.RLock()
	if cached, ok := d.entries[name]; ok {
		d.mu.RUnlock()
		return cached, nil
	}
	d.mu.RUnlock()

	v, err, _ := d.sf.Do("entries:"+string(name), func() (any, error) {
		if err := d.ensureIndex(ctx); err != nil {
			return nil, err
		}

		f, err := os.Open(d.entryPath(name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, engineerr.NotFound(string(name))
			}

			return nil, fmt.Errorf("open index entry for %s: %w", name, err)
		}
		defer f.Close()

		var out []indexEntry

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var e indexEntry
			if err := json.Unmarshal([]byte(line), &e); err != nil {
				return nil, engineerr.New(engineerr.CodeTarballMalformed,
					fmt.Sprintf("malformed index entry for %s: %v", name, err), nil)
			}

			out = append(out, e)
		}

		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan index entry for %s: %w", name, err)
		}

		sort.Slice(out, func(i, j int) bool {
			vi, errI := pkgid.ParseVersion(out[i].Version)
			vj, errJ := pkgid.ParseVersion(out[j].Version)
			if errI != nil || errJ != nil {
				return out[i].Version < out[j].Version
			}

			return vi.LessThan(vj)
		})

		d.mu.Lock()
		d.entries[name] = out
		d.mu.Unlock()

		return out, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]indexEntry), nil
}

func (d *RegistryDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]VersionEntry, error) {
	entries, err := d.loadEntries(ctx, name)
	if err != nil {
		return nil, err
	}

	out := make([]VersionEntry, 0, len(entries))

	for _, e := range entries {
		v, err := pkgid.ParseVersion(e.Version)
		if err != nil {
			continue
		}

		target, err := pkgid.ParseTargetKind(e.Target)
		if err != nil {
			continue
		}

		out = append(out, VersionEntry{Version: v, Target: target})
	}

	return out, nil
}

func (d *RegistryDriver) findEntry(ctx context.Context, id pkgid.ID) (*indexEntry, error) {
	entries, err := d.loadEntries(ctx, id.Name)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Version == id.Version.String() && entries[i].Target == string(id.Target) {
			return &entries[i], nil
		}
	}

	return nil, engineerr.NotFound(fmt.Sprintf("%s in index for %s", id, id.Name))
}

func (d *RegistryDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	entry, err := d.findEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	return &manifest.Manifest{
		Name:             id.Name.String(),
		Version:          id.Version.String(),
		Target:           manifest.Target{Kind: id.Target},
		Dependencies:     toAliasMap(entry.Dependencies),
		PeerDependencies: toAliasMap(entry.PeerDependencies),
		DevDependencies:  toAliasMap(entry.DevDependencies),
		Indices:          map[string]string{"default": d.indexURL},
	}, nil
}

func toAliasMap(in map[string]manifest.DependencySpec) map[pkgid.Alias]manifest.DependencySpec {
	if in == nil {
		return nil
	}

	out := make(map[pkgid.Alias]manifest.DependencySpec, len(in))
	for k, v := range in {
		out[pkgid.Alias(k)] = v
	}

	return out
}

func (d *RegistryDriver) FetchContents(ctx context.Context, id pkgid.ID) (Contents, string, error) {
	entry, err := d.findEntry(ctx, id)
	if err != nil {
		return Contents{}, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.TarballURL, nil)
	if err != nil {
		return Contents{}, "", fmt.Errorf("build tarball request: %w", err)
	}

	if tok := d.auth.TokenFor(d.indexURL); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Contents{}, "", engineerr.NetworkTransient(err, "fetch tarball")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return Contents{}, "", engineerr.AuthRequired(d.indexURL)
	}

	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return Contents{}, "", engineerr.AuthInvalid(d.indexURL)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return Contents{}, "", engineerr.NotFound(entry.TarballURL)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return Contents{}, "", engineerr.NetworkFatal(fmt.Errorf("status %d", resp.StatusCode), "fetch tarball")
	}

	return Contents{TarballReader: resp.Body}, entry.Digest, nil
}
