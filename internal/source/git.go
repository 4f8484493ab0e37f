package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/singleflight"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// GitDriver serves manifests and contents directly from raw git
// repositories, per spec §4.1's Git driver: rev_spec resolves to a
// commit, the commit's tree must contain a manifest at its root, and a
// missing declared version is replaced by a synthetic 0.0.0+<shortsha>.
type GitDriver struct {
	cacheDir string

	mu    sync.Mutex
	clone map[string]*git.Repository // repo URL -> local mirror clone

	sf singleflight.Group
}

// NewGitDriver builds a driver that mirrors repositories under
// cacheDir/git/<hash-of-url>.
func NewGitDriver(cacheDir string) *GitDriver {
	return &GitDriver{cacheDir: cacheDir, clone: map[string]*git.Repository{}}
}

func (d *GitDriver) mirrorDir(url string) string {
	return filepath.Join(d.cacheDir, "git", hashHex(url))
}

// ensureMirror clones url as a bare mirror on first use, fetching updates
// on subsequent calls, coalescing concurrent callers for the same URL.
func (d *GitDriver) ensureMirror(ctx context.Context, url string) (*git.Repository, error) {
	v, err, _ := d.sf.Do("mirror:"+url, func() (any, error) {
		d.mu.Lock()
		if repo, ok := d.clone[url]; ok {
			d.mu.Unlock()

			if fetchErr := repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Force: true}); fetchErr != nil && fetchErr != git.NoErrAlreadyUpToDate {
				return nil, engineerr.NetworkTransient(fetchErr, "fetch git dependency")
			}

			return repo, nil
		}
		d.mu.Unlock()

		dir := d.mirrorDir(url)

		if _, statErr := os.Stat(dir); statErr == nil {
			repo, openErr := git.PlainOpen(dir)
			if openErr != nil {
				return nil, fmt.Errorf("open git mirror %s: %w", dir, openErr)
			}

			d.mu.Lock()
			d.clone[url] = repo
			d.mu.Unlock()

			return repo, nil
		}

		if mkErr := os.MkdirAll(filepath.Dir(dir), 0o755); mkErr != nil {
			return nil, mkErr
		}

		repo, cloneErr := git.PlainCloneContext(ctx, dir, true, &git.CloneOptions{URL: url})
		if cloneErr != nil {
			return nil, engineerr.NetworkFatal(cloneErr, "clone git dependency")
		}

		d.mu.Lock()
		d.clone[url] = repo
		d.mu.Unlock()

		return repo, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*git.Repository), nil
}

// ResolveRef resolves a branch, tag, or commit-ish rev_spec to a full
// commit hash, implementing RefResolver.
func (d *GitDriver) ResolveRef(ctx context.Context, url, revSpec string) (string, error) {
	repo, err := d.ensureMirror(ctx, url)
	if err != nil {
		return "", err
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(revSpec))
	if err != nil {
		candidates := []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(revSpec),
			plumbing.NewTagReferenceName(revSpec),
		}

		for _, ref := range candidates {
			if r, refErr := repo.Reference(ref, true); refErr == nil {
				return r.Hash().String(), nil
			}
		}

		return "", engineerr.NotFound(fmt.Sprintf("git ref %q in %s", revSpec, url))
	}

	return hash.String(), nil
}

func (d *GitDriver) commitManifest(repo *git.Repository, commitHash string) (*manifest.Manifest, error) {
	commit, err := repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return nil, engineerr.NotFound(fmt.Sprintf("commit %s", commitHash))
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read commit tree: %w", err)
	}

	file, err := tree.File(manifest.FileName)
	if err != nil {
		return nil, engineerr.New(engineerr.CodeManifestInvalid,
			fmt.Sprintf("commit %s has no %s at its root", commitHash[:minInt(7, len(commitHash))], manifest.FileName), nil)
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s contents: %w", manifest.FileName, err)
	}

	return parseGitManifest([]byte(contents), commitHash)
}

// parseGitManifest parses a manifest read from a git commit tree,
// substituting a synthetic 0.0.0+<shortsha> version when the manifest
// declares none (spec §4.1: "the resolver treats such versions as exact
// pins not subject to semver unification").
func parseGitManifest(raw []byte, commitHash string) (*manifest.Manifest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, engineerr.ManifestParseError(err)
	}

	if v, ok := fields["version"]; !ok || string(v) == `""` {
		synthetic, err := json.Marshal(pkgid.SyntheticPin(shortSHA(commitHash)).String())
		if err != nil {
			return nil, err
		}

		fields["version"] = synthetic

		patched, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}

		raw = patched
	}

	return manifest.Parse(raw)
}

// ListVersions for the git driver has no meaning independent of a
// rev_spec (spec §4.1: the git driver resolves a single rev_spec to a
// single commit). Since the uniform Driver interface requires it,
// GitDriver's ListVersions returns an empty list — callers drive git
// dependencies through ResolveRef + FetchManifest instead.
func (d *GitDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]VersionEntry, error) {
	return nil, nil
}

// FetchManifest requires id.Source.GitRevSpec to already be a resolved
// commit hash (the resolver calls ResolveRef before forming the PackageId).
func (d *GitDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	repo, err := d.ensureMirror(ctx, id.Source.GitURL)
	if err != nil {
		return nil, err
	}

	m, err := d.commitManifest(repo, id.Source.GitRevSpec)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// FetchContents checks out the resolved commit into a directory under the
// cache and returns it as a LocalDir; the download pipeline treats a git
// checkout the same as an already-extracted tarball.
func (d *GitDriver) FetchContents(ctx context.Context, id pkgid.ID) (Contents, string, error) {
	if _, err := d.ensureMirror(ctx, id.Source.GitURL); err != nil {
		return Contents{}, "", err
	}

	checkoutDir := filepath.Join(d.cacheDir, "git-checkouts", hashHex(id.Source.GitURL), id.Source.GitRevSpec)
	if _, statErr := os.Stat(checkoutDir); statErr == nil {
		return Contents{LocalDir: checkoutDir}, id.Source.GitRevSpec, nil
	}

	if mkErr := os.MkdirAll(filepath.Dir(checkoutDir), 0o755); mkErr != nil {
		return Contents{}, "", mkErr
	}

	// Clone from the local bare mirror rather than the remote again: a
	// plain filesystem path is a valid go-git clone URL.
	wt, err := git.PlainClone(checkoutDir, false, &git.CloneOptions{URL: d.mirrorDir(id.Source.GitURL)})
	if err != nil {
		return Contents{}, "", engineerr.NetworkFatal(err, "checkout git dependency")
	}

	worktree, err := wt.Worktree()
	if err != nil {
		return Contents{}, "", err
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(id.Source.GitRevSpec)}); err != nil {
		return Contents{}, "", engineerr.Wrap(engineerr.CodeTarballMalformed, err, "checkout resolved commit", nil)
	}

	return Contents{LocalDir: checkoutDir}, id.Source.GitRevSpec, nil
}

func shortSHA(full string) string {
	if len(full) > 7 {
		return full[:7]
	}

	return full
}

func minInt(a, b int) int {
	if a < b {
		return a
	}

	return b
}
