// Package source implements the uniform driver contract over the
// heterogeneous places a package's manifest and contents can come from:
// a registry (a git-backed index plus an object store for tarballs), a
// raw git repository, a workspace member, and a dev-only local path.
package source

import (
	"context"
	"io"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// VersionEntry is one candidate a driver's ListVersions call returns: a
// version paired with the target it was published for.
type VersionEntry struct {
	Version pkgid.Version
	Target  pkgid.TargetKind
}

// Contents is the output of FetchContents: either a tarball byte stream
// (registry) the download pipeline must extract, or a local directory
// already on disk (git checkout, workspace, path) the linker symlinks
// directly instead of materializing into the store.
type Contents struct {
	TarballReader io.ReadCloser
	LocalDir      string
}

func (c Contents) IsLocalDir() bool { return c.LocalDir != "" }

// RegistryAuth resolves the bearer token for an index URL. It is
// satisfied by internal/config.Config; kept as a narrow interface here so
// source does not import config directly — config is an external
// collaborator from this package's point of view.
type RegistryAuth interface {
	TokenFor(indexURL string) string
}

// Driver is the uniform contract every source kind implements.
type Driver interface {
	// ListVersions returns every (version, target) pair the source
	// publishes for name, ordered ascending by version.
	ListVersions(ctx context.Context, name pkgid.Name) ([]VersionEntry, error)

	// FetchManifest returns the manifest belonging to the exact
	// (name, version, target) identified by id.
	FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error)

	// FetchContents returns the package's contents for id, along with
	// the digest that must match what is downloaded (empty for
	// LocalDir contents, which are not digested).
	FetchContents(ctx context.Context, id pkgid.ID) (Contents, string, error)
}

// RefResolver is implemented by drivers (currently only Git) whose
// dependency spec names a symbolic rev_spec that must be resolved to a
// concrete commit before a PackageId can be formed.
type RefResolver interface {
	ResolveRef(ctx context.Context, url, revSpec string) (string, error)
}

// ForSpec returns the SourceRef a manifest.DependencySpec describes,
// independent of which driver will ultimately serve it. Git refs are not
// yet resolved to a commit at this point; resolution happens via
// RefResolver during expansion.
func ForSpec(spec manifest.DependencySpec, indices map[string]string) (pkgid.SourceRef, error) {
	switch spec.Kind {
	case manifest.DependencyRegistry:
		alias := spec.IndexAlias
		if alias == "" {
			alias = "default"
		}

		url, ok := indices[alias]
		if !ok {
			return pkgid.SourceRef{}, &unknownIndexError{alias: alias}
		}

		return pkgid.Registry(url), nil
	case manifest.DependencyGit:
		return pkgid.Git(spec.URL, spec.RevSpec), nil
	case manifest.DependencyWorkspace:
		return pkgid.Workspace(spec.WorkspaceName), nil
	case manifest.DependencyPath:
		return pkgid.Path(spec.Path), nil
	default:
		return pkgid.SourceRef{}, &unknownKindError{kind: string(spec.Kind)}
	}
}

type unknownIndexError struct{ alias string }

func (e *unknownIndexError) Error() string { return "unknown index alias: " + e.alias }

type unknownKindError struct{ kind string }

func (e *unknownKindError) Error() string { return "unknown dependency kind: " + e.kind }
