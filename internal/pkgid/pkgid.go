// Package pkgid defines the identifiers that name a package and a node in a
// resolved dependency graph: package names, versions, target kinds, source
// references, and the composite PackageID.
package pkgid

import (
	"fmt"
	"strings"

	semver "github.com/Masterminds/semver/v3"
)

// Name is a scope-qualified package name (e.g. "scope/name"). Matching is
// case-insensitive; Name is always stored lowercased so two Names compare
// equal with ==.
type Name string

// ParseName lowercases and validates a raw "scope/name" string.
func ParseName(raw string) (Name, error) {
	n := strings.ToLower(strings.TrimSpace(raw))
	if n == "" {
		return "", fmt.Errorf("package name must not be empty")
	}

	parts := strings.Split(n, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("package name %q must be of the form scope/name", raw)
	}

	for _, p := range parts {
		for _, r := range p {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return "", fmt.Errorf("package name %q contains invalid character %q", raw, r)
			}
		}
	}

	return Name(n), nil
}

func (n Name) String() string { return string(n) }

// Scope returns the scope component of a Name ("scope" in "scope/name").
func (n Name) Scope() string {
	if i := strings.IndexByte(string(n), '/'); i >= 0 {
		return string(n)[:i]
	}

	return ""
}

// Version wraps Masterminds/semver so the rest of the engine works with a
// single, consistently-parsed version type.
type Version struct {
	inner *semver.Version
	raw   string
}

// ParseVersion parses a semver triple, with optional pre-release/build
// metadata, enforcing semver-standard ordering semantics.
func ParseVersion(raw string) (Version, error) {
	v, err := semver.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", raw, err)
	}

	return Version{inner: v, raw: v.String()}, nil
}

// SyntheticPin builds a Version from a git commit's short SHA when the
// commit's manifest declares no version (spec §4.1: Git driver).
func SyntheticPin(shortSHA string) Version {
	v, err := ParseVersion("0.0.0+" + shortSHA)
	if err != nil {
		// 0.0.0+<shortsha> is always valid semver build metadata; a parse
		// failure here would indicate shortSHA contains characters semver
		// build metadata forbids, which callers are expected to sanitize.
		panic(fmt.Sprintf("pkgid: invalid synthetic pin: %v", err))
	}

	return v
}

// IsSyntheticPin reports whether this version was produced by SyntheticPin,
// i.e. it is an exact pin not subject to semver range unification.
func (v Version) IsSyntheticPin() bool {
	return v.inner != nil && v.inner.Major() == 0 && v.inner.Minor() == 0 &&
		v.inner.Patch() == 0 && v.inner.Metadata() != ""
}

func (v Version) String() string { return v.raw }

// Semver exposes the underlying semver.Version for constraint checks.
func (v Version) Semver() *semver.Version { return v.inner }

// LessThan, GreaterThan, Equal delegate to semver ordering.
func (v Version) LessThan(o Version) bool    { return v.inner.LessThan(o.inner) }
func (v Version) GreaterThan(o Version) bool { return v.inner.GreaterThan(o.inner) }
func (v Version) Equal(o Version) bool       { return v.inner.Equal(o.inner) }

// Constraint wraps a semver constraint expression.
type Constraint struct {
	inner *semver.Constraints
	raw   string
}

// ParseConstraint parses a version requirement expression (e.g. "^1.2.0",
// ">=1.0.0, <2.0.0").
func ParseConstraint(raw string) (Constraint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "*"
	}

	c, err := semver.NewConstraint(raw)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid version requirement %q: %w", raw, err)
	}

	return Constraint{inner: c, raw: raw}, nil
}

// Exact returns a Constraint matching exactly v.
func Exact(v Version) Constraint {
	c, err := ParseConstraint("=" + v.String())
	if err != nil {
		panic("pkgid: exact constraint from valid version must parse: " + err.Error())
	}

	return c
}

// Check reports whether v satisfies the constraint.
func (c Constraint) Check(v Version) bool { return c.inner.Check(v.inner) }

func (c Constraint) String() string { return c.raw }

// Intersect AND-joins two constraint expressions textually and re-parses,
// mirroring the teacher's merge-by-concatenation approach (Masterminds/semver
// has no first-class intersection API).
func Intersect(a, b Constraint) (Constraint, error) {
	return ParseConstraint(a.raw + ", " + b.raw)
}

// TargetKind enumerates the runtime environments a package may be built for.
type TargetKind string

const (
	TargetLune         TargetKind = "lune"
	TargetRoblox       TargetKind = "roblox"
	TargetRobloxServer TargetKind = "roblox_server"
)

// ParseTargetKind validates a raw target string.
func ParseTargetKind(raw string) (TargetKind, error) {
	switch TargetKind(strings.ToLower(strings.TrimSpace(raw))) {
	case TargetLune:
		return TargetLune, nil
	case TargetRoblox:
		return TargetRoblox, nil
	case TargetRobloxServer:
		return TargetRobloxServer, nil
	default:
		return "", fmt.Errorf("unknown target kind %q", raw)
	}
}

// compatMatrix is the design constant of spec §4.2: consumer -> set of
// library targets it may depend on.
var compatMatrix = map[TargetKind]map[TargetKind]bool{
	TargetLune: {
		TargetLune: true,
	},
	TargetRoblox: {
		TargetRoblox:       true,
		TargetRobloxServer: true,
	},
	TargetRobloxServer: {
		TargetRobloxServer: true,
		TargetRoblox:       true,
	},
}

// CompatibleWith reports whether a consumer with target `consumer` may
// depend on a library with target `library`.
func CompatibleWith(consumer, library TargetKind) bool {
	return compatMatrix[consumer][library]
}

// SourceKind tags which kind of SourceRef a dependency or node comes from.
type SourceKind string

const (
	SourceRegistry  SourceKind = "registry"
	SourceGit       SourceKind = "git"
	SourceWorkspace SourceKind = "workspace"
	SourcePath      SourceKind = "path"
)

// SourceRef is the tagged union identifying where a package's contents and
// manifest come from. Exactly one of the kind-specific fields is populated,
// matching the Kind.
type SourceRef struct {
	Kind SourceKind

	// Registry
	IndexURL string

	// Git
	GitURL     string
	GitRevSpec string // branch|tag|commit, as supplied in the manifest

	// Workspace
	MemberName string

	// Path (dev-only)
	RelativePath string
}

// Registry builds a SourceRef for a registry dependency.
func Registry(indexURL string) SourceRef { return SourceRef{Kind: SourceRegistry, IndexURL: indexURL} }

// Git builds a SourceRef for a raw git dependency.
func Git(url, revSpec string) SourceRef {
	return SourceRef{Kind: SourceGit, GitURL: url, GitRevSpec: revSpec}
}

// Workspace builds a SourceRef for a workspace-local member.
func Workspace(memberName string) SourceRef {
	return SourceRef{Kind: SourceWorkspace, MemberName: memberName}
}

// Path builds a SourceRef for a dev-only path dependency.
func Path(relativePath string) SourceRef { return SourceRef{Kind: SourcePath, RelativePath: relativePath} }

// Class returns a copy of the SourceRef with the version-bearing field
// (GitRevSpec, whether it holds a branch, tag or commit) erased, used as the key
// for unification: "same class" means "same (source-kind, identity)
// ignoring which version is selected".
func (s SourceRef) Class() SourceRef {
	switch s.Kind {
	case SourceRegistry:
		return SourceRef{Kind: SourceRegistry, IndexURL: s.IndexURL}
	case SourceGit:
		return SourceRef{Kind: SourceGit, GitURL: s.GitURL}
	case SourceWorkspace:
		return SourceRef{Kind: SourceWorkspace, MemberName: s.MemberName}
	case SourcePath:
		return SourceRef{Kind: SourcePath, RelativePath: s.RelativePath}
	default:
		return s
	}
}

// String renders a stable, human-readable form used in error messages and
// as a map key component.
func (s SourceRef) String() string {
	switch s.Kind {
	case SourceRegistry:
		return "registry:" + s.IndexURL
	case SourceGit:
		return "git:" + s.GitURL + "#" + s.GitRevSpec
	case SourceWorkspace:
		return "workspace:" + s.MemberName
	case SourcePath:
		return "path:" + s.RelativePath
	default:
		return "unknown:" + string(s.Kind)
	}
}

// ID is the globally unique node identity within a resolved graph:
// (SourceRef, Name, Version, TargetKind).
type ID struct {
	Source  SourceRef
	Name    Name
	Version Version
	Target  TargetKind
}

func (id ID) String() string {
	return fmt.Sprintf("%s@%s[%s]<-%s", id.Name, id.Version, id.Target, id.Source)
}

// UnificationKey is the (SourceRef-class, Name, TargetKind) key used during
// resolution to decide whether two dependency edges refer to "the same
// package" that must be unified to a single version (spec §4.2 step 4).
type UnificationKey struct {
	SourceClass SourceRef
	Name        Name
	Target      TargetKind
}

func (id ID) UnificationKey() UnificationKey {
	return UnificationKey{SourceClass: id.Source.Class(), Name: id.Name, Target: id.Target}
}

// Alias is the short local name a consumer uses to refer to a dependency.
type Alias string
