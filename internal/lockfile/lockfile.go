// Package lockfile serializes a resolved dependency graph to a stable,
// machine-written document and reconstructs enough of it on load to
// drive the resolver's preserve_locked policy and the linker's layout.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// FileName is the lockfile's on-disk name.
const FileName = "pesde.lock"

// FormatVersion is the current lock_version this engine writes and the
// highest one it understands on load.
const FormatVersion = 1

// Entry is one locked package, the on-disk twin of resolver.Node: spec.md
// §3's ResolvedNode shape, with Dependencies/Peers referencing sibling
// entries by their Key rather than embedding them, so the document stays
// flat and diff-friendly.
type Entry struct {
	Key     string         `json:"id"`
	Source  pkgid.SourceRef `json:"source"`
	Name    string         `json:"name"`
	Version string         `json:"version"`
	Target  string         `json:"target"`
	DevOnly bool           `json:"dev_only,omitempty"`

	Dependencies map[string]string `json:"dependencies,omitempty"`
	Peers        map[string]string `json:"peers,omitempty"`

	Integrity            string `json:"integrity,omitempty"`
	OriginManifestDigest string `json:"origin_manifest_digest,omitempty"`
	LinkMethod           string `json:"link_method,omitempty"`
}

// Lockfile is the full locked-graph document.
type Lockfile struct {
	LockVersion int               `json:"lock_version"`
	Root        map[string]string `json:"root,omitempty"`
	RootPeers   map[string]string `json:"root_peers,omitempty"`
	Packages    []Entry           `json:"packages"`

	// Unknown preserves forward-compatible top-level keys verbatim,
	// matching manifest.Manifest's round-trip rule (spec §8).
	Unknown map[string]json.RawMessage `json:"-"`
}

var knownKeys = map[string]bool{
	"lock_version": true, "root": true, "root_peers": true, "packages": true,
}

// key renders the stable identifier an Entry and its references use: the
// node's full PackageId string, unique even across same-name nodes that
// disagree at different versions (spec §3's "within a graph ... may
// appear at multiple versions only if their roots disagree").
func key(id pkgid.ID) string { return id.String() }

// Generate builds a Lockfile from a resolved graph, sorted by name then
// version then target for deterministic bytes (spec §8: "identical
// inputs produce byte-identical lockfile bytes").
func Generate(g *resolver.Graph) *Lockfile {
	index := make(map[pkgid.UnificationKey]string, len(g.Nodes))
	for k, node := range g.Nodes {
		index[k] = key(node.ID)
	}

	entries := make([]Entry, 0, len(g.Nodes))

	for _, node := range g.Nodes {
		deps := make(map[string]string, len(node.Edges))
		for alias, k := range node.Edges {
			deps[string(alias)] = index[k]
		}

		peers := make(map[string]string, len(node.Peers))
		for alias, k := range node.Peers {
			peers[string(alias)] = index[k]
		}

		entries = append(entries, Entry{
			Key:                  key(node.ID),
			Source:               node.ID.Source,
			Name:                 string(node.ID.Name),
			Version:              node.ID.Version.String(),
			Target:               string(node.ID.Target),
			DevOnly:              node.DevOnly,
			Dependencies:         deps,
			Peers:                peers,
			Integrity:            node.Integrity,
			OriginManifestDigest: node.OriginManifestDigest,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}

		if entries[i].Version != entries[j].Version {
			return entries[i].Version < entries[j].Version
		}

		return entries[i].Target < entries[j].Target
	})

	root := make(map[string]string, len(g.RootEdges))
	for alias, k := range g.RootEdges {
		root[string(alias)] = index[k]
	}

	rootPeers := make(map[string]string, len(g.RootPeers))
	for alias, k := range g.RootPeers {
		rootPeers[string(alias)] = index[k]
	}

	return &Lockfile{
		LockVersion: FormatVersion,
		Root:        root,
		RootPeers:   rootPeers,
		Packages:    entries,
	}
}

// Marshal serializes the lockfile to canonical, indented JSON. Entries
// are assumed pre-sorted by Generate; Marshal does not re-sort, matching
// the teacher's "arrays must be pre-sorted, encoding/json is otherwise
// deterministic for struct fields" approach.
func (l *Lockfile) Marshal() ([]byte, error) {
	type alias Lockfile

	base, err := json.Marshal(alias(*l))
	if err != nil {
		return nil, fmt.Errorf("marshal lockfile: %w", err)
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	for k, v := range l.Unknown {
		merged[k] = v
	}

	return json.MarshalIndent(merged, "", "  ")
}

// Save writes the lockfile to path.
func (l *Lockfile) Save(path string) error {
	data, err := l.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lockfile %s: %w", path, err)
	}

	return nil
}

// Parse decodes lockfile bytes, collecting unrecognized top-level keys
// and rejecting a lock_version newer than this engine understands.
func Parse(data []byte) (*Lockfile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, engineerr.New(engineerr.CodeManifestParseError, "lockfile is not valid JSON", nil)
	}

	type alias Lockfile

	var l alias
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse lockfile: %w", err)
	}

	out := Lockfile(l)
	out.Unknown = map[string]json.RawMessage{}

	for k, v := range raw {
		if !knownKeys[k] {
			out.Unknown[k] = v
		}
	}

	if out.LockVersion > FormatVersion {
		return nil, engineerr.LockfileOutdated(fmt.Sprintf("lock_version %d is newer than this engine's %d", out.LockVersion, FormatVersion))
	}

	return &out, nil
}

// Load reads and parses a lockfile from disk. A missing file is not an
// error: callers treat it as "no previous lockfile" (first install).
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("read lockfile %s: %w", path, err)
	}

	return Parse(data)
}

// LockedVersions projects the lockfile's entries into the
// (SourceClass, Name, Target) -> Version map the resolver's
// preserve_locked policy consults.
func (l *Lockfile) LockedVersions() resolver.LockedVersions {
	if l == nil {
		return nil
	}

	out := make(resolver.LockedVersions, len(l.Packages))

	for _, e := range l.Packages {
		v, err := pkgid.ParseVersion(e.Version)
		if err != nil {
			continue
		}

		target, err := pkgid.ParseTargetKind(e.Target)
		if err != nil {
			continue
		}

		name, err := pkgid.ParseName(e.Name)
		if err != nil {
			continue
		}

		k := pkgid.UnificationKey{SourceClass: e.Source.Class(), Name: name, Target: target}
		out[k] = v
	}

	return out
}
