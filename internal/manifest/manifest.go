// Package manifest parses and serializes project/package descriptors: the
// Manifest a consumer authors by hand. The lockfile document the engine
// writes back out is handled by package lockfile.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// FileName is the manifest's on-disk name, the equivalent of the teacher's
// package.oriz for this engine.
const FileName = "pesde.json"

// Target describes the one runtime environment this manifest's package
// builds for.
type Target struct {
	Kind        pkgid.TargetKind `json:"kind"`
	Lib         string           `json:"lib,omitempty"`
	Bin         string           `json:"bin,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}

// DependencyKind tags which DependencySpec variant is populated.
type DependencyKind string

const (
	DependencyRegistry  DependencyKind = "registry"
	DependencyGit       DependencyKind = "git"
	DependencyWorkspace DependencyKind = "workspace"
	DependencyPath      DependencyKind = "path"
)

// DependencySpec is the tagged union a manifest entry may take. Only the
// fields relevant to Kind are populated; Validate checks that the fields
// Kind requires are present.
type DependencySpec struct {
	Kind DependencyKind `json:"kind"`

	// RegistrySpec
	Name        string            `json:"name,omitempty"`
	VersionReq  string            `json:"version_req,omitempty"`
	IndexAlias  string            `json:"index_alias,omitempty"`

	// GitSpec
	URL     string `json:"url,omitempty"`
	RevSpec string `json:"rev_spec,omitempty"`

	// WorkspaceSpec
	WorkspaceName string `json:"workspace_name,omitempty"`

	// PathSpec
	Path string `json:"path,omitempty"`

	// Shared optional override
	Target pkgid.TargetKind `json:"target,omitempty"`
}

// Validate checks that a DependencySpec carries the fields its Kind
// requires, matching spec §3's per-variant required-field list.
func (d DependencySpec) Validate() error {
	switch d.Kind {
	case DependencyRegistry:
		if d.Name == "" || d.VersionReq == "" {
			return fmt.Errorf("registry dependency requires name and version_req")
		}
	case DependencyGit:
		if d.URL == "" || d.RevSpec == "" {
			return fmt.Errorf("git dependency requires url and rev_spec")
		}
	case DependencyWorkspace:
		if d.WorkspaceName == "" {
			return fmt.Errorf("workspace dependency requires workspace_name")
		}
	case DependencyPath:
		if d.Path == "" {
			return fmt.Errorf("path dependency requires path")
		}
	default:
		return fmt.Errorf("unknown dependency kind %q", d.Kind)
	}

	return nil
}

// Override is one entry of the manifest's `overrides` list: a dependency
// path (one or more aliases from the root) mapped to a replacement spec.
type Override struct {
	Path        []pkgid.Alias  `json:"path"`
	Replacement DependencySpec `json:"replacement"`
}

// Workspace names member paths whose manifests resolve together with the
// root.
type Workspace struct {
	Members []string `json:"members,omitempty"`
}

// PatchEntry records a patch file applied on top of an upstream source,
// written by the patch subsystem's commit step.
type PatchEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Target  string `json:"target"`
	File    string `json:"file"`
}

// Manifest is the parsed project/package descriptor: the root type of
// pesde.json.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	License     string `json:"license,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Description string `json:"description,omitempty"`

	Target Target `json:"target"`

	Dependencies     map[pkgid.Alias]DependencySpec `json:"dependencies,omitempty"`
	PeerDependencies map[pkgid.Alias]DependencySpec `json:"peer_dependencies,omitempty"`
	DevDependencies  map[pkgid.Alias]DependencySpec `json:"dev_dependencies,omitempty"`

	Overrides []Override `json:"overrides,omitempty"`

	Scripts map[string]string `json:"scripts,omitempty"`

	Workspace Workspace `json:"workspace,omitempty"`

	Indices map[string]string `json:"indices,omitempty"`

	Patches []PatchEntry `json:"patches,omitempty"`

	// Unknown preserves any top-level key this version of the engine does
	// not recognize, so round-tripping a forward-compatible manifest never
	// drops data (spec §8's "preserved verbatim on round-trip" rule).
	Unknown map[string]json.RawMessage `json:"-"`
}

// knownKeys lists the top-level JSON keys Manifest understands; anything
// else found during Parse is stashed into Unknown and re-emitted by Marshal.
var knownKeys = map[string]bool{
	"name": true, "version": true, "license": true, "authors": true,
	"repository": true, "description": true, "target": true,
	"dependencies": true, "peer_dependencies": true, "dev_dependencies": true,
	"overrides": true, "scripts": true, "workspace": true, "indices": true,
	"patches": true, "lock_version": true,
}

// Parse decodes manifest bytes into a Manifest, validating every
// dependency spec and collecting unrecognized top-level keys.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, engineerr.ManifestParseError(err)
	}

	type alias Manifest

	var m alias
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	out := Manifest(m)
	out.Unknown = map[string]json.RawMessage{}

	for k, v := range raw {
		if !knownKeys[k] {
			out.Unknown[k] = v
		}
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return &out, nil
}

// Load reads and parses a manifest file from disk.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engineerr.NotFound(path)
		}

		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	return Parse(data)
}

// Validate checks required fields, duplicate aliases across the three
// dependency maps, and that every DependencySpec is internally consistent.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing required field: name")
	}

	if m.Version == "" {
		return fmt.Errorf("manifest missing required field: version")
	}

	if _, err := pkgid.ParseName(m.Name); err != nil {
		return fmt.Errorf("manifest name: %w", err)
	}

	if _, err := pkgid.ParseVersion(m.Version); err != nil {
		return fmt.Errorf("manifest version: %w", err)
	}

	seen := map[pkgid.Alias]string{}

	for group, deps := range map[string]map[pkgid.Alias]DependencySpec{
		"dependencies": m.Dependencies, "peer_dependencies": m.PeerDependencies, "dev_dependencies": m.DevDependencies,
	} {
		for alias, spec := range deps {
			if prev, dup := seen[alias]; dup {
				return fmt.Errorf("duplicate alias %q used in both %s and %s", alias, prev, group)
			}

			seen[alias] = group

			if err := spec.Validate(); err != nil {
				return fmt.Errorf("dependency %q: %w", alias, err)
			}

			if spec.Kind == DependencyPath && group != "dev_dependencies" {
				return fmt.Errorf("dependency %q: path dependencies are only permitted as dev dependencies", alias)
			}
		}
	}

	usesRegistry := false

	for _, deps := range []map[pkgid.Alias]DependencySpec{m.Dependencies, m.PeerDependencies, m.DevDependencies} {
		for _, spec := range deps {
			if spec.Kind == DependencyRegistry {
				usesRegistry = true
			}
		}
	}

	if usesRegistry {
		if _, ok := m.Indices["default"]; !ok {
			return fmt.Errorf(`indices must define "default" when any registry dependency is present`)
		}
	}

	return nil
}

// Marshal serializes the manifest back to indented JSON, re-emitting any
// Unknown top-level keys captured during Parse.
func (m *Manifest) Marshal() ([]byte, error) {
	type alias Manifest

	base, err := json.Marshal(alias(*m))
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}

	for k, v := range m.Unknown {
		merged[k] = v
	}

	return json.MarshalIndent(merged, "", "  ")
}

// Save writes the manifest back to path.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}

	return nil
}

// AllDependencies returns the union of dependencies, peer_dependencies,
// and dev_dependencies, tagging each with which group it came from.
type TaggedDependency struct {
	Alias   pkgid.Alias
	Spec    DependencySpec
	Peer    bool
	DevOnly bool
}

func (m *Manifest) AllDependencies() []TaggedDependency {
	out := make([]TaggedDependency, 0, len(m.Dependencies)+len(m.PeerDependencies)+len(m.DevDependencies))

	for alias, spec := range m.Dependencies {
		out = append(out, TaggedDependency{Alias: alias, Spec: spec})
	}

	for alias, spec := range m.PeerDependencies {
		out = append(out, TaggedDependency{Alias: alias, Spec: spec, Peer: true})
	}

	for alias, spec := range m.DevDependencies {
		out = append(out, TaggedDependency{Alias: alias, Spec: spec, DevOnly: true})
	}

	return out
}
