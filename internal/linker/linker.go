// Package linker materializes a resolved graph into a project's
// dependency directory (spec §4.5): one on-disk folder per
// (name, version, target) under a hidden index, re-export stubs for
// every edge, and a root-level alias directory for each direct
// dependency.
package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// indexDirName is the hidden per-package-store mirror spec §4.5 calls
// "<deps-dir>/.pesde/".
const indexDirName = ".pesde"

// LinkMethod records how a package's files were made to appear at their
// linked location, persisted in the lockfile (spec §4.5: "recording the
// choice in the lockfile to keep reproducibility declared").
type LinkMethod string

const (
	LinkSymlink  LinkMethod = "symlink"
	LinkHardlink LinkMethod = "hardlink"
	LinkCopy     LinkMethod = "copy"
)

// DepsDirFor names the root dependency directory for a build target, the
// convention real Roblox/Lune package managers use so a project building
// for more than one target (a shared library consumed by both a game
// client and a server script) doesn't collide on disk.
func DepsDirFor(target pkgid.TargetKind) string {
	return string(target) + "_packages"
}

// NodeSource is what Materialize needs for one node beyond the graph's
// edges: where its package contents currently live on disk. The caller
// (internal/project) is responsible for having already run the node's
// contents through internal/store and, if a patch is recorded for it,
// through internal/patch — Materialize only links/stubs.
type NodeSource struct {
	ContentsDir string
}

// Sources supplies every node's NodeSource, keyed the same as
// resolver.Graph.Nodes.
type Sources map[pkgid.UnificationKey]NodeSource

// Result reports the link method chosen for each materialized node, for
// the caller to fold back into the lockfile's link_method field.
type Result struct {
	Methods map[pkgid.UnificationKey]LinkMethod
}

// Materialize lays out g under projectRoot/<target>_packages, per spec
// §4.5: each node gets exactly one folder
// (name, version, target) under the hidden index, transitive edges are
// realized as re-export stubs referencing siblings, and root direct
// dependencies additionally get an alias folder one level up.
func Materialize(g *resolver.Graph, rootTarget pkgid.TargetKind, projectRoot string, sources Sources) (*Result, error) {
	depsDir := filepath.Join(projectRoot, DepsDirFor(rootTarget))
	idxDir := filepath.Join(depsDir, indexDirName)

	if err := os.MkdirAll(idxDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dependency index dir: %w", err)
	}

	result := &Result{Methods: map[pkgid.UnificationKey]LinkMethod{}}

	keys := make([]pkgid.UnificationKey, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}

		return keys[i].Target < keys[j].Target
	})

	// Pass 1: materialize every node's own folder. Stubs in pass 2
	// reference siblings by relative path, so every target folder must
	// exist first.
	pkgDirs := make(map[pkgid.UnificationKey]string, len(keys))

	for _, key := range keys {
		node := g.Nodes[key]

		src, ok := sources[key]
		if !ok {
			return nil, fmt.Errorf("no materialized contents supplied for %s", node.ID)
		}

		pkgDir := filepath.Join(idxDir, string(node.ID.Name), node.ID.Version.String(), string(node.ID.Target))
		pkgDirs[key] = pkgDir

		if err := os.MkdirAll(filepath.Dir(pkgDir), 0o755); err != nil {
			return nil, err
		}

		method, err := linkPackageDir(src.ContentsDir, pkgDir)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", node.ID, err)
		}

		result.Methods[key] = method
	}

	// Pass 2: write re-export stubs for every edge and peer, now that
	// every package directory exists.
	for _, key := range keys {
		node := g.Nodes[key]
		pkgDir := pkgDirs[key]

		if err := writeStubs(pkgDir, node.ID.Target, node.Edges, g, pkgDirs); err != nil {
			return nil, err
		}

		if err := writeStubs(pkgDir, node.ID.Target, node.Peers, g, pkgDirs); err != nil {
			return nil, err
		}
	}

	if err := writeStubs(depsDir, rootTarget, g.RootEdges, g, pkgDirs); err != nil {
		return nil, err
	}

	if err := writeStubs(depsDir, rootTarget, g.RootPeers, g, pkgDirs); err != nil {
		return nil, err
	}

	return result, nil
}

// writeStubs writes one re-export stub per alias->node edge into fromDir.
func writeStubs(fromDir string, fromTarget pkgid.TargetKind, edges map[pkgid.Alias]pkgid.UnificationKey, g *resolver.Graph, pkgDirs map[pkgid.UnificationKey]string) error {
	for alias, key := range edges {
		node := g.Nodes[key]
		if node == nil {
			continue
		}

		targetDir, ok := pkgDirs[key]
		if !ok {
			continue
		}

		libEntry := libEntryPath(targetDir, node.Manifest)

		rel, err := filepath.Rel(fromDir, libEntry)
		if err != nil {
			return fmt.Errorf("relative stub path for %s: %w", alias, err)
		}

		rel = toRequirePath(rel)

		if err := writeStubFile(fromDir, string(alias), fromTarget, rel); err != nil {
			return err
		}
	}

	return nil
}

// libEntryPath resolves the file a re-export stub should require: the
// manifest's declared lib entry point, defaulting to "init" (the
// Luau convention for a directory's default module) when unset.
func libEntryPath(pkgDir string, m *manifest.Manifest) string {
	lib := "init.luau"
	if m != nil && m.Target.Lib != "" {
		lib = m.Target.Lib
	}

	return filepath.Join(pkgDir, filepath.FromSlash(lib))
}

// toRequirePath strips a source-file extension and ensures the path
// reads as relative ("./...") the way Lune/Luau's string-based require
// expects; extension-stripping follows Luau convention where `require`
// resolves ".luau"/".lua" automatically.
func toRequirePath(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ".luau")
	rel = strings.TrimSuffix(rel, ".lua")

	if rel != "." && !strings.HasPrefix(rel, "./") && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}

	return rel
}
