package project

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/linker"
	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// Summary reports what Install/Update changed, for the CLI to print.
type Summary struct {
	Added   []pkgid.ID
	Removed []pkgid.ID
	Graph   *resolver.Graph
}

// InstallOptions carries the `install`-only flags spec §6 defines:
// `--locked` rejects any resolution that would change the lockfile
// instead of rewriting it, and `--prod` skips materializing (but still
// resolves) dev-only dependencies.
type InstallOptions struct {
	Locked bool
	Prod   bool
}

// Install resolves the manifest's dependencies under policy, fetches
// every node into the content store, links the result into the
// project's dependency directory, and writes the lockfile — spec §4's
// full install pipeline, end to end.
func (p *Project) Install(ctx context.Context, policy resolver.Policy, opts InstallOptions) (*Summary, error) {
	release, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	prev, err := lockfile.Load(p.lockfilePath())
	if err != nil {
		return nil, err
	}

	prevBytes, err := marshalOrNil(prev)
	if err != nil {
		return nil, err
	}

	graph, err := resolver.Resolve(ctx, p.Manifest, p.drivers, p.workspace, p.Config, policy, prev.LockedVersions())
	if err != nil {
		return nil, err
	}

	previousDigests := map[pkgid.UnificationKey]string{}
	if prev != nil {
		for _, e := range prev.Packages {
			previousDigests[entryKey(e)] = e.Integrity
		}
	}

	materialGraph := materializableGraph(graph, opts.Prod)

	contentsDirs, err := p.fetchAll(ctx, materialGraph, previousDigests)
	if err != nil {
		return nil, err
	}

	sources := make(linker.Sources, len(contentsDirs))
	for key, dir := range contentsDirs {
		sources[key] = linker.NodeSource{ContentsDir: dir}
	}

	result, err := linker.Materialize(materialGraph, p.Manifest.Target.Kind, p.Root, sources)
	if err != nil {
		return nil, err
	}

	// Every node is recorded in the lockfile (dev-only ones included, so
	// peer consistency survives a --prod run), but only nodes this run
	// actually fetched get a fresh integrity digest; the rest carry
	// forward whatever the previous lockfile recorded, per Verify's
	// "entries with no recorded digest are skipped" contract.
	for key, node := range graph.Nodes {
		if _, fetched := contentsDirs[key]; fetched {
			digest, err := p.store.Digest(node.ID)
			if err != nil {
				return nil, err
			}

			node.Integrity = digest
		} else {
			node.Integrity = previousDigests[key]
		}
	}

	lf := lockfile.Generate(graph)
	foldLinkMethods(lf, graph, result)

	if err := lf.Verify(p.store.Digest); err != nil {
		return nil, err
	}

	newBytes, err := lf.Marshal()
	if err != nil {
		return nil, err
	}

	if opts.Locked && !bytes.Equal(prevBytes, newBytes) {
		return nil, engineerr.LockfileOutdated("resolution would change the lockfile")
	}

	if err := lf.Save(p.lockfilePath()); err != nil {
		return nil, err
	}

	return &Summary{Graph: graph}, nil
}

// Update re-resolves with the update_all or update (targeted) policy and
// otherwise runs the same pipeline as Install. update has no --locked/
// --prod analogue (spec §6): it always re-pins and always materializes.
func (p *Project) Update(ctx context.Context, aliases []pkgid.Alias) (*Summary, error) {
	policy := resolver.Policy{Mode: resolver.UpdateAll}

	if len(aliases) > 0 {
		set := make(map[pkgid.Alias]bool, len(aliases))
		for _, a := range aliases {
			set[a] = true
		}

		policy = resolver.Policy{Mode: resolver.UpdateSet, UpdateAliases: set}
	}

	return p.Install(ctx, policy, InstallOptions{})
}

// marshalOrNil marshals lf, or returns nil if lf is nil (no previous
// lockfile on disk) — the baseline --locked compares the freshly
// resolved lockfile bytes against.
func marshalOrNil(lf *lockfile.Lockfile) ([]byte, error) {
	if lf == nil {
		return nil, nil
	}

	return lf.Marshal()
}

// materializableGraph returns g unchanged, or — under --prod — a pruned
// copy containing only non-dev-only nodes and the root edges that still
// reach one, so fetchAll/linker.Materialize skip dev dependencies while
// resolver.Resolve and lockfile.Generate still cover them in full. Safe
// because the resolver only marks a node DevOnly when every path
// reaching it is dev-only (resolver.go's `node.DevOnly = node.DevOnly &&
// item.devOnly`), so a kept node's edges never point at a pruned one.
func materializableGraph(g *resolver.Graph, prod bool) *resolver.Graph {
	if !prod {
		return g
	}

	nodes := make(map[pkgid.UnificationKey]*resolver.Node, len(g.Nodes))

	for key, node := range g.Nodes {
		if !node.DevOnly {
			nodes[key] = node
		}
	}

	rootEdges := make(map[pkgid.Alias]pkgid.UnificationKey, len(g.RootEdges))

	for alias, key := range g.RootEdges {
		if _, ok := nodes[key]; ok {
			rootEdges[alias] = key
		}
	}

	return &resolver.Graph{
		Root:         g.Root,
		RootEdges:    rootEdges,
		RootPeerDeps: g.RootPeerDeps,
		RootPeers:    g.RootPeers,
		Nodes:        nodes,
	}
}

// fetchAll materializes every node in g into the content store
// concurrently, bounded by the project's configured concurrency limit,
// matching the teacher's ResolveAndFetch fan-out.
func (p *Project) fetchAll(ctx context.Context, g *resolver.Graph, previousDigests map[pkgid.UnificationKey]string) (map[pkgid.UnificationKey]string, error) {
	out := make(map[pkgid.UnificationKey]string, len(g.Nodes))

	var mu sync.Mutex

	eg, egctx := errgroup.WithContext(ctx)

	limit := p.Config.ConcurrencyLimit()
	if limit < 1 {
		limit = 1
	}

	sem := make(chan struct{}, limit)

	for key, node := range g.Nodes {
		key := key
		node := node

		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-egctx.Done():
				return egctx.Err()
			}

			defer func() { <-sem }()

			driver, err := p.drivers.For(node.ID.Source, p.workspace)
			if err != nil {
				return fmt.Errorf("%s: %w", node.ID, err)
			}

			expected := previousDigests[key]

			storeDir, err := p.store.Ensure(egctx, node.ID, driver, node.Manifest, expected)
			if err != nil {
				return fmt.Errorf("%s: %w", node.ID, err)
			}

			dir, err := p.patchedContentsDir(egctx, node.ID, storeDir)
			if err != nil {
				return fmt.Errorf("%s: %w", node.ID, err)
			}

			mu.Lock()
			out[key] = dir
			mu.Unlock()

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// entryKey reconstructs the unification key a lockfile entry
// corresponds to, for matching against a freshly resolved graph's nodes
// when carrying forward a trusted previous digest.
func entryKey(e lockfile.Entry) pkgid.UnificationKey {
	v, _ := pkgid.ParseVersion(e.Version)
	target, _ := pkgid.ParseTargetKind(e.Target)
	name, _ := pkgid.ParseName(e.Name)

	return pkgid.ID{Source: e.Source, Name: name, Version: v, Target: target}.UnificationKey()
}

// foldLinkMethods writes each node's chosen LinkMethod (only known after
// linker.Materialize runs) back into the Entry Generate already built,
// keyed by matching each entry's Key against the node's ID string.
func foldLinkMethods(lf *lockfile.Lockfile, g *resolver.Graph, result *linker.Result) {
	methodByName := make(map[string]string, len(result.Methods))

	for key, method := range result.Methods {
		node := g.Lookup(key)
		if node == nil {
			continue
		}

		methodByName[node.ID.String()] = string(method)
	}

	for i := range lf.Packages {
		if m, ok := methodByName[lf.Packages[i].Key]; ok {
			lf.Packages[i].LinkMethod = m
		}
	}
}
