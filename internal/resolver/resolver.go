// Package resolver implements the breadth-first dependency resolution
// algorithm of spec §4.2: seed a queue from the root manifest, apply
// sticky override resolution per edge, unify same-identity dependencies
// across consumers onto a single version, and defer peer dependencies to
// a final verification pass.
package resolver

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pesde-pm/pesde/internal/config"
	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/source"
)

// DriverSource is the subset of *source.Drivers the resolver needs,
// narrowed to an interface so tests can substitute a fake registry
// without a real git clone or HTTP round trip.
type DriverSource interface {
	For(ref pkgid.SourceRef, workspace *source.WorkspaceDriver) (source.Driver, error)
	Git() *source.GitDriver
}

// PolicyMode selects how the resolver treats a previous lockfile's pins.
type PolicyMode string

const (
	PreserveLocked PolicyMode = "preserve_locked"
	UpdateAll      PolicyMode = "update_all"
	UpdateSet      PolicyMode = "update"
)

// Policy is the resolver's input policy flag (spec §4.2 Input).
type Policy struct {
	Mode          PolicyMode
	UpdateAliases map[pkgid.Alias]bool
}

// LockedVersions maps a unification key to the version it was pinned to
// in the previous lockfile, consulted for the preserve_locked policy and
// as a tiebreak preference.
type LockedVersions map[pkgid.UnificationKey]pkgid.Version

// Node is one resolved package in the dependency graph, matching
// spec.md §3's ResolvedNode shape. Integrity is left empty by the
// resolver itself (spec §4.2 step 8: "computed during the later fetch,
// then folded back into the lockfile") — Install fills it in after
// materializing this node. OriginManifestDigest is carried into the
// lockfile but nothing in this engine assigns it.
type Node struct {
	ID       pkgid.ID
	Manifest *manifest.Manifest
	DevOnly  bool
	Edges    map[pkgid.Alias]pkgid.UnificationKey
	PeerDeps map[pkgid.Alias]manifest.DependencySpec
	Peers    map[pkgid.Alias]pkgid.UnificationKey

	Integrity            string
	OriginManifestDigest string

	constraint pkgid.Constraint
}

// Graph is the resolved dependency graph produced by Resolve.
type Graph struct {
	Root         *manifest.Manifest
	RootEdges    map[pkgid.Alias]pkgid.UnificationKey
	RootPeerDeps map[pkgid.Alias]manifest.DependencySpec
	RootPeers    map[pkgid.Alias]pkgid.UnificationKey
	Nodes        map[pkgid.UnificationKey]*Node
}

// Lookup returns the node for key, or nil if absent.
func (g *Graph) Lookup(key pkgid.UnificationKey) *Node { return g.Nodes[key] }

// queueItem is one pending edge to resolve: (parent | root, alias, spec,
// dev_flag, override_chain) per spec §4.2 step 1.
type queueItem struct {
	consumer       *pkgid.UnificationKey
	consumerTarget pkgid.TargetKind
	alias          pkgid.Alias
	spec           manifest.DependencySpec
	devOnly        bool
	chain          []pkgid.Alias
	overrideFloor  int
	locked         bool
}

// resolvedCandidate is phase A's output for one queueItem: the
// override-resolved spec and whatever candidate data its source kind
// yields, ready for the sequential unification pass.
type resolvedCandidate struct {
	item     queueItem
	effSpec  manifest.DependencySpec
	newFloor int
	ref      pkgid.SourceRef

	// Registry only.
	name    pkgid.Name
	entries []source.VersionEntry

	// Git / Path / Workspace: exactly one candidate, already fetched.
	m *manifest.Manifest
}

// Resolve runs the algorithm of spec §4.2 against root, returning the
// resolved graph or a typed engineerr.Error identifying the offending
// constraint.
func Resolve(ctx context.Context, root *manifest.Manifest, drivers DriverSource, workspace *source.WorkspaceDriver, cfg *config.Config, policy Policy, previous LockedVersions) (*Graph, error) {
	g := &Graph{
		Root:         root,
		RootEdges:    map[pkgid.Alias]pkgid.UnificationKey{},
		RootPeerDeps: map[pkgid.Alias]manifest.DependencySpec{},
		RootPeers:    map[pkgid.Alias]pkgid.UnificationKey{},
		Nodes:        map[pkgid.UnificationKey]*Node{},
	}

	var queue []queueItem

	for _, td := range root.AllDependencies() {
		if td.Peer {
			g.RootPeerDeps[td.Alias] = td.Spec
			continue
		}

		locked := policy.Mode != UpdateAll && !(policy.Mode == UpdateSet && policy.UpdateAliases[td.Alias])

		queue = append(queue, queueItem{
			consumer:       nil,
			consumerTarget: root.Target.Kind,
			alias:          td.Alias,
			spec:           td.Spec,
			devOnly:        td.DevOnly,
			chain:          []pkgid.Alias{td.Alias},
			overrideFloor:  0,
			locked:         locked,
		})
	}

	for len(queue) > 0 {
		batch := queue
		queue = nil

		resolved, err := resolveBatch(ctx, batch, drivers, workspace, root, cfg)
		if err != nil {
			return nil, err
		}

		// Sort for determinism: batch order comes from ranging over
		// dependency maps, which is not stable, but the unification
		// outcome must not depend on it.
		sort.Slice(resolved, func(i, j int) bool {
			if resolved[i].item.alias != resolved[j].item.alias {
				return resolved[i].item.alias < resolved[j].item.alias
			}

			return fmt.Sprint(resolved[i].item.chain) < fmt.Sprint(resolved[j].item.chain)
		})

		for _, rc := range resolved {
			next, err := mergeCandidate(ctx, drivers, workspace, g, rc, previous)
			if err != nil {
				return nil, err
			}

			queue = append(queue, next...)
		}
	}

	if err := resolvePeers(g); err != nil {
		return nil, err
	}

	return g, nil
}

// resolveBatch fetches candidate data for one BFS level concurrently,
// bounded by cfg.ConcurrencyLimit(), mirroring the teacher's
// ResolveAndFetch batch-then-errgroup shape.
func resolveBatch(ctx context.Context, batch []queueItem, drivers DriverSource, workspace *source.WorkspaceDriver, root *manifest.Manifest, cfg *config.Config) ([]resolvedCandidate, error) {
	out := make([]resolvedCandidate, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, cfg.ConcurrencyLimit())

	for i, item := range batch {
		i, item := i, item

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}

			defer func() { <-sem }()

			rc, err := resolveOne(gctx, item, drivers, workspace, root)
			if err != nil {
				return err
			}

			out[i] = rc

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// resolveOne applies override resolution, forms the SourceRef, resolves
// a git rev_spec to a commit if needed, and fetches whatever candidate
// data the source kind yields without yet deciding a final version.
func resolveOne(ctx context.Context, item queueItem, drivers DriverSource, workspace *source.WorkspaceDriver, root *manifest.Manifest) (resolvedCandidate, error) {
	effSpec, newFloor, err := applyOverride(root, item.chain, item.overrideFloor, item.spec)
	if err != nil {
		return resolvedCandidate{}, err
	}

	if err := effSpec.Validate(); err != nil {
		return resolvedCandidate{}, fmt.Errorf("dependency %s: %w", item.alias, err)
	}

	ref, err := source.ForSpec(effSpec, root.Indices)
	if err != nil {
		return resolvedCandidate{}, fmt.Errorf("dependency %s: %w", item.alias, err)
	}

	if ref.Kind == pkgid.SourceGit {
		commit, err := drivers.Git().ResolveRef(ctx, ref.GitURL, ref.GitRevSpec)
		if err != nil {
			return resolvedCandidate{}, err
		}

		ref.GitRevSpec = commit
	}

	drv, err := drivers.For(ref, workspace)
	if err != nil {
		return resolvedCandidate{}, err
	}

	rc := resolvedCandidate{item: item, effSpec: effSpec, newFloor: newFloor, ref: ref}

	if ref.Kind == pkgid.SourceRegistry {
		name, err := pkgid.ParseName(effSpec.Name)
		if err != nil {
			return resolvedCandidate{}, fmt.Errorf("dependency %s: %w", item.alias, err)
		}

		entries, err := drv.ListVersions(ctx, name)
		if err != nil {
			return resolvedCandidate{}, err
		}

		rc.name = name
		rc.entries = entries

		return rc, nil
	}

	placeholderID := pkgid.ID{Source: ref}

	if ref.Kind == pkgid.SourceWorkspace {
		name, err := pkgid.ParseName(effSpec.WorkspaceName)
		if err != nil {
			return resolvedCandidate{}, fmt.Errorf("dependency %s: %w", item.alias, err)
		}

		placeholderID.Name = name
	}

	m, err := drv.FetchManifest(ctx, placeholderID)
	if err != nil {
		return resolvedCandidate{}, err
	}

	rc.m = m

	return rc, nil
}

// mergeCandidate performs the sequential part of spec §4.2 steps 3-6:
// unification against any existing node, final version selection, and
// enqueuing the chosen candidate's own direct dependencies.
func mergeCandidate(ctx context.Context, drivers DriverSource, workspace *source.WorkspaceDriver, g *Graph, rc resolvedCandidate, previous LockedVersions) ([]queueItem, error) {
	if rc.ref.Kind == pkgid.SourceRegistry {
		return mergeRegistry(ctx, drivers, workspace, g, rc, previous)
	}

	return mergeSingleton(g, rc)
}

// mergeSingleton handles Git/Path/Workspace dependencies, which have
// exactly one candidate and no constraint space to intersect: a second
// edge reaching the same source identity at a different version is an
// unsatisfiable pin conflict, not something to merge.
func mergeSingleton(g *Graph, rc resolvedCandidate) ([]queueItem, error) {
	item := rc.item

	v, err := pkgid.ParseVersion(rc.m.Version)
	if err != nil {
		return nil, fmt.Errorf("dependency %s manifest: %w", item.alias, err)
	}

	target, err := pkgid.ParseTargetKind(string(rc.m.Target.Kind))
	if err != nil {
		return nil, fmt.Errorf("dependency %s manifest: %w", item.alias, err)
	}

	if !pkgid.CompatibleWith(item.consumerTarget, target) {
		return nil, engineerr.IncompatibleTarget(string(item.alias), string(item.consumerTarget), rc.m.Name, string(target))
	}

	id := pkgid.ID{Source: rc.ref, Name: pkgid.Name(rc.m.Name), Version: v, Target: target}
	key := id.UnificationKey()

	node, existed := g.Nodes[key]
	if existed {
		if !node.ID.Version.Equal(v) {
			return nil, engineerr.UnsatisfiableConstraint(rc.m.Name, fmt.Sprintf("%s (already pinned to %s)", v, node.ID.Version))
		}

		node.DevOnly = node.DevOnly && item.devOnly
		linkEdge(g, item, key)

		return nil, nil
	}

	node = &Node{
		ID:       id,
		Manifest: rc.m,
		DevOnly:  item.devOnly,
		Edges:    map[pkgid.Alias]pkgid.UnificationKey{},
		PeerDeps: map[pkgid.Alias]manifest.DependencySpec{},
		Peers:    map[pkgid.Alias]pkgid.UnificationKey{},
	}
	g.Nodes[key] = node

	linkEdge(g, item, key)

	return enqueueChildren(g, key, rc.m, item, rc.newFloor), nil
}

// mergeRegistry handles registry dependencies: the real candidate set, so
// unification means intersecting constraints and re-selecting the
// highest satisfying version, not merely comparing one pinned version.
func mergeRegistry(ctx context.Context, drivers DriverSource, workspace *source.WorkspaceDriver, g *Graph, rc resolvedCandidate, previous LockedVersions) ([]queueItem, error) {
	item := rc.item

	reqConstraint, err := pkgid.ParseConstraint(rc.effSpec.VersionReq)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", item.alias, err)
	}

	byTarget := map[pkgid.TargetKind][]source.VersionEntry{}
	versionMatched := false

	for _, e := range rc.entries {
		if !reqConstraint.Check(e.Version) {
			continue
		}

		versionMatched = true

		if pkgid.CompatibleWith(item.consumerTarget, e.Target) {
			byTarget[e.Target] = append(byTarget[e.Target], e)
		}
	}

	if len(byTarget) == 0 {
		if versionMatched {
			return nil, engineerr.IncompatibleTarget(string(item.alias), string(item.consumerTarget), rc.effSpec.Name, "no matching version publishes a compatible target")
		}

		return nil, engineerr.UnsatisfiableConstraint(rc.effSpec.Name, reqConstraint.String())
	}

	var out []queueItem

	for target, entries := range byTarget {
		key := pkgid.UnificationKey{SourceClass: rc.ref.Class(), Name: rc.name, Target: target}

		node, existed := g.Nodes[key]

		constraint := reqConstraint
		if existed {
			merged, err := pkgid.Intersect(node.constraint, reqConstraint)
			if err != nil {
				return nil, engineerr.UnsatisfiableConstraint(string(rc.name), fmt.Sprintf("%s and %s have no common version", node.constraint, reqConstraint))
			}

			constraint = merged
		}

		chosen, err := selectVersion(entries, constraint, previous[key], item.locked)
		if err != nil {
			return nil, err
		}

		if existed && chosen.Equal(node.ID.Version) {
			node.constraint = constraint
			node.DevOnly = node.DevOnly && item.devOnly
			linkEdge(g, item, key)

			continue
		}

		drv, err := drivers.For(rc.ref, workspace)
		if err != nil {
			return nil, err
		}

		id := pkgid.ID{Source: rc.ref, Name: rc.name, Version: chosen, Target: target}

		m, err := drv.FetchManifest(ctx, id)
		if err != nil {
			return nil, err
		}

		newNode := &Node{
			ID:         id,
			Manifest:   m,
			constraint: constraint,
			Edges:      map[pkgid.Alias]pkgid.UnificationKey{},
			PeerDeps:   map[pkgid.Alias]manifest.DependencySpec{},
			Peers:      map[pkgid.Alias]pkgid.UnificationKey{},
		}

		if existed {
			newNode.Edges = node.Edges
			newNode.DevOnly = node.DevOnly && item.devOnly
		} else {
			newNode.DevOnly = item.devOnly
		}

		g.Nodes[key] = newNode

		linkEdge(g, item, key)

		out = append(out, enqueueChildren(g, key, m, item, rc.newFloor)...)
	}

	return out, nil
}

// selectVersion picks the final version for a registry candidate set:
// the previous lockfile's pin when locked and still permitted, else the
// highest version satisfying constraint, tie-broken per tiebreak.go.
func selectVersion(entries []source.VersionEntry, constraint pkgid.Constraint, pinned pkgid.Version, locked bool) (pkgid.Version, error) {
	var satisfying []pkgid.Version

	for _, e := range entries {
		if constraint.Check(e.Version) {
			satisfying = append(satisfying, e.Version)
		}
	}

	if len(satisfying) == 0 {
		return pkgid.Version{}, engineerr.UnsatisfiableConstraint("", constraint.String())
	}

	if locked && pinned.Semver() != nil && constraint.Check(pinned) {
		for _, v := range satisfying {
			if v.Equal(pinned) {
				return v, nil
			}
		}
	}

	sort.Slice(satisfying, func(i, j int) bool { return satisfying[i].LessThan(satisfying[j]) })

	top := satisfying[len(satisfying)-1]

	var tied []pkgid.Version

	for _, v := range satisfying {
		if v.Equal(top) {
			tied = append(tied, v)
		}
	}

	if len(tied) > 1 {
		return tiebreak(tied, pinned), nil
	}

	return top, nil
}

// linkEdge records alias -> key on the consuming node (or the graph's
// root edge set when consumer is nil).
func linkEdge(g *Graph, item queueItem, key pkgid.UnificationKey) {
	if item.consumer == nil {
		g.RootEdges[item.alias] = key
		return
	}

	g.Nodes[*item.consumer].Edges[item.alias] = key
}

// enqueueChildren builds the next BFS level from a freshly fetched
// manifest. A dependency's own dev_dependencies are never enqueued here:
// they describe how to develop that package, not how to consume it, so
// only the root manifest's dev edges ever carry dev_only=true (spec
// §4.2 step 6).
func enqueueChildren(g *Graph, key pkgid.UnificationKey, m *manifest.Manifest, parentItem queueItem, floor int) []queueItem {
	var out []queueItem

	node := g.Nodes[key]

	for _, td := range m.AllDependencies() {
		if td.Peer {
			node.PeerDeps[td.Alias] = td.Spec
			continue
		}

		if td.DevOnly {
			continue
		}

		chain := make([]pkgid.Alias, len(parentItem.chain)+1)
		copy(chain, parentItem.chain)
		chain[len(parentItem.chain)] = td.Alias

		out = append(out, queueItem{
			consumer:       &key,
			consumerTarget: m.Target.Kind,
			alias:          td.Alias,
			spec:           td.Spec,
			devOnly:        parentItem.devOnly,
			chain:          chain,
			overrideFloor:  floor,
			locked:         parentItem.locked,
		})
	}

	return out
}
