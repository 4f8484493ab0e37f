package project

import (
	"context"

	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
	"github.com/pesde-pm/pesde/internal/source"
)

// Resolve re-runs dependency resolution against the current manifest and
// lockfile without fetching or writing anything back — the read-only
// half of Install's pipeline that why/graph/outdated ride on.
func (p *Project) Resolve(ctx context.Context, policy resolver.Policy) (*resolver.Graph, error) {
	prev, err := lockfile.Load(p.lockfilePath())
	if err != nil {
		return nil, err
	}

	return resolver.Resolve(ctx, p.Manifest, p.drivers, p.workspace, p.Config, policy, prev.LockedVersions())
}

// ListVersions reports every version spec's source publishes, for the
// `outdated` command's "what's newer" comparison. spec.Name is parsed as
// a package name before the driver is asked, so non-registry specs (git,
// path, workspace), which carry no registry name, return that parse
// error.
func (p *Project) ListVersions(ctx context.Context, spec manifest.DependencySpec) ([]source.VersionEntry, error) {
	ref, err := source.ForSpec(spec, p.Manifest.Indices)
	if err != nil {
		return nil, err
	}

	drv, err := p.drivers.For(ref, p.workspace)
	if err != nil {
		return nil, err
	}

	name, err := pkgid.ParseName(spec.Name)
	if err != nil {
		return nil, err
	}

	return drv.ListVersions(ctx, name)
}

// DependencyPath performs a breadth-first search over g from the root
// manifest's direct dependencies to the first node named target,
// matching the `why` command's path-explanation semantics. Returns nil
// if target is unreachable.
func DependencyPath(g *resolver.Graph, target pkgid.Name) []*resolver.Node {
	type queued struct {
		key  pkgid.UnificationKey
		path []*resolver.Node
	}

	visited := make(map[pkgid.UnificationKey]bool, len(g.Nodes))
	queue := make([]queued, 0, len(g.RootEdges))

	for _, key := range g.RootEdges {
		if visited[key] {
			continue
		}

		node := g.Lookup(key)
		if node == nil {
			continue
		}

		visited[key] = true
		queue = append(queue, queued{key: key, path: []*resolver.Node{node}})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		head := current.path[len(current.path)-1]
		if head.ID.Name == target {
			return current.path
		}

		for _, childKey := range head.Edges {
			if visited[childKey] {
				continue
			}

			child := g.Lookup(childKey)
			if child == nil {
				continue
			}

			visited[childKey] = true

			next := make([]*resolver.Node, len(current.path)+1)
			copy(next, current.path)
			next[len(current.path)] = child

			queue = append(queue, queued{key: childKey, path: next})
		}
	}

	return nil
}
