package resolver

import (
	"fmt"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// resolvePeers implements spec §4.2 step 7: every recorded peer
// dependency must resolve, within the node set reachable from root that
// is not through the node declaring the peer, to a compatible version.
func resolvePeers(g *Graph) error {
	for alias, spec := range g.RootPeerDeps {
		key, ok, err := checkPeer(g, nil, alias, spec)
		if err != nil {
			return err
		}

		if ok {
			g.RootPeers[alias] = key
		}
	}

	for key, node := range g.Nodes {
		key := key

		for alias, spec := range node.PeerDeps {
			found, ok, err := checkPeer(g, &key, alias, spec)
			if err != nil {
				return err
			}

			if ok {
				node.Peers[alias] = found
			}
		}
	}

	return nil
}

// checkPeer verifies one peer alias, returning the resolved node's key
// on success. Only the registry kind is enforced strictly (ok=false for
// others), since git/path/workspace peers have no name-indexed candidate
// space to report a missing/incompatible version against.
func checkPeer(g *Graph, declaringNode *pkgid.UnificationKey, alias pkgid.Alias, spec manifest.DependencySpec) (pkgid.UnificationKey, bool, error) {
	if spec.Kind != manifest.DependencyRegistry {
		return pkgid.UnificationKey{}, false, nil
	}

	name, err := pkgid.ParseName(spec.Name)
	if err != nil {
		return pkgid.UnificationKey{}, false, fmt.Errorf("peer %s: %w", alias, err)
	}

	constraint, err := pkgid.ParseConstraint(spec.VersionReq)
	if err != nil {
		return pkgid.UnificationKey{}, false, fmt.Errorf("peer %s: %w", alias, err)
	}

	reachable := reachableExcluding(g, declaringNode)

	var foundKey pkgid.UnificationKey

	var found *Node

	for key, node := range reachable {
		if node.ID.Name == name {
			foundKey = key
			found = node

			break
		}
	}

	if found == nil {
		consumer := "root"
		if declaringNode != nil {
			consumer = string(g.Nodes[*declaringNode].ID.Name)
		}

		return pkgid.UnificationKey{}, false, engineerr.MissingPeer(consumer, string(name))
	}

	if !constraint.Check(found.ID.Version) {
		return pkgid.UnificationKey{}, false, engineerr.PeerConflict(string(alias), constraint.String(), found.ID.Version.String())
	}

	return foundKey, true, nil
}

// reachableExcluding walks the graph's forward edges from root, skipping
// traversal into exclude (the node declaring the peer requirement being
// checked), so a peer cannot be satisfied solely by a package reachable
// only through the very node that needs it.
func reachableExcluding(g *Graph, exclude *pkgid.UnificationKey) map[pkgid.UnificationKey]*Node {
	visited := map[pkgid.UnificationKey]*Node{}

	var walk func(edges map[pkgid.Alias]pkgid.UnificationKey)

	walk = func(edges map[pkgid.Alias]pkgid.UnificationKey) {
		for _, key := range edges {
			if exclude != nil && key == *exclude {
				continue
			}

			if _, seen := visited[key]; seen {
				continue
			}

			node := g.Nodes[key]
			visited[key] = node

			walk(node.Edges)
		}
	}

	walk(g.RootEdges)

	return visited
}
