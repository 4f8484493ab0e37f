package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/pesde-pm/pesde/internal/config"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/source"
)

// fakeDriver implements source.Driver over an in-memory registry, so
// resolution can be exercised without a real index clone or HTTP fetch.
type fakeDriver struct {
	versions  map[pkgid.Name][]source.VersionEntry
	manifests map[string]*manifest.Manifest
}

func (f *fakeDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]source.VersionEntry, error) {
	return f.versions[name], nil
}

func (f *fakeDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	m, ok := f.manifests[string(id.Name)+"@"+id.Version.String()]
	if !ok {
		return nil, fmt.Errorf("fakeDriver: no manifest for %s", id)
	}

	return m, nil
}

func (f *fakeDriver) FetchContents(ctx context.Context, id pkgid.ID) (source.Contents, string, error) {
	return source.Contents{}, "", nil
}

type fakeDriverSource struct {
	reg *fakeDriver
}

func (f *fakeDriverSource) For(ref pkgid.SourceRef, workspace *source.WorkspaceDriver) (source.Driver, error) {
	return f.reg, nil
}

func (f *fakeDriverSource) Git() *source.GitDriver { return nil }

func mustVersion(t *testing.T, raw string) pkgid.Version {
	t.Helper()

	v, err := pkgid.ParseVersion(raw)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", raw, err)
	}

	return v
}

func testManifest(t *testing.T, name, version string, deps map[pkgid.Alias]manifest.DependencySpec) *manifest.Manifest {
	t.Helper()

	return &manifest.Manifest{
		Name:         name,
		Version:      version,
		Target:       manifest.Target{Kind: pkgid.TargetLune},
		Dependencies: deps,
		Indices:      map[string]string{"default": "https://pkgs.example.com"},
	}
}

func registrySpec(name, req string) manifest.DependencySpec {
	return manifest.DependencySpec{Kind: manifest.DependencyRegistry, Name: name, VersionReq: req}
}

func TestResolveSimpleRegistryDependency(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/foo": {
				{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune},
				{Version: mustVersion(t, "1.1.0"), Target: pkgid.TargetLune},
			},
		},
		manifests: map[string]*manifest.Manifest{
			"acme/foo@1.1.0": testManifest(t, "acme/foo", "1.1.0", nil),
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"foo": registrySpec("acme/foo", "^1.0.0"),
	})

	g, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	key, ok := g.RootEdges["foo"]
	if !ok {
		t.Fatal("root edge \"foo\" not recorded")
	}

	node := g.Lookup(key)
	if node == nil || node.ID.Version.String() != "1.1.0" {
		t.Fatalf("resolved node = %+v, want version 1.1.0", node)
	}
}

func TestResolveUnifiesSharedDependency(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/a": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
			"acme/b": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
			"acme/c": {
				{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune},
				{Version: mustVersion(t, "1.5.0"), Target: pkgid.TargetLune},
				{Version: mustVersion(t, "2.0.0"), Target: pkgid.TargetLune},
			},
		},
		manifests: map[string]*manifest.Manifest{
			"acme/a@1.0.0": testManifest(t, "acme/a", "1.0.0", map[pkgid.Alias]manifest.DependencySpec{
				"c": registrySpec("acme/c", ">=1.0.0, <2.0.0"),
			}),
			"acme/b@1.0.0": testManifest(t, "acme/b", "1.0.0", map[pkgid.Alias]manifest.DependencySpec{
				"c": registrySpec("acme/c", ">=1.2.0, <2.0.0"),
			}),
			"acme/c@1.5.0": testManifest(t, "acme/c", "1.5.0", nil),
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"a": registrySpec("acme/a", "^1.0.0"),
		"b": registrySpec("acme/b", "^1.0.0"),
	})

	g, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var cKeys []pkgid.UnificationKey

	for key, node := range g.Nodes {
		if node.ID.Name == "acme/c" {
			cKeys = append(cKeys, key)
		}
	}

	if len(cKeys) != 1 {
		t.Fatalf("expected acme/c unified to one node, got %d", len(cKeys))
	}

	if v := g.Nodes[cKeys[0]].ID.Version.String(); v != "1.5.0" {
		t.Fatalf("unified acme/c version = %s, want 1.5.0 (intersection of both constraints)", v)
	}
}

func TestResolveUnsatisfiableIntersection(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/a": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
			"acme/b": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
			"acme/c": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
		},
		manifests: map[string]*manifest.Manifest{
			"acme/a@1.0.0": testManifest(t, "acme/a", "1.0.0", map[pkgid.Alias]manifest.DependencySpec{
				"c": registrySpec("acme/c", "^1.0.0"),
			}),
			"acme/b@1.0.0": testManifest(t, "acme/b", "1.0.0", map[pkgid.Alias]manifest.DependencySpec{
				"c": registrySpec("acme/c", "^2.0.0"),
			}),
			"acme/c@1.0.0": testManifest(t, "acme/c", "1.0.0", nil),
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"a": registrySpec("acme/a", "^1.0.0"),
		"b": registrySpec("acme/b", "^1.0.0"),
	})

	if _, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{}, nil); err == nil {
		t.Fatal("expected unsatisfiable constraint error")
	}
}

func TestResolveIncompatibleTarget(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/foo": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetRoblox}},
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"foo": registrySpec("acme/foo", "^1.0.0"),
	})

	if _, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{}, nil); err == nil {
		t.Fatal("expected incompatible target error")
	}
}

func TestResolvePreserveLockedKeepsOldPinWhenStillValid(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/foo": {
				{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune},
				{Version: mustVersion(t, "1.1.0"), Target: pkgid.TargetLune},
			},
		},
		manifests: map[string]*manifest.Manifest{
			"acme/foo@1.0.0": testManifest(t, "acme/foo", "1.0.0", nil),
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"foo": registrySpec("acme/foo", "^1.0.0"),
	})

	key := pkgid.UnificationKey{SourceClass: pkgid.Registry("https://pkgs.example.com"), Name: "acme/foo", Target: pkgid.TargetLune}
	previous := LockedVersions{key: mustVersion(t, "1.0.0")}

	g, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{Mode: PreserveLocked}, previous)
	if err != nil {
		t.Fatal(err)
	}

	if v := g.Lookup(key).ID.Version.String(); v != "1.0.0" {
		t.Fatalf("version = %s, want preserved pin 1.0.0", v)
	}
}

func TestApplyOverrideLongestPathWins(t *testing.T) {
	root := &manifest.Manifest{
		Overrides: []manifest.Override{
			{Path: []pkgid.Alias{"c"}, Replacement: registrySpec("acme/c", "^2.0.0")},
			{Path: []pkgid.Alias{"a", "c"}, Replacement: registrySpec("acme/c", "^3.0.0")},
		},
	}

	spec := registrySpec("acme/c", "^1.0.0")

	got, floor, err := applyOverride(root, []pkgid.Alias{"a", "c"}, 0, spec)
	if err != nil {
		t.Fatal(err)
	}

	if got.VersionReq != "^3.0.0" {
		t.Fatalf("VersionReq = %q, want ^3.0.0 (longest path wins)", got.VersionReq)
	}

	if floor != 2 {
		t.Fatalf("floor = %d, want 2", floor)
	}
}

func TestApplyOverrideAmbiguous(t *testing.T) {
	root := &manifest.Manifest{
		Overrides: []manifest.Override{
			{Path: []pkgid.Alias{"a", "c"}, Replacement: registrySpec("acme/c", "^3.0.0")},
			{Path: []pkgid.Alias{"b", "c"}, Replacement: registrySpec("acme/c", "^4.0.0")},
		},
	}

	// Only the first path matches this chain tail as written, so force
	// an ambiguity by making the second path identical: two same-length
	// paths that both match.
	root.Overrides[1].Path = []pkgid.Alias{"a", "c"}

	spec := registrySpec("acme/c", "^1.0.0")

	if _, _, err := applyOverride(root, []pkgid.Alias{"a", "c"}, 0, spec); err == nil {
		t.Fatal("expected ambiguous override error")
	}
}

func TestApplyOverrideSticky(t *testing.T) {
	root := &manifest.Manifest{
		Overrides: []manifest.Override{
			{Path: []pkgid.Alias{"a"}, Replacement: registrySpec("acme/a", "^2.0.0")},
		},
	}

	spec := registrySpec("acme/a", "^1.0.0")

	// floor=1 simulates an override already applied at depth 1; a
	// same-length path must not re-apply.
	got, floor, err := applyOverride(root, []pkgid.Alias{"a"}, 1, spec)
	if err != nil {
		t.Fatal(err)
	}

	if got.VersionReq != "^1.0.0" || floor != 1 {
		t.Fatalf("got=%+v floor=%d, want unchanged spec (sticky override not re-applied)", got, floor)
	}
}

func TestTiebreakPrefersPinned(t *testing.T) {
	a := mustVersion(t, "1.0.0+aaa")
	b := mustVersion(t, "1.0.0+bbb")

	got := tiebreak([]pkgid.Version{a, b}, a)
	if got.String() != a.String() {
		t.Fatalf("tiebreak = %s, want pinned %s", got, a)
	}
}

func TestTiebreakLexicographicFallback(t *testing.T) {
	a := mustVersion(t, "1.0.0+aaa")
	b := mustVersion(t, "1.0.0+bbb")

	got := tiebreak([]pkgid.Version{a, b}, pkgid.Version{})
	if got.String() != b.String() {
		t.Fatalf("tiebreak = %s, want lexicographically-greatest %s", got, b)
	}
}

func TestResolvePeersMissingPeer(t *testing.T) {
	reg := &fakeDriver{
		versions: map[pkgid.Name][]source.VersionEntry{
			"acme/plugin": {{Version: mustVersion(t, "1.0.0"), Target: pkgid.TargetLune}},
		},
		manifests: map[string]*manifest.Manifest{
			"acme/plugin@1.0.0": {
				Name:    "acme/plugin",
				Version: "1.0.0",
				Target:  manifest.Target{Kind: pkgid.TargetLune},
				PeerDependencies: map[pkgid.Alias]manifest.DependencySpec{
					"host": registrySpec("acme/host", "^1.0.0"),
				},
				Indices: map[string]string{"default": "https://pkgs.example.com"},
			},
		},
	}

	root := testManifest(t, "acme/root", "0.1.0", map[pkgid.Alias]manifest.DependencySpec{
		"plugin": registrySpec("acme/plugin", "^1.0.0"),
	})

	_, err := Resolve(context.Background(), root, &fakeDriverSource{reg: reg}, nil, &config.Config{}, Policy{}, nil)
	if err == nil {
		t.Fatal("expected missing peer error")
	}
}
