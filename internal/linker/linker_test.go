package linker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
)

func mustVersion(t *testing.T, raw string) pkgid.Version {
	t.Helper()

	v, err := pkgid.ParseVersion(raw)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", raw, err)
	}

	return v
}

func registryID(t *testing.T, name, version string, target pkgid.TargetKind) pkgid.ID {
	t.Helper()

	return pkgid.ID{
		Source:  pkgid.Registry("https://registry.example/index"),
		Name:    pkgid.Name(name),
		Version: mustVersion(t, version),
		Target:  target,
	}
}

func writeContentFile(t *testing.T, dir, name, body string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// buildGraph wires a root package depending on a single leaf package
// directly, mirroring resolver.Graph's shape without going through
// actual resolution (its helpers are unexported).
func buildGraph(t *testing.T) (*resolver.Graph, pkgid.UnificationKey) {
	t.Helper()

	leafID := registryID(t, "acme/leaf", "1.0.0", pkgid.TargetLune)
	leafKey := leafID.UnificationKey()

	leafNode := &resolver.Node{
		ID:       leafID,
		Manifest: &manifest.Manifest{},
		Edges:    map[pkgid.Alias]pkgid.UnificationKey{},
		Peers:    map[pkgid.Alias]pkgid.UnificationKey{},
	}

	g := &resolver.Graph{
		Root:      &manifest.Manifest{},
		RootEdges: map[pkgid.Alias]pkgid.UnificationKey{"leaf": leafKey},
		RootPeers: map[pkgid.Alias]pkgid.UnificationKey{},
		Nodes:     map[pkgid.UnificationKey]*resolver.Node{leafKey: leafNode},
	}

	return g, leafKey
}

func TestMaterializeCreatesIndexFolderAndRootStub(t *testing.T) {
	projectRoot := t.TempDir()
	contentsRoot := t.TempDir()

	g, leafKey := buildGraph(t)

	leafContents := filepath.Join(contentsRoot, "leaf")
	writeContentFile(t, leafContents, "init.luau", "return {}\n")

	sources := Sources{leafKey: {ContentsDir: leafContents}}

	result, err := Materialize(g, pkgid.TargetLune, projectRoot, sources)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	if _, ok := result.Methods[leafKey]; !ok {
		t.Fatalf("expected a recorded link method for leaf")
	}

	pkgDir := filepath.Join(projectRoot, "lune_packages", indexDirName, "acme/leaf", "1.0.0", "lune")
	if _, err := os.Stat(filepath.Join(pkgDir, "init.luau")); err != nil {
		t.Fatalf("expected package contents at %s: %v", pkgDir, err)
	}

	rootStub := filepath.Join(projectRoot, "lune_packages", "leaf.luau")
	data, err := os.ReadFile(rootStub)
	if err != nil {
		t.Fatalf("expected root alias stub: %v", err)
	}

	want := "return require(\"./.pesde/acme/leaf/1.0.0/lune/init\")\n"
	if string(data) != want {
		t.Fatalf("root stub content = %q, want %q", data, want)
	}
}

func TestMaterializeGeneratesRobloxRequireChain(t *testing.T) {
	projectRoot := t.TempDir()
	contentsRoot := t.TempDir()

	g, leafKey := buildGraph(t)
	g.Nodes[leafKey].ID.Target = pkgid.TargetRoblox
	g.Nodes[leafKey].Manifest = &manifest.Manifest{}

	leafContents := filepath.Join(contentsRoot, "leaf")
	writeContentFile(t, leafContents, "init.luau", "return {}\n")

	sources := Sources{leafKey: {ContentsDir: leafContents}}

	if _, err := Materialize(g, pkgid.TargetRoblox, projectRoot, sources); err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	rootStub := filepath.Join(projectRoot, "roblox_packages", "leaf.luau")
	data, err := os.ReadFile(rootStub)
	if err != nil {
		t.Fatalf("expected root alias stub: %v", err)
	}

	want := "return require(script.Parent:WaitForChild(\".pesde\"):WaitForChild(\"acme\"):WaitForChild(\"leaf\"):WaitForChild(\"1.0.0\"):WaitForChild(\"roblox\"):WaitForChild(\"init\"))\n"
	if string(data) != want {
		t.Fatalf("roblox stub content = %q, want %q", data, want)
	}
}

func TestMaterializeIsIdempotent(t *testing.T) {
	projectRoot := t.TempDir()
	contentsRoot := t.TempDir()

	g, leafKey := buildGraph(t)

	leafContents := filepath.Join(contentsRoot, "leaf")
	writeContentFile(t, leafContents, "init.luau", "return {}\n")

	sources := Sources{leafKey: {ContentsDir: leafContents}}

	if _, err := Materialize(g, pkgid.TargetLune, projectRoot, sources); err != nil {
		t.Fatalf("first Materialize: %v", err)
	}

	pkgDir := filepath.Join(projectRoot, "lune_packages", indexDirName, "acme/leaf", "1.0.0", "lune")

	before, err := os.Lstat(pkgDir)
	if err != nil {
		t.Fatalf("Lstat before re-run: %v", err)
	}

	if _, err := Materialize(g, pkgid.TargetLune, projectRoot, sources); err != nil {
		t.Fatalf("second Materialize: %v", err)
	}

	after, err := os.Lstat(pkgDir)
	if err != nil {
		t.Fatalf("Lstat after re-run: %v", err)
	}

	if before.Mode() != after.Mode() {
		t.Fatalf("re-materializing changed the link's mode: %v -> %v", before.Mode(), after.Mode())
	}
}

func TestDepsDirForNamesPerTarget(t *testing.T) {
	cases := map[pkgid.TargetKind]string{
		pkgid.TargetLune:         "lune_packages",
		pkgid.TargetRoblox:       "roblox_packages",
		pkgid.TargetRobloxServer: "roblox_server_packages",
	}

	for target, want := range cases {
		if got := DepsDirFor(target); got != want {
			t.Errorf("DepsDirFor(%s) = %q, want %q", target, got, want)
		}
	}
}

func TestCopyTreeCopiesFileContents(t *testing.T) {
	src := t.TempDir()
	writeContentFile(t, src, "a.txt", "hello")

	destParent := t.TempDir()
	dest := filepath.Join(destParent, "pkg")

	// Force the copy path directly, independent of this host's actual
	// symlink support, by exercising copyTree the same way linkPackageDir
	// falls back to it.
	if err := copyTree(src, dest); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data) != "hello" {
		t.Fatalf("copied content = %q, want %q", data, "hello")
	}
}

func TestLinkPackageDirPrefersSymlinkWhenSupported(t *testing.T) {
	if !symlinksSupported(t.TempDir()) {
		t.Skip("host does not support symlinks")
	}

	src := t.TempDir()
	writeContentFile(t, src, "a.txt", "hello")

	destParent := t.TempDir()
	dest := filepath.Join(destParent, "pkg")

	method, err := linkPackageDir(src, dest)
	if err != nil {
		t.Fatalf("linkPackageDir: %v", err)
	}

	if method != LinkSymlink {
		t.Fatalf("method = %v, want %v", method, LinkSymlink)
	}

	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}

	if target != src {
		t.Fatalf("symlink target = %q, want %q", target, src)
	}

	// Re-running must be a no-op: same method, no re-creation.
	again, err := linkPackageDir(src, dest)
	if err != nil {
		t.Fatalf("second linkPackageDir: %v", err)
	}

	if again != LinkSymlink {
		t.Fatalf("second method = %v, want %v", again, LinkSymlink)
	}
}
