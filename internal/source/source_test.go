package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

func writeManifest(t *testing.T, dir, name, version string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	raw := `{"name":"` + name + `","version":"` + version + `","target":{"kind":"lune"}}`

	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorkspaceDriverListVersions(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "packages", "hello"), "acme/hello", "1.2.3")

	d, err := NewWorkspaceDriver(manifest.NewCache(), root, []string{"packages/hello"})
	if err != nil {
		t.Fatal(err)
	}

	name, err := pkgid.ParseName("acme/hello")
	if err != nil {
		t.Fatal(err)
	}

	versions, err := d.ListVersions(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}

	if len(versions) != 1 || versions[0].Version.String() != "1.2.3" {
		t.Fatalf("ListVersions = %+v, want one entry at 1.2.3", versions)
	}
}

func TestPathDriverFetchManifestAt(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "../sibling"), "acme/sibling", "0.1.0")

	d := NewPathDriver(manifest.NewCache(), root)

	m, err := d.FetchManifestAt(context.Background(), "../sibling")
	if err != nil {
		t.Fatal(err)
	}

	if m.Name != "acme/sibling" {
		t.Fatalf("Name = %q, want acme/sibling", m.Name)
	}
}

func TestParseGitManifestSubstitutesSyntheticVersion(t *testing.T) {
	raw := `{"name":"acme/pinned","target":{"kind":"lune"}}`

	m, err := parseGitManifest([]byte(raw), "abcdef1234567890")
	if err != nil {
		t.Fatal(err)
	}

	if m.Version != "0.0.0+abcdef1" {
		t.Fatalf("Version = %q, want synthetic pin 0.0.0+abcdef1", m.Version)
	}
}

func TestParseGitManifestKeepsDeclaredVersion(t *testing.T) {
	raw := `{"name":"acme/pinned","version":"2.0.0","target":{"kind":"lune"}}`

	m, err := parseGitManifest([]byte(raw), "abcdef1234567890")
	if err != nil {
		t.Fatal(err)
	}

	if m.Version != "2.0.0" {
		t.Fatalf("Version = %q, want 2.0.0", m.Version)
	}
}

func TestForSpecRegistry(t *testing.T) {
	spec := manifest.DependencySpec{Kind: manifest.DependencyRegistry, Name: "scope/hello", VersionReq: "^1.0.0"}

	ref, err := ForSpec(spec, map[string]string{"default": "https://pkgs.example.com"})
	if err != nil {
		t.Fatal(err)
	}

	if ref.IndexURL != "https://pkgs.example.com" {
		t.Fatalf("IndexURL = %q, want https://pkgs.example.com", ref.IndexURL)
	}
}

func TestForSpecUnknownIndexAlias(t *testing.T) {
	spec := manifest.DependencySpec{Kind: manifest.DependencyRegistry, Name: "scope/hello", VersionReq: "^1.0.0", IndexAlias: "missing"}

	if _, err := ForSpec(spec, map[string]string{"default": "https://pkgs.example.com"}); err == nil {
		t.Fatalf("expected error for unknown index alias")
	}
}

