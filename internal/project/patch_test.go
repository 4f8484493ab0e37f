package project

import (
	"path/filepath"
	"testing"

	"github.com/pesde-pm/pesde/internal/manifest"
)

func TestLoadLockfileOrEmptyToleratesMissingFile(t *testing.T) {
	lf, err := loadLockfileOrEmpty(filepath.Join(t.TempDir(), "pesde.lock"))
	if err != nil {
		t.Fatalf("loadLockfileOrEmpty: %v", err)
	}

	if lf == nil {
		t.Fatal("expected a non-nil empty lockfile")
	}

	if len(lf.Root) != 0 {
		t.Fatalf("expected an empty root map, got %v", lf.Root)
	}
}

func TestPatchEntryForMatchesByNameVersionTarget(t *testing.T) {
	p := &Project{Manifest: &manifest.Manifest{
		Patches: []manifest.PatchEntry{
			{Name: "acme/leaf", Version: "1.0.0", Target: "lune", File: "patches/acme-leaf-1.0.0-lune.patch"},
		},
	}}

	id := registryID(t, "acme/leaf", "1.0.0")

	entry := p.patchEntryFor(id)
	if entry == nil {
		t.Fatal("expected a matching patch entry")
	}

	if entry.File != "patches/acme-leaf-1.0.0-lune.patch" {
		t.Fatalf("unexpected file: %q", entry.File)
	}
}

func TestPatchEntryForReturnsNilWhenAbsent(t *testing.T) {
	p := &Project{Manifest: &manifest.Manifest{}}

	id := registryID(t, "acme/leaf", "1.0.0")

	if entry := p.patchEntryFor(id); entry != nil {
		t.Fatalf("expected no patch entry, got %+v", entry)
	}
}

func TestSanitizePathSegmentReplacesSeparators(t *testing.T) {
	if got := sanitizePathSegment("acme/leaf"); got != "acme-leaf" {
		t.Fatalf("expected acme-leaf, got %q", got)
	}
}
