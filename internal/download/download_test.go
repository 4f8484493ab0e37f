package download

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func buildTarball(t *testing.T, entries map[string]string, topDir string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for name, content := range entries {
		full := name
		if topDir != "" {
			full = topDir + "/" + name
		}

		hdr := &tar.Header{Name: full, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}

		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func TestExtractStripsSharedTopLevelDir(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"pesde.json": `{"name":"acme/foo","version":"1.0.0"}`,
		"src/init.luau": "return {}",
	}, "acme-foo-1.0.0")

	dest := t.TempDir()

	result, err := Extract(bytes.NewReader(data), dest, nil, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	if result.Digest == "" {
		t.Fatal("expected a non-empty digest")
	}

	if _, err := os.Stat(filepath.Join(dest, "pesde.json")); err != nil {
		t.Fatalf("expected stripped pesde.json: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "acme-foo-1.0.0")); err == nil {
		t.Fatal("top-level directory should have been stripped, not preserved")
	}
}

func TestExtractPreservesMultipleTopLevelEntries(t *testing.T) {
	// two distinct top-level directories prevent any stripping.
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	write := func(name, content string) {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}

		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	write("a/one.txt", "1")
	write("b/two.txt", "2")
	tw.Close()
	gz.Close()

	dest := t.TempDir()

	if _, err := Extract(bytes.NewReader(buf.Bytes()), dest, nil, DefaultLimits()); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dest, "a", "one.txt")); err != nil {
		t.Fatalf("expected a/one.txt preserved: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "b", "two.txt")); err != nil {
		t.Fatalf("expected b/two.txt preserved: %v", err)
	}
}

func TestExtractSetsExecutableBitForBinNames(t *testing.T) {
	data := buildTarball(t, map[string]string{
		"bin/tool": "#!/bin/sh\necho hi\n",
	}, "pkg")

	dest := t.TempDir()

	_, err := Extract(bytes.NewReader(data), dest, map[string]bool{"bin/tool": true}, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dest, "bin", "tool"))
	if err != nil {
		t.Fatal(err)
	}

	if info.Mode().Perm()&0o100 == 0 {
		t.Fatal("expected executable bit set on bin-marked file")
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{Name: "../../etc/passwd", Mode: 0o644, Size: 4}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}

	if _, err := tw.Write([]byte("evil")); err != nil {
		t.Fatal(err)
	}

	tw.Close()
	gz.Close()

	dest := t.TempDir()

	if _, err := Extract(bytes.NewReader(buf.Bytes()), dest, nil, DefaultLimits()); err == nil {
		t.Fatal("expected path-escape rejection")
	}
}

func TestExtractRejectsOversizedEntry(t *testing.T) {
	data := buildTarball(t, map[string]string{"big.txt": "0123456789"}, "")

	dest := t.TempDir()

	limits := DefaultLimits()
	limits.MaxEntrySize = 4

	if _, err := Extract(bytes.NewReader(data), dest, nil, limits); err == nil {
		t.Fatal("expected size-exceeded rejection")
	}
}

func TestExtractIsDeterministicDigestForSameBytes(t *testing.T) {
	data := buildTarball(t, map[string]string{"a.txt": "same"}, "")

	r1, err := Extract(bytes.NewReader(data), t.TempDir(), nil, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	r2, err := Extract(bytes.NewReader(data), t.TempDir(), nil, DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}

	if r1.Digest != r2.Digest {
		t.Fatalf("digests differ for identical input: %s vs %s", r1.Digest, r2.Digest)
	}
}
