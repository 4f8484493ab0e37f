package store

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	digest "github.com/opencontainers/go-digest"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/source"
)

func buildTarballBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte(`{"name":"acme/foo","version":"1.0.0"}`)
	hdr := &tar.Header{Name: "pesde.json", Mode: 0o644, Size: int64(len(content))}

	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}

	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

// fakeDriver implements source.Driver, serving either a fresh tarball
// reader or a fixed local directory on every FetchContents call, and
// counting how many times it was invoked.
type fakeDriver struct {
	tarball  []byte
	digest   string
	localDir string

	calls int32
}

func (d *fakeDriver) ListVersions(ctx context.Context, name pkgid.Name) ([]source.VersionEntry, error) {
	return nil, nil
}

func (d *fakeDriver) FetchManifest(ctx context.Context, id pkgid.ID) (*manifest.Manifest, error) {
	return nil, nil
}

func (d *fakeDriver) FetchContents(ctx context.Context, id pkgid.ID) (source.Contents, string, error) {
	atomic.AddInt32(&d.calls, 1)

	if d.localDir != "" {
		return source.Contents{LocalDir: d.localDir}, "", nil
	}

	return source.Contents{TarballReader: io.NopCloser(bytes.NewReader(d.tarball))}, d.digest, nil
}

func testID(t *testing.T) pkgid.ID {
	t.Helper()

	v, err := pkgid.ParseVersion("1.0.0")
	if err != nil {
		t.Fatal(err)
	}

	return pkgid.ID{
		Source:  pkgid.Registry("https://index.example.com"),
		Name:    "acme/foo",
		Version: v,
		Target:  pkgid.TargetLune,
	}
}

func TestEnsureMaterializesTarballAndRecordsDigest(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tarball := buildTarballBytes(t)

	sum := digest.FromBytes(tarball)
	d := &fakeDriver{tarball: tarball, digest: sum.String()}

	id := testID(t)
	m := &manifest.Manifest{Name: "acme/foo", Version: "1.0.0"}

	dir, err := s.Ensure(context.Background(), id, d, m, sum.String())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "pesde.json")); err != nil {
		t.Fatalf("expected extracted pesde.json: %v", err)
	}

	got, err := s.Digest(id)
	if err != nil {
		t.Fatal(err)
	}

	if got != sum.String() {
		t.Fatalf("Digest() = %q, want %q", got, sum.String())
	}
}

func TestEnsureRejectsDigestMismatch(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tarball := buildTarballBytes(t)
	d := &fakeDriver{tarball: tarball, digest: "sha256:0000000000000000000000000000000000000000000000000000000000000000"}

	id := testID(t)
	m := &manifest.Manifest{Name: "acme/foo", Version: "1.0.0"}

	if _, err := s.Ensure(context.Background(), id, d, m, ""); err == nil {
		t.Fatal("expected digest mismatch error")
	}

	if _, err := os.Stat(s.Dir(id)); !os.IsNotExist(err) {
		t.Fatal("a failed materialization must not leave a committed store entry")
	}
}

func TestEnsureIsSingleFlightForConcurrentCallers(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	tarball := buildTarballBytes(t)
	sum := digest.FromBytes(tarball)
	d := &fakeDriver{tarball: tarball, digest: sum.String()}

	id := testID(t)
	m := &manifest.Manifest{Name: "acme/foo", Version: "1.0.0"}

	var wg sync.WaitGroup

	errs := make([]error, 8)

	for i := range errs {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, err := s.Ensure(context.Background(), id, d, m, sum.String())
			errs[i] = err
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if calls := atomic.LoadInt32(&d.calls); calls != 1 {
		t.Fatalf("expected exactly one FetchContents call across concurrent Ensure callers, got %d", calls)
	}
}

func TestEnsureLocalDirPassesThroughWithoutMaterializing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	local := t.TempDir()
	d := &fakeDriver{localDir: local}

	id := testID(t)
	m := &manifest.Manifest{Name: "acme/foo", Version: "1.0.0"}

	dir, err := s.Ensure(context.Background(), id, d, m, "")
	if err != nil {
		t.Fatal(err)
	}

	if dir != local {
		t.Fatalf("Ensure() = %q, want the driver's local dir %q unmodified", dir, local)
	}

	if _, err := os.Stat(s.Dir(id)); !os.IsNotExist(err) {
		t.Fatal("local-dir contents must not be copied into the store")
	}
}

func TestDigestNotFoundForUnmaterializedID(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Digest(testID(t)); err == nil {
		t.Fatal("expected an error looking up the digest of an id never materialized")
	}
}
