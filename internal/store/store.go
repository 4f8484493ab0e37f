// Package store implements the content-addressed materialization cache
// described in spec §4.3: a directory tree keyed by (source class, name,
// version, target), filled in exactly once per id via a single-flight
// fetch+extract, and never mutated afterward except by an external gc.
package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pesde-pm/pesde/internal/download"
	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/source"
)

const (
	contentsSubdir = "contents"
	integrityFile  = ".integrity"
	lockFile       = ".lock"
)

// Store is the on-disk cache rooted at a directory, normally
// config.Config.StoreRoot. It is safe for concurrent use from multiple
// goroutines (in-process singleflight) and multiple processes
// (.lock-file based advisory locking).
type Store struct {
	root string

	sf      singleflight.Group
	limits  download.Limits
	lockTTL time.Duration
}

// New builds a Store rooted at root, creating the directory if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}

	return &Store{root: root, limits: download.DefaultLimits(), lockTTL: 5 * time.Minute}, nil
}

// Dir returns the package's on-disk directory:
// <root>/<source-class>/<name>/<version>/<target>/
func (s *Store) Dir(id pkgid.ID) string {
	return filepath.Join(s.root, classSegment(id.Source), string(id.Name), id.Version.String(), string(id.Target))
}

// ContentsDir returns the directory that holds the extracted package
// files, for a tarball-backed id.
func (s *Store) ContentsDir(id pkgid.ID) string {
	return filepath.Join(s.Dir(id), contentsSubdir)
}

func (s *Store) manifestPath(id pkgid.ID) string {
	return filepath.Join(s.Dir(id), manifest.FileName)
}

func (s *Store) integrityPath(id pkgid.ID) string {
	return filepath.Join(s.Dir(id), integrityFile)
}

// lockPath is a sibling of Dir(id) (<dir>.lock), so holding the lock
// creates nothing inside the directory the final rename commits.
func (s *Store) lockPath(id pkgid.ID) string {
	return s.Dir(id) + lockFile
}

// classSegment renders a SourceRef.Class() as a filesystem-safe path
// segment. The class string can contain URLs (colons, slashes) that are
// not valid path components on every platform, so the kind is kept for
// readability and the full identity is folded into a short hash to stay
// collision-free across distinct indices/repos of the same kind.
func classSegment(ref pkgid.SourceRef) string {
	class := ref.Class()

	sum := sha256.Sum256([]byte(class.String()))

	return string(class.Kind) + "-" + hex.EncodeToString(sum[:])[:16]
}

// Ensure materializes id's contents, returning the directory a consumer
// should read (or symlink to) package files from. Dependencies whose
// driver serves a local directory (git, workspace, path — see each
// driver's FetchContents) are never copied into the store; Ensure simply
// returns that directory, matching spec §4.1/§4.5's "not copied but
// symlinked" rule for those kinds.
//
// expectedDigest is the digest the caller already trusts (the registry
// index entry's recorded digest); pass "" to trust-on-first-fetch, which
// is spec §4.3's rule for git contents — though git contents never reach
// the tarball path at all, since GitDriver.FetchContents returns a local
// checkout directory.
func (s *Store) Ensure(ctx context.Context, id pkgid.ID, driver source.Driver, m *manifest.Manifest, expectedDigest string) (string, error) {
	dir := s.Dir(id)

	if _, err := os.Stat(s.integrityPath(id)); err == nil {
		return s.ContentsDir(id), nil
	}

	key := dir

	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.ensureLocked(ctx, id, driver, m, expectedDigest)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (s *Store) ensureLocked(ctx context.Context, id pkgid.ID, driver source.Driver, m *manifest.Manifest, expectedDigest string) (string, error) {
	if _, err := os.Stat(s.integrityPath(id)); err == nil {
		return s.ContentsDir(id), nil
	}

	release, err := s.acquireFileLock(ctx, id)
	if err != nil {
		return "", err
	}
	defer release()

	if _, err := os.Stat(s.integrityPath(id)); err == nil {
		return s.ContentsDir(id), nil
	}

	contents, driverDigest, err := driver.FetchContents(ctx, id)
	if err != nil {
		return "", err
	}

	if contents.IsLocalDir() {
		return contents.LocalDir, nil
	}
	defer contents.TarballReader.Close()

	dir := s.Dir(id)

	tmpDir := dir + ".tmp-" + randomSuffix()
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", err
	}

	defer os.RemoveAll(tmpDir)

	binNames := map[string]bool{}
	if m.Target.Bin != "" {
		binNames[strings.TrimPrefix(filepath.ToSlash(m.Target.Bin), "./")] = true
	}

	result, err := download.Extract(contents.TarballReader, filepath.Join(tmpDir, contentsSubdir), binNames, s.limits)
	if err != nil {
		return "", err
	}

	got := result.Digest.String()

	want := expectedDigest
	if want == "" {
		want = driverDigest
	}

	if want != "" && want != got {
		return "", engineerr.DigestMismatch(want, got)
	}

	manifestBytes, err := m.Marshal()
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(tmpDir, manifest.FileName), manifestBytes, 0o644); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(tmpDir, integrityFile), []byte(got), 0o644); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", err
	}

	// Atomic with respect to readers: the store is filled in under a
	// sibling path and only made visible by a single rename, per spec
	// §4.3's "writes into a temp sibling and renames" contract.
	if err := os.Rename(tmpDir, dir); err != nil {
		return "", fmt.Errorf("commit store entry %s: %w", dir, err)
	}

	return s.ContentsDir(id), nil
}

// Digest satisfies lockfile.DigestLookup: it reports the digest this
// store currently holds for id, or an error if the id was never
// materialized (or is a local-dir kind the store never digests).
func (s *Store) Digest(id pkgid.ID) (string, error) {
	data, err := os.ReadFile(s.integrityPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", engineerr.NotFound(fmt.Sprintf("store entry %s", id))
		}

		return "", fmt.Errorf("read integrity for %s: %w", id, err)
	}

	return string(data), nil
}

// acquireFileLock implements the per-entry advisory lock spec §5
// requires to serialize concurrent materialization of the same id across
// processes: an exclusive-create of a sentinel file, retried with
// backoff, with a TTL past which a stale lock (crashed holder) is
// reclaimed.
func (s *Store) acquireFileLock(ctx context.Context, id pkgid.ID) (release func(), err error) {
	path := s.lockPath(id)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	backoff := 25 * time.Millisecond

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()

			return func() { os.Remove(path) }, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire store lock %s: %w", path, err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > s.lockTTL {
			os.Remove(path)

			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func randomSuffix() string {
	var b [8]byte

	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is catastrophic for the host; a
		// process-unique fallback still avoids temp-dir collisions.
		return hex.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}

	return hex.EncodeToString(b[:])
}
