// Package download implements the streaming fetch/extract pipeline that
// turns a package's tarball bytes into a validated directory tree: spec
// §4.4's gzip-decode, path-sanitize, single-top-level-dir-strip, and
// size/count-capped extraction.
package download

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/pesde-pm/pesde/internal/engineerr"
)

// Limits bounds a single extraction, generalized from the teacher's
// SecurityConfig (input_validation.go): that type caps JSON payload
// size/depth; this caps archive entry size/count the same way, for the
// same reason (an untrusted producer must not be able to exhaust disk or
// memory during extraction).
type Limits struct {
	MaxEntrySize  int64 // decompressed bytes, per entry
	MaxTotalSize  int64 // decompressed bytes, whole archive
	MaxEntryCount int
}

// DefaultLimits mirrors the teacher's order-of-magnitude defaults
// (DefaultSecurityConfig used 50 MiB/64 KiB/10000 for JSON; a package
// tarball is coarser-grained so the caps scale up accordingly).
func DefaultLimits() Limits {
	return Limits{
		MaxEntrySize:  256 * 1024 * 1024,
		MaxTotalSize:  1024 * 1024 * 1024,
		MaxEntryCount: 65536,
	}
}

// Result reports what Extract actually wrote.
type Result struct {
	// Digest is the content digest of the raw (pre-decompression)
	// tarball bytes, computed while streaming — the value spec §4.3
	// compares against the index entry's recorded digest (registry) or
	// trusts on first fetch (git).
	Digest digest.Digest
	// BinNames lists entries written with the executable bit set.
	BinNames []string
}

// Extract streams r (gzip-compressed tar) into destDir, which must not
// yet exist or must be empty. binNames marks entries (by their
// archive-relative path, after top-level-dir stripping) that must keep
// their executable bit; every other file gets mode 0o644.
func Extract(r io.Reader, destDir string, binNames map[string]bool, limits Limits) (Result, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, err
	}

	digester := digest.Canonical.Digester()
	tee := io.TeeReader(r, digester.Hash())

	gz, err := gzip.NewReader(tee)
	if err != nil {
		return Result{}, engineerr.TarballMalformed("not a valid gzip stream: " + err.Error())
	}
	defer gz.Close()

	entries, stripPrefix, err := readEntries(gz, limits)
	if err != nil {
		return Result{}, err
	}

	binSet := map[string]bool{}
	for k := range binNames {
		binSet[k] = true
	}

	written := map[string]bool{}

	for _, e := range entries {
		rel := strings.TrimPrefix(e.name, stripPrefix)
		rel = strings.TrimPrefix(rel, "/")

		if rel == "" {
			continue
		}

		if err := writeEntry(destDir, rel, e, binSet[rel]); err != nil {
			return Result{}, err
		}

		if binSet[rel] && e.typeflag == tar.TypeReg {
			written[rel] = true
		}
	}

	// Drain any trailing bytes so the digester sees the whole stream
	// even if the tar reader stopped short of EOF.
	_, _ = io.Copy(io.Discard, tee)

	return Result{Digest: digester.Digest(), BinNames: binNames2slice(written)}, nil
}

func binNames2slice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	return out
}

type rawEntry struct {
	name     string
	typeflag byte
	mode     int64
	linkname string
	data     []byte
}

// readEntries buffers every archive entry into memory (package tarballs
// are bounded by MaxTotalSize, so this is safe) and determines the
// single shared top-level directory, if any, per spec §4.4: "stripped if
// and only if every entry shares it".
func readEntries(r io.Reader, limits Limits) ([]rawEntry, string, error) {
	tr := tar.NewReader(r)

	var (
		entries   []rawEntry
		total     int64
		sharedTop string
		first     = true
	)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, "", engineerr.TarballMalformed("read tar entry: " + err.Error())
		}

		if len(entries) >= limits.MaxEntryCount {
			return nil, "", engineerr.SizeExceeded("entry count", int64(limits.MaxEntryCount), int64(len(entries)+1))
		}

		name, err := sanitizeEntryPath(hdr.Name)
		if err != nil {
			return nil, "", err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			entries = append(entries, rawEntry{name: name, typeflag: hdr.Typeflag})

			continue
		case tar.TypeSymlink, tar.TypeLink:
			target, err := sanitizeEntryPath(hdr.Linkname)
			if err != nil {
				return nil, "", engineerr.PathEscape(hdr.Linkname)
			}

			entries = append(entries, rawEntry{name: name, typeflag: hdr.Typeflag, linkname: target})

			continue
		case tar.TypeReg:
			// fallthrough to read the body below
		default:
			continue
		}

		if hdr.Size > limits.MaxEntrySize {
			return nil, "", engineerr.SizeExceeded("entry size", limits.MaxEntrySize, hdr.Size)
		}

		total += hdr.Size
		if total > limits.MaxTotalSize {
			return nil, "", engineerr.SizeExceeded("total archive size", limits.MaxTotalSize, total)
		}

		buf := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, buf); err != nil {
			return nil, "", engineerr.TarballMalformed("read entry body: " + err.Error())
		}

		entries = append(entries, rawEntry{name: name, typeflag: hdr.Typeflag, mode: hdr.Mode, data: buf})

		top := topSegment(name)
		if first {
			sharedTop = top
			first = false
		} else if top != sharedTop {
			sharedTop = ""
		}
	}

	prefix := ""
	if sharedTop != "" {
		prefix = sharedTop + "/"
	}

	return entries, prefix, nil
}

func topSegment(name string) string {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}

	return name
}

// sanitizeEntryPath enforces spec §4.4: relative, no absolute paths, no
// ".." segments — generalized from the teacher's regex-based
// path-traversal block (input_validation.go's `\.\./` pattern) to a
// proper segment-wise check, which a regex cannot fully guarantee against
// encoded or platform-specific traversal forms.
func sanitizeEntryPath(name string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(name))

	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", engineerr.PathEscape(name)
	}

	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", engineerr.PathEscape(name)
		}
	}

	return clean, nil
}

func writeEntry(destDir, rel string, e rawEntry, isBin bool) error {
	target := filepath.Join(destDir, rel)

	// filepath.Join already cleans ".." segments away, but destDir must
	// still be a strict ancestor of target in case rel resolved to "."
	// after stripping.
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
		return engineerr.PathEscape(rel)
	}

	switch e.typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		return os.Symlink(e.linkname, target)
	case tar.TypeLink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		return os.Link(filepath.Join(destDir, e.linkname), target)
	default:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		mode := os.FileMode(0o644)
		if isBin {
			mode = 0o755
		}

		return os.WriteFile(target, e.data, mode)
	}
}
