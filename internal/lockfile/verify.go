package lockfile

import (
	"fmt"

	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// DigestLookup resolves the digest the content store currently holds for
// id. Taking this as a callback rather than importing internal/store
// directly keeps lockfile free of a dependency on the store's on-disk
// layout; internal/project wires store.Store.Digest in as the lookup.
type DigestLookup func(id pkgid.ID) (string, error)

// Verify checks every entry's recorded integrity digest against what the
// store currently holds, per spec §4.3's integrity contract. Entries
// with no recorded digest (not yet materialized) are skipped.
func (l *Lockfile) Verify(lookup DigestLookup) error {
	for _, e := range l.Packages {
		if e.Integrity == "" {
			continue
		}

		v, err := pkgid.ParseVersion(e.Version)
		if err != nil {
			return fmt.Errorf("lockfile entry %s: %w", e.Key, err)
		}

		target, err := pkgid.ParseTargetKind(e.Target)
		if err != nil {
			return fmt.Errorf("lockfile entry %s: %w", e.Key, err)
		}

		name, err := pkgid.ParseName(e.Name)
		if err != nil {
			return fmt.Errorf("lockfile entry %s: %w", e.Key, err)
		}

		id := pkgid.ID{Source: e.Source, Name: name, Version: v, Target: target}

		got, err := lookup(id)
		if err != nil {
			return err
		}

		if got != e.Integrity {
			return engineerr.DigestMismatch(e.Integrity, got)
		}
	}

	return nil
}
