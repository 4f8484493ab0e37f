package resolver

import "github.com/pesde-pm/pesde/internal/pkgid"

// tiebreak picks among precedence-equal versions — candidates whose
// semver ordering is tied, distinguished only by build metadata such as
// a git short-SHA — per spec.md §9's Open Question: prefer one already
// pinned in the previous lockfile, else the lexicographically-greatest
// raw version string (a version's own string already carries whatever
// build-metadata identifier disambiguates it; registry entries carry no
// separate artifact identifier to break ties on instead).
func tiebreak(tied []pkgid.Version, pinned pkgid.Version) pkgid.Version {
	if pinned.Semver() != nil {
		for _, v := range tied {
			if v.String() == pinned.String() {
				return v
			}
		}
	}

	best := tied[0]

	for _, v := range tied[1:] {
		if v.String() > best.String() {
			best = v
		}
	}

	return best
}
