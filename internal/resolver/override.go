package resolver

import (
	"github.com/pesde-pm/pesde/internal/engineerr"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// applyOverride resolves spec §4.2 step 2: the longest entry in
// root.Overrides whose Path matches the tail of chain, strictly longer
// than floor (the chain depth at which an override last applied along
// this path), replaces spec. Overrides are sticky — once applied at
// depth d, only a path longer than d can override again beneath it.
func applyOverride(root *manifest.Manifest, chain []pkgid.Alias, floor int, spec manifest.DependencySpec) (manifest.DependencySpec, int, error) {
	bestLen := -1

	var best, tied *manifest.Override

	for i := range root.Overrides {
		ov := &root.Overrides[i]

		if len(ov.Path) <= floor || len(ov.Path) > len(chain) {
			continue
		}

		if !pathMatches(ov.Path, chain) {
			continue
		}

		switch {
		case len(ov.Path) > bestLen:
			bestLen = len(ov.Path)
			best = ov
			tied = nil
		case len(ov.Path) == bestLen:
			tied = ov
		}
	}

	if best == nil {
		return spec, floor, nil
	}

	if tied != nil {
		return spec, floor, engineerr.OverrideAmbiguous(string(chain[len(chain)-1]), []string{aliasPathString(best.Path), aliasPathString(tied.Path)})
	}

	return best.Replacement, bestLen, nil
}

// pathMatches reports whether path equals the trailing len(path)
// elements of chain, in order.
func pathMatches(path, chain []pkgid.Alias) bool {
	suffix := chain[len(chain)-len(path):]

	for i, a := range path {
		if suffix[i] != a {
			return false
		}
	}

	return true
}

func aliasPathString(path []pkgid.Alias) string {
	s := ""

	for i, a := range path {
		if i > 0 {
			s += "/"
		}

		s += string(a)
	}

	return s
}
