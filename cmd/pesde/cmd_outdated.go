package main

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/lockfile"
	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// OutdatedCommand compares each locked registry dependency's current
// pinned version against the best version its constraint still allows
// and the best version available overall.
type OutdatedCommand struct {
	*BaseCommand
}

func (c *OutdatedCommand) Execute(ctx context.Context, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	lf, err := lockfile.Load(p.LockfilePath())
	if err != nil {
		return err
	}

	locked := map[string]string{}

	if lf != nil {
		for _, e := range lf.Packages {
			locked[e.Name] = e.Version
		}
	}

	fmt.Println("name  current  allowed  latest")

	for alias, spec := range p.Manifest.Dependencies {
		if spec.Kind != manifest.DependencyRegistry {
			continue
		}

		current := locked[spec.Name]
		if current == "" {
			current = "-"
		}

		constraint, err := pkgid.ParseConstraint(spec.VersionReq)
		if err != nil {
			fmt.Printf("%s  %s  error  error\n", alias, current)
			continue
		}

		entries, err := p.ListVersions(ctx, spec)
		if err != nil {
			fmt.Printf("%s  %s  error  error\n", alias, current)
			continue
		}

		var bestAllowed, bestOverall *pkgid.Version

		for _, e := range entries {
			v := e.Version

			if bestOverall == nil || v.GreaterThan(*bestOverall) {
				vv := v
				bestOverall = &vv
			}

			if constraint.Check(v) && (bestAllowed == nil || v.GreaterThan(*bestAllowed)) {
				vv := v
				bestAllowed = &vv
			}
		}

		allowedStr, overallStr := "-", "-"
		if bestAllowed != nil {
			allowedStr = bestAllowed.String()
		}

		if bestOverall != nil {
			overallStr = bestOverall.String()
		}

		fmt.Printf("%s  %s  %s  %s\n", alias, current, allowedStr, overallStr)
	}

	return nil
}
