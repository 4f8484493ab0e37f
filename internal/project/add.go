package project

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// Add records a new dependency under alias in the manifest, persists it,
// and re-resolves/installs so the lockfile and dependency directory stay
// in sync with what was just declared.
func (p *Project) Add(ctx context.Context, alias pkgid.Alias, spec manifest.DependencySpec, dev bool) (*Summary, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("add %s: %w", alias, err)
	}

	var target map[pkgid.Alias]manifest.DependencySpec

	if dev {
		if p.Manifest.DevDependencies == nil {
			p.Manifest.DevDependencies = map[pkgid.Alias]manifest.DependencySpec{}
		}

		target = p.Manifest.DevDependencies
	} else {
		if p.Manifest.Dependencies == nil {
			p.Manifest.Dependencies = map[pkgid.Alias]manifest.DependencySpec{}
		}

		target = p.Manifest.Dependencies
	}

	target[alias] = spec

	if err := p.saveManifest(); err != nil {
		return nil, err
	}

	return p.Install(ctx, resolver.Policy{Mode: resolver.PreserveLocked}, InstallOptions{})
}

// Remove drops alias from the manifest (dependencies or dev_dependencies,
// whichever has it) and re-installs.
func (p *Project) Remove(ctx context.Context, alias pkgid.Alias) (*Summary, error) {
	found := false

	if _, ok := p.Manifest.Dependencies[alias]; ok {
		delete(p.Manifest.Dependencies, alias)
		found = true
	}

	if _, ok := p.Manifest.DevDependencies[alias]; ok {
		delete(p.Manifest.DevDependencies, alias)
		found = true
	}

	if !found {
		return nil, fmt.Errorf("remove %s: not a dependency of %s", alias, p.Manifest.Name)
	}

	if err := p.saveManifest(); err != nil {
		return nil, err
	}

	return p.Install(ctx, resolver.Policy{Mode: resolver.PreserveLocked}, InstallOptions{})
}
