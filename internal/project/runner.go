package project

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// Runner executes a project's manifest-declared scripts and installed
// binary packages. The actual Lune/Roblox-Studio launch mechanics are an
// external collaborator (spec.md calls out the scripts-runner as out of
// scope) — project only looks up what to run and delegates to Runner.
type Runner interface {
	// Run executes entry (a script command or a package's bin path)
	// with args, in dir.
	Run(ctx context.Context, dir string, entry string, args []string) error
}

// Run executes one of the manifest's `scripts` entries by name.
func (p *Project) Run(ctx context.Context, runner Runner, script string, args []string) error {
	entry, ok := p.Manifest.Scripts[script]
	if !ok {
		return fmt.Errorf("run %s: no such script declared in %s", script, p.Manifest.Name)
	}

	return runner.Run(ctx, p.Root, entry, args)
}

// X runs alias's installed binary entry point directly, without it
// needing to be declared as a script — the one-shot `pesde x` form.
func (p *Project) X(ctx context.Context, runner Runner, alias pkgid.Alias, args []string) error {
	id, err := p.lockedID(alias)
	if err != nil {
		return err
	}

	dir, err := p.patchedContentsDir(ctx, id, p.contentsDirFor(id))
	if err != nil {
		return err
	}

	m, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return fmt.Errorf("x %s: %w", alias, err)
	}

	if m.Target.Bin == "" {
		return fmt.Errorf("x %s: package carries no binary entry point for target %s", alias, id.Target)
	}

	return runner.Run(ctx, dir, m.Target.Bin, args)
}
