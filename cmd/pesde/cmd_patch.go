package main

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/patch"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// PatchCommand stages a locked package's contents for editing.
type PatchCommand struct {
	*BaseCommand
}

func (c *PatchCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	h, err := p.Patch(ctx, pkgid.Alias(args[0]))
	if err != nil {
		return err
	}

	fmt.Printf("staged %s at %s\npatch-commit %s %s when done editing\n", args[0], h.Dir, args[0], h.Dir)

	return nil
}

// PatchCommitCommand diffs a staged directory against its baseline and
// records the result in the manifest.
type PatchCommitCommand struct {
	*BaseCommand
}

func (c *PatchCommitCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	id, err := p.LockedID(pkgid.Alias(args[0]))
	if err != nil {
		return err
	}

	h := &patch.Handle{Dir: args[1], ID: id}

	entry, err := p.PatchCommit(ctx, h)
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", entry.File)

	return nil
}
