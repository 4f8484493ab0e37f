package main

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/pkgid"
)

// RunCommand runs one of the manifest's declared scripts.
type RunCommand struct {
	*BaseCommand
}

func (c *RunCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	return p.Run(ctx, shellRunner{}, args[0], args[1:])
}

// XCommand runs an installed package's binary entry point directly.
type XCommand struct {
	*BaseCommand
}

func (c *XCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	return p.X(ctx, shellRunner{}, pkgid.Alias(args[0]), args[1:])
}
