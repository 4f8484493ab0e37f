package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
)

// AddCommand declares a new dependency and installs it.
type AddCommand struct {
	*BaseCommand
}

func (c *AddCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	dev := fs.Bool("dev", false, "add as a dev dependency")
	targetFlag := fs.String("target", "", "required target for this dependency, if it differs from the consumer's own")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) != 2 {
		return fmt.Errorf("%s", c.Usage())
	}

	alias := pkgid.Alias(rest[0])

	name, versionReq, ok := strings.Cut(rest[1], "@")
	if !ok {
		return fmt.Errorf("add: %q must be of the form name@version_req", rest[1])
	}

	spec := manifest.DependencySpec{
		Kind:       manifest.DependencyRegistry,
		Name:       name,
		VersionReq: versionReq,
	}

	if *targetFlag != "" {
		kind, err := pkgid.ParseTargetKind(*targetFlag)
		if err != nil {
			return err
		}

		spec.Target = kind
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	if _, err := p.Add(ctx, alias, spec, *dev); err != nil {
		return err
	}

	fmt.Printf("added %s (%s@%s)\n", alias, name, versionReq)

	return nil
}

// RemoveCommand drops a dependency from the manifest and re-installs.
type RemoveCommand struct {
	*BaseCommand
}

func (c *RemoveCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	if _, err := p.Remove(ctx, pkgid.Alias(args[0])); err != nil {
		return err
	}

	fmt.Printf("removed %s\n", args[0])

	return nil
}
