package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// WhyCommand explains why a package appears in the dependency graph by
// walking the shortest path from a root dependency down to it.
type WhyCommand struct {
	*BaseCommand
}

func (c *WhyCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("why", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "print versions along the path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	target, err := pkgid.ParseName(rest[0])
	if err != nil {
		return fmt.Errorf("why: %w", err)
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	graph, err := p.Resolve(ctx, resolver.Policy{Mode: resolver.PreserveLocked})
	if err != nil {
		return err
	}

	path := project.DependencyPath(graph, target)
	if len(path) == 0 {
		fmt.Printf("no path to %s\n", target)
		return nil
	}

	if *verbose {
		fmt.Printf("%s@%s[%s]\n", path[0].ID.Name, path[0].ID.Version, path[0].ID.Target)

		for _, node := range path[1:] {
			fmt.Printf("  -> %s@%s[%s]\n", node.ID.Name, node.ID.Version, node.ID.Target)
		}

		return nil
	}

	fmt.Println(path[0].ID.Name)

	for _, node := range path[1:] {
		fmt.Printf("  -> %s\n", node.ID.Name)
	}

	return nil
}
