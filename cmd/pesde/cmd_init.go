package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pesde-pm/pesde/internal/manifest"
	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/project"
)

// InitCommand writes a fresh pesde.json in the current directory.
type InitCommand struct {
	*BaseCommand
}

func (c *InitCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	targetFlag := fs.String("target", "lune", "target runtime: lune, roblox, roblox_server")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) < 1 {
		return fmt.Errorf("%s", c.Usage())
	}

	kind, err := pkgid.ParseTargetKind(*targetFlag)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	if err := project.Init(cwd, rest[0], manifest.Target{Kind: kind}); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", manifest.FileName)

	return nil
}
