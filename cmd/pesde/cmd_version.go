package main

import (
	"context"
	"flag"

	"github.com/pesde-pm/pesde/internal/cli"
)

// VersionCommand reports the pesde binary's own version, distinct from
// any project's manifest version.
type VersionCommand struct {
	*BaseCommand
}

func (c *VersionCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print version information as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cli.PrintVersion("pesde", *jsonOutput)

	return nil
}
