package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pesde-pm/pesde/internal/pkgid"
	"github.com/pesde-pm/pesde/internal/project"
	"github.com/pesde-pm/pesde/internal/resolver"
)

// InstallCommand resolves and fetches every dependency, writing the
// lockfile and dependency directory.
type InstallCommand struct {
	*BaseCommand
}

func (c *InstallCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	locked := fs.Bool("locked", false, "fail instead of rewriting the lockfile if resolution would change it")
	prod := fs.Bool("prod", false, "skip materializing dev dependencies (they are still resolved)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	opts := project.InstallOptions{Locked: *locked, Prod: *prod}

	summary, err := p.Install(ctx, resolver.Policy{Mode: resolver.PreserveLocked}, opts)
	if err != nil {
		return err
	}

	fmt.Printf("installed %d packages\n", len(summary.Graph.Nodes))

	return nil
}

// UpdateCommand re-resolves, optionally restricted to the named aliases.
type UpdateCommand struct {
	*BaseCommand
}

func (c *UpdateCommand) Execute(ctx context.Context, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	aliases := make([]pkgid.Alias, 0, len(args))
	for _, a := range args {
		aliases = append(aliases, pkgid.Alias(a))
	}

	summary, err := p.Update(ctx, aliases)
	if err != nil {
		return err
	}

	fmt.Printf("updated, %d packages locked\n", len(summary.Graph.Nodes))

	return nil
}
