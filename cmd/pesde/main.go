package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pesde-pm/pesde/internal/cli"
)

var commands map[string]Command

func init() {
	commands = map[string]Command{
		"init":          &InitCommand{BaseCommand: newBaseCommand("Create a new pesde.json", "usage: pesde init [--target lune|roblox|roblox_server] <name>")},
		"install":       &InstallCommand{BaseCommand: newBaseCommand("Resolve and fetch dependencies", "usage: pesde install [--locked] [--prod]")},
		"update":        &UpdateCommand{BaseCommand: newBaseCommand("Update locked dependencies", "usage: pesde update [alias...]")},
		"add":           &AddCommand{BaseCommand: newBaseCommand("Add a dependency", "usage: pesde add [--dev] [--target <target>] <alias> <name>@<version_req>")},
		"remove":        &RemoveCommand{BaseCommand: newBaseCommand("Remove a dependency", "usage: pesde remove <alias>")},
		"patch":         &PatchCommand{BaseCommand: newBaseCommand("Stage a package for editing", "usage: pesde patch <alias>")},
		"patch-commit":  &PatchCommitCommand{BaseCommand: newBaseCommand("Commit a staged patch", "usage: pesde patch-commit <alias> <staged-dir>")},
		"run":           &RunCommand{BaseCommand: newBaseCommand("Run a manifest script", "usage: pesde run <script> [args...]")},
		"x":             &XCommand{BaseCommand: newBaseCommand("Run an installed package's binary", "usage: pesde x <alias> [args...]")},
		"publish":       &PublishCommand{BaseCommand: newBaseCommand("Sign and describe a publish artifact", "usage: pesde publish --file <tarball> [-y --index <url>]")},
		"auth":          &AuthCommand{BaseCommand: newBaseCommand("Store a registry auth token", "usage: pesde auth <index-url> <token>")},
		"why":           &WhyCommand{BaseCommand: newBaseCommand("Explain why a package is present", "usage: pesde why [--verbose] <name>")},
		"outdated":      &OutdatedCommand{BaseCommand: newBaseCommand("Check for newer compatible versions", "usage: pesde outdated")},
		"graph":         &GraphCommand{BaseCommand: newBaseCommand("Print the resolved dependency graph", "usage: pesde graph [--dot]")},
		"list":          &ListCommand{BaseCommand: newBaseCommand("List locked packages", "usage: pesde list")},
		"version":       &VersionCommand{BaseCommand: newBaseCommand("Print the pesde binary's version", "usage: pesde version [--json]")},
	}
}

func main() {
	if len(os.Args) < 2 {
		printTopLevelUsage()
		os.Exit(2)
	}

	name := os.Args[1]

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "pesde: unknown command %q\n", name)
		printTopLevelUsage()
		os.Exit(2)
	}

	if err := cmd.Execute(context.Background(), os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "pesde: %v\n", err)
		os.Exit(1)
	}
}

func printTopLevelUsage() {
	infos := make([]cli.CommandInfo, 0, len(commands))

	for name, cmd := range commands {
		infos = append(infos, cli.CommandInfo{Name: name, Description: cmd.Description()})
	}

	cli.PrintUsage("pesde", infos)
}
