// Package main is the pesde CLI: thin per-subcommand wiring over
// internal/project, following the teacher's cmd/orizon/pkg/commands
// BaseCommand/CommandHandler shape. The argument parser itself stays on
// stdlib flag — spec.md frames the CLI parser as an external concern,
// not something this engine reimplements.
package main

import "context"

// Command is one pesde subcommand.
type Command interface {
	Execute(ctx context.Context, args []string) error
	Description() string
	Usage() string
}

// BaseCommand holds the two fields every Command needs, mirroring the
// teacher's BaseCommand (description/usage pair, no behavior beyond
// exposing them).
type BaseCommand struct {
	description string
	usage       string
}

func newBaseCommand(description, usage string) *BaseCommand {
	return &BaseCommand{description: description, usage: usage}
}

func (c *BaseCommand) Description() string { return c.description }
func (c *BaseCommand) Usage() string       { return c.usage }
