package main

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/config"
)

// AuthCommand stores a bearer token for a registry index in the user
// config, the credential half of publish/install against a private
// index.
type AuthCommand struct {
	*BaseCommand
}

func (c *AuthCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%s", c.Usage())
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cfg.SetToken(args[0], args[1])

	if err := cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("stored token for %s\n", args[0])

	return nil
}
