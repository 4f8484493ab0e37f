package main

import (
	"context"
	"fmt"

	"github.com/pesde-pm/pesde/internal/lockfile"
)

// ListCommand prints every package pinned in the project's lockfile.
type ListCommand struct {
	*BaseCommand
}

func (c *ListCommand) Execute(ctx context.Context, args []string) error {
	p, err := openProject()
	if err != nil {
		return err
	}

	lf, err := lockfile.Load(p.LockfilePath())
	if err != nil {
		return err
	}

	if lf == nil {
		fmt.Println("no lockfile; run `pesde install` first")
		return nil
	}

	for _, e := range lf.Packages {
		fmt.Printf("%s@%s[%s]\n", e.Name, e.Version, e.Target)
	}

	return nil
}
