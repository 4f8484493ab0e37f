package main

import (
	"os"

	"github.com/pesde-pm/pesde/internal/config"
	"github.com/pesde-pm/pesde/internal/project"
)

// openProject loads the user config and opens the project rooted at the
// current working directory, the shared first step of every subcommand
// that operates on an existing pesde.json.
func openProject() (*project.Project, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	return project.Open(cwd, cfg)
}
