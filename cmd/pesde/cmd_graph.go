package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pesde-pm/pesde/internal/resolver"
)

// GraphCommand prints the resolved dependency graph, either as an edge
// list or as Graphviz DOT.
type GraphCommand struct {
	*BaseCommand
}

func (c *GraphCommand) Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	dotFormat := fs.Bool("dot", false, "print Graphviz DOT instead of edges")
	outputPath := fs.String("output", "", "optional output file path")

	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := openProject()
	if err != nil {
		return err
	}

	graph, err := p.Resolve(ctx, resolver.Policy{Mode: resolver.PreserveLocked})
	if err != nil {
		return err
	}

	var out strings.Builder

	if *dotFormat {
		writeDOT(&out, graph)
	} else {
		writeEdgeList(&out, graph)
	}

	result := out.String()

	if *outputPath != "" {
		return os.WriteFile(*outputPath, []byte(result), 0o644)
	}

	fmt.Print(result)

	return nil
}

func writeDOT(out *strings.Builder, g *resolver.Graph) {
	out.WriteString("digraph deps {\n")
	out.WriteString("  rankdir=LR;\n")

	for alias, key := range g.RootEdges {
		node := g.Lookup(key)
		if node == nil {
			continue
		}

		fmt.Fprintf(out, "  \"%s\" [shape=box,style=bold];\n", node.ID)
		fmt.Fprintf(out, "  \"root\" -> \"%s\" [label=\"%s\"];\n", node.ID, alias)
	}

	for _, node := range g.Nodes {
		if len(node.Edges) == 0 {
			fmt.Fprintf(out, "  \"%s\";\n", node.ID)
			continue
		}

		for alias, childKey := range node.Edges {
			child := g.Lookup(childKey)
			if child == nil {
				continue
			}

			fmt.Fprintf(out, "  \"%s\" -> \"%s\" [label=\"%s\"];\n", node.ID, child.ID, alias)
		}
	}

	out.WriteString("}\n")
}

func writeEdgeList(out *strings.Builder, g *resolver.Graph) {
	for _, node := range g.Nodes {
		if len(node.Edges) == 0 {
			fmt.Fprintf(out, "%s\n", node.ID)
			continue
		}

		deps := make([]string, 0, len(node.Edges))

		for _, childKey := range node.Edges {
			if child := g.Lookup(childKey); child != nil {
				deps = append(deps, child.ID.String())
			}
		}

		fmt.Fprintf(out, "%s -> %s\n", node.ID, strings.Join(deps, ", "))
	}
}
