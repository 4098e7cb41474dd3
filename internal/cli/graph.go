package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

var graphJSON bool

var graphCmd = &cobra.Command{
	Use:   "graph <repo_url>",
	Short: "Show the import graph of an ingested repository",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		c := initContext()
		ctx, cancel := signalContext()
		defer cancel()

		g, err := c.Client.Graph(ctx, args[0])
		if err != nil {
			exitError("%v", err)
		}
		if graphJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(g); err != nil {
				exitError("%v", err)
			}
			return
		}
		printGraph(g)
	},
}

func init() {
	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Print the raw graph as JSON")
}

// printGraph lists each file with the files it imports.
func printGraph(g *models.Graph) {
	edges := make(map[string][]string)
	for _, l := range g.Links {
		edges[l.Source] = append(edges[l.Source], l.Target)
	}

	nodes := append([]models.GraphNode(nil), g.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	yellow := color.New(color.FgYellow)
	for _, n := range nodes {
		yellow.Println(n.ID)
		targets := edges[n.ID]
		sort.Strings(targets)
		for _, t := range targets {
			fmt.Printf("  -> %s\n", t)
		}
	}
	fmt.Printf("\n%d files, %d imports\n", len(g.Nodes), len(g.Links))
}
