// Package cli implements the ragchat command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/config"
	"github.com/ubaidzafar05/Rag-github/internal/render"
)

var (
	flagConfigPath string
	flagBaseURL    string
	flagPlain      bool
)

// cmdContext holds common resources for client commands
type cmdContext struct {
	Config *config.ClientConfig
	Client *api.HTTPClient
}

// loadClientConfig reads the client config, honouring --config and --url.
func loadClientConfig() *config.ClientConfig {
	path := flagConfigPath
	if path == "" {
		p, err := config.ClientPath()
		if err != nil {
			exitError("%v", err)
		}
		path = p
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		exitError("%v", err)
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	return cfg
}

// initContext loads the config and builds an API client from it
func initContext() *cmdContext {
	cfg := loadClientConfig()
	client, err := api.NewHTTPClient(cfg.API())
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Config: cfg, Client: client}
}

// newRenderer builds the message renderer the config asks for.
func (c *cmdContext) newRenderer() *render.Renderer {
	var engine render.DiagramEngine = render.LintEngine{}
	if c.Config.DiagramEngine == "mmdc" {
		dir := c.Config.DiagramDir
		if dir == "" {
			dir = os.TempDir()
		}
		engine = render.CLIEngine{Path: c.Config.MmdcPath, Dir: dir}
	}
	var opts []render.Option
	if flagPlain {
		opts = append(opts, render.WithPlainText())
	}
	r, err := render.New(engine, opts...)
	if err != nil {
		exitError("%v", err)
	}
	return r
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:   "ragchat",
	Short: "Chat with your GitHub repositories",
	Long: `ragchat ingests GitHub repositories into a server and answers questions
about them, grounded on the repository's own code. Answers can carry file
patches you apply back into the ingested clone, and mermaid diagrams.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "Client config file (default $XDG_CONFIG_HOME/ragchat/config.toml)")
	pf.StringVar(&flagBaseURL, "url", "", "Server base URL, overrides the config file")
	pf.BoolVar(&flagPlain, "plain", false, "Print answers without markdown styling")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(completionCmd)

	registerCompletions()
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
