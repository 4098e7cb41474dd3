package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/ingestion"
)

var (
	ingestDocsURL   string
	ingestSessionID int64
	ingestSync      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [repo_url]",
	Short: "Ingest a GitHub repository",
	Long: `Clone and index a repository on the server, then wait until it is ready
to chat. A new chat session is created for it unless --session names one.

Examples:
  ragchat ingest https://github.com/owner/repo
  ragchat ingest https://github.com/owner/repo --docs https://owner.github.io/repo
  ragchat ingest --session 12
  ragchat ingest https://github.com/owner/repo --sync`,
	Args: cobra.MaximumNArgs(1),
	Run:  runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestDocsURL, "docs", "", "Documentation URL to crawl alongside the repository")
	f.Int64Var(&ingestSessionID, "session", 0, "Re-ingest the repository of an existing session")
	f.BoolVar(&ingestSync, "sync", false, "Ingest inside one request instead of polling a job")
}

func runIngest(_ *cobra.Command, args []string) {
	c := initContext()
	ctx, cancel := signalContext()
	defer cancel()

	var repoURL string
	if len(args) == 1 {
		repoURL = args[0]
	}

	if ingestSync {
		if repoURL == "" {
			exitError("--sync needs a repository URL")
		}
		res, err := c.Client.IngestSync(ctx, repoURL, ingestDocsURL)
		if err != nil {
			exitError("%v", err)
		}
		color.New(color.FgGreen).Println(res.Message)
		fmt.Printf("Packed %d bytes\n", res.Size)
		return
	}

	res := runMachine(ctx, c, ingestion.Input{
		RepoURL:   repoURL,
		SessionID: ingestSessionID,
		DocsURL:   ingestDocsURL,
	})
	color.New(color.FgGreen).Printf("Ready: %s (session %d)\n", res.RepoURL, res.SessionID)
}

// runMachine drives one ingestion and exits on any non-ready outcome.
func runMachine(ctx context.Context, c *cmdContext, in ingestion.Input) *ingestion.Result {
	m := ingestion.New(c.Client, c.Config.Poll())

	cyan := color.New(color.FgCyan)
	last := ""
	m.OnLabel = func(label string) {
		if label != last {
			cyan.Printf("  %s\n", label)
			last = label
		}
	}

	res := m.Run(ctx, in)
	switch res.State {
	case ingestion.StateReady:
		return res
	case ingestion.StateUnauthenticated:
		exitError("not logged in, run \"ragchat login\"")
	default:
		exitError("ingestion failed: %s", res.Message)
	}
	return nil
}
