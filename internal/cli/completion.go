package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/config"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate a shell completion script for ragchat. Session ids complete
from the server when you are logged in.

  $ source <(ragchat completion bash)
  $ source <(ragchat completion zsh)
  $ ragchat completion fish | source
  PS> ragchat completion powershell | Out-String | Invoke-Expression`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	RunE: func(_ *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}

// completeSessionIDs offers the caller's sessions. It never exits; any
// failure just yields no suggestions.
func completeSessionIDs(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	path := flagConfigPath
	if path == "" {
		p, err := config.ClientPath()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		path = p
	}
	cfg, err := config.LoadClient(path)
	if err != nil || cfg.Token == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	client, err := api.NewHTTPClient(cfg.API())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, fmt.Sprintf("%d\t%s (%s)", s.ID, s.Name, s.RepoURL))
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerCompletions runs from the root init, after every command has its flags.
func registerCompletions() {
	for _, c := range []*cobra.Command{sessionsShowCmd, sessionsMessagesCmd, sessionsDeleteCmd} {
		c.ValidArgsFunction = completeSessionIDs
	}
	for _, c := range []*cobra.Command{chatCmd, ingestCmd} {
		_ = c.RegisterFlagCompletionFunc("session", completeSessionIDs)
	}
}
