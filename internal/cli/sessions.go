package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, inspect and delete chat sessions.

Without a subcommand, lists your sessions, newest first.`,
	Run: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsShow,
}

var sessionsMessagesCmd = &cobra.Command{
	Use:   "messages <id>",
	Short: "Print a session's messages",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsMessages,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session and its messages",
	Args:    cobra.ExactArgs(1),
	Run:     runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsMessagesCmd, sessionsDeleteCmd)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		exitError("invalid session id %q", s)
	}
	return id
}

func sessionError(err error, id int64) {
	if api.IsNotFound(err) {
		exitError("session %d not found", id)
	}
	exitError("%v", err)
}

func runSessionsList(_ *cobra.Command, _ []string) {
	c := initContext()
	list, err := c.Client.ListSessions(context.Background())
	if err != nil {
		exitError("%v", err)
	}
	if len(list) == 0 {
		return
	}

	fmt.Printf("  %-6s  %-20s  %-40s  %s\n", "ID", "Name", "Repository", "Last message")
	for _, s := range list {
		fmt.Printf("  %-6d  %-20s  %-40s  %s\n", s.ID, truncate(s.Name, 20), s.RepoURL, lastMessage(s))
	}
}

func lastMessage(s *models.Session) string {
	if s.LastMessage == nil {
		return "-"
	}
	return *s.LastMessage
}

func runSessionsShow(_ *cobra.Command, args []string) {
	c := initContext()
	id := parseID(args[0])
	s, err := c.Client.GetSession(context.Background(), id)
	if err != nil {
		sessionError(err, id)
	}

	yellow := color.New(color.FgYellow)
	yellow.Printf("session %d\n", s.ID)
	fmt.Printf("Name:       %s\n", s.Name)
	fmt.Printf("Repository: %s\n", s.RepoURL)
	fmt.Printf("Created:    %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Last:       %s\n", lastMessage(s))
}

func runSessionsMessages(_ *cobra.Command, args []string) {
	c := initContext()
	id := parseID(args[0])
	msgs, err := c.Client.SessionMessages(context.Background(), id)
	if err != nil {
		sessionError(err, id)
	}

	r := c.newRenderer()
	ctx := context.Background()
	for _, m := range msgs {
		printMessage(ctx, r, m)
	}
}

func runSessionsDelete(_ *cobra.Command, args []string) {
	c := initContext()
	id := parseID(args[0])
	if err := c.Client.DeleteSession(context.Background(), id); err != nil {
		sessionError(err, id)
	}
	fmt.Printf("Deleted session %d\n", id)
}
