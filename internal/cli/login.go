package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
)

var (
	loginToken       string
	loginCredentials string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with a token issued by the server admin",
	Long: `Log in with a token issued by "ragchat server users create".
The token is read from stdin unless --token is given, then stored in the
client config together with the server URL.

Examples:
  ragchat login --url https://rag.example.com
  echo "rc_..." | ragchat login
  ragchat login --credentials bearer`,
	Args: cobra.NoArgs,
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	Args:  cobra.NoArgs,
	Run:   runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	Args:  cobra.NoArgs,
	Run:   runWhoami,
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "User token (default: read from stdin)")
	loginCmd.Flags().StringVar(&loginCredentials, "credentials", "", "How to send credentials: cookie or bearer")
}

func readToken() string {
	if loginToken != "" {
		return loginToken
	}
	fmt.Fprint(os.Stderr, "Token: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		exitError("failed to read token: %v", err)
	}
	return strings.TrimSpace(line)
}

func runLogin(_ *cobra.Command, _ []string) {
	cfg := loadClientConfig()
	if loginCredentials != "" {
		cfg.Credentials = loginCredentials
	}

	token := readToken()
	if token == "" {
		exitError("token is required")
	}
	cfg.Token = token

	client, err := api.NewHTTPClient(cfg.API())
	if err != nil {
		exitError("%v", err)
	}
	user, err := client.Login(context.Background(), token)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			exitError("the server rejected this token")
		}
		exitError("%v", err)
	}

	if err := cfg.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}

	color.New(color.FgGreen).Printf("Logged in as %s\n", displayName(user.Name, user.Email))
	fmt.Printf("Credentials saved to %s\n", cfg.Path())
}

func runLogout(_ *cobra.Command, _ []string) {
	c := initContext()
	if c.Config.Token != "" {
		// Best effort.
		_ = c.Client.Logout(context.Background())
	}
	c.Config.Token = ""
	if err := c.Config.Save(); err != nil {
		exitError("failed to save config: %v", err)
	}
	fmt.Println("Logged out")
}

func runWhoami(_ *cobra.Command, _ []string) {
	c := initContext()
	user, err := c.Client.CurrentUser(context.Background())
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			exitError("not logged in, run \"ragchat login\"")
		}
		exitError("%v", err)
	}
	fmt.Printf("%s <%s>\n", displayName(user.Name, user.Email), user.Email)
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}
