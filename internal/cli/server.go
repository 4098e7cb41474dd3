package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/app"
	"github.com/ubaidzafar05/Rag-github/internal/config"
)

var (
	serverAdminURL   string
	serverAdminToken string
	serverUserName   string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run and administer the ragchat server",
	Long:  "Commands for running the ragchat server and managing its users.",
}

// serverStartOptions are the flags that override the loaded config.
type serverStartOptions struct {
	configPath  string
	envFile     string
	listen      string
	dataDir     string
	logLevel    string
	logFormat   string
	tlsCert     string
	tlsKey      string
	webhookURLs string
}

func newServerStartCmd(use string) *cobra.Command {
	var o serverStartOptions
	cmd := &cobra.Command{
		Use:   use,
		Short: "Start the ragchat server",
		Long: `Start the ragchat server.

Settings come from built-in defaults, then the TOML file given by --config,
then the --env-file (if present), then RAGCHAT_* environment variables, and
finally any flags given here.

The admin token (RAGCHAT_ADMIN_TOKEN) enables the /admin/ endpoints for user
management and garbage collection. GROQ_API_KEY or RAGCHAT_LLM_API_KEY
enables chat.

Examples:
  ragchat server start
  ragchat server start --config /etc/ragchat/server.toml
  ragchat server start --listen 127.0.0.1:8000 --data-dir ./data
  ragchat server start --tls-cert server.crt --tls-key server.key`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			runServerStart(cmd, &o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", os.Getenv("RAGCHAT_SERVER_CONFIG"), "Server config file (TOML)")
	f.StringVar(&o.envFile, "env-file", ".env", "Dotenv file to load, ignored when missing")
	f.StringVar(&o.listen, "listen", "", "Listen address (host:port)")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory for the database, blobs and clones")
	f.StringVar(&o.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	f.StringVar(&o.logFormat, "log-format", "", "Log format (json|text)")
	f.StringVar(&o.tlsCert, "tls-cert", "", "TLS certificate file")
	f.StringVar(&o.tlsKey, "tls-key", "", "TLS key file")
	f.StringVar(&o.webhookURLs, "webhook-urls", "", "Comma-separated URLs notified when ingest jobs finish")
	return cmd
}

// apply copies the flags the user actually set onto cfg.
func (o *serverStartOptions) apply(cmd *cobra.Command, cfg *config.ServerConfig) {
	set := cmd.Flags().Changed
	if set("listen") {
		cfg.Listen = o.listen
	}
	if set("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if set("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if set("tls-cert") {
		cfg.TLSCert = o.tlsCert
	}
	if set("tls-key") {
		cfg.TLSKey = o.tlsKey
	}
	if set("webhook-urls") {
		cfg.WebhookURLs = config.SplitList(o.webhookURLs)
	}
}

func runServerStart(cmd *cobra.Command, o *serverStartOptions) {
	cfg, err := config.LoadServer(o.configPath, o.envFile)
	if err != nil {
		exitError("%v", err)
	}
	o.apply(cmd, cfg)

	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signalContext()
	defer cancel()

	srv, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	if err := srv.Serve(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// ExecuteServer runs the standalone server binary, which is `server start`
// without the surrounding client commands.
func ExecuteServer() error {
	return newServerStartCmd("ragchat-server").Execute()
}

// --- ragchat server users / gc ---

var serverUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage server users",
	Long:  "Commands for managing users on a running ragchat server.",
}

var serverUsersCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create a user and print their token",
	Args:  cobra.ExactArgs(1),
	Run:   runServerUsersCreate,
}

var serverUsersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Run:   runServerUsersList,
}

var serverUsersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a user with their sessions and ingestions",
	Args:  cobra.ExactArgs(1),
	Run:   runServerUsersDelete,
}

var serverGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete unreferenced blobs and old ingest jobs",
	Run:   runServerGC,
}

func init() {
	serverCmd.AddCommand(newServerStartCmd("start"))
	serverCmd.AddCommand(serverUsersCmd)
	serverCmd.AddCommand(serverGCCmd)

	// Both parents bind the same vars; only one command path runs.
	for _, cmd := range []*cobra.Command{serverUsersCmd, serverGCCmd} {
		cmd.PersistentFlags().StringVar(&serverAdminURL, "server",
			envOrDefault("RAGCHAT_SERVER_URL", "http://localhost:8000"),
			"Server base URL (env: RAGCHAT_SERVER_URL)")
		cmd.PersistentFlags().StringVar(&serverAdminToken, "admin-token",
			os.Getenv("RAGCHAT_ADMIN_TOKEN"),
			"Admin token (env: RAGCHAT_ADMIN_TOKEN)")
	}

	serverUsersCmd.AddCommand(serverUsersCreateCmd, serverUsersListCmd, serverUsersDeleteCmd)
	serverUsersCreateCmd.Flags().StringVar(&serverUserName, "name", "", "Display name")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// resolveAdminClient builds an AdminClient from the admin flags.
func resolveAdminClient() *api.AdminClient {
	if serverAdminURL == "" {
		exitError("--server or RAGCHAT_SERVER_URL is required")
	}
	if serverAdminToken == "" {
		exitError("--admin-token or RAGCHAT_ADMIN_TOKEN is required")
	}
	return api.NewAdminClient(serverAdminURL, serverAdminToken)
}

func adminContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Minute)
}

func runServerUsersCreate(_ *cobra.Command, args []string) {
	c := resolveAdminClient()
	ctx, cancel := adminContext()
	defer cancel()

	resp, err := c.CreateUser(ctx, args[0], serverUserName)
	if err != nil {
		exitError("%v", err)
	}

	fmt.Println("User created.")
	fmt.Printf("  ID:    %d\n", resp.User.ID)
	fmt.Printf("  Email: %s\n", resp.User.Email)
	if resp.User.Name != "" {
		fmt.Printf("  Name:  %s\n", resp.User.Name)
	}
	fmt.Println()
	color.New(color.FgGreen).Printf("Token: %s\n", resp.Token)
	color.New(color.FgYellow).Println("Save this token. It will not be shown again.")
}

func runServerUsersList(_ *cobra.Command, _ []string) {
	c := resolveAdminClient()
	ctx, cancel := adminContext()
	defer cancel()

	users, err := c.ListUsers(ctx)
	if err != nil {
		exitError("%v", err)
	}
	if len(users) == 0 {
		return
	}

	fmt.Printf("  %-6s  %-32s  %-20s  %s\n", "ID", "Email", "Name", "Created")
	for _, u := range users {
		fmt.Printf("  %-6d  %-32s  %-20s  %s\n",
			u.ID, truncate(u.Email, 32), truncate(u.Name, 20), u.CreatedAt.Format("2006-01-02"))
	}
}

func runServerUsersDelete(_ *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		exitError("invalid user id %q", args[0])
	}
	c := resolveAdminClient()
	ctx, cancel := adminContext()
	defer cancel()

	if err := c.DeleteUser(ctx, id); err != nil {
		if api.IsNotFound(err) {
			exitError("no user %d", id)
		}
		exitError("%v", err)
	}
	fmt.Printf("Deleted user %d\n", id)
}

func runServerGC(_ *cobra.Command, _ []string) {
	c := resolveAdminClient()
	ctx, cancel := adminContext()
	defer cancel()

	res, err := c.GarbageCollect(ctx)
	if err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Scanned %d blobs, deleted %d, pruned %d jobs and %d clones\n",
		res.BlobsScanned, res.BlobsDeleted, res.JobsPruned, res.ClonesPruned)
}
