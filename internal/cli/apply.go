package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
)

var (
	applyContentFile string
	applyRepoURL     string
	applyPreview     bool
	applyReview      bool
	applyValidate    []string
)

var applyCmd = &cobra.Command{
	Use:   "apply <file_path>",
	Short: "Write a file into an ingested repository",
	Long: `Replace a file in the server's clone of an ingested repository. The new
content is read from --content-file, or stdin when it is "-" or omitted.

Examples:
  ragchat apply src/main.go --content-file main.go --repo https://github.com/owner/repo
  ragchat apply src/main.go --content-file main.go --preview
  ragchat apply src/main.go --content-file main.go --validate "go test ./..."
  ragchat apply src/main.go --content-file main.go --review --validate "go vet ./..."`,
	Args: cobra.ExactArgs(1),
	Run:  runApply,
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyContentFile, "content-file", "-", "File holding the new content")
	f.StringVar(&applyRepoURL, "repo", "", "Repository URL (default: your latest ingestion)")
	f.BoolVar(&applyPreview, "preview", false, "Show the diff without writing")
	f.BoolVar(&applyReview, "review", false, "Show the diff and run --validate commands without writing")
	f.StringArrayVar(&applyValidate, "validate", nil, "Validation command to run (repeatable)")
}

func readContent(path string) string {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		exitError("read content: %v", err)
	}
	return string(data)
}

func runApply(_ *cobra.Command, args []string) {
	if applyPreview && applyReview {
		exitError("--preview and --review are mutually exclusive")
	}
	c := initContext()
	ctx, cancel := signalContext()
	defer cancel()

	filePath := args[0]
	content := readContent(applyContentFile)

	switch {
	case applyPreview:
		resp, err := c.Client.PreviewApply(ctx, &api.ApplyPreviewRequest{
			RepoURL: applyRepoURL, FilePath: filePath, Content: content,
		})
		if err != nil {
			exitError("%v", err)
		}
		printDiff(os.Stdout, resp.Diff)

	case applyReview:
		resp, err := c.Client.ReviewApply(ctx, &api.ApplyReviewRequest{
			RepoURL: applyRepoURL, FilePath: filePath, Content: content, ValidationCommands: applyValidate,
		})
		if err != nil {
			exitError("%v", err)
		}
		printDiff(os.Stdout, resp.Diff)
		if printValidation(os.Stdout, resp.Results) {
			os.Exit(1)
		}

	default:
		resp, err := c.Client.Apply(ctx, &api.ApplyRequest{
			RepoURL: applyRepoURL, FilePath: filePath, Content: content, ValidationCommands: applyValidate,
		})
		if err != nil {
			var re *api.RemoteError
			if errors.As(err, &re) && len(re.Results) > 0 {
				printValidation(os.Stderr, re.Results)
			}
			exitError("%v", err)
		}
		color.New(color.FgGreen).Println(resp.Message)
	}
}

// printDiff colours a unified diff line by line.
func printDiff(w io.Writer, diff string) {
	if diff == "" {
		fmt.Fprintln(w, "no changes")
		return
	}
	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			add.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			del.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// printValidation lists command results and reports whether any failed.
func printValidation(w io.Writer, results []api.ValidationResult) bool {
	failed := false
	for _, r := range results {
		if r.ReturnCode == 0 {
			color.New(color.FgGreen).Fprintf(w, "ok    %s\n", r.Command)
			continue
		}
		failed = true
		color.New(color.FgRed).Fprintf(w, "FAIL  %s (exit %d)\n", r.Command, r.ReturnCode)
		if out := strings.TrimSpace(r.Stdout + r.Stderr); out != "" {
			fmt.Fprintln(w, truncate(out, 2000))
		}
	}
	return failed
}

var validateRepoURL string

var validateCmd = &cobra.Command{
	Use:   "validate <command>...",
	Short: "Run validation commands in an ingested repository",
	Long: `Run allowlisted validation commands inside the server's clone. Each
argument is one command line.

Examples:
  ragchat validate "go build ./..." "go test ./..." --repo https://github.com/owner/repo`,
	Args: cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		c := initContext()
		ctx, cancel := signalContext()
		defer cancel()

		resp, err := c.Client.ValidateApply(ctx, &api.ApplyValidateRequest{RepoURL: validateRepoURL, Commands: args})
		if err != nil {
			exitError("%v", err)
		}
		if printValidation(os.Stdout, resp.Results) {
			os.Exit(1)
		}
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateRepoURL, "repo", "", "Repository URL (default: your latest ingestion)")
}
