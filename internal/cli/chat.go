package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/applyfix"
	"github.com/ubaidzafar05/Rag-github/internal/chat"
	"github.com/ubaidzafar05/Rag-github/internal/ingestion"
	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/render"
)

var (
	chatSessionID int64
	chatResume    bool
	chatDocsURL   string
)

var chatCmd = &cobra.Command{
	Use:   "chat [repo_url]",
	Short: "Chat about a repository",
	Long: `Start an interactive chat about a repository. The repository is ingested
first unless --resume is given with an existing --session.

Inside the chat:
  /apply N      apply file patch N from the last answer
  /preview N    show the diff patch N would make
  /citations    list the snippets the last answer was grounded on
  /quit         leave

Examples:
  ragchat chat https://github.com/owner/repo
  ragchat chat --session 12 --resume`,
	Args: cobra.MaximumNArgs(1),
	Run:  runChat,
}

func init() {
	f := chatCmd.Flags()
	f.Int64Var(&chatSessionID, "session", 0, "Continue an existing session")
	f.BoolVar(&chatResume, "resume", false, "Skip ingestion and trust the session's repository is ready")
	f.StringVar(&chatDocsURL, "docs", "", "Documentation URL to crawl while ingesting")
}

func runChat(_ *cobra.Command, args []string) {
	c := initContext()
	ctx, cancel := signalContext()
	defer cancel()

	in := ingestion.Input{SessionID: chatSessionID, Resume: chatResume, DocsURL: chatDocsURL}
	if len(args) == 1 {
		in.RepoURL = args[0]
	}
	res := runMachine(ctx, c, in)

	repoURL := res.RepoURL
	if repoURL == "" {
		s, err := c.Client.GetSession(ctx, res.SessionID)
		if err != nil {
			sessionError(err, res.SessionID)
		}
		repoURL = s.RepoURL
	}

	conv := chat.New(c.Client, res.SessionID, repoURL)
	if err := conv.Load(ctx); err != nil {
		exitError("%v", err)
	}

	rl := newREPL(conv, c.Client, c.newRenderer(), repoURL, os.Stdout)
	for _, m := range conv.Messages() {
		printMessageTo(ctx, rl.out, rl.renderer, m)
	}

	color.New(color.FgYellow).Printf("Chatting about %s (session %d). /quit to leave.\n", repoURL, res.SessionID)
	rl.loop(ctx, os.Stdin)
}

// patchClient is what the REPL needs beyond the conversation.
type patchClient interface {
	applyfix.Applier
	PreviewApply(ctx context.Context, req *api.ApplyPreviewRequest) (*api.ApplyResponse, error)
}

// repl reads chat lines and slash commands.
type repl struct {
	conv     *chat.Conversation
	client   patchClient
	renderer *render.Renderer
	repoURL  string
	out      io.Writer

	patches []render.Patch
	actions map[int]*applyfix.Action
}

func newREPL(conv *chat.Conversation, client patchClient, r *render.Renderer, repoURL string, out io.Writer) *repl {
	return &repl{conv: conv, client: client, renderer: r, repoURL: repoURL, out: out, actions: map[int]*applyfix.Action{}}
}

func (r *repl) loop(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	prompt := color.New(color.FgCyan, color.Bold)
	for {
		prompt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return
		}
		if r.handle(ctx, scanner.Text()) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// handle processes one input line and reports whether to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit", "/exit":
			return true
		case "/apply":
			r.apply(ctx, fields[1:])
		case "/preview":
			r.preview(ctx, fields[1:])
		case "/citations":
			r.citations()
		default:
			fmt.Fprintf(r.out, "unknown command %s\n", fields[0])
		}
		return false
	}

	reply, err := r.conv.Send(ctx, line)
	if err != nil {
		color.New(color.FgRed).Fprintln(r.out, reply.Content)
		return false
	}
	rendered := r.renderer.RenderMessage(ctx, reply.Content)
	r.patches = rendered.Patches
	r.actions = map[int]*applyfix.Action{}
	fmt.Fprintln(r.out, rendered.Output)
	if len(r.patches) > 0 {
		color.New(color.FgYellow).Fprintf(r.out, "%d patch(es) available, /apply N to write one\n", len(r.patches))
	}
	return false
}

func (r *repl) patch(args []string) (render.Patch, bool) {
	if len(args) != 1 {
		fmt.Fprintln(r.out, "usage: /apply N or /preview N")
		return render.Patch{}, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(r.patches) {
		fmt.Fprintf(r.out, "no patch %s in the last answer\n", args[0])
		return render.Patch{}, false
	}
	return r.patches[n-1], true
}

func (r *repl) apply(ctx context.Context, args []string) {
	p, ok := r.patch(args)
	if !ok {
		return
	}
	a, seen := r.actions[p.Number]
	if !seen {
		a = applyfix.New(r.client, p.Path, p.Content, r.repoURL)
		r.actions[p.Number] = a
	}
	err := a.Apply(ctx)
	switch {
	case errors.Is(err, applyfix.ErrNotIdle):
		fmt.Fprintf(r.out, "patch %d is already %s\n", p.Number, a.State())
	case err != nil:
		color.New(color.FgRed).Fprintf(r.out, "apply failed: %s\n", a.Message())
		var re *api.RemoteError
		if errors.As(err, &re) {
			printValidation(r.out, re.Results)
		}
	default:
		color.New(color.FgGreen).Fprintln(r.out, a.Message())
	}
}

func (r *repl) preview(ctx context.Context, args []string) {
	p, ok := r.patch(args)
	if !ok {
		return
	}
	resp, err := r.client.PreviewApply(ctx, &api.ApplyPreviewRequest{RepoURL: r.repoURL, FilePath: p.Path, Content: p.Content})
	if err != nil {
		color.New(color.FgRed).Fprintf(r.out, "preview failed: %v\n", err)
		return
	}
	printDiff(r.out, resp.Diff)
}

func (r *repl) citations() {
	cites := r.conv.Citations()
	if len(cites) == 0 {
		fmt.Fprintln(r.out, "no citations")
		return
	}
	for _, c := range cites {
		fmt.Fprintf(r.out, "  %s:%d-%d\n", c.Path, c.StartLine, c.EndLine)
	}
}

func printMessage(ctx context.Context, r *render.Renderer, m models.Message) {
	printMessageTo(ctx, os.Stdout, r, m)
}

func printMessageTo(ctx context.Context, w io.Writer, r *render.Renderer, m models.Message) {
	if m.Role == models.RoleUser {
		color.New(color.FgCyan, color.Bold).Fprint(w, "> ")
		fmt.Fprintln(w, m.Content)
		return
	}
	fmt.Fprintln(w, r.RenderMessage(ctx, m.Content).Output)
}
