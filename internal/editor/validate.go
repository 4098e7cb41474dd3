package editor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultAllowed lists the programs validation may run.
var DefaultAllowed = []string{
	"go", "make", "npm", "npx", "yarn", "pnpm", "node", "tsc", "eslint",
	"python", "python3", "pytest", "ruff", "flake8", "mypy", "cargo",
}

// maxOutput caps the captured stdout and stderr of each command.
const maxOutput = 64 << 10

// Result is the outcome of one validation command.
type Result struct {
	Command    string `json:"command"`
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// Validator runs allowlisted commands without a shell.
type Validator struct {
	allowed map[string]bool
	timeout time.Duration
}

// NewValidator creates a Validator. A nil allowed uses DefaultAllowed and a
// zero timeout means two minutes per command.
func NewValidator(allowed []string, timeout time.Duration) *Validator {
	if allowed == nil {
		allowed = DefaultAllowed
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	v := &Validator{allowed: make(map[string]bool, len(allowed)), timeout: timeout}
	for _, a := range allowed {
		v.allowed[a] = true
	}
	return v
}

// Allowed reports whether the program of command may run.
func (v *Validator) Allowed(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	prog := fields[0]
	// A path would bypass the allowlist.
	if strings.ContainsAny(prog, `/\`) || filepath.Base(prog) != prog {
		return false
	}
	return v.allowed[prog]
}

// Validate runs each command in root and reports every result, failed or not.
func (v *Validator) Validate(ctx context.Context, root string, commands []string) []Result {
	results := make([]Result, 0, len(commands))
	for _, c := range commands {
		results = append(results, v.run(ctx, root, c))
	}
	return results
}

// Failed reports whether any result has a non-zero return code.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.ReturnCode != 0 {
			return true
		}
	}
	return false
}

func (v *Validator) run(ctx context.Context, root, command string) Result {
	res := Result{Command: command}
	if !v.Allowed(command) {
		res.ReturnCode = -1
		res.Stderr = "command not allowed"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	fields := strings.Fields(command)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedBuffer{buf: &stdout, max: maxOutput}
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: maxOutput}

	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() == context.DeadlineExceeded:
		res.ReturnCode = -1
		res.Stderr += "command timed out"
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.ExitCode()
	default:
		res.ReturnCode = -1
		if res.Stderr != "" {
			res.Stderr += "\n"
		}
		res.Stderr += err.Error()
	}
	return res
}

// limitedBuffer discards writes past max while reporting them as written.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		l.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}
