package task

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecRunner runs user scripts from a scripts directory via "sh -c".
// Script IDs resolve to files inside the directory; path traversal outside
// it is rejected before anything executes.
type ExecRunner struct {
	dir string
}

// NewExecRunner returns a runner rooted at dir.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{dir: dir}
}

// Run executes the script with the given arguments and returns its trimmed
// output. Caller-supplied context bounds the execution time.
func (r *ExecRunner) Run(ctx context.Context, scriptID string, args []string) (string, error) {
	path, err := r.resolve(scriptID)
	if err != nil {
		return "", Permanent(err)
	}

	command := path
	for _, a := range args {
		command += " " + shellQuote(a)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // scripts come from the operator-managed scripts dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = r.dir
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("script %s: %w: %s", scriptID, err, detail)
		}
		return "", fmt.Errorf("script %s: %w", scriptID, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *ExecRunner) resolve(scriptID string) (string, error) {
	if scriptID == "" || strings.ContainsAny(scriptID, "\x00") {
		return "", fmt.Errorf("invalid script id %q", scriptID)
	}
	path := filepath.Join(r.dir, scriptID)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve script %q: %w", scriptID, err)
	}
	root, err := filepath.Abs(r.dir)
	if err != nil {
		return "", fmt.Errorf("resolve scripts dir: %w", err)
	}
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("script id %q escapes scripts dir", scriptID)
	}
	if info, err := os.Stat(abs); err != nil || info.IsDir() {
		return "", fmt.Errorf("script %q not found", scriptID)
	}
	return abs, nil
}

// shellQuote single-quotes an argument for sh -c.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
