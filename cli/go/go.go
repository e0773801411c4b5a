package gocmd

// go.go provides utilities for executing Go commands.

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"al.essio.dev/pkg/shellescape"
)

// List runs 'go list' on a package path and returns the list of packages.
// Returns the packages found (one per line from stdout) and any error.
// If an error occurs, it includes a user-friendly error message.
func List(path string) ([]string, error) {
	out, err := run("list", path)
	if err != nil {
		errMsg := err.Error()

		// Simplify common error messages
		if strings.Contains(errMsg, "no Go files in") {
			return nil, fmt.Errorf("invalid package path %q: directory contains no Go files", path)
		}
		if strings.Contains(errMsg, "is not in std") || strings.Contains(errMsg, "is not in GOROOT") ||
			strings.Contains(errMsg, "cannot find package") {
			return nil, fmt.Errorf("invalid package path %q: package not found", path)
		}
		return nil, fmt.Errorf("invalid package path %q: %w", path, err)
	}

	if out == "" {
		return []string{}, nil
	}
	return strings.Split(out, "\n"), nil
}

// ModulePath returns the path of the main module in the working directory.
func ModulePath() (string, error) {
	out, err := run("list", "-m")
	if err != nil {
		return "", fmt.Errorf("failed to determine module path: %w", err)
	}
	// Workspaces list one module per line, the first one is used.
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return out, nil
}

// run executes a go subcommand and returns its trimmed stdout. Errors carry
// the first line of stderr.
func run(args ...string) (string, error) {
	cmd := exec.Command("go", args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if line, _, _ := strings.Cut(errMsg, "\n"); line != "" {
			return "", fmt.Errorf("%s", line)
		}
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// TestJSONCommand creates a 'go test -json' command for the given packages
// and test flags. Without packages the current directory is tested.
func TestJSONCommand(ctx context.Context, packages, flags []string) *exec.Cmd {
	args := []string{"test", "-json"}
	args = append(args, flags...)
	if len(packages) == 0 {
		packages = []string{"."}
	}
	args = append(args, packages...)
	return exec.CommandContext(ctx, "go", args...)
}

// RerunCommand returns a shell command that runs a single test of pkg.
// Subtest names are anchored level by level.
func RerunCommand(pkg, test string) string {
	if test == "" {
		return ""
	}
	if pkg == "" {
		pkg = "."
	}

	levels := strings.Split(test, "/")
	for i, l := range levels {
		levels[i] = "^" + regexp.QuoteMeta(l) + "$"
	}
	return shellescape.QuoteCommand([]string{"go", "test", "-run", strings.Join(levels, "/"), pkg})
}
