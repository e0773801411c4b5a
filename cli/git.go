package cli

// This file contains Git integration utilities for retrieving
// repository information.

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/perfgo/testpulse/model"
)

func (a *App) getGitInfo() (commit, branch string, err error) {
	// Get current commit hash
	cmd := exec.Command("git", "rev-parse", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get git commit: %w", err)
	}
	commit = strings.TrimSpace(string(output))

	// Get current branch
	cmd = exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	output, err = cmd.Output()
	if err != nil {
		return "", "", fmt.Errorf("failed to get git branch: %w", err)
	}
	branch = strings.TrimSpace(string(output))

	return commit, branch, nil
}

// gitInfo returns the repository state for the report, or nil outside of a
// git repository.
func (a *App) gitInfo() *model.Git {
	commit, branch, err := a.getGitInfo()
	if err != nil {
		a.logger.Debug().Err(err).Msg("No git information available")
		return nil
	}
	return &model.Git{Commit: commit, Branch: branch}
}

// repoRoot returns the top level directory of the git repository, or ""
// outside of one.
func (a *App) repoRoot() string {
	output, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Not in a git repository, keeping history in the working directory")
		return ""
	}
	return strings.TrimSpace(string(output))
}
