package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// GitDestination commits export files into a local clone and pushes them,
// keeping an audit trail of every export.
type GitDestination struct {
	repo   string // path to the local clone
	dir    string // directory within the repo
	branch string // branch to commit and push to
}

// NewGitDestination creates a git destination. repo is the path to an
// existing local clone.
func NewGitDestination(repo, dir, branch string) *GitDestination {
	return &GitDestination{
		repo:   repo,
		dir:    dir,
		branch: branch,
	}
}

// Write writes data to dir/name in the repo, commits it and pushes. A file
// already archived with the same content is not committed again.
func (d *GitDestination) Write(ctx context.Context, name string, data []byte) error {
	if err := d.git(ctx, "checkout", "--quiet", d.branch); err != nil {
		return err
	}
	// The remote might not have the branch yet.
	_ = d.git(ctx, "pull", "--quiet", "--ff-only", "origin", d.branch)

	file := filepath.Join(d.dir, name)
	full := filepath.Join(d.repo, file)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}

	if err := d.git(ctx, "add", "--", file); err != nil {
		return err
	}
	if d.git(ctx, "diff", "--cached", "--quiet") == nil {
		return nil
	}
	if err := d.git(ctx, "commit", "--quiet", "-m", "archive: "+name); err != nil {
		return err
	}
	return d.git(ctx, "push", "--quiet", "origin", d.branch)
}

func (d *GitDestination) String() string {
	return "git:" + filepath.Join(d.repo, d.dir)
}

// git runs a git subcommand in the clone. Output is kept off the terminal
// and reported only when the command fails.
func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return nil
}
