// Package changelog diffs the container images declared in Docker Compose
// files across git commits and renders the result as text, JSON, or a
// standalone HTML page.
//
// Design decisions:
//   - We shell out to `git` rather than using a Go Git library because
//     `git show <commit>:<path>` and `git ls-tree` give us historical file
//     content without touching the working tree, and full CLI compatibility
//     matters for repositories with unusual configurations.
//   - Image references are parsed with github.com/distribution/reference,
//     the canonical implementation of Docker's reference grammar, instead
//     of hand-rolled string splitting.
package changelog

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// Repo provides read-only git operations against a single repository.
//
// All methods run `git -C <path>`, so the process working directory is
// never changed.
type Repo struct {
	// Path is the repository root (or any directory inside it).
	Path string
}

// NewRepo creates a Repo for the given directory.
func NewRepo(path string) *Repo {
	return &Repo{Path: path}
}

// ResolveRange expands a revision range like "a..b" into the list of
// commit SHAs it contains, oldest first, using `git rev-list --reverse`.
func (r *Repo) ResolveRange(revRange string) ([]string, error) {
	output, err := r.run("rev-list", "--reverse", revRange)
	if err != nil {
		return nil, err
	}

	var commits []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			commits = append(commits, line)
		}
	}
	if len(commits) == 0 {
		return nil, model.NewCLIError(model.ExitGitError, fmt.Sprintf("revision range %q contains no commits", revRange))
	}
	return commits, nil
}

// ResolveCommit resolves a revision (branch, tag, abbreviated SHA) to a
// full commit SHA.
func (r *Repo) ResolveCommit(rev string) (string, error) {
	output, err := r.run("rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// ParentCommit returns the first parent of the given commit, or "" for a
// root commit.
func (r *Repo) ParentCommit(commit string) (string, error) {
	output, err := r.run("rev-list", "--parents", "-n", "1", commit)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(output)
	if len(fields) < 2 {
		return "", nil
	}
	return fields[1], nil
}

// ShortSHA abbreviates a commit SHA the way `git rev-parse --short` does.
func (r *Repo) ShortSHA(commit string) (string, error) {
	output, err := r.run("rev-parse", "--short", commit)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// ListComposeFiles lists the compose files present in a commit's tree
// using `git ls-tree -r --name-only`, sorted. A root commit's empty
// parent ("") yields an empty list.
func (r *Repo) ListComposeFiles(commit string) ([]string, error) {
	if commit == "" {
		return nil, nil
	}

	output, err := r.run("ls-tree", "-r", "--name-only", commit)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" && isComposeFileName(line) {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// ShowFile returns the content of a file at a commit via
// `git show <commit>:<path>`.
func (r *Repo) ShowFile(commit, path string) ([]byte, error) {
	output, err := r.run("show", commit+":"+path)
	if err != nil {
		return nil, err
	}
	return []byte(output), nil
}

// isComposeFileName matches the compose file basenames docker compose
// itself recognizes.
func isComposeFileName(path string) bool {
	base := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		base = path[i+1:]
	}
	switch base {
	case "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml":
		return true
	default:
		return false
	}
}

// run executes a git command in the repository and returns its stdout.
// Failures are wrapped in a model.CLIError with ExitGitError, including
// git's stderr for diagnostics.
func (r *Repo) run(args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.Path}, args...)

	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}
