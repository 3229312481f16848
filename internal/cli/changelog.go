// Package cli — changelog.go implements "homelabctl changelog".
//
// The changelog command diffs the container images declared in compose
// files across git commits and classifies each change (registry,
// namespace, image, tag, digest). Output is text, JSON (the commits.json
// layout), or a standalone filterable HTML page.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/changelog"
	"github.com/panzer1119/homelabctl/internal/model"
)

// changelogFlags holds the flag values for the changelog command.
type changelogFlags struct {
	// repoPath is the compose repository to inspect.
	repoPath string

	// revRange selects commits via a revision range like "v1..v2".
	revRange string

	// html writes a standalone HTML page instead of text/JSON.
	html bool

	// output writes to a file instead of stdout.
	output string
}

// NewChangelogCommand creates the "changelog" cobra command.
func NewChangelogCommand() *cobra.Command {
	flags := &changelogFlags{}

	cmd := &cobra.Command{
		Use:   "changelog [commit...]",
		Short: "Diff compose images across git commits",
		Long: `Compare the image of every compose service across git commits and
classify each change into update types (repo, user, image, tag, sha).
Projects first appearing in a commit are reported as created, projects
with changed images as updated.

Commits are given as arguments or selected with --range. Each commit is
compared against its first parent.

Examples:
  homelabctl changelog HEAD
  homelabctl changelog --range v2024.1..v2024.2
  homelabctl changelog --range main~10..main --html --output changes.html
  homelabctl changelog HEAD --json`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runChangelog(args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.repoPath, "repo", "C", ".", "Compose repository path")
	cmd.Flags().StringVar(&flags.revRange, "range", "", "Revision range (e.g. v1..v2)")
	cmd.Flags().BoolVar(&flags.html, "html", false, "Render a standalone HTML page")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write output to a file instead of stdout")

	return cmd
}

// runChangelog is the main logic function for the changelog command.
func runChangelog(args []string, flags *changelogFlags) error {
	if len(args) == 0 && flags.revRange == "" {
		return model.NewCLIError(model.ExitGeneralError, "no commits given (pass commits or --range)")
	}
	if len(args) > 0 && flags.revRange != "" {
		return model.NewCLIError(model.ExitGeneralError, "pass either commits or --range, not both")
	}

	repo := changelog.NewRepo(flags.repoPath)

	// Step 1: Resolve the commits to diff, oldest first.
	var commits []string
	if flags.revRange != "" {
		resolved, err := repo.ResolveRange(flags.revRange)
		if err != nil {
			return err
		}
		commits = resolved
	} else {
		for _, arg := range args {
			sha, err := repo.ResolveCommit(arg)
			if err != nil {
				return err
			}
			commits = append(commits, sha)
		}
	}
	VerboseLog("Diffing %d commits", len(commits))

	// Step 2: Compute the per-commit image changes.
	changes, err := changelog.Diff(repo, commits)
	if err != nil {
		return err
	}

	// Step 3: Render to the selected destination and format.
	out := os.Stdout
	if flags.output != "" {
		file, err := os.Create(flags.output)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to create %q", flags.output), err)
		}
		defer func() { _ = file.Close() }()
		out = file
	}

	switch {
	case flags.html:
		if err := changelog.WriteHTML(out, changes); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to render HTML", err)
		}
	case IsJSONOutput():
		// The empty-slice form keeps JSON output as [] instead of null.
		if changes == nil {
			changes = []changelog.CommitChanges{}
		}
		data, _ := json.MarshalIndent(changes, "", "  ")
		fmt.Fprintln(out, string(data))
	default:
		if len(changes) == 0 {
			fmt.Fprintln(out, "No image changes found.")
			return nil
		}
		if err := changelog.WriteText(out, changes); err != nil {
			return err
		}
	}

	if flags.output != "" {
		fmt.Printf("Wrote %s\n", flags.output)
	}
	return nil
}
