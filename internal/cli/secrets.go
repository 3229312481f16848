// Package cli — secrets.go implements "homelabctl secrets inject".
//
// The inject command discovers ref.* template files (ref.env becomes
// .env, ref.<name> becomes <name>), resolves their op:// references via
// the 1Password CLI, and writes the materialized files next to the
// templates with owner-only permissions.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/secret"
)

// secretsFlags holds the flag values for the secrets inject command.
type secretsFlags struct {
	// dryRun lists the templates and their targets without resolving
	// secrets or writing files.
	dryRun bool
}

// NewSecretsCommand creates the "secrets" command group.
func NewSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Materialize secret templates",
	}

	cmd.AddCommand(NewSecretsInjectCommand())

	return cmd
}

// NewSecretsInjectCommand creates the "secrets inject" cobra command.
func NewSecretsInjectCommand() *cobra.Command {
	flags := &secretsFlags{}

	cmd := &cobra.Command{
		Use:   "inject [paths...]",
		Short: "Render ref.* templates into secret-bearing files",
		Long: `Walk the given directories (default: current directory) for ref.*
template files and materialize them: ref.env becomes .env, any other
ref.<name> becomes <name>. Both {{ op://... }} placeholders and bare
op:// values on environment lines are resolved. Output files are
written with mode 0600.

Examples:
  homelabctl secrets inject
  homelabctl secrets inject stacks/media --dry-run`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}
			return runSecretsInject(cmd.Context(), paths, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "List templates without writing files")

	return cmd
}

// runSecretsInject is the main logic function for the secrets inject command.
func runSecretsInject(ctx context.Context, paths []string, flags *secretsFlags) error {
	templates, err := secret.DiscoverTemplates(paths)
	if err != nil {
		return err
	}
	VerboseLog("Found %d secret templates", len(templates))

	if flags.dryRun {
		printInjectResult(templates, true)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := secret.NewOpCLI(cfg.OpAccount)

	for _, tmpl := range templates {
		VerboseLog("Materializing %s -> %s", tmpl.SourcePath, tmpl.TargetPath)
		if err := secret.Materialize(ctx, resolver, tmpl); err != nil {
			return err
		}
	}

	printInjectResult(templates, false)
	return nil
}

// injectJSON is the JSON output structure for one materialized template.
type injectJSON struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// printInjectResult outputs the inject result in text or JSON format.
func printInjectResult(templates []secret.Template, dryRun bool) {
	if IsJSONOutput() {
		type resultJSON struct {
			Templates []injectJSON `json:"templates"`
			DryRun    bool         `json:"dryRun"`
		}

		result := resultJSON{Templates: make([]injectJSON, 0, len(templates)), DryRun: dryRun}
		for _, tmpl := range templates {
			result.Templates = append(result.Templates, injectJSON{Source: tmpl.SourcePath, Target: tmpl.TargetPath})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(templates) == 0 {
		fmt.Println("No secret templates found.")
		return
	}

	verb := "Materialized"
	if dryRun {
		verb = "Would materialize"
	}
	for _, tmpl := range templates {
		fmt.Printf("%s %s -> %s\n", verb, tmpl.SourcePath, tmpl.TargetPath)
	}
}
