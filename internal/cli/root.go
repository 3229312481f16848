// Package cli implements the cobra-based CLI commands for homelabctl.
//
// Each command group (volume, secrets, snapshot, backup, changelog) is
// defined in its own file within this package. This file defines the root
// command that serves as the parent for all subcommands and handles
// global flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/config"
	"github.com/panzer1119/homelabctl/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, all output uses structured JSON format for machine consumption.
	// When false (default), output uses human-readable text format.
	jsonOutput bool

	// verbose enables detailed logging output for debugging.
	// When true, additional information about operations is printed to stderr.
	verbose bool

	// configPath overrides the default config file location.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action — it only provides
// help text and global flags. Actual functionality is provided by the
// command groups (volume, secrets, snapshot, backup, changelog).
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "homelabctl",
		Short: "Homelab Docker Compose companion tooling",
		Long: `homelabctl is the companion CLI for a compose-file based homelab:
it provisions CIFS/SSHFS/rclone Docker volumes from declarative compose
labels, materializes secret templates via the 1Password CLI, snapshots
ZFS-backed bind mounts around stack upgrades, backs datasets up to a
Proxmox Backup Server, and diffs container images across git commits.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	// PersistentFlags are inherited by all subcommands. This is the cobra
	// mechanism for global flags — any flag defined here is automatically
	// available in every subcommand without re-declaration.
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/homelabctl/config.jsonc)")

	// Register command groups. Each group is defined in its own file
	// (volume.go, secrets.go, etc.) and returns a *cobra.Command.
	rootCmd.AddCommand(NewVolumeCommand())
	rootCmd.AddCommand(NewSecretsCommand())
	rootCmd.AddCommand(NewSnapshotCommand())
	rootCmd.AddCommand(NewBackupCommand())
	rootCmd.AddCommand(NewChangelogCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// It inspects errors returned by cobra commands and translates them
// into appropriate OS exit codes. CLIError types carry their own
// exit codes; other errors default to exit code 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		code, message, detail := exitStatus(err)
		printError(message, detail)
		os.Exit(int(code))
	}
}

// exitStatus translates a command error into the process exit code and the
// message to print. errors.As rather than a type assertion: commands wrap
// CLIErrors with extra context (e.g. the template file that failed to
// materialize), and the exit code must survive that wrapping.
func exitStatus(err error) (model.ExitCode, string, error) {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if err == error(cliErr) {
			return cliErr.Code, cliErr.Message, cliErr.Err
		}
		// Context was wrapped around the CLIError; print all of it.
		return cliErr.Code, err.Error(), nil
	}
	return model.ExitGeneralError, err.Error(), nil
}

// loadConfig reads the config file selected by --config (or the default
// location). Subcommands call this at the start of their RunE.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to load configuration", err)
	}
	return cfg, nil
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// We write to stderr for errors, even in JSON mode, because stdout
		// is reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		// Text format: "Error: <message>" on stderr.
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
// This is used throughout the CLI for debug/trace output that helps
// users understand what operations are being performed.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
