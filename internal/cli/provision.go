// Package cli — provision.go implements "homelabctl volume provision".
//
// The provision command walks directories for Docker Compose files,
// extracts the declarative volume labels
// (de.panzer1119.docker.volume.<name>.<driver>.<field>), resolves the
// "default" credential hierarchy and op:// secret references, and creates
// the resulting Docker volumes idempotently. With --watch it keeps
// running and re-provisions whenever a compose file changes.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/compose"
	"github.com/panzer1119/homelabctl/internal/docker"
	"github.com/panzer1119/homelabctl/internal/model"
	"github.com/panzer1119/homelabctl/internal/secret"
)

// provisionFlags holds the flag values for the volume provision command.
type provisionFlags struct {
	// graceful tolerates already-existing volumes instead of failing.
	graceful bool

	// dryRun prints the volumes that would be created without touching
	// Docker or resolving secrets.
	dryRun bool

	// watch keeps the process running and re-provisions on compose
	// file changes.
	watch bool
}

// NewVolumeProvisionCommand creates the "volume provision" cobra command.
func NewVolumeProvisionCommand() *cobra.Command {
	flags := &provisionFlags{}

	cmd := &cobra.Command{
		Use:   "provision [paths...]",
		Short: "Provision Docker volumes from compose volume labels",
		Long: `Walk the given directories (default: current directory) for Docker
Compose files, extract the de.panzer1119.docker.volume.* labels, and
create the declared CIFS/SSHFS/rclone volumes.

Per-volume fields override the "default" pseudo-volume of the same
driver, so shared credentials are declared once per compose file.
op:// references in usernames and passwords are resolved via the
1Password CLI at provisioning time.

Examples:
  homelabctl volume provision
  homelabctl volume provision stacks/media stacks/monitoring --graceful
  homelabctl volume provision --dry-run
  homelabctl volume provision --watch`,

		Args: cobra.ArbitraryArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{"."}
			}
			if flags.watch {
				return runProvisionWatch(cmd.Context(), paths, flags)
			}
			_, err := runProvision(cmd.Context(), paths, flags)
			return err
		},
	}

	cmd.Flags().BoolVarP(&flags.graceful, "graceful", "e", false, "Succeed if volumes already exist")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the volumes that would be created")
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Re-provision whenever a compose file changes")

	return cmd
}

// provisionResult summarizes one provisioning pass.
type provisionResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
	DryRun  bool     `json:"dryRun"`
}

// runProvision performs a single provisioning pass over the given paths.
func runProvision(ctx context.Context, paths []string, flags *provisionFlags) (*provisionResult, error) {
	// Step 1: Discover compose files and extract volume specs.
	files, err := compose.Discover(paths)
	if err != nil {
		return nil, err
	}
	VerboseLog("Found %d compose files", len(files))

	parsed := make([]*compose.File, 0, len(files))
	for _, path := range files {
		f, err := compose.LoadFile(path)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}

	specs, err := compose.ExtractAll(parsed)
	if err != nil {
		return nil, err
	}
	VerboseLog("Extracted %d volume definitions", len(specs))

	if len(specs) == 0 {
		result := &provisionResult{Created: []string{}, Skipped: []string{}, DryRun: flags.dryRun}
		printProvisionResult(result)
		return result, nil
	}

	// Step 2: Resolve op:// references. Skipped in dry-run so previewing
	// a provisioning pass never requires a signed-in op session.
	if !flags.dryRun {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		resolver := secret.NewOpCLI(cfg.OpAccount)
		for _, spec := range specs {
			if err := resolveSpecSecrets(ctx, resolver, spec); err != nil {
				return nil, err
			}
		}
	}

	// Step 3: Create each volume idempotently.
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cli.Close() }()

	result := &provisionResult{Created: []string{}, Skipped: []string{}, DryRun: flags.dryRun}
	for _, spec := range specs {
		created, err := provisionVolume(ctx, cli, spec, flags.graceful, flags.dryRun)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created = append(result.Created, spec.Name)
		} else {
			result.Skipped = append(result.Skipped, spec.Name)
		}
	}

	printProvisionResult(result)
	return result, nil
}

// printProvisionResult outputs a provisioning pass summary in text or
// JSON format.
func printProvisionResult(result *provisionResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	verb := "Created"
	if result.DryRun {
		verb = "Would create"
	}
	for _, name := range result.Created {
		fmt.Printf("%s volume %q\n", verb, name)
	}
	for _, name := range result.Skipped {
		fmt.Printf("Volume %q already exists\n", name)
	}
	if len(result.Created) == 0 && len(result.Skipped) == 0 {
		fmt.Println("No volume definitions found.")
	}
}

// debounceDelay coalesces bursts of filesystem events (editors typically
// emit several writes per save) into a single re-provisioning pass.
const debounceDelay = 500 * time.Millisecond

// runProvisionWatch runs an initial provisioning pass, then watches the
// given directories and re-provisions whenever a compose file is written
// or created. Watch mode implies --graceful: volumes provisioned by a
// previous pass are expected to exist.
func runProvisionWatch(ctx context.Context, paths []string, flags *provisionFlags) error {
	passFlags := *flags
	passFlags.graceful = true

	if _, err := runProvision(ctx, paths, &passFlags); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to create file watcher", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch every directory under the given paths. fsnotify does not
	// recurse, so subdirectories are added individually.
	for _, root := range paths {
		if _, err := watchTree(watcher, root); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to watch %q", root), err)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %d directories for compose file changes\n", len(watcher.WatchList()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var debounce *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			trigger := isComposePath(event.Name)
			if event.Op&fsnotify.Create != 0 && !trigger {
				// A newly created directory must be watched too: a new
				// stack directory's compose file would otherwise stay
				// invisible until restart. The walk also picks up compose
				// files that landed before the watch did.
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					sawCompose, walkErr := watchTree(watcher, event.Name)
					if walkErr != nil {
						fmt.Fprintf(os.Stderr, "Watcher error: %v\n", walkErr)
					}
					trigger = sawCompose
				}
			}
			if !trigger {
				continue
			}
			VerboseLog("Change detected: %s", event.Name)
			if debounce == nil {
				debounce = time.NewTimer(debounceDelay)
			} else {
				debounce.Reset(debounceDelay)
			}
			pending = debounce.C

		case <-pending:
			pending = nil
			fmt.Fprintf(os.Stderr, "[%s] Re-provisioning...\n", time.Now().Format(time.RFC3339))
			if _, err := runProvision(ctx, paths, &passFlags); err != nil {
				// Keep watching: a transient failure (op session expired,
				// Docker restarting) should not end watch mode.
				printError(err.Error(), nil)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)

		case <-sigChan:
			fmt.Fprintln(os.Stderr, "Shutting down...")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// watchTree adds root and every non-hidden directory below it to the
// watcher. It reports whether the walk saw a compose file, so callers can
// re-provision when a directory arrives already populated.
func watchTree(watcher *fsnotify.Watcher, root string) (bool, error) {
	sawCompose := false
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if name := entry.Name(); name != "." && len(name) > 1 && name[0] == '.' {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		if isComposePath(path) {
			sawCompose = true
		}
		return nil
	})
	return sawCompose, err
}

// isComposePath checks whether a changed file is a compose file.
func isComposePath(path string) bool {
	switch filepath.Base(path) {
	case "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml":
		return true
	default:
		return false
	}
}
