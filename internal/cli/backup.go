// Package cli — backup.go implements "homelabctl backup run".
//
// The backup run walks configured ZFS roots, selects datasets via the
// de.panzer1119.backup:include property, snapshots them (recursively
// where requested, never twice), uploads each snapshot directory to a
// Proxmox Backup Server as a pxar archive, and cleans up afterwards.
// Holds protect the temporary snapshots while the upload runs; foreign
// holds are never broken.
//
// Unlike the other mutating commands, backup run is dry-run BY DEFAULT:
// touching every configured dataset and a remote backup server is a big
// enough hammer that execution is opt-in via --execute.
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/config"
	"github.com/panzer1119/homelabctl/internal/model"
	"github.com/panzer1119/homelabctl/internal/pbs"
	"github.com/panzer1119/homelabctl/internal/secret"
	"github.com/panzer1119/homelabctl/internal/zfs"
)

// backupFlags holds the flag values for the backup run command.
type backupFlags struct {
	// execute performs the run. Without it the full plan is printed but
	// nothing is mutated.
	execute bool

	// resume continues an interrupted run: existing backup snapshots are
	// reused and datasets already marked backed-up are skipped.
	resume bool

	// cleanupOrphans destroys leftover backup snapshots from previous
	// interrupted runs before starting.
	cleanupOrphans bool

	// keepSnapshots leaves the backup snapshots (and our holds) in place
	// after a successful upload.
	keepSnapshots bool

	// roots overrides the configured dataset roots.
	roots []string
}

// NewBackupCommand creates the "backup" command group.
func NewBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up ZFS datasets to a Proxmox Backup Server",
	}

	cmd.AddCommand(NewBackupRunCommand())

	return cmd
}

// NewBackupRunCommand creates the "backup run" cobra command.
func NewBackupRunCommand() *cobra.Command {
	flags := &backupFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Snapshot included datasets and upload them as pxar archives",
		Long: `Select datasets under the configured roots via the
de.panzer1119.backup:include property (true, false, recursive, children),
snapshot them atomically, and upload each snapshot's .zfs/snapshot
directory to the configured Proxmox Backup Server.

Without --execute the run is a dry run: the plan and every command are
printed, read-only zfs commands execute, mutating ones do not.

Examples:
  homelabctl backup run
  homelabctl backup run --execute
  homelabctl backup run --execute --resume
  homelabctl backup run --execute --cleanup-orphans`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.execute, "execute", false, "Actually snapshot and upload (default is dry run)")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Resume an interrupted run")
	cmd.Flags().BoolVar(&flags.cleanupOrphans, "cleanup-orphans", false, "Destroy leftover snapshots of previous runs first")
	cmd.Flags().BoolVar(&flags.keepSnapshots, "keep-snapshots", false, "Keep backup snapshots after upload")
	cmd.Flags().StringSliceVar(&flags.roots, "root", nil, "Dataset root to scan (repeatable, default from config)")

	return cmd
}

// sortedKeys returns the keys of a string-keyed set in sorted order.
func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// backupLog always prints progress to stderr. The backup run is long and
// operator-facing, so progress is not gated behind --verbose.
func backupLog(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// runBackup is the main logic function for the backup run command.
func runBackup(ctx context.Context, flags *backupFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	roots := flags.roots
	if len(roots) == 0 {
		roots = cfg.Backup.Roots
	}
	if len(roots) == 0 {
		return model.NewCLIError(model.ExitGeneralError,
			"no dataset roots configured (set backup.roots in the config or pass --root)")
	}

	dryRun := !flags.execute
	runner := &zfs.Runner{DryRun: dryRun, Logf: backupLog}
	if dryRun {
		backupLog("Dry run: pass --execute to perform the backup")
	}

	// Step 1: Plan which datasets to snapshot and upload.
	plans, err := runner.CollectPlans(ctx, roots, cfg.Backup.IncludeProperty, cfg.Backup.ExcludeEmptyParentsEnabled())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		backupLog("No datasets selected for backup")
		return nil
	}
	for _, plan := range plans {
		backupLog("Plan: %s (mode %s, recursive %t, upload %t)", plan.Dataset, plan.Mode, plan.SnapshotRecursive, plan.BackupSelf)
	}

	// Step 2: Resolve the run timestamp. A resumed run reuses the newest
	// existing backup snapshot instead of creating a new one.
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	createSnapshots := true
	if flags.resume {
		resumeTS, err := runner.FindResumeTimestamp(ctx, plans, zfs.DefaultBackupSnapPrefix, zfs.DefaultTimestampProp)
		if err != nil {
			return err
		}
		if resumeTS != "" {
			timestamp = resumeTS
			createSnapshots = false
			backupLog("Resuming run with timestamp %s", timestamp)
		} else {
			backupLog("Nothing to resume, starting a fresh run")
		}
	}
	snapName := zfs.DefaultBackupSnapPrefix + timestamp

	// Step 3: Optionally clean up orphan snapshots from interrupted runs.
	if flags.cleanupOrphans {
		orphans, err := runner.FindOrphanSnapshots(ctx, plans, zfs.DefaultBackupSnapPrefix, timestamp, zfs.DefaultTimestampProp)
		if err != nil {
			return err
		}
		for _, orphan := range orphans {
			destroyed, err := runner.DestroySnapshotSafely(ctx, orphan, zfs.DefaultHoldName, true)
			if err != nil {
				return err
			}
			if !destroyed {
				backupLog("Kept orphan %s (held by someone else)", orphan)
			}
		}
	}

	// Step 4: Create the snapshots (recursive roots first, remainder in
	// one flat batch) with holds, then stamp run properties.
	if createSnapshots {
		if err := runner.SnapshotPlans(ctx, plans, snapName, zfs.DefaultHoldName, true); err != nil {
			return err
		}
		if err := runner.StampRunProperties(ctx, plans, snapName, zfs.DefaultTimestampProp, zfs.DefaultBackedUpProp, timestamp); err != nil {
			return err
		}
	}

	// Step 5: Upload every dataset not yet marked backed-up.
	pending := plans
	if !dryRun {
		pending, err = runner.FilterUnbacked(ctx, plans, snapName, zfs.DefaultBackedUpProp)
		if err != nil {
			return err
		}
	}

	client, err := newPBSClient(ctx, &cfg.Backup, cfg.OpAccount, dryRun)
	if err != nil {
		return err
	}

	for _, plan := range pending {
		if !plan.BackupSelf {
			continue
		}
		if plan.Mountpoint == "" || plan.Mountpoint == "none" || plan.Mountpoint == "legacy" {
			backupLog("Skip %s: no usable mountpoint", plan.Dataset)
			continue
		}

		dir := zfs.SnapshotDirOnDisk(plan.Mountpoint, snapName)
		if err := client.BackupDirectory(ctx, plan.Dataset, "root", dir); err != nil {
			return err
		}

		if err := runner.SetProperty(ctx, plan.Dataset+"@"+snapName, zfs.DefaultBackedUpProp, "true"); err != nil {
			return err
		}
	}

	// Step 6: Release our holds and destroy the run's snapshots unless
	// asked to keep them. Recursive snapshotting also created snapshots
	// on descendants that were never planned themselves, so those are
	// enumerated and destroyed too.
	if !flags.keepSnapshots {
		targets := map[string]bool{}
		for _, plan := range plans {
			if plan.BackupSelf || plan.SnapshotRecursive {
				targets[plan.Dataset] = true
			}
			if plan.SnapshotRecursive {
				descendants, err := runner.ListFilesystems(ctx, plan.Dataset)
				if err != nil {
					return err
				}
				for _, ds := range descendants {
					targets[ds.Name] = true
				}
			}
		}

		for _, dataset := range sortedKeys(targets) {
			full := dataset + "@" + snapName
			destroyed, err := runner.DestroySnapshotSafely(ctx, full, zfs.DefaultHoldName, true)
			if err != nil {
				return err
			}
			if !destroyed {
				backupLog("Kept %s (held by someone else)", full)
			}
		}
	}

	backupLog("Backup run complete (%d datasets)", len(pending))
	return nil
}

// newPBSClient builds the PBS client, resolving op:// references in the
// configured passwords. In dry-run mode secrets are left unresolved so a
// plan never requires a signed-in op session.
func newPBSClient(ctx context.Context, backup *config.BackupConfig, opAccount string, dryRun bool) (*pbs.Client, error) {
	pbsConfig := pbs.Config{
		Repository:         backup.Repository,
		Namespace:          backup.Namespace,
		AuthID:             backup.AuthID,
		Password:           backup.Password,
		EncryptionPassword: backup.EncryptionPassword,
		BackupIDPrefix:     backup.BackupIDPrefix,
	}

	if !dryRun {
		resolver := secret.NewOpCLI(opAccount)

		var err error
		pbsConfig.Password, err = secret.ResolveValue(ctx, resolver, pbsConfig.Password)
		if err != nil {
			return nil, err
		}
		pbsConfig.EncryptionPassword, err = secret.ResolveValue(ctx, resolver, pbsConfig.EncryptionPassword)
		if err != nil {
			return nil, err
		}
	}

	client, err := pbs.NewClient(pbsConfig)
	if err != nil {
		return nil, err
	}
	client.DryRun = dryRun
	client.Logf = backupLog
	return client, nil
}
