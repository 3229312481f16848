// plan.go implements backup-run planning: which datasets to snapshot and
// back up, driven by a per-dataset ZFS user property.
//
// The include property supports four modes:
//
//	true      back up this dataset
//	false     skip it (also the default when unset)
//	recursive back up this dataset and, via -r snapshotting, its children
//	children  -r snapshot from here, but back up only the children
//
// Planning also minimizes recursive snapshot roots so that no dataset is
// ever snapshotted twice in one run, and can skip "empty parents" — parent
// datasets whose mountpoint holds nothing but their children's mountpoints.
package zfs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IncludeMode is the value of the backup include property on a dataset.
type IncludeMode string

const (
	IncludeTrue      IncludeMode = "true"
	IncludeFalse     IncludeMode = "false"
	IncludeRecursive IncludeMode = "recursive"
	IncludeChildren  IncludeMode = "children"
)

// IsValid checks whether the IncludeMode is one of the known modes.
func (m IncludeMode) IsValid() bool {
	switch m {
	case IncludeTrue, IncludeFalse, IncludeRecursive, IncludeChildren:
		return true
	default:
		return false
	}
}

// Default property names for the backup run. The namespace is separate
// from the upgrade-snapshot provenance properties because the two flows
// have independent lifecycles.
const (
	// DefaultIncludeProp selects datasets for backup.
	DefaultIncludeProp = "de.panzer1119.backup:include"

	// DefaultTimestampProp stores the run timestamp on each snapshot.
	DefaultTimestampProp = "de.panzer1119.backup:unix-timestamp"

	// DefaultBackedUpProp is set to "true" once a snapshot has been
	// uploaded, enabling resume of interrupted runs.
	DefaultBackedUpProp = "de.panzer1119.backup:backed-up"

	// DefaultBackupSnapPrefix names the temporary backup snapshots.
	DefaultBackupSnapPrefix = "homelabctl-backup_"

	// DefaultHoldName tags the holds placed on temporary snapshots.
	DefaultHoldName = "homelabctl-backup"
)

// DatasetPlan is the planning result for one dataset.
type DatasetPlan struct {
	// Dataset is the full dataset name.
	Dataset string

	// Mountpoint is the dataset's filesystem mountpoint.
	Mountpoint string

	// Mode is the include mode that selected this dataset.
	Mode IncludeMode

	// SnapshotRecursive is true when -r snapshotting is intended from
	// this dataset (recursive and children modes).
	SnapshotRecursive bool

	// BackupSelf is true when the dataset itself should be uploaded
	// (false for children mode and for skipped empty parents).
	BackupSelf bool
}

// CollectPlans inspects the include property across all roots and their
// descendants and builds the work plan, sorted by dataset name.
//
// Unknown include values are treated as false with a warning — a typo in a
// property should not silently pull a dataset into (or drop it from) the
// backup in a surprising way.
func (r *Runner) CollectPlans(ctx context.Context, roots []string, includeProp string, excludeEmptyParents bool) ([]DatasetPlan, error) {
	var plans []DatasetPlan

	for _, root := range roots {
		datasets, err := r.ListFilesystems(ctx, root)
		if err != nil {
			return nil, err
		}

		// Resolve each dataset's include mode.
		modes := make(map[string]IncludeMode, len(datasets))
		mounts := make(map[string]string, len(datasets))
		for _, ds := range datasets {
			mounts[ds.Name] = ds.Mountpoint
			props, err := r.GetProperties(ctx, ds.Name, includeProp)
			if err != nil {
				return nil, err
			}
			mode := IncludeMode(strings.ToLower(strings.TrimSpace(props[includeProp])))
			if mode == "" {
				mode = IncludeFalse
			}
			if !mode.IsValid() {
				r.logf(false, "Dataset %q has unknown %s=%q; treating as false", ds.Name, includeProp, mode)
				mode = IncludeFalse
			}
			modes[ds.Name] = mode
		}

		// Precompute child mountpoints for the empty-parent check.
		childMounts := make(map[string][]string)
		for parent := range mounts {
			for other, mnt := range mounts {
				if other != parent && strings.HasPrefix(other, parent+"/") {
					childMounts[parent] = append(childMounts[parent], mnt)
				}
			}
		}

		for _, ds := range datasets {
			mode := modes[ds.Name]
			if mode == IncludeFalse {
				continue
			}

			backupSelf := mode == IncludeTrue || mode == IncludeRecursive
			if backupSelf && excludeEmptyParents {
				if children := childMounts[ds.Name]; len(children) > 0 && isEmptyExceptChildMounts(ds.Mountpoint, children) {
					r.logf(false, "Skip empty parent dataset %q at %q", ds.Name, ds.Mountpoint)
					backupSelf = false
				}
			}

			plans = append(plans, DatasetPlan{
				Dataset:           ds.Name,
				Mountpoint:        ds.Mountpoint,
				Mode:              mode,
				SnapshotRecursive: mode == IncludeRecursive || mode == IncludeChildren,
				BackupSelf:        backupSelf,
			})
		}
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Dataset < plans[j].Dataset
	})
	return plans, nil
}

// isEmptyExceptChildMounts reports whether a mountpoint contains nothing
// besides the directories that are mountpoints of child datasets. Only the
// immediate entries are checked. Read errors count as "not empty" so a
// permission problem never silently drops a dataset from the backup.
func isEmptyExceptChildMounts(mountpoint string, childMounts []string) bool {
	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		return false
	}

	children := make(map[string]bool, len(childMounts))
	for _, m := range childMounts {
		children[filepath.Clean(m)] = true
	}

	for _, entry := range entries {
		if !children[filepath.Clean(filepath.Join(mountpoint, entry.Name()))] {
			return false
		}
	}
	return true
}

// MinimizeRecursiveRoots removes from the list every dataset that is a
// descendant of another listed dataset, so -r snapshotting from the
// remaining roots covers each dataset exactly once.
//
// Example: [tank, tank/docker, tank/docker/sonarr] → [tank]
func MinimizeRecursiveRoots(datasets []string) []string {
	roots := make([]string, len(datasets))
	copy(roots, datasets)
	sort.Strings(roots)

	var minimized []string
	for _, ds := range roots {
		covered := false
		for _, parent := range minimized {
			if strings.HasPrefix(ds, parent+"/") || ds == parent {
				covered = true
				break
			}
		}
		if !covered {
			minimized = append(minimized, ds)
		}
	}
	return minimized
}

// SnapshotPlans creates the run's snapshots while guaranteeing that no
// dataset is snapshotted twice:
//
//  1. Datasets requesting recursive snapshotting are minimized to roots.
//  2. Those roots are snapshotted with -r.
//  3. Non-recursive datasets already covered by a recursive root are
//     excluded; the remainder is snapshotted in one batch without -r.
func (r *Runner) SnapshotPlans(ctx context.Context, plans []DatasetPlan, snapName, holdName string, hold bool) error {
	var recursive []string
	for _, p := range plans {
		if p.SnapshotRecursive {
			recursive = append(recursive, p.Dataset)
		}
	}
	roots := MinimizeRecursiveRoots(recursive)

	coveredByRoot := func(ds string) bool {
		for _, root := range roots {
			if ds == root || strings.HasPrefix(ds, root+"/") {
				return true
			}
		}
		return false
	}

	for _, root := range roots {
		if err := r.Snapshot(ctx, []string{root}, snapName, true); err != nil {
			return err
		}
		if hold {
			if err := r.Hold(ctx, holdName, []string{root}, snapName, true); err != nil {
				return err
			}
		}
	}

	var flat []string
	for _, p := range plans {
		if !p.SnapshotRecursive && !coveredByRoot(p.Dataset) {
			flat = append(flat, p.Dataset)
		}
	}
	if len(flat) > 0 {
		if err := r.Snapshot(ctx, flat, snapName, false); err != nil {
			return err
		}
		if hold {
			if err := r.Hold(ctx, holdName, flat, snapName, false); err != nil {
				return err
			}
		}
	}

	return nil
}

// FindResumeTimestamp returns the newest run timestamp among existing
// snapshots matching the prefix, preferring the stored timestamp property
// and falling back to the numeric name suffix. Empty when none is found.
func (r *Runner) FindResumeTimestamp(ctx context.Context, plans []DatasetPlan, snapPrefix, tsProp string) (string, error) {
	newest := ""
	for _, p := range plans {
		snapshots, err := r.ListSnapshots(ctx, p.Dataset)
		if err != nil {
			// The dataset may simply have no snapshots yet.
			continue
		}
		for _, full := range snapshots {
			name := snapNamePart(full)
			if !strings.HasPrefix(name, snapPrefix) {
				continue
			}

			ts := ""
			if props, err := r.GetProperties(ctx, full, tsProp); err == nil {
				ts = strings.TrimSpace(props[tsProp])
			}
			if !isDigits(ts) {
				ts = strings.TrimPrefix(name, snapPrefix)
			}
			if isDigits(ts) && (newest == "" || compareNumeric(ts, newest) > 0) {
				newest = ts
			}
		}
	}
	return newest, nil
}

// FindOrphanSnapshots returns the full names of snapshots matching the
// prefix that do not belong to the current run timestamp — leftovers of
// crashed or interrupted previous runs.
func (r *Runner) FindOrphanSnapshots(ctx context.Context, plans []DatasetPlan, snapPrefix, currentTS, tsProp string) ([]string, error) {
	var orphans []string
	for _, p := range plans {
		snapshots, err := r.ListSnapshots(ctx, p.Dataset)
		if err != nil {
			continue
		}
		for _, full := range snapshots {
			name := snapNamePart(full)
			if !strings.HasPrefix(name, snapPrefix) {
				continue
			}

			ts := ""
			if props, err := r.GetProperties(ctx, full, tsProp); err == nil {
				ts = strings.TrimSpace(props[tsProp])
			}
			if !isDigits(ts) {
				ts = strings.TrimPrefix(name, snapPrefix)
			}
			if ts != currentTS {
				orphans = append(orphans, full)
			}
		}
	}
	return orphans, nil
}

// SnapshotDirOnDisk translates a snapshot into its on-disk directory:
//
//	<mountpoint>/.zfs/snapshot/<snapName>
//
// This is what proxmox-backup-client archives.
func SnapshotDirOnDisk(mountpoint, snapName string) string {
	return filepath.Join(mountpoint, ".zfs", "snapshot", snapName)
}

// snapNamePart returns the part after "@" of a full snapshot name.
func snapNamePart(full string) string {
	if at := strings.Index(full, "@"); at >= 0 {
		return full[at+1:]
	}
	return full
}

// isDigits reports whether s is a nonempty string of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// compareNumeric compares two digit strings as numbers without overflow
// concerns: longer strings are larger, equal lengths compare textually.
func compareNumeric(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// FilterUnbacked keeps only plans whose snapshot exists with the
// backed-up property unset or false, and which are selected for upload.
func (r *Runner) FilterUnbacked(ctx context.Context, plans []DatasetPlan, snapName, backedProp string) ([]DatasetPlan, error) {
	var selected []DatasetPlan
	for _, p := range plans {
		if !p.BackupSelf {
			continue
		}
		full := p.Dataset + "@" + snapName
		props, err := r.GetProperties(ctx, full, backedProp)
		if err != nil {
			// Snapshot missing (e.g. created after this dataset was
			// excluded in a previous run).
			continue
		}
		if strings.EqualFold(props[backedProp], "true") {
			continue
		}
		selected = append(selected, p)
	}
	return selected, nil
}

// StampRunProperties sets the run timestamp and clears the backed-up flag
// on the snapshots of every plan selected for upload.
func (r *Runner) StampRunProperties(ctx context.Context, plans []DatasetPlan, snapName, tsProp, backedProp, timestamp string) error {
	for _, p := range plans {
		if !p.BackupSelf {
			continue
		}
		full := p.Dataset + "@" + snapName
		if err := r.SetProperty(ctx, full, tsProp, timestamp); err != nil {
			return err
		}
		if err := r.SetProperty(ctx, full, backedProp, "false"); err != nil {
			return err
		}
	}
	return nil
}
