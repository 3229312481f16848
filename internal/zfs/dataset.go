// dataset.go implements the individual zfs subcommand wrappers. All output
// parsing relies on the parsable flags (-H for tab separation without
// headers, -p for unrounded numbers) so locale and column-width changes
// cannot break it.
package zfs

import (
	"context"
	"fmt"
	"strings"
)

// Dataset is one row of `zfs list` output with its mountpoint.
type Dataset struct {
	// Name is the full dataset name (e.g. "tank/docker/sonarr").
	Name string

	// Mountpoint is the filesystem mountpoint, or "-"/"legacy" when the
	// dataset is not mounted through ZFS.
	Mountpoint string
}

// ListFilesystems returns the dataset and all descendant filesystems with
// their mountpoints, equivalent to:
//
//	zfs list -H -p -o name,mountpoint -r -t filesystem <root>
func (r *Runner) ListFilesystems(ctx context.Context, root string) ([]Dataset, error) {
	out, err := r.runReadOnly(ctx, "list", "-H", "-p", "-o", "name,mountpoint", "-r", "-t", "filesystem", root)
	if err != nil {
		return nil, err
	}

	var datasets []Dataset
	for _, row := range parseTabular(out) {
		if len(row) < 2 {
			continue
		}
		datasets = append(datasets, Dataset{Name: row[0], Mountpoint: row[1]})
	}
	return datasets, nil
}

// ListSnapshots returns the full snapshot names (dataset@snap) of the given
// dataset, non-recursively, equivalent to:
//
//	zfs list -H -o name -t snapshot <dataset>
func (r *Runner) ListSnapshots(ctx context.Context, dataset string) ([]string, error) {
	out, err := r.runReadOnly(ctx, "list", "-H", "-o", "name", "-t", "snapshot", dataset)
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, row := range parseTabular(out) {
		if len(row) > 0 && row[0] != "" {
			snapshots = append(snapshots, row[0])
		}
	}
	return snapshots, nil
}

// GetProperties reads the given properties of a dataset or snapshot,
// equivalent to:
//
//	zfs get -H -o property,value <prop,prop,...> <target>
//
// Properties whose value is "-" (unset) are omitted from the result map.
func (r *Runner) GetProperties(ctx context.Context, target string, props ...string) (map[string]string, error) {
	out, err := r.runReadOnly(ctx, "get", "-H", "-o", "property,value", strings.Join(props, ","), target)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, row := range parseTabular(out) {
		if len(row) < 2 {
			continue
		}
		if row[1] == "-" {
			continue
		}
		result[row[0]] = row[1]
	}
	return result, nil
}

// SetProperty sets a single user property on a dataset or snapshot.
func (r *Runner) SetProperty(ctx context.Context, target, prop, value string) error {
	return r.runMutating(ctx,
		fmt.Sprintf("Set property %q=%q on %q", prop, value, target),
		"set", prop+"="+value, target)
}

// Snapshot creates snapshots named snapName on every target dataset in a
// single zfs invocation (atomic per invocation). With recursive, the -r
// flag snapshots each target and all its descendants.
func (r *Runner) Snapshot(ctx context.Context, targets []string, snapName string, recursive bool) error {
	args := []string{"snapshot"}
	if recursive {
		args = append(args, "-r")
	}
	for _, t := range targets {
		args = append(args, t+"@"+snapName)
	}
	return r.runMutating(ctx,
		fmt.Sprintf("Create snapshot %q on %s", snapName, strings.Join(targets, ", ")),
		args...)
}

// Hold places a named hold on the snapshots, preventing their destruction
// until released. With recursive, descendants' snapshots are held too.
func (r *Runner) Hold(ctx context.Context, holdName string, targets []string, snapName string, recursive bool) error {
	args := []string{"hold"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, holdName)
	for _, t := range targets {
		args = append(args, t+"@"+snapName)
	}
	return r.runMutating(ctx,
		fmt.Sprintf("Hold snapshot %q with tag %q", snapName, holdName),
		args...)
}

// Holds lists the hold tags on a snapshot, equivalent to:
//
//	zfs holds -H <dataset@snap>
//
// A nonexistent snapshot yields an empty list rather than an error, which
// simplifies the holds-aware destroy flow.
func (r *Runner) Holds(ctx context.Context, snapshot string) ([]string, error) {
	out, err := r.runReadOnly(ctx, "holds", "-H", snapshot)
	if err != nil {
		// Most likely the snapshot does not exist (already destroyed by
		// a previous partial run).
		return nil, nil
	}

	var tags []string
	for _, row := range parseTabular(out) {
		// Row format: <snapshot>\t<tag>\t<timestamp>
		if len(row) >= 2 {
			tags = append(tags, row[1])
		}
	}
	return tags, nil
}

// Release removes a named hold from a snapshot.
func (r *Runner) Release(ctx context.Context, holdName, snapshot string) error {
	return r.runMutating(ctx,
		fmt.Sprintf("Release hold %q on %q", holdName, snapshot),
		"release", holdName, snapshot)
}

// DestroySnapshot destroys a single snapshot (never a dataset: the target
// must contain "@", which is verified to guard against destroying a whole
// dataset through a mangled name).
func (r *Runner) DestroySnapshot(ctx context.Context, snapshot string) error {
	if !strings.Contains(snapshot, "@") {
		return fmt.Errorf("refusing to destroy %q: not a snapshot name", snapshot)
	}
	return r.runMutating(ctx,
		fmt.Sprintf("Destroy snapshot %q", snapshot),
		"destroy", snapshot)
}

// DestroySnapshotSafely destroys a snapshot respecting holds:
//
//   - No holds → destroy.
//   - Only our own hold (and holding is enabled) → release, then destroy.
//   - Any foreign hold → skip with a warning; another tool owns it.
//
// Returns true if the snapshot was destroyed (or would be, in dry-run).
func (r *Runner) DestroySnapshotSafely(ctx context.Context, snapshot, ourHold string, holdingEnabled bool) (bool, error) {
	holds, err := r.Holds(ctx, snapshot)
	if err != nil {
		return false, err
	}

	if len(holds) == 0 {
		if err := r.DestroySnapshot(ctx, snapshot); err != nil {
			return false, err
		}
		return true, nil
	}

	if holdingEnabled && len(holds) == 1 && holds[0] == ourHold {
		if err := r.Release(ctx, ourHold, snapshot); err != nil {
			return false, err
		}
		if err := r.DestroySnapshot(ctx, snapshot); err != nil {
			return false, err
		}
		return true, nil
	}

	r.logf(false, "Skip destroying %q: foreign holds present (%s)", snapshot, strings.Join(holds, ", "))
	return false, nil
}
