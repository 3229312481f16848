// snapshot.go implements the upgrade-snapshot provenance convention.
//
// Before a stack upgrade, the ZFS datasets backing the stack's bind mounts
// are snapshotted and the reason for the snapshot is recorded as
// `de.panzer1119.docker:*` user properties on the snapshot itself: the
// stack name, the triggering image/tag/sha, and the git commit of the
// compose repository. The snapshot is its own audit record — no database.
package zfs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/panzer1119/homelabctl/internal/model"
)

// User property names for snapshot provenance. ZFS requires user property
// names to contain a colon; the namespace mirrors the Docker label prefix.
const (
	// PropPrefix is the common namespace of all provenance properties.
	PropPrefix = "de.panzer1119.docker:"

	// PropCreatedBy marks snapshots created by homelabctl. Used to filter
	// managed snapshots from manual or scheduled ones.
	PropCreatedBy = PropPrefix + "created-by"

	// PropStack records the compose stack name.
	PropStack = PropPrefix + "stack"

	// PropImage records the triggering image repository.
	PropImage = PropPrefix + "image"

	// PropTag records the new image tag.
	PropTag = PropPrefix + "tag"

	// PropSHA records the new image digest.
	PropSHA = PropPrefix + "sha"

	// PropCommit records the compose repository git commit.
	PropCommit = PropPrefix + "commit"
)

// CreatedByValue is the constant value of PropCreatedBy.
const CreatedByValue = "homelabctl"

// DefaultSnapshotPrefix is the default name prefix for upgrade snapshots.
// The final name is <prefix><unix-timestamp>.
const DefaultSnapshotPrefix = "homelabctl_"

// SnapshotName builds the snapshot name for a run timestamp.
func SnapshotName(prefix string, ts time.Time) string {
	return prefix + strconv.FormatInt(ts.Unix(), 10)
}

// StackSnapshot is the reconstructed view of one managed upgrade snapshot.
type StackSnapshot struct {
	// Dataset is the dataset the snapshot belongs to.
	Dataset string `json:"dataset"`

	// Name is the snapshot name (the part after "@").
	Name string `json:"name"`

	// CreatedAt is derived from the timestamp suffix of the name.
	// Zero when the suffix is not numeric.
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// Provenance holds the recorded upgrade context.
	Provenance model.SnapshotProvenance `json:"provenance"`
}

// provenanceProps renders the property map persisted for a snapshot.
// Empty fields are omitted: an unset property reads back as "-" and is
// dropped on parse, so omission round-trips cleanly.
func provenanceProps(prov model.SnapshotProvenance) map[string]string {
	props := map[string]string{
		PropCreatedBy: CreatedByValue,
		PropStack:     prov.Stack,
	}
	if prov.Image != "" {
		props[PropImage] = prov.Image
	}
	if prov.Tag != "" {
		props[PropTag] = prov.Tag
	}
	if prov.SHA != "" {
		props[PropSHA] = prov.SHA
	}
	if prov.Commit != "" {
		props[PropCommit] = prov.Commit
	}
	return props
}

// provenanceFromProps is the inverse of provenanceProps.
func provenanceFromProps(props map[string]string) model.SnapshotProvenance {
	return model.SnapshotProvenance{
		Stack:  props[PropStack],
		Image:  props[PropImage],
		Tag:    props[PropTag],
		SHA:    props[PropSHA],
		Commit: props[PropCommit],
	}
}

// CreateStackSnapshots snapshots every dataset with the given name and
// stamps the provenance properties onto each snapshot. Datasets are
// snapshotted in one zfs invocation; property stamping is per-snapshot
// because `zfs set` takes a single target list per property.
func (r *Runner) CreateStackSnapshots(ctx context.Context, datasets []string, snapName string, prov model.SnapshotProvenance) error {
	if len(datasets) == 0 {
		return fmt.Errorf("no datasets given")
	}

	if err := r.Snapshot(ctx, datasets, snapName, false); err != nil {
		return err
	}

	props := provenanceProps(prov)
	// Deterministic property order keeps dry-run output stable.
	keys := []string{PropCreatedBy, PropStack, PropImage, PropTag, PropSHA, PropCommit}
	for _, dataset := range datasets {
		full := dataset + "@" + snapName
		for _, key := range keys {
			value, ok := props[key]
			if !ok {
				continue
			}
			if err := r.SetProperty(ctx, full, key, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListStackSnapshots returns the managed snapshots of a dataset whose name
// starts with the given prefix, newest first. Snapshots lacking the
// created-by marker are skipped: they belong to other tooling.
func (r *Runner) ListStackSnapshots(ctx context.Context, dataset, prefix string) ([]StackSnapshot, error) {
	snapshots, err := r.ListSnapshots(ctx, dataset)
	if err != nil {
		return nil, err
	}

	var result []StackSnapshot
	for _, full := range snapshots {
		at := strings.Index(full, "@")
		if at < 0 {
			continue
		}
		name := full[at+1:]
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		props, err := r.GetProperties(ctx, full,
			PropCreatedBy, PropStack, PropImage, PropTag, PropSHA, PropCommit)
		if err != nil {
			return nil, err
		}
		if props[PropCreatedBy] != CreatedByValue {
			continue
		}

		snap := StackSnapshot{
			Dataset:    full[:at],
			Name:       name,
			Provenance: provenanceFromProps(props),
		}
		if ts, parseErr := strconv.ParseInt(strings.TrimPrefix(name, prefix), 10, 64); parseErr == nil {
			snap.CreatedAt = time.Unix(ts, 0).UTC()
		}
		result = append(result, snap)
	}

	// Newest first. Sorting by parsed time rather than by name keeps the
	// order correct even for snapshots with non-numeric suffixes.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
