// Package cli — snapshot.go implements the "homelabctl snapshot" command
// group.
//
// "snapshot create" snapshots the ZFS datasets backing a stack's bind
// mounts before an upgrade and stamps provenance properties (stack,
// triggering image/tag/sha, git commit) onto the snapshots.
// "snapshot list" reads those properties back.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/distribution/reference"
	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/docker"
	"github.com/panzer1119/homelabctl/internal/model"
	"github.com/panzer1119/homelabctl/internal/zfs"
)

// snapshotCreateFlags holds the flag values for the snapshot create command.
type snapshotCreateFlags struct {
	stack  string
	image  string
	tag    string
	sha    string
	commit string
	prefix string
	dryRun bool
}

// NewSnapshotCommand creates the "snapshot" command group.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage upgrade snapshots of ZFS-backed bind mounts",
	}

	cmd.AddCommand(NewSnapshotCreateCommand())
	cmd.AddCommand(NewSnapshotListCommand())

	return cmd
}

// NewSnapshotCreateCommand creates the "snapshot create" cobra command.
func NewSnapshotCreateCommand() *cobra.Command {
	flags := &snapshotCreateFlags{}

	cmd := &cobra.Command{
		Use:   "create <dataset>...",
		Short: "Snapshot stack datasets with upgrade provenance",
		Long: `Snapshot the given ZFS datasets in one atomic invocation and record
why the snapshot was taken: the stack name, the image/tag/sha that
triggered the upgrade, and the git commit of the compose repository.
When no image is given, it is read from the stack's containers on the
local Docker engine.

The snapshot is named <prefix><unix-timestamp>.

Examples:
  homelabctl snapshot create tank/docker/sonarr --stack sonarr \
    --image lscr.io/linuxserver/sonarr --tag 4.0.0 --commit a1b2c3d
  homelabctl snapshot create tank/docker/media tank/docker/media-cache \
    --stack media --dry-run`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotCreate(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.stack, "stack", "", "Stack name the datasets belong to (required)")
	cmd.Flags().StringVar(&flags.image, "image", "", "Image that triggered the upgrade")
	cmd.Flags().StringVar(&flags.tag, "tag", "", "Image tag that triggered the upgrade")
	cmd.Flags().StringVar(&flags.sha, "sha", "", "Image digest that triggered the upgrade")
	cmd.Flags().StringVar(&flags.commit, "commit", "", "Git commit of the compose repository")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "Snapshot name prefix (default from config)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Log the zfs commands without running them")
	_ = cmd.MarkFlagRequired("stack")

	return cmd
}

// runSnapshotCreate is the main logic function for the snapshot create command.
func runSnapshotCreate(ctx context.Context, datasets []string, flags *snapshotCreateFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prefix := flags.prefix
	if prefix == "" {
		prefix = cfg.SnapshotPrefix
	}

	runner := &zfs.Runner{DryRun: flags.dryRun, Logf: VerboseLog}
	snapName := zfs.SnapshotName(prefix, time.Now())

	prov := model.SnapshotProvenance{
		Stack:  flags.stack,
		Image:  flags.image,
		Tag:    flags.tag,
		SHA:    flags.sha,
		Commit: flags.commit,
	}
	if prov.Image == "" && prov.Tag == "" && prov.SHA == "" {
		fillProvenanceFromStack(ctx, &prov)
	}

	if err := runner.CreateStackSnapshots(ctx, datasets, snapName, prov); err != nil {
		return err
	}

	printSnapshotCreateResult(datasets, snapName, flags.dryRun)
	return nil
}

// fillProvenanceFromStack fills the image/tag/sha fields from the stack's
// containers on the local Docker engine. Best effort: an upgrade snapshot
// must still succeed when Docker is unreachable, so failures are only
// logged.
func fillProvenanceFromStack(ctx context.Context, prov *model.SnapshotProvenance) {
	cli, err := docker.NewClient()
	if err != nil {
		VerboseLog("Skipping provenance lookup: %v", err)
		return
	}
	defer func() { _ = cli.Close() }()

	containers, err := docker.ListStackContainers(ctx, cli, prov.Stack)
	if err != nil {
		VerboseLog("Skipping provenance lookup: %v", err)
		return
	}
	if len(containers) == 0 {
		VerboseLog("Stack %q has no containers on this engine", prov.Stack)
		return
	}

	// Prefer the container whose service carries the stack's name; a stack
	// usually has one main service plus sidecars.
	chosen := containers[0]
	for _, c := range containers {
		if c.ServiceName == prov.Stack {
			chosen = c
			break
		}
	}

	named, err := reference.ParseNormalizedNamed(chosen.Image)
	if err != nil {
		VerboseLog("Cannot parse image %q of container %q: %v", chosen.Image, chosen.ContainerName, err)
		return
	}
	prov.Image = reference.Path(named)
	if tagged, ok := named.(reference.Tagged); ok {
		prov.Tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		prov.SHA = digested.Digest().String()
	}
	VerboseLog("Recording image %s:%s from container %q", prov.Image, prov.Tag, chosen.ContainerName)
}

// printSnapshotCreateResult outputs the snapshot create result in text or
// JSON format.
func printSnapshotCreateResult(datasets []string, snapName string, dryRun bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"snapshot": snapName,
			"datasets": datasets,
			"dryRun":   dryRun,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	verb := "Created"
	if dryRun {
		verb = "Would create"
	}
	for _, dataset := range datasets {
		fmt.Printf("%s snapshot %s@%s\n", verb, dataset, snapName)
	}
}

// snapshotListFlags holds the flag values for the snapshot list command.
type snapshotListFlags struct {
	prefix string
}

// NewSnapshotListCommand creates the "snapshot list" cobra command.
func NewSnapshotListCommand() *cobra.Command {
	flags := &snapshotListFlags{}

	cmd := &cobra.Command{
		Use:   "list <dataset>",
		Short: "List upgrade snapshots and their provenance",
		Long: `List the snapshots of a dataset created by "snapshot create", newest
first, with their recorded provenance.

Examples:
  homelabctl snapshot list tank/docker/sonarr
  homelabctl snapshot list tank/docker/sonarr --json`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "Snapshot name prefix (default from config)")

	return cmd
}

// runSnapshotList is the main logic function for the snapshot list command.
func runSnapshotList(ctx context.Context, dataset string, flags *snapshotListFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	prefix := flags.prefix
	if prefix == "" {
		prefix = cfg.SnapshotPrefix
	}

	runner := &zfs.Runner{Logf: VerboseLog}
	snapshots, err := runner.ListStackSnapshots(ctx, dataset, prefix)
	if err != nil {
		return err
	}

	printSnapshotListResult(snapshots)
	return nil
}

// snapshotListJSON is the JSON output structure for one snapshot.
type snapshotListJSON struct {
	Dataset   string `json:"dataset"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
	Stack     string `json:"stack,omitempty"`
	Image     string `json:"image,omitempty"`
	Tag       string `json:"tag,omitempty"`
	SHA       string `json:"sha,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// printSnapshotListResult outputs the snapshot list in text or JSON format.
func printSnapshotListResult(snapshots []zfs.StackSnapshot) {
	if IsJSONOutput() {
		type resultJSON struct {
			Snapshots []snapshotListJSON `json:"snapshots"`
		}

		result := resultJSON{Snapshots: make([]snapshotListJSON, 0, len(snapshots))}
		for _, snap := range snapshots {
			result.Snapshots = append(result.Snapshots, snapshotListJSON{
				Dataset:   snap.Dataset,
				Name:      snap.Name,
				CreatedAt: snap.CreatedAt.Format(time.RFC3339),
				Stack:     snap.Provenance.Stack,
				Image:     snap.Provenance.Image,
				Tag:       snap.Provenance.Tag,
				SHA:       snap.Provenance.SHA,
				Commit:    snap.Provenance.Commit,
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(snapshots) == 0 {
		fmt.Println("No managed snapshots found.")
		return
	}

	fmt.Printf("%-32s %-20s %-16s %-24s %s\n", "SNAPSHOT", "CREATED", "STACK", "IMAGE", "TAG")
	for _, snap := range snapshots {
		image := snap.Provenance.Image
		if image == "" {
			image = "-"
		}
		tag := snap.Provenance.Tag
		if tag == "" {
			tag = "-"
		}
		fmt.Printf("%-32s %-20s %-16s %-24s %s\n",
			snap.Name,
			snap.CreatedAt.Format("2006-01-02 15:04:05"),
			snap.Provenance.Stack,
			image,
			tag,
		)
	}
}
