// Package cli — volume.go implements the "homelabctl volume" command group.
//
// "volume create" provisions a single CIFS/SSHFS/rclone Docker volume from
// flags, and "volume list" shows the volumes homelabctl manages by querying
// Docker for the "de.panzer1119.docker.managed-by=homelabctl" label.
// Bulk provisioning from compose labels lives in provision.go.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/panzer1119/homelabctl/internal/docker"
	"github.com/panzer1119/homelabctl/internal/model"
	"github.com/panzer1119/homelabctl/internal/secret"
)

// NewVolumeCommand creates the "volume" command group.
func NewVolumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Manage driver-backed Docker volumes",
	}

	cmd.AddCommand(NewVolumeProvisionCommand())
	cmd.AddCommand(NewVolumeCreateCommand())
	cmd.AddCommand(NewVolumeListCommand())

	return cmd
}

// volumeCreateFlags holds the flag values for the volume create command.
type volumeCreateFlags struct {
	driver   string
	host     string
	port     string
	path     string
	share    string
	username string
	password string
	fsType   string

	// graceful tolerates an already-existing volume instead of failing.
	graceful bool

	// dryRun prints what would be created without touching Docker.
	dryRun bool
}

// NewVolumeCreateCommand creates the "volume create" cobra command.
func NewVolumeCreateCommand() *cobra.Command {
	flags := &volumeCreateFlags{}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a single driver-backed Docker volume",
		Long: `Create a CIFS, SSHFS, or rclone-backed Docker volume from flags.

Credential flags accept op:// secret references, which are resolved via
the 1Password CLI before the volume is created.

Examples:
  homelabctl volume create media --driver cifs --host nas.local --share media \
    --username svc --password "op://Infra/nas/password"
  homelabctl volume create offsite --driver rclone --host storagebox.de \
    --path /backups --type sftp --username u12345 --password "op://Infra/box/password"`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runVolumeCreate(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.driver, "driver", "", "Volume driver: cifs, sshfs, rclone (required)")
	cmd.Flags().StringVar(&flags.host, "host", "", "Remote host")
	cmd.Flags().StringVar(&flags.port, "port", "", "Remote port (driver default when omitted)")
	cmd.Flags().StringVar(&flags.path, "path", "", "Remote path (sshfs, rclone)")
	cmd.Flags().StringVar(&flags.share, "share", "", "CIFS share name")
	cmd.Flags().StringVar(&flags.username, "username", "", "Username (may be an op:// reference)")
	cmd.Flags().StringVar(&flags.password, "password", "", "Password (may be an op:// reference)")
	cmd.Flags().StringVar(&flags.fsType, "type", "", "rclone backend type (e.g. sftp, smb)")
	cmd.Flags().BoolVarP(&flags.graceful, "graceful", "e", false, "Succeed if the volume already exists")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the volume that would be created")
	_ = cmd.MarkFlagRequired("driver")

	return cmd
}

// runVolumeCreate is the main logic function for the volume create command.
func runVolumeCreate(ctx context.Context, name string, flags *volumeCreateFlags) error {
	// Step 1: Assemble and validate the volume spec from flags.
	driver, err := model.ParseDriver(flags.driver)
	if err != nil {
		return err
	}

	spec := &model.VolumeSpec{
		Name:     name,
		Driver:   driver,
		Host:     flags.host,
		Port:     flags.port,
		Path:     flags.path,
		Share:    flags.share,
		Username: flags.username,
		Password: flags.password,
		Type:     flags.fsType,
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	// Step 2: Load config and resolve op:// references in credentials.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := secret.NewOpCLI(cfg.OpAccount)
	if err := resolveSpecSecrets(ctx, resolver, spec); err != nil {
		return err
	}

	// Step 3: Provision through the shared pipeline used by provision.go.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	created, err := provisionVolume(ctx, cli, spec, flags.graceful, flags.dryRun)
	if err != nil {
		return err
	}

	printVolumeCreateResult(spec, created, flags.dryRun)
	return nil
}

// resolveSpecSecrets replaces op:// references in the spec's username and
// password with their resolved values.
func resolveSpecSecrets(ctx context.Context, r secret.Resolver, spec *model.VolumeSpec) error {
	username, err := secret.ResolveValue(ctx, r, spec.Username)
	if err != nil {
		return err
	}
	password, err := secret.ResolveValue(ctx, r, spec.Password)
	if err != nil {
		return err
	}
	spec.Username = username
	spec.Password = password
	return nil
}

// provisionVolume creates one Docker volume idempotently. It returns true
// when the volume was (or would be) created, false when it already existed
// and graceful mode tolerated that.
func provisionVolume(ctx context.Context, cli *docker.Client, spec *model.VolumeSpec, graceful, dryRun bool) (bool, error) {
	exists, err := docker.VolumeExists(ctx, cli, spec.Name)
	if err != nil {
		return false, err
	}
	if exists {
		if !graceful {
			return false, model.NewCLIError(model.ExitVolumeExists,
				fmt.Sprintf("volume %q already exists (use --graceful to tolerate)", spec.Name))
		}
		VerboseLog("Volume %q already exists, skipping", spec.Name)
		return false, nil
	}

	req, err := docker.BuildCreateRequest(spec, time.Now().UTC())
	if err != nil {
		return false, err
	}

	if dryRun {
		VerboseLog("Would create volume %q: %s", spec.Name, req.OptionsSummary())
		return true, nil
	}

	VerboseLog("Creating volume %q (driver %s)", spec.Name, req.Driver)
	if err := docker.CreateVolume(ctx, cli, req); err != nil {
		return false, err
	}
	return true, nil
}

// printVolumeCreateResult outputs the volume create result in text or
// JSON format. Credentials are always redacted.
func printVolumeCreateResult(spec *model.VolumeSpec, created, dryRun bool) {
	if IsJSONOutput() {
		result := map[string]interface{}{
			"name":    spec.Name,
			"driver":  spec.Driver.String(),
			"created": created,
			"dryRun":  dryRun,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	switch {
	case dryRun && created:
		fmt.Printf("Would create volume %q (driver %s)\n", spec.Name, spec.Driver)
	case created:
		fmt.Printf("Created volume %q (driver %s)\n", spec.Name, spec.Driver)
	default:
		fmt.Printf("Volume %q already exists\n", spec.Name)
	}
}

// NewVolumeListCommand creates the "volume list" cobra command.
func NewVolumeListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List Docker volumes managed by homelabctl",
		Long: `List the Docker volumes carrying the homelabctl management label,
with their driver, remote host, and source compose file.

Examples:
  homelabctl volume list
  homelabctl volume list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runVolumeList(cmd.Context())
		},
	}

	return cmd
}

// runVolumeList is the main logic function for the volume list command.
func runVolumeList(ctx context.Context) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	VerboseLog("Connected to Docker daemon")

	volumes, warnings := docker.ListManagedVolumes(ctx, cli)
	for _, warn := range warnings {
		// A single volume with corrupted labels should not prevent
		// listing the others.
		VerboseLog("Warning: %v", warn)
	}

	sort.Slice(volumes, func(i, j int) bool {
		return volumes[i].Name < volumes[j].Name
	})

	printVolumeListResult(volumes)
	return nil
}

// volumeListJSON is the JSON output structure for a single managed volume.
type volumeListJSON struct {
	Name      string `json:"name"`
	Driver    string `json:"driver"`
	Host      string `json:"host"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// printVolumeListResult outputs the volume list in text or JSON format.
func printVolumeListResult(volumes []*docker.ManagedVolume) {
	if IsJSONOutput() {
		type resultJSON struct {
			Volumes []volumeListJSON `json:"volumes"`
		}

		// Use an empty slice instead of nil to ensure JSON output shows []
		// instead of null when no volumes are found.
		result := resultJSON{Volumes: make([]volumeListJSON, 0, len(volumes))}
		for _, vol := range volumes {
			result.Volumes = append(result.Volumes, volumeListJSON{
				Name:      vol.Name,
				Driver:    vol.Driver.String(),
				Host:      vol.Host,
				Source:    vol.Source,
				CreatedAt: vol.CreatedAt.Format(time.RFC3339),
			})
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(volumes) == 0 {
		fmt.Println("No managed volumes found.")
		return
	}

	fmt.Printf("%-24s %-8s %-24s %s\n", "NAME", "DRIVER", "HOST", "SOURCE")
	for _, vol := range volumes {
		source := vol.Source
		if source == "" {
			source = "-"
		}
		fmt.Printf("%-24s %-8s %-24s %s\n", vol.Name, vol.Driver, vol.Host, source)
	}
}
