// volume.go implements Docker volume provisioning for the external storage
// backends used across the homelab (CIFS/SMB shares, SSHFS mounts, rclone
// remotes).
//
// Each logical driver maps to a Docker volume driver plus driver options:
//
//	cifs   → driver "local" with type=cifs mount options
//	sshfs  → driver "vieux/sshfs" (volume plugin)
//	rclone → driver "rclone" (volume plugin, backend selected by type)
//
// Provisioning is idempotent: an already-existing volume is either skipped
// (graceful mode) or reported as a conflict, never recreated or modified.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/panzer1119/homelabctl/internal/model"
)

// Docker volume driver names for each backend.
const (
	// cifsDockerDriver is the built-in local driver; CIFS mounts are
	// expressed through its type/device/o options.
	cifsDockerDriver = "local"

	// sshfsDockerDriver is the vieux/sshfs volume plugin.
	sshfsDockerDriver = "vieux/sshfs"

	// rcloneDockerDriver is the rclone volume plugin.
	rcloneDockerDriver = "rclone"
)

// cifsMountOptions are the fixed mount options appended to every CIFS
// volume. vers=3.0 avoids the insecure SMB1 default on older kernels and
// iocharset=utf8 keeps non-ASCII media filenames intact.
const cifsMountOptions = "vers=3.0,iocharset=utf8"

// VolumeCreateRequest is the fully rendered Docker API request for one
// volume, produced by BuildCreateRequest. Splitting "render" from "create"
// lets dry-run mode show exactly what would be sent without a daemon.
type VolumeCreateRequest struct {
	// Name is the Docker volume name.
	Name string

	// Driver is the Docker volume driver string.
	Driver string

	// Options are the driver options, including credentials.
	Options map[string]string

	// Labels are the provenance labels stamped onto the volume.
	Labels map[string]string
}

// BuildCreateRequest maps a validated VolumeSpec onto the Docker driver and
// options for its backend. The spec's password must already be resolved
// (no op:// references) by the time this is called.
func BuildCreateRequest(spec *model.VolumeSpec, createdAt time.Time) (*VolumeCreateRequest, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	req := &VolumeCreateRequest{
		Name:   spec.Name,
		Labels: BuildVolumeLabels(spec, createdAt),
	}

	switch spec.Driver {
	case model.DriverCIFS:
		req.Driver = cifsDockerDriver
		req.Options = cifsOptions(spec)
	case model.DriverSSHFS:
		req.Driver = sshfsDockerDriver
		req.Options = sshfsOptions(spec)
	case model.DriverRclone:
		req.Driver = rcloneDockerDriver
		req.Options = rcloneOptions(spec)
	default:
		// Validate() already rejects unknown drivers; this is a safeguard
		// against new drivers being added without a mapping.
		return nil, fmt.Errorf("volume %q: no option mapping for driver %q", spec.Name, spec.Driver)
	}

	return req, nil
}

// cifsOptions renders the local-driver options for a CIFS volume:
//
//	type:   cifs
//	device: //host/share[/path]
//	o:      addr=host[,port=...][,username=...,password=...],vers=3.0,iocharset=utf8
//
// The addr= option is required by the kernel mount helper for DNS
// resolution even though the host is also part of the device string.
func cifsOptions(spec *model.VolumeSpec) map[string]string {
	device := "//" + spec.Host + "/" + spec.Share
	if spec.Path != "" {
		device += "/" + strings.TrimPrefix(spec.Path, "/")
	}

	oParts := []string{"addr=" + spec.Host}
	if spec.Port != "" {
		oParts = append(oParts, "port="+spec.Port)
	}
	if spec.Username != "" {
		oParts = append(oParts, "username="+spec.Username)
	}
	if spec.Password != "" {
		oParts = append(oParts, "password="+spec.Password)
	}
	oParts = append(oParts, cifsMountOptions)

	return map[string]string{
		"type":   "cifs",
		"device": device,
		"o":      strings.Join(oParts, ","),
	}
}

// sshfsOptions renders the vieux/sshfs plugin options:
//
//	sshcmd:   user@host:path
//	password: ... (optional; key-based auth if omitted)
//	port:     ... (optional)
func sshfsOptions(spec *model.VolumeSpec) map[string]string {
	opts := map[string]string{
		"sshcmd": spec.Username + "@" + spec.Host + ":" + spec.Path,
	}
	if spec.Password != "" {
		opts["password"] = spec.Password
	}
	if spec.Port != "" {
		opts["port"] = spec.Port
	}
	return opts
}

// rcloneOptions renders the rclone plugin options. The backend is selected
// by the type field, and backend-specific connection options use the
// "<type>-" prefix the plugin expects (e.g. sftp-host, smb-user):
//
//	type:        sftp
//	path:        remote/path
//	sftp-host:   host
//	sftp-user:   user (optional)
//	sftp-pass:   password (optional)
//	sftp-port:   port (optional)
func rcloneOptions(spec *model.VolumeSpec) map[string]string {
	prefix := spec.Type + "-"
	opts := map[string]string{
		"type": spec.Type,
		"path": spec.Path,
	}
	opts[prefix+"host"] = spec.Host
	if spec.Username != "" {
		opts[prefix+"user"] = spec.Username
	}
	if spec.Password != "" {
		opts[prefix+"pass"] = spec.Password
	}
	if spec.Port != "" {
		opts[prefix+"port"] = spec.Port
	}
	return opts
}

// RedactedOptions returns a copy of the request options with credential
// values masked, for display in dry-run and verbose output. The option
// keys that carry secrets depend on the driver, so masking is value-based:
// any option whose key mentions "pass" is masked, and the CIFS "o" string
// has its password= component masked in place.
func (r *VolumeCreateRequest) RedactedOptions() map[string]string {
	redacted := make(map[string]string, len(r.Options))
	for k, v := range r.Options {
		switch {
		case strings.Contains(k, "pass"):
			redacted[k] = "********"
		case k == "o":
			redacted[k] = maskMountOption(v, "password")
		default:
			redacted[k] = v
		}
	}
	return redacted
}

// maskMountOption masks the value of one key within a comma-separated
// mount option string.
func maskMountOption(options, key string) string {
	parts := strings.Split(options, ",")
	for i, part := range parts {
		if strings.HasPrefix(part, key+"=") {
			parts[i] = key + "=********"
		}
	}
	return strings.Join(parts, ",")
}

// OptionsSummary renders the redacted options as a deterministic
// "k=v k=v" string for log lines.
func (r *VolumeCreateRequest) OptionsSummary() string {
	redacted := r.RedactedOptions()
	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+redacted[k])
	}
	return strings.Join(parts, " ")
}

// VolumeExists reports whether a volume with the given name exists on the
// engine. A not-found inspect error means "no"; any other error is returned.
func VolumeExists(ctx context.Context, cli *Client, name string) (bool, error) {
	_, err := cli.Inner().VolumeInspect(ctx, name)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, model.WrapCLIError(
		model.ExitDockerNotRunning,
		fmt.Sprintf("failed to inspect volume %q", name),
		err,
	)
}

// CreateVolume sends the create request to the Docker engine.
func CreateVolume(ctx context.Context, cli *Client, req *VolumeCreateRequest) error {
	_, err := cli.Inner().VolumeCreate(ctx, volume.CreateOptions{
		Name:       req.Name,
		Driver:     req.Driver,
		DriverOpts: req.Options,
		Labels:     req.Labels,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create volume %q", req.Name),
			err,
		)
	}
	return nil
}

// ListManagedVolumes queries the Docker engine for all volumes carrying the
// "de.panzer1119.docker.managed-by=homelabctl" label and reconstructs their
// ManagedVolume views, sorted by name.
//
// Volumes with corrupted labels are skipped rather than failing the whole
// listing; one broken volume should not hide the rest.
func ListManagedVolumes(ctx context.Context, cli *Client) ([]*ManagedVolume, []error) {
	// Filter engine-side so unrelated volumes never cross the API.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	resp, err := cli.Inner().VolumeList(ctx, volume.ListOptions{Filters: filterArgs})
	if err != nil {
		return nil, []error{model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker volumes",
			err,
		)}
	}

	var (
		result []*ManagedVolume
		warns  []error
	)
	for _, v := range resp.Volumes {
		mv, err := ParseVolumeLabels(v.Name, v.Labels)
		if err != nil {
			warns = append(warns, err)
			continue
		}
		result = append(result, mv)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, warns
}
