package docker

import (
	"fmt"
	"strings"
	"time"

	"github.com/panzer1119/homelabctl/internal/model"
)

// Label key constants define the Docker label keys stamped onto volumes
// provisioned by homelabctl. These labels are the sole persistence
// mechanism — `volume list` reconstructs everything it shows from them.
//
// All keys share the "de.panzer1119.docker." prefix, the same namespace
// used by the compose-side volume definition labels, so every artifact of
// this tooling is discoverable under one prefix.
const (
	// LabelPrefix is the common prefix for all homelabctl labels.
	LabelPrefix = "de.panzer1119.docker."

	// LabelManagedBy identifies volumes provisioned by homelabctl.
	// This is the primary label used for filtering and discovery.
	// Key: "de.panzer1119.docker.managed-by", Value: always "homelabctl".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelDriver stores the logical driver of the volume definition
	// (cifs, sshfs, rclone) — distinct from the Docker driver string,
	// which is "local" for cifs volumes.
	LabelDriver = LabelPrefix + "driver"

	// LabelSource stores the compose file the volume definition was
	// discovered in. Empty for volumes created directly from flags.
	LabelSource = LabelPrefix + "source"

	// LabelHost stores the remote host the volume mounts from. Recorded
	// so `volume list` can show where data lives without inspecting
	// driver options (which contain credentials).
	LabelHost = LabelPrefix + "host"

	// LabelCreatedAt stores the RFC3339 timestamp of provisioning.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "homelabctl"

// ManagedVolume is the label-reconstructed view of one provisioned volume,
// as shown by `volume list`.
type ManagedVolume struct {
	// Name is the Docker volume name.
	Name string `json:"name"`

	// Driver is the logical driver from LabelDriver.
	Driver model.Driver `json:"driver"`

	// Host is the remote host from LabelHost.
	Host string `json:"host,omitempty"`

	// Source is the compose file from LabelSource.
	Source string `json:"source,omitempty"`

	// CreatedAt is the provisioning timestamp from LabelCreatedAt.
	CreatedAt time.Time `json:"createdAt"`
}

// BuildVolumeLabels constructs the label map stamped onto a provisioned
// volume. Credentials are deliberately excluded — labels are world-readable
// via `docker volume inspect`, so only non-sensitive provenance goes in.
func BuildVolumeLabels(spec *model.VolumeSpec, createdAt time.Time) map[string]string {
	labels := map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelDriver:    spec.Driver.String(),
		LabelHost:      spec.Host,
		// UTC keeps timestamps comparable regardless of host timezone.
		LabelCreatedAt: createdAt.UTC().Format(time.RFC3339),
	}
	if spec.SourceFile != "" {
		labels[LabelSource] = spec.SourceFile
	}
	return labels
}

// ParseVolumeLabels reconstructs a ManagedVolume from Docker volume labels.
// This is the inverse of BuildVolumeLabels.
//
// Returns an error if the volume is not managed by homelabctl or if a
// required label is missing or malformed.
func ParseVolumeLabels(name string, labels map[string]string) (*ManagedVolume, error) {
	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"volume %q: label %s has unexpected value %q (expected %q)",
			name, LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	var missing []string
	for _, key := range []string{LabelDriver, LabelCreatedAt} {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("volume %q: missing required labels: %s", name, strings.Join(missing, ", "))
	}

	driver, err := model.ParseDriver(labels[LabelDriver])
	if err != nil {
		return nil, fmt.Errorf("volume %q: invalid label %s: %w", name, LabelDriver, err)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("volume %q: invalid label %s: %w", name, LabelCreatedAt, err)
	}

	return &ManagedVolume{
		Name:      name,
		Driver:    driver,
		Host:      labels[LabelHost],
		Source:    labels[LabelSource],
		CreatedAt: createdAt,
	}, nil
}
