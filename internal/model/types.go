// Package model defines the domain types for the homelabctl CLI.
//
// All entities in this package represent the declarative conventions used
// across the homelab compose repository: external volume definitions
// described by `de.panzer1119.docker.volume.*` labels, secret references
// pointing into the password manager, and the provenance metadata recorded
// on ZFS snapshots around stack upgrades.
//
// Key design decision: there is no state file. Volume definitions are
// reconstructed from compose YAML labels, and provisioned volumes are
// reconstructed from Docker engine labels at runtime.
package model

import (
	"fmt"
	"regexp"
	"strings"
)

// Driver identifies the volume backend a compose label block describes.
// The driver name is the third segment of a volume label key:
//
//	de.panzer1119.docker.volume.<name>.<driver>.<field>
type Driver string

const (
	// DriverCIFS provisions a volume backed by a CIFS/SMB share,
	// implemented as the `local` Docker driver with type=cifs options.
	DriverCIFS Driver = "cifs"

	// DriverSSHFS provisions a volume backed by an SSH mount via the
	// vieux/sshfs Docker volume plugin.
	DriverSSHFS Driver = "sshfs"

	// DriverRclone provisions a volume backed by an rclone remote via the
	// rclone Docker volume plugin (type field selects the rclone backend,
	// e.g. "sftp" or "smb").
	DriverRclone Driver = "rclone"
)

// String returns the string representation of Driver.
// This method satisfies the fmt.Stringer interface.
func (d Driver) String() string {
	return string(d)
}

// IsValid checks whether the Driver value is one of the supported backends.
func (d Driver) IsValid() bool {
	switch d {
	case DriverCIFS, DriverSSHFS, DriverRclone:
		return true
	default:
		return false
	}
}

// ParseDriver converts a string to a Driver.
// Returns an error if the string does not match any supported backend.
func ParseDriver(s string) (Driver, error) {
	d := Driver(strings.ToLower(s))
	if !d.IsValid() {
		return "", fmt.Errorf("invalid volume driver: %q (valid: cifs, sshfs, rclone)", s)
	}
	return d, nil
}

// VolumeField names one credential or connection parameter of an external
// volume. Fields appear as the final segment of a volume label key.
type VolumeField string

const (
	FieldHost     VolumeField = "host"
	FieldPort     VolumeField = "port"
	FieldPath     VolumeField = "path"
	FieldShare    VolumeField = "share"
	FieldUsername VolumeField = "username"
	FieldPassword VolumeField = "password"
	FieldType     VolumeField = "type"
)

// IsValid checks whether the VolumeField is one of the known parameters.
func (f VolumeField) IsValid() bool {
	switch f {
	case FieldHost, FieldPort, FieldPath, FieldShare, FieldUsername, FieldPassword, FieldType:
		return true
	default:
		return false
	}
}

// DefaultVolumeName is the pseudo-volume name used in compose labels to
// declare shared connection parameters. A concrete volume inherits every
// field it does not set itself from the `default` block for the same driver.
const DefaultVolumeName = "default"

// VolumeSpec is the fully resolved definition of one external Docker volume,
// assembled from compose labels (with the default hierarchy applied) or from
// `volume create` flags. Password may still hold an unresolved op://
// reference until secret resolution runs.
type VolumeSpec struct {
	// Name is the Docker volume name. Must be unique on the engine;
	// uniqueness itself is enforced by `docker volume create`.
	Name string `json:"name"`

	// Driver selects the provisioning backend (cifs, sshfs, rclone).
	Driver Driver `json:"driver"`

	// Host is the remote server (all drivers).
	Host string `json:"host"`

	// Port is the optional remote port (sshfs, rclone).
	Port string `json:"port,omitempty"`

	// Path is the remote path (sshfs, rclone).
	Path string `json:"path,omitempty"`

	// Share is the CIFS share name (cifs only).
	Share string `json:"share,omitempty"`

	// Username authenticates against the remote (cifs, sshfs, rclone).
	Username string `json:"username,omitempty"`

	// Password authenticates against the remote. May be a literal or an
	// op:// secret reference that is resolved at provisioning time.
	Password string `json:"password,omitempty"`

	// Type is the rclone backend type (e.g. "sftp", "smb"). rclone only.
	Type string `json:"type,omitempty"`

	// SourceFile is the compose file this spec was discovered in.
	// Empty for specs built directly from CLI flags.
	SourceFile string `json:"sourceFile,omitempty"`
}

// volumeNameRegex matches valid Docker volume names: the engine accepts
// [a-zA-Z0-9][a-zA-Z0-9_.-]* and we enforce the same shape up front so a
// bad label fails with a readable message instead of an opaque API error.
var volumeNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidateVolumeName checks that name is acceptable as a Docker volume name.
func ValidateVolumeName(name string) error {
	if name == "" {
		return fmt.Errorf("volume name must not be empty")
	}
	if !volumeNameRegex.MatchString(name) {
		return fmt.Errorf("invalid volume name %q: must match [a-zA-Z0-9][a-zA-Z0-9_.-]*", name)
	}
	return nil
}

// Validate checks that the spec names a volume and carries every field its
// driver requires:
//
//	cifs:   host, share
//	sshfs:  host, path, username
//	rclone: host, path, type
//
// Optional fields (port, username/password where not listed) are not checked.
func (s *VolumeSpec) Validate() error {
	if err := ValidateVolumeName(s.Name); err != nil {
		return err
	}
	if !s.Driver.IsValid() {
		return fmt.Errorf("volume %q: invalid driver %q", s.Name, s.Driver)
	}

	// Collect all missing fields at once so the error message names every
	// gap instead of failing one field at a time.
	var missing []string
	requireField := func(field VolumeField, value string) {
		if value == "" {
			missing = append(missing, string(field))
		}
	}

	switch s.Driver {
	case DriverCIFS:
		requireField(FieldHost, s.Host)
		requireField(FieldShare, s.Share)
	case DriverSSHFS:
		requireField(FieldHost, s.Host)
		requireField(FieldPath, s.Path)
		requireField(FieldUsername, s.Username)
	case DriverRclone:
		requireField(FieldHost, s.Host)
		requireField(FieldPath, s.Path)
		requireField(FieldType, s.Type)
	}

	if len(missing) > 0 {
		return fmt.Errorf("volume %q (%s): missing required field(s): %s",
			s.Name, s.Driver, strings.Join(missing, ", "))
	}
	return nil
}

// ApplyDefaults fills every empty field of the spec from the given default
// spec. Per-volume fields always win over defaults; only gaps are inherited.
// The Name, Driver, and SourceFile of the receiver are never touched.
func (s *VolumeSpec) ApplyDefaults(def *VolumeSpec) {
	if def == nil {
		return
	}
	if s.Host == "" {
		s.Host = def.Host
	}
	if s.Port == "" {
		s.Port = def.Port
	}
	if s.Path == "" {
		s.Path = def.Path
	}
	if s.Share == "" {
		s.Share = def.Share
	}
	if s.Username == "" {
		s.Username = def.Username
	}
	if s.Password == "" {
		s.Password = def.Password
	}
	if s.Type == "" {
		s.Type = def.Type
	}
}

// Redacted returns a copy of the spec with the password masked for display
// and logging. The original spec is not modified.
func (s VolumeSpec) Redacted() VolumeSpec {
	if s.Password != "" {
		s.Password = "********"
	}
	return s
}

// SnapshotProvenance records why a ZFS snapshot was taken. It is persisted
// as `de.panzer1119.docker:*` user properties on the snapshot itself, so the
// snapshot carries its own audit trail without any external database.
type SnapshotProvenance struct {
	// Stack is the compose stack (project) name whose upgrade triggered
	// the snapshot.
	Stack string `json:"stack"`

	// Image is the triggering image repository (e.g. "lscr.io/linuxserver/sonarr").
	Image string `json:"image,omitempty"`

	// Tag is the new image tag being rolled out.
	Tag string `json:"tag,omitempty"`

	// SHA is the new image content digest, if pinned.
	SHA string `json:"sha,omitempty"`

	// Commit is the git commit of the compose repository at upgrade time.
	Commit string `json:"commit,omitempty"`
}

// UpdateType classifies one aspect of an image reference change between two
// git commits, mirroring the changelog convention of the compose repository.
// A single image change may carry several update types at once (e.g. a tag
// bump that also moves the pinned digest is both "tag" and "sha").
type UpdateType string

const (
	// UpdateRepo means the registry host changed (e.g. docker.io → lscr.io).
	UpdateRepo UpdateType = "repo"

	// UpdateUser means the image namespace/owner changed.
	UpdateUser UpdateType = "user"

	// UpdateImage means the image name itself changed.
	UpdateImage UpdateType = "image"

	// UpdateTag means the tag changed.
	UpdateTag UpdateType = "tag"

	// UpdateSHA means the pinned digest changed.
	UpdateSHA UpdateType = "sha"
)

// ChangeType distinguishes a project that appeared in a commit from one
// whose images merely changed.
type ChangeType string

const (
	// ChangeCreated marks a compose project first introduced in a commit.
	ChangeCreated ChangeType = "created"

	// ChangeUpdated marks a compose project whose images changed in a commit.
	ChangeUpdated ChangeType = "updated"
)

// ExitCode defines standard CLI exit codes. These codes allow cron jobs and
// wrapper scripts to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error or invalid usage.
	ExitGeneralError ExitCode = 1

	// ExitNotFound indicates a compose file, template, or other expected
	// input file was not found.
	ExitNotFound ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitSecretResolveFailed indicates an op:// reference could not be
	// resolved via the secret manager CLI.
	ExitSecretResolveFailed ExitCode = 4

	// ExitZFSError indicates a zfs or proxmox-backup-client invocation failed.
	ExitZFSError ExitCode = 5

	// ExitVolumeExists indicates a volume already exists and --graceful
	// was not given.
	ExitVolumeExists ExitCode = 6

	// ExitGitError indicates a git operation failed.
	ExitGitError ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
