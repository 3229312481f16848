package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseDriver verifies that driver strings are parsed case-insensitively
// and that unsupported values are rejected.
func TestParseDriver(t *testing.T) {
	tests := []struct {
		input   string
		want    Driver
		wantErr bool
	}{
		{"cifs", DriverCIFS, false},
		{"CIFS", DriverCIFS, false},
		{"sshfs", DriverSSHFS, false},
		{"rclone", DriverRclone, false},
		{"nfs", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDriver(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestValidateVolumeName verifies the Docker volume name shape check.
func TestValidateVolumeName(t *testing.T) {
	assert.NoError(t, ValidateVolumeName("media"))
	assert.NoError(t, ValidateVolumeName("media.4k-archive_v2"))

	assert.Error(t, ValidateVolumeName(""), "empty names are invalid")
	assert.Error(t, ValidateVolumeName("-media"), "names must not start with a separator")
	assert.Error(t, ValidateVolumeName("media volume"), "spaces are invalid")
}

// TestVolumeSpecValidate verifies the per-driver required field checks and
// that all missing fields are reported in a single error.
func TestVolumeSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    VolumeSpec
		wantErr string
	}{
		{
			name: "valid cifs",
			spec: VolumeSpec{Name: "media", Driver: DriverCIFS, Host: "nas.local", Share: "media"},
		},
		{
			name: "valid sshfs",
			spec: VolumeSpec{Name: "remote", Driver: DriverSSHFS, Host: "box", Path: "/srv", Username: "svc"},
		},
		{
			name: "valid rclone",
			spec: VolumeSpec{Name: "offsite", Driver: DriverRclone, Host: "box", Path: "/backups", Type: "sftp"},
		},
		{
			name:    "cifs missing share",
			spec:    VolumeSpec{Name: "media", Driver: DriverCIFS, Host: "nas.local"},
			wantErr: "share",
		},
		{
			name:    "sshfs missing path and username",
			spec:    VolumeSpec{Name: "remote", Driver: DriverSSHFS, Host: "box"},
			wantErr: "path, username",
		},
		{
			name:    "invalid driver",
			spec:    VolumeSpec{Name: "x", Driver: "nfs"},
			wantErr: "invalid driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestVolumeSpecApplyDefaults verifies that defaults only fill gaps and
// never override fields the spec sets itself.
func TestVolumeSpecApplyDefaults(t *testing.T) {
	spec := VolumeSpec{
		Name:   "media",
		Driver: DriverCIFS,
		Share:  "media",
	}
	def := VolumeSpec{
		Name:     DefaultVolumeName,
		Driver:   DriverCIFS,
		Host:     "nas.local",
		Username: "svc",
		Password: "hunter2",
		Share:    "default-share",
	}

	spec.ApplyDefaults(&def)

	assert.Equal(t, "nas.local", spec.Host, "empty fields inherit from the default block")
	assert.Equal(t, "svc", spec.Username)
	assert.Equal(t, "hunter2", spec.Password)
	assert.Equal(t, "media", spec.Share, "per-volume fields win over defaults")
	assert.Equal(t, "media", spec.Name, "identity fields are never touched")
}

// TestVolumeSpecApplyDefaultsNil verifies that a nil default is a no-op.
func TestVolumeSpecApplyDefaultsNil(t *testing.T) {
	spec := VolumeSpec{Name: "media", Driver: DriverCIFS, Host: "nas.local"}
	spec.ApplyDefaults(nil)
	assert.Equal(t, "nas.local", spec.Host)
}

// TestVolumeSpecRedacted verifies that Redacted masks the password without
// mutating the original spec.
func TestVolumeSpecRedacted(t *testing.T) {
	spec := VolumeSpec{Name: "media", Driver: DriverCIFS, Password: "hunter2"}

	redacted := spec.Redacted()

	assert.Equal(t, "********", redacted.Password)
	assert.Equal(t, "hunter2", spec.Password, "the original must not be modified")

	empty := VolumeSpec{Name: "media"}
	assert.Empty(t, empty.Redacted().Password, "empty passwords stay empty")
}

// TestCLIError verifies the error message formatting and unwrapping
// behavior of CLIError.
func TestCLIError(t *testing.T) {
	underlying := errors.New("connection refused")

	wrapped := WrapCLIError(ExitDockerNotRunning, "Docker daemon not reachable", underlying)
	assert.Equal(t, "Docker daemon not reachable: connection refused", wrapped.Error())
	assert.Equal(t, ExitDockerNotRunning, wrapped.Code)
	assert.ErrorIs(t, wrapped, underlying, "errors.Is must see through the wrapper")

	plain := NewCLIError(ExitVolumeExists, "volume already exists")
	assert.Equal(t, "volume already exists", plain.Error())
	assert.Nil(t, plain.Unwrap())
}
