package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TestBuildCreateRequestCIFS verifies the CIFS mapping onto the local
// driver: device string, addr/credential mount options, and the fixed
// vers/iocharset suffix.
func TestBuildCreateRequestCIFS(t *testing.T) {
	spec := &model.VolumeSpec{
		Name:     "media",
		Driver:   model.DriverCIFS,
		Host:     "nas.local",
		Share:    "tank",
		Path:     "/media/movies",
		Username: "svc",
		Password: "hunter2",
	}

	req, err := BuildCreateRequest(spec, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "media", req.Name)
	assert.Equal(t, "local", req.Driver)
	assert.Equal(t, "cifs", req.Options["type"])
	assert.Equal(t, "//nas.local/tank/media/movies", req.Options["device"])
	assert.Equal(t, "addr=nas.local,username=svc,password=hunter2,vers=3.0,iocharset=utf8", req.Options["o"])
	assert.Equal(t, ManagedByValue, req.Labels[LabelManagedBy])
}

// TestBuildCreateRequestCIFSMinimal verifies that optional CIFS parameters
// (path, port, credentials) are omitted cleanly.
func TestBuildCreateRequestCIFSMinimal(t *testing.T) {
	spec := &model.VolumeSpec{
		Name:   "public",
		Driver: model.DriverCIFS,
		Host:   "nas.local",
		Share:  "public",
	}

	req, err := BuildCreateRequest(spec, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "//nas.local/public", req.Options["device"])
	assert.Equal(t, "addr=nas.local,vers=3.0,iocharset=utf8", req.Options["o"])
}

// TestBuildCreateRequestSSHFS verifies the vieux/sshfs plugin options.
func TestBuildCreateRequestSSHFS(t *testing.T) {
	spec := &model.VolumeSpec{
		Name:     "remote",
		Driver:   model.DriverSSHFS,
		Host:     "box.local",
		Path:     "/srv/data",
		Port:     "2222",
		Username: "svc",
		Password: "hunter2",
	}

	req, err := BuildCreateRequest(spec, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "vieux/sshfs", req.Driver)
	assert.Equal(t, map[string]string{
		"sshcmd":   "svc@box.local:/srv/data",
		"password": "hunter2",
		"port":     "2222",
	}, req.Options)
}

// TestBuildCreateRequestRclone verifies the rclone plugin options with the
// backend-prefixed connection keys.
func TestBuildCreateRequestRclone(t *testing.T) {
	spec := &model.VolumeSpec{
		Name:     "offsite",
		Driver:   model.DriverRclone,
		Host:     "storagebox.de",
		Path:     "backups",
		Type:     "sftp",
		Port:     "23",
		Username: "u12345",
		Password: "hunter2",
	}

	req, err := BuildCreateRequest(spec, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "rclone", req.Driver)
	assert.Equal(t, map[string]string{
		"type":      "sftp",
		"path":      "backups",
		"sftp-host": "storagebox.de",
		"sftp-user": "u12345",
		"sftp-pass": "hunter2",
		"sftp-port": "23",
	}, req.Options)
}

// TestBuildCreateRequestInvalidSpec verifies that an incomplete spec is
// rejected before any option rendering happens.
func TestBuildCreateRequestInvalidSpec(t *testing.T) {
	spec := &model.VolumeSpec{Name: "broken", Driver: model.DriverCIFS}

	_, err := BuildCreateRequest(spec, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field")
}

// TestRedactedOptions verifies that passwords are masked in every driver's
// option rendering while non-secret options pass through.
func TestRedactedOptions(t *testing.T) {
	cifs, err := BuildCreateRequest(&model.VolumeSpec{
		Name: "m", Driver: model.DriverCIFS, Host: "nas", Share: "s",
		Username: "svc", Password: "hunter2",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "addr=nas,username=svc,password=********,vers=3.0,iocharset=utf8",
		cifs.RedactedOptions()["o"])

	sshfs, err := BuildCreateRequest(&model.VolumeSpec{
		Name: "r", Driver: model.DriverSSHFS, Host: "box", Path: "/srv",
		Username: "svc", Password: "hunter2",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "********", sshfs.RedactedOptions()["password"])
	assert.Equal(t, "svc@box:/srv", sshfs.RedactedOptions()["sshcmd"])

	rclone, err := BuildCreateRequest(&model.VolumeSpec{
		Name: "o", Driver: model.DriverRclone, Host: "box", Path: "b",
		Type: "sftp", Password: "hunter2",
	}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "********", rclone.RedactedOptions()["sftp-pass"])
}

// TestOptionsSummary verifies the deterministic log rendering of redacted
// options.
func TestOptionsSummary(t *testing.T) {
	req, err := BuildCreateRequest(&model.VolumeSpec{
		Name: "r", Driver: model.DriverSSHFS, Host: "box", Path: "/srv",
		Username: "svc", Password: "hunter2",
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "password=******** sshcmd=svc@box:/srv", req.OptionsSummary())
	assert.NotContains(t, req.OptionsSummary(), "hunter2")
}
