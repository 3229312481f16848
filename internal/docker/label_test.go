package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TestBuildVolumeLabels verifies that the provenance label map carries all
// expected keys and never the volume credentials.
func TestBuildVolumeLabels(t *testing.T) {
	createdAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	spec := &model.VolumeSpec{
		Name:       "media",
		Driver:     model.DriverCIFS,
		Host:       "nas.local",
		Share:      "media",
		Username:   "svc-user",
		Password:   "hunter2",
		SourceFile: "media/sonarr/docker-compose.yml",
	}

	labels := BuildVolumeLabels(spec, createdAt)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy])
	assert.Equal(t, "cifs", labels[LabelDriver])
	assert.Equal(t, "nas.local", labels[LabelHost])
	assert.Equal(t, "media/sonarr/docker-compose.yml", labels[LabelSource])
	assert.Equal(t, "2026-08-30T10:00:00Z", labels[LabelCreatedAt])

	// Labels are world-readable via `docker volume inspect`, so credentials
	// must never appear in them.
	for key, value := range labels {
		assert.NotContains(t, value, "hunter2", "credential leaked into label %s", key)
		assert.NotContains(t, value, "svc-user", "username leaked into label %s", key)
	}
}

// TestBuildVolumeLabelsNoSource verifies that flag-created volumes (no
// compose file) omit the source label entirely.
func TestBuildVolumeLabelsNoSource(t *testing.T) {
	spec := &model.VolumeSpec{Name: "adhoc", Driver: model.DriverSSHFS, Host: "box"}

	labels := BuildVolumeLabels(spec, time.Now())

	_, hasSource := labels[LabelSource]
	assert.False(t, hasSource)
}

// TestParseVolumeLabels verifies the label round trip: a label map built by
// BuildVolumeLabels parses back into an equivalent ManagedVolume.
func TestParseVolumeLabels(t *testing.T) {
	createdAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	spec := &model.VolumeSpec{
		Name:       "media",
		Driver:     model.DriverRclone,
		Host:       "storagebox.de",
		Path:       "/backups",
		Type:       "sftp",
		SourceFile: "backup/docker-compose.yml",
	}

	mv, err := ParseVolumeLabels("media", BuildVolumeLabels(spec, createdAt))
	require.NoError(t, err)

	assert.Equal(t, "media", mv.Name)
	assert.Equal(t, model.DriverRclone, mv.Driver)
	assert.Equal(t, "storagebox.de", mv.Host)
	assert.Equal(t, "backup/docker-compose.yml", mv.Source)
	assert.True(t, mv.CreatedAt.Equal(createdAt))
}

// TestParseVolumeLabelsRejectsUnmanaged verifies that volumes without the
// managed-by label (or with someone else's value) are rejected.
func TestParseVolumeLabelsRejectsUnmanaged(t *testing.T) {
	_, err := ParseVolumeLabels("other", map[string]string{
		LabelManagedBy: "someone-else",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected value")

	_, err = ParseVolumeLabels("plain", map[string]string{})
	assert.Error(t, err)
}

// TestParseVolumeLabelsMissing verifies that all missing required labels
// are reported together.
func TestParseVolumeLabelsMissing(t *testing.T) {
	_, err := ParseVolumeLabels("broken", map[string]string{
		LabelManagedBy: ManagedByValue,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelDriver)
	assert.Contains(t, err.Error(), LabelCreatedAt)
}

// TestParseVolumeLabelsInvalidTimestamp verifies rejection of a malformed
// created-at label.
func TestParseVolumeLabelsInvalidTimestamp(t *testing.T) {
	_, err := ParseVolumeLabels("broken", map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelDriver:    "cifs",
		LabelCreatedAt: "yesterday",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), LabelCreatedAt)
}
