package zfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIncludeModeIsValid verifies the known include property values.
func TestIncludeModeIsValid(t *testing.T) {
	assert.True(t, IncludeTrue.IsValid())
	assert.True(t, IncludeFalse.IsValid())
	assert.True(t, IncludeRecursive.IsValid())
	assert.True(t, IncludeChildren.IsValid())
	assert.False(t, IncludeMode("yes").IsValid())
	assert.False(t, IncludeMode("").IsValid())
}

// TestMinimizeRecursiveRoots verifies that descendants of listed datasets
// are removed, so recursive snapshotting covers each dataset exactly once.
func TestMinimizeRecursiveRoots(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "nested chain collapses to root",
			input: []string{"tank", "tank/docker", "tank/docker/sonarr"},
			want:  []string{"tank"},
		},
		{
			name:  "siblings stay separate",
			input: []string{"tank/docker", "tank/media"},
			want:  []string{"tank/docker", "tank/media"},
		},
		{
			name:  "order does not matter",
			input: []string{"tank/docker/sonarr", "tank/docker"},
			want:  []string{"tank/docker"},
		},
		{
			name:  "similar prefixes are not descendants",
			input: []string{"tank/doc", "tank/docker"},
			want:  []string{"tank/doc", "tank/docker"},
		},
		{
			name:  "duplicates collapse",
			input: []string{"tank/docker", "tank/docker"},
			want:  []string{"tank/docker"},
		},
		{
			name:  "empty input",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinimizeRecursiveRoots(tt.input))
		})
	}
}

// TestIsEmptyExceptChildMounts verifies the empty-parent detection that
// excludes pure container datasets from the backup.
func TestIsEmptyExceptChildMounts(t *testing.T) {
	parent := t.TempDir()
	childA := filepath.Join(parent, "a")
	childB := filepath.Join(parent, "b")
	require.NoError(t, os.Mkdir(childA, 0o755))
	require.NoError(t, os.Mkdir(childB, 0o755))

	assert.True(t, isEmptyExceptChildMounts(parent, []string{childA, childB}),
		"a parent containing only child mountpoints is empty")

	// Add a stray file: the parent now has own content worth backing up.
	require.NoError(t, os.WriteFile(filepath.Join(parent, "notes.txt"), []byte("x"), 0o644))
	assert.False(t, isEmptyExceptChildMounts(parent, []string{childA, childB}))

	// Unreadable mountpoints count as not empty so nothing is dropped
	// from the backup by accident.
	assert.False(t, isEmptyExceptChildMounts(filepath.Join(parent, "missing"), []string{childA}))
}

// TestSnapshotDirOnDisk verifies the .zfs/snapshot path construction.
func TestSnapshotDirOnDisk(t *testing.T) {
	assert.Equal(t, "/tank/docker/.zfs/snapshot/homelabctl-backup_1756000000",
		SnapshotDirOnDisk("/tank/docker", "homelabctl-backup_1756000000"))
}

// TestSnapNamePart verifies extraction of the snapshot name from a full
// dataset@snapshot reference.
func TestSnapNamePart(t *testing.T) {
	assert.Equal(t, "snap1", snapNamePart("tank/docker@snap1"))
	assert.Equal(t, "tank/docker", snapNamePart("tank/docker"))
}

// TestCompareNumeric verifies the overflow-safe digit string comparison
// used for resume timestamps.
func TestCompareNumeric(t *testing.T) {
	assert.Equal(t, 0, compareNumeric("100", "100"))
	assert.Equal(t, -1, compareNumeric("99", "100"), "shorter means smaller")
	assert.Equal(t, 1, compareNumeric("101", "100"))
}

// TestIsDigits verifies the numeric timestamp check.
func TestIsDigits(t *testing.T) {
	assert.True(t, isDigits("1756000000"))
	assert.False(t, isDigits(""))
	assert.False(t, isDigits("17a6"))
	assert.False(t, isDigits("-1"))
}
