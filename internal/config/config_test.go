package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panzer1119/homelabctl/internal/zfs"
)

// TestLoadMissingFile verifies that a nonexistent config file yields the
// defaults instead of an error.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	require.NoError(t, err)

	assert.Equal(t, zfs.DefaultSnapshotPrefix, cfg.SnapshotPrefix)
	assert.Equal(t, zfs.DefaultIncludeProp, cfg.Backup.IncludeProperty)
	assert.True(t, cfg.Backup.ExcludeEmptyParentsEnabled())
}

// TestLoadJSONC verifies parsing of a commented config file and that
// unset fields keep their defaults.
func TestLoadJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	content := `{
  // which op account to use
  "opAccount": "my.1password.com",
  "snapshotPrefix": "pre-upgrade_",
  "backup": {
    "roots": ["tank/docker"],
    "repository": "backup@pbs@pbs.local:tank",
    "password": "op://Infra/pbs/password",
    "excludeEmptyParents": false, // trailing comma next
  },
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "my.1password.com", cfg.OpAccount)
	assert.Equal(t, "pre-upgrade_", cfg.SnapshotPrefix)
	assert.Equal(t, []string{"tank/docker"}, cfg.Backup.Roots)
	assert.Equal(t, "backup@pbs@pbs.local:tank", cfg.Backup.Repository)
	assert.Equal(t, "op://Infra/pbs/password", cfg.Backup.Password)
	assert.False(t, cfg.Backup.ExcludeEmptyParentsEnabled())
	assert.Equal(t, zfs.DefaultIncludeProp, cfg.Backup.IncludeProperty,
		"unset fields fall back to defaults")
}

// TestLoadMalformed verifies that a broken config file is an error rather
// than silently using defaults.
func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}
