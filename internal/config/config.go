// Package config loads the optional homelabctl configuration file.
//
// The file lives at ~/.config/homelabctl/config.jsonc and supplies
// defaults for values that would otherwise be repeated as flags on every
// invocation: the 1Password account, the snapshot prefix, and the Proxmox
// Backup Server connection. JSONC (JSON with Comments) is accepted so the
// file can be annotated; github.com/tidwall/jsonc strips comments before
// parsing with the standard encoding/json library.
//
// A missing config file is not an error — every field has a working
// default and flags always override the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/panzer1119/homelabctl/internal/zfs"
)

// DefaultPath is the config file location relative to the user home.
const DefaultPath = ".config/homelabctl/config.jsonc"

// Config is the parsed configuration file. encoding/json silently
// ignores unknown fields, so the file may carry extra keys for other
// tooling without breaking homelabctl.
type Config struct {
	// OpAccount selects the 1Password account for `op read` when multiple
	// accounts are signed in. Empty uses the CLI's default account.
	OpAccount string `json:"opAccount,omitempty"`

	// SnapshotPrefix names the upgrade snapshots taken by `snapshot create`.
	SnapshotPrefix string `json:"snapshotPrefix,omitempty"`

	// Backup configures the ZFS-to-PBS backup run.
	Backup BackupConfig `json:"backup,omitempty"`
}

// BackupConfig holds the `backup run` defaults.
type BackupConfig struct {
	// Roots are the ZFS datasets scanned for the include property.
	Roots []string `json:"roots,omitempty"`

	// IncludeProperty overrides the dataset-selection property name.
	IncludeProperty string `json:"includeProperty,omitempty"`

	// Repository is the PBS repository, e.g. "backup@pbs@host:datastore".
	Repository string `json:"repository,omitempty"`

	// Namespace is an optional PBS datastore namespace.
	Namespace string `json:"namespace,omitempty"`

	// AuthID overrides the auth id encoded in Repository.
	AuthID string `json:"authId,omitempty"`

	// Password authenticates against PBS. May be an op:// reference.
	Password string `json:"password,omitempty"`

	// EncryptionPassword enables client-side encryption. May be an
	// op:// reference.
	EncryptionPassword string `json:"encryptionPassword,omitempty"`

	// BackupIDPrefix is prepended to dataset-derived backup ids.
	BackupIDPrefix string `json:"backupIdPrefix,omitempty"`

	// ExcludeEmptyParents skips parent datasets whose mountpoint holds
	// nothing but child dataset mountpoints. Defaults to true.
	ExcludeEmptyParents *bool `json:"excludeEmptyParents,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SnapshotPrefix: zfs.DefaultSnapshotPrefix,
		Backup: BackupConfig{
			IncludeProperty: zfs.DefaultIncludeProp,
		},
	}
}

// Load reads and parses the config file at path. When path is empty the
// default location under the user home is used. A nonexistent file
// yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(home, DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	// Strip JSONC comments and trailing commas before parsing.
	cleanJSON := jsonc.ToJSON(data)

	cfg := Default()
	if err := json.Unmarshal(cleanJSON, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = zfs.DefaultSnapshotPrefix
	}
	if cfg.Backup.IncludeProperty == "" {
		cfg.Backup.IncludeProperty = zfs.DefaultIncludeProp
	}
	return cfg, nil
}

// ExcludeEmptyParentsEnabled resolves the tri-state flag with its
// default of true.
func (b *BackupConfig) ExcludeEmptyParentsEnabled() bool {
	if b.ExcludeEmptyParents == nil {
		return true
	}
	return *b.ExcludeEmptyParents
}
