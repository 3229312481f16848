// Package pbs shells out to proxmox-backup-client to upload snapshot
// directories as pxar archives.
//
// Credentials are never passed on the command line. The PBS password and
// optional encryption password are handed to the client process through
// the PBS_PASSWORD and PBS_ENCRYPTION_PASSWORD environment variables,
// which proxmox-backup-client reads natively.
package pbs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// pbsBinary is the client executable looked up on PATH.
const pbsBinary = "proxmox-backup-client"

// Config describes the target Proxmox Backup Server.
type Config struct {
	// Repository is the PBS repository, e.g. "user@pbs@host:datastore".
	Repository string

	// Namespace is an optional datastore namespace.
	Namespace string

	// AuthID overrides the auth id encoded in Repository when set.
	AuthID string

	// Password authenticates against the repository.
	Password string

	// EncryptionPassword enables client-side encryption when set.
	EncryptionPassword string

	// BackupIDPrefix is prepended to the dataset-derived backup id.
	BackupIDPrefix string
}

// Validate checks that the config names a repository.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Repository) == "" {
		return model.NewCLIError(model.ExitZFSError, "PBS repository is not configured")
	}
	return nil
}

// Client runs proxmox-backup-client commands.
type Client struct {
	config Config

	// DryRun logs upload commands instead of executing them.
	DryRun bool

	// Logf receives progress messages. Defaults to a stderr printer.
	Logf func(format string, args ...interface{})
}

// NewClient creates a Client for the given repository config.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{config: config}, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// BackupID derives the backup id for a dataset by replacing "/" with "-"
// and prepending the configured prefix.
func (c *Client) BackupID(dataset string) string {
	return c.config.BackupIDPrefix + strings.ReplaceAll(dataset, "/", "-")
}

// BackupDirectory uploads dir as a pxar archive named archiveName under
// the dataset-derived backup id. In dry-run mode the command is logged
// and skipped.
func (c *Client) BackupDirectory(ctx context.Context, dataset, archiveName, dir string) error {
	args := []string{
		"backup",
		fmt.Sprintf("%s.pxar:%s", archiveName, dir),
		"--repository", c.config.Repository,
		"--backup-type", "host",
		"--backup-id", c.BackupID(dataset),
	}
	if c.config.Namespace != "" {
		args = append(args, "--ns", c.config.Namespace)
	}
	if c.config.AuthID != "" {
		args = append(args, "--auth-id", c.config.AuthID)
	}

	if c.DryRun {
		c.logf("[dry-run] Would upload %q as %s (%s %s)", dir, c.BackupID(dataset), pbsBinary, strings.Join(args, " "))
		return nil
	}

	c.logf("Uploading %q as backup id %q", dir, c.BackupID(dataset))

	cmd := exec.CommandContext(ctx, pbsBinary, args...)
	cmd.Env = append(os.Environ(), "PBS_PASSWORD="+c.config.Password)
	if c.config.EncryptionPassword != "" {
		cmd.Env = append(cmd.Env, "PBS_ENCRYPTION_PASSWORD="+c.config.EncryptionPassword)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return model.WrapCLIError(model.ExitZFSError, fmt.Sprintf("proxmox-backup-client failed for dataset %q", dataset), err)
	}
	return nil
}
