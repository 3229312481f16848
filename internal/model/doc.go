// Package model defines the domain types and value objects for the
// homelabctl CLI.
//
// This package contains pure data structures with no external dependencies.
// All entities (VolumeSpec, SnapshotProvenance, update classifications)
// are transient representations reconstructed from compose YAML labels,
// Docker engine labels, or ZFS user properties at runtime; there are no
// persistent state files.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
