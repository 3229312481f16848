// Package docker provides Docker Engine API wrappers for provisioning and
// inspecting the external volumes of the homelab.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Volume label management for persisting provenance metadata
//     (Docker labels are the sole state storage mechanism)
//   - Volume provisioning: driver/option mapping for cifs, sshfs, rclone
//     backends, idempotent creation, label-filtered listing
//   - Compose stack container lookups for snapshot provenance
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
