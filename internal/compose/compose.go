// Package compose handles discovery and parsing of Docker Compose YAML files
// across the homelab repository.
//
// The repository is organized as one directory per stack, each holding a
// docker-compose.yml. This package finds those files, parses the subset of
// the compose schema homelabctl cares about (service images, service and
// volume labels), and extracts the external-volume definitions declared via
// the `de.panzer1119.docker.volume.*` label convention.
//
// Parsing is deliberately lenient: anything outside the known fields is
// ignored, because the compose files are owned by the stacks themselves and
// evolve independently of this tool.
package compose

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/panzer1119/homelabctl/internal/model"
)

// composeFileNames lists the file names recognized as compose files during
// directory discovery, in lookup order. Both the legacy docker-compose.*
// and the newer compose.* names are accepted.
var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// File is the parsed subset of one Docker Compose YAML file.
type File struct {
	// Path is the filesystem path the file was loaded from.
	// Empty when the file was parsed from raw bytes (e.g. a git blob).
	Path string `yaml:"-"`

	// Services maps service names to their parsed definitions.
	Services map[string]Service `yaml:"services"`

	// Volumes maps top-level volume names to their parsed definitions.
	// A bare volume entry ("media:" with no body) yields a nil value.
	Volumes map[string]*Volume `yaml:"volumes"`
}

// Service is the parsed subset of one compose service definition.
type Service struct {
	// Image is the service's image reference, possibly with tag and digest.
	Image string `yaml:"image"`

	// ContainerName is the explicit container name, if set.
	ContainerName string `yaml:"container_name"`

	// Labels holds the service's labels. Volume definitions may be
	// attached to services as well as to top-level volumes.
	Labels LabelSet `yaml:"labels"`
}

// Volume is the parsed subset of one top-level compose volume definition.
type Volume struct {
	// Labels holds the volume's labels, the primary carrier of the
	// de.panzer1119.docker.volume.* definition convention.
	Labels LabelSet `yaml:"labels"`

	// External marks the volume as externally managed. External volumes
	// are exactly the ones this tool provisions.
	External bool `yaml:"external"`
}

// LabelSet is a compose label collection. The compose schema allows labels
// as either a mapping:
//
//	labels:
//	  de.panzer1119.docker.volume.media.cifs.host: nas.local
//
// or a sequence of "key=value" strings:
//
//	labels:
//	  - de.panzer1119.docker.volume.media.cifs.host=nas.local
//
// LabelSet normalizes both forms into a plain map.
type LabelSet map[string]string

// UnmarshalYAML implements yaml.Unmarshaler to accept both label forms.
func (l *LabelSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		// Mapping form: decode directly into a string map.
		m := make(map[string]string)
		if err := value.Decode(&m); err != nil {
			return fmt.Errorf("failed to decode label mapping: %w", err)
		}
		*l = m
		return nil

	case yaml.SequenceNode:
		// Sequence form: each entry is "key=value" (or a bare key,
		// which compose treats as key with empty value).
		var entries []string
		if err := value.Decode(&entries); err != nil {
			return fmt.Errorf("failed to decode label sequence: %w", err)
		}
		m := make(map[string]string, len(entries))
		for _, entry := range entries {
			key, val := splitLabelEntry(entry)
			m[key] = val
		}
		*l = m
		return nil

	default:
		return fmt.Errorf("labels must be a mapping or a sequence, got %s at line %d",
			value.Tag, value.Line)
	}
}

// splitLabelEntry splits a "key=value" label entry at the first "=".
// A bare key without "=" yields an empty value, matching compose semantics.
func splitLabelEntry(entry string) (string, string) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:]
		}
	}
	return entry, ""
}

// Parse parses compose YAML from raw bytes. This is used both for on-disk
// files and for blobs read out of git history by the changelog command.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse compose YAML: %w", err)
	}
	return &f, nil
}

// LoadFile reads and parses a compose file from disk.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compose file %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Discover walks the given paths and returns every compose file found,
// sorted by path for deterministic processing order.
//
// Each path may be a compose file itself or a directory. Directories are
// walked recursively; any file whose base name matches a known compose
// file name is collected. Hidden directories (".git" and friends) are
// skipped to keep the walk fast on real checkouts.
func Discover(paths []string) ([]string, error) {
	var found []string

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitNotFound,
				fmt.Sprintf("compose path %q not found", root), err)
		}

		// A file argument is taken as-is, whatever its name. This lets
		// users point the tool at a single non-standard file.
		if !info.IsDir() {
			found = append(found, root)
			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// Skip hidden directories entirely (".git", ".cache", ...).
				if name := d.Name(); name != "." && len(name) > 1 && name[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			for _, candidate := range composeFileNames {
				if d.Name() == candidate {
					found = append(found, path)
					break
				}
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("failed to walk %q: %w", root, walkErr)
		}
	}

	sort.Strings(found)
	return found, nil
}

// StackName derives the compose stack (project) name for a compose file,
// which is the name of the directory containing it. This matches docker
// compose's default project naming.
func StackName(composePath string) string {
	return filepath.Base(filepath.Dir(composePath))
}
