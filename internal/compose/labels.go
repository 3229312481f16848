// labels.go implements the volume label convention that turns compose
// labels into provisionable volume definitions.
//
// The convention is:
//
//	de.panzer1119.docker.volume.<name>.<driver>.<field>
//
// where driver is one of cifs/sshfs/rclone and field is one of
// host/port/path/share/username/password/type. Labels may appear on
// top-level volumes or on services; both are scanned. The pseudo-volume
// name "default" declares shared connection parameters per driver, which
// concrete volumes inherit for every field they do not set themselves.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// VolumeLabelPrefix is the common prefix of every volume definition label.
const VolumeLabelPrefix = "de.panzer1119.docker.volume."

// labelRef is the decomposed form of one volume definition label key.
type labelRef struct {
	name   string
	driver model.Driver
	field  model.VolumeField
}

// parseVolumeLabelKey decomposes a label key into volume name, driver, and
// field. Keys without the volume prefix return ok=false and are ignored by
// the caller; keys WITH the prefix but a malformed remainder are an error,
// because they are almost certainly typos in a definition the user intended.
//
// The name may itself contain dots (volume names allow them), so the key is
// split from the right: the last segment is the field, the second-to-last
// the driver, and everything before is the name.
func parseVolumeLabelKey(key string) (labelRef, bool, error) {
	if !strings.HasPrefix(key, VolumeLabelPrefix) {
		return labelRef{}, false, nil
	}
	rest := strings.TrimPrefix(key, VolumeLabelPrefix)

	// Split from the right to allow dotted volume names.
	lastDot := strings.LastIndex(rest, ".")
	if lastDot <= 0 {
		return labelRef{}, false, fmt.Errorf("malformed volume label %q: expected <name>.<driver>.<field>", key)
	}
	field := model.VolumeField(rest[lastDot+1:])
	rest = rest[:lastDot]

	lastDot = strings.LastIndex(rest, ".")
	if lastDot <= 0 {
		return labelRef{}, false, fmt.Errorf("malformed volume label %q: expected <name>.<driver>.<field>", key)
	}
	driverStr := rest[lastDot+1:]
	name := rest[:lastDot]

	driver, err := model.ParseDriver(driverStr)
	if err != nil {
		return labelRef{}, false, fmt.Errorf("volume label %q: %w", key, err)
	}
	if !field.IsValid() {
		return labelRef{}, false, fmt.Errorf("volume label %q: unknown field %q (valid: host, port, path, share, username, password, type)", key, field)
	}

	return labelRef{name: name, driver: driver, field: field}, true, nil
}

// specKey uniquely identifies a volume definition while it is being
// assembled. The driver is part of the key so that a "default" block can
// exist per driver without colliding.
type specKey struct {
	name   string
	driver model.Driver
}

// ExtractVolumeSpecs scans a parsed compose file for volume definition
// labels and returns the fully assembled, defaults-applied specs, sorted by
// volume name. "default" pseudo-volumes contribute their fields to every
// concrete volume of the same driver but are not returned themselves.
//
// Field collisions within the same file (the same name/driver/field defined
// twice with different values) are an error, since it is ambiguous which
// value the user meant.
func ExtractVolumeSpecs(f *File) ([]*model.VolumeSpec, error) {
	specs := make(map[specKey]*model.VolumeSpec)

	// collect applies one label map (from a volume or a service) to the
	// in-progress spec set.
	collect := func(labels LabelSet) error {
		// Iterate keys in sorted order so error messages are deterministic.
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			ref, ok, err := parseVolumeLabelKey(key)
			if err != nil {
				return err
			}
			if !ok {
				continue // unrelated label
			}

			sk := specKey{name: ref.name, driver: ref.driver}
			spec, exists := specs[sk]
			if !exists {
				spec = &model.VolumeSpec{
					Name:       ref.name,
					Driver:     ref.driver,
					SourceFile: f.Path,
				}
				specs[sk] = spec
			}

			if err := setSpecField(spec, ref.field, labels[key]); err != nil {
				return fmt.Errorf("label %q: %w", key, err)
			}
		}
		return nil
	}

	// Top-level volumes first, then services. The order does not matter
	// for correctness because duplicate fields are rejected either way.
	volNames := make([]string, 0, len(f.Volumes))
	for name := range f.Volumes {
		volNames = append(volNames, name)
	}
	sort.Strings(volNames)
	for _, name := range volNames {
		vol := f.Volumes[name]
		if vol == nil {
			continue
		}
		if err := collect(vol.Labels); err != nil {
			return nil, err
		}
	}

	svcNames := make([]string, 0, len(f.Services))
	for name := range f.Services {
		svcNames = append(svcNames, name)
	}
	sort.Strings(svcNames)
	for _, name := range svcNames {
		if err := collect(f.Services[name].Labels); err != nil {
			return nil, err
		}
	}

	// Separate the per-driver default blocks from the concrete volumes.
	defaults := make(map[model.Driver]*model.VolumeSpec)
	var concrete []*model.VolumeSpec
	for sk, spec := range specs {
		if sk.name == model.DefaultVolumeName {
			defaults[sk.driver] = spec
			continue
		}
		concrete = append(concrete, spec)
	}

	// Apply the default hierarchy: per-volume fields win, gaps inherit.
	for _, spec := range concrete {
		spec.ApplyDefaults(defaults[spec.Driver])
	}

	sort.Slice(concrete, func(i, j int) bool {
		return concrete[i].Name < concrete[j].Name
	})
	return concrete, nil
}

// setSpecField writes a single field value into the spec, rejecting
// contradictory duplicates. Setting the same field to the same value twice
// is tolerated (the same label may legitimately appear on both the volume
// and a service).
func setSpecField(spec *model.VolumeSpec, field model.VolumeField, value string) error {
	target := specFieldPtr(spec, field)
	if *target != "" && *target != value {
		return fmt.Errorf("volume %q: field %q defined twice with different values (%q vs %q)",
			spec.Name, field, *target, value)
	}
	*target = value
	return nil
}

// specFieldPtr maps a VolumeField to the corresponding struct field.
// parseVolumeLabelKey guarantees the field is valid before this is called.
func specFieldPtr(spec *model.VolumeSpec, field model.VolumeField) *string {
	switch field {
	case model.FieldHost:
		return &spec.Host
	case model.FieldPort:
		return &spec.Port
	case model.FieldPath:
		return &spec.Path
	case model.FieldShare:
		return &spec.Share
	case model.FieldUsername:
		return &spec.Username
	case model.FieldPassword:
		return &spec.Password
	case model.FieldType:
		return &spec.Type
	default:
		// Unreachable: the caller validates the field first.
		panic(fmt.Sprintf("unknown volume field %q", field))
	}
}

// ExtractAll runs ExtractVolumeSpecs over multiple compose files and merges
// the results. Specs for the same volume name from different files are an
// error when they disagree; identical duplicates are collapsed.
func ExtractAll(files []*File) ([]*model.VolumeSpec, error) {
	byName := make(map[string]*model.VolumeSpec)
	var order []string

	for _, f := range files {
		specs, err := ExtractVolumeSpecs(f)
		if err != nil {
			return nil, err
		}
		for _, spec := range specs {
			existing, ok := byName[spec.Name]
			if !ok {
				byName[spec.Name] = spec
				order = append(order, spec.Name)
				continue
			}
			// Two files may both reference a shared volume; that is fine
			// as long as they describe it identically.
			if !equalSpecs(existing, spec) {
				return nil, fmt.Errorf("volume %q defined differently in %q and %q",
					spec.Name, existing.SourceFile, spec.SourceFile)
			}
		}
	}

	sort.Strings(order)
	result := make([]*model.VolumeSpec, 0, len(order))
	for _, name := range order {
		result = append(result, byName[name])
	}
	return result, nil
}

// equalSpecs compares two specs ignoring their source file.
func equalSpecs(a, b *model.VolumeSpec) bool {
	return a.Name == b.Name &&
		a.Driver == b.Driver &&
		a.Host == b.Host &&
		a.Port == b.Port &&
		a.Path == b.Path &&
		a.Share == b.Share &&
		a.Username == b.Username &&
		a.Password == b.Password &&
		a.Type == b.Type
}
