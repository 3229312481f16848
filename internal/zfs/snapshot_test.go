package zfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TestSnapshotName verifies the <prefix><unix-timestamp> naming scheme.
func TestSnapshotName(t *testing.T) {
	ts := time.Unix(1756000000, 0)
	assert.Equal(t, "homelabctl_1756000000", SnapshotName(DefaultSnapshotPrefix, ts))
	assert.Equal(t, "pre-upgrade_1756000000", SnapshotName("pre-upgrade_", ts))
}

// TestProvenancePropsRoundTrip verifies that provenance survives the
// render-to-properties / parse-from-properties cycle, including omission
// of empty fields.
func TestProvenancePropsRoundTrip(t *testing.T) {
	prov := model.SnapshotProvenance{
		Stack:  "sonarr",
		Image:  "lscr.io/linuxserver/sonarr",
		Tag:    "4.0.0",
		Commit: "a1b2c3d",
	}

	props := provenanceProps(prov)
	assert.Equal(t, CreatedByValue, props[PropCreatedBy])
	assert.Equal(t, "sonarr", props[PropStack])

	// Empty fields must not be rendered at all: an unset zfs property
	// reads back as "-", so presence implies a real value.
	_, hasSHA := props[PropSHA]
	assert.False(t, hasSHA)

	assert.Equal(t, prov, provenanceFromProps(props))
}

// TestParseTabular verifies splitting of zfs -H output into rows.
func TestParseTabular(t *testing.T) {
	out := "tank\t/tank\ntank/docker\t/tank/docker\n\n"

	rows := parseTabular(out)
	assert.Equal(t, [][]string{
		{"tank", "/tank"},
		{"tank/docker", "/tank/docker"},
	}, rows)

	assert.Empty(t, parseTabular(""))
}
