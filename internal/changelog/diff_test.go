package changelog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TestClassifyUpdate verifies the decomposition of image changes into
// update types across registries, namespaces, names, tags, and digests.
func TestClassifyUpdate(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []model.UpdateType
	}{
		{
			name: "tag bump",
			old:  "lscr.io/linuxserver/sonarr:4.0.0",
			new:  "lscr.io/linuxserver/sonarr:4.0.1",
			want: []model.UpdateType{model.UpdateTag},
		},
		{
			name: "registry move",
			old:  "linuxserver/sonarr:4.0.0",
			new:  "lscr.io/linuxserver/sonarr:4.0.0",
			want: []model.UpdateType{model.UpdateRepo},
		},
		{
			name: "namespace change",
			old:  "lscr.io/linuxserver/sonarr:4.0.0",
			new:  "lscr.io/other/sonarr:4.0.0",
			want: []model.UpdateType{model.UpdateUser},
		},
		{
			name: "image rename",
			old:  "lscr.io/linuxserver/sonarr:4.0.0",
			new:  "lscr.io/linuxserver/radarr:4.0.0",
			want: []model.UpdateType{model.UpdateImage},
		},
		{
			name: "digest repin",
			old:  "redis:7@sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			new:  "redis:7@sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			want: []model.UpdateType{model.UpdateSHA},
		},
		{
			name: "tag bump with digest",
			old:  "redis:7.2@sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			new:  "redis:7.4@sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			want: []model.UpdateType{model.UpdateTag, model.UpdateSHA},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClassifyUpdate(tt.old, tt.new)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestClassifyUpdateInvalidReference verifies rejection of unparsable
// image references.
func TestClassifyUpdateInvalidReference(t *testing.T) {
	_, err := ClassifyUpdate("UPPERCASE not allowed", "redis:7")
	assert.Error(t, err)
}

// TestSplitImage verifies normalization: bare Docker Hub images resolve to
// the docker.io registry and the library namespace.
func TestSplitImage(t *testing.T) {
	parts, err := splitImage("redis:7")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", parts.domain)
	assert.Equal(t, "library", parts.user)
	assert.Equal(t, "redis", parts.name)
	assert.Equal(t, "7", parts.tag)
	assert.Empty(t, parts.digest)

	parts, err = splitImage("ghcr.io/org/team/tool:v1")
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io", parts.domain)
	assert.Equal(t, "org/team", parts.user, "multi-segment namespaces stay intact")
	assert.Equal(t, "tool", parts.name)
}

// TestSectionName verifies the category directory derivation.
func TestSectionName(t *testing.T) {
	assert.Equal(t, "media", sectionName("media/sonarr/docker-compose.yml"))
	assert.Equal(t, ".", sectionName("sonarr/docker-compose.yml"))
	assert.Equal(t, ".", sectionName("docker-compose.yml"))
}

// TestIsComposeFileName verifies recognition of the compose file names in
// git tree listings.
func TestIsComposeFileName(t *testing.T) {
	assert.True(t, isComposeFileName("media/sonarr/docker-compose.yml"))
	assert.True(t, isComposeFileName("compose.yaml"))
	assert.False(t, isComposeFileName("media/sonarr/ref.env"))
	assert.False(t, isComposeFileName("docker-compose.override.yml"))
}

// TestWriteText verifies the plain text rendering of a change set.
func TestWriteText(t *testing.T) {
	changes := []CommitChanges{
		{
			Commit: "a1b2c3d",
			Projects: []ProjectChange{
				{
					Project:    "sonarr",
					Section:    "media",
					ChangeType: model.ChangeUpdated,
					Containers: []ContainerChange{
						{
							ContainerName: "sonarr",
							OldImage:      "lscr.io/linuxserver/sonarr:4.0.0",
							NewImage:      "lscr.io/linuxserver/sonarr:4.0.1",
							UpdateTypes:   []model.UpdateType{model.UpdateTag},
						},
					},
				},
				{
					Project:    "grafana",
					Section:    "monitoring",
					ChangeType: model.ChangeCreated,
					Containers: []ContainerChange{
						{ContainerName: "grafana", NewImage: "grafana/grafana:11.0.0"},
					},
				},
			},
		},
	}

	var buf strings.Builder
	require.NoError(t, WriteText(&buf, changes))
	out := buf.String()

	assert.Contains(t, out, "commit a1b2c3d")
	assert.Contains(t, out, "media/sonarr (updated)")
	assert.Contains(t, out, "sonarr: lscr.io/linuxserver/sonarr:4.0.0 -> lscr.io/linuxserver/sonarr:4.0.1 [tag]")
	assert.Contains(t, out, "monitoring/grafana (created)")
	assert.Contains(t, out, "grafana: grafana/grafana:11.0.0")
}

// TestWriteHTML verifies that the HTML report carries the filter data
// attributes the client-side script relies on.
func TestWriteHTML(t *testing.T) {
	changes := []CommitChanges{
		{
			Commit: "a1b2c3d",
			Projects: []ProjectChange{
				{
					Project:    "sonarr",
					Section:    "media",
					ChangeType: model.ChangeUpdated,
					Containers: []ContainerChange{
						{
							ContainerName: "sonarr",
							OldImage:      "a:1",
							NewImage:      "a:2",
							UpdateTypes:   []model.UpdateType{model.UpdateTag, model.UpdateSHA},
						},
					},
				},
			},
		},
	}

	var buf strings.Builder
	require.NoError(t, WriteHTML(&buf, changes))
	out := buf.String()

	assert.Contains(t, out, `data-update-types="tag,sha"`)
	assert.Contains(t, out, `data-change-type="updated"`)
	assert.Contains(t, out, "<code>a1b2c3d</code>")
}
