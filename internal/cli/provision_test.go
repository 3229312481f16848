package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatchTree verifies that every non-hidden directory below the root is
// added to the watcher and that compose files seen during the walk are
// reported. This is what makes stack directories created while watching
// visible without a restart.
func TestWatchTree(t *testing.T) {
	dir := t.TempDir()

	mkdir := func(rel string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(path, 0o755))
		return path
	}

	sonarr := mkdir("media/sonarr")
	empty := mkdir("monitoring/grafana")
	hidden := mkdir(".git/objects")
	require.NoError(t, os.WriteFile(filepath.Join(sonarr, "docker-compose.yml"), []byte("services: {}\n"), 0o644))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer func() { _ = watcher.Close() }()

	sawCompose, err := watchTree(watcher, dir)
	require.NoError(t, err)
	assert.True(t, sawCompose, "a compose file inside the tree must be reported")

	watched := watcher.WatchList()
	assert.Contains(t, watched, sonarr)
	assert.Contains(t, watched, empty)
	assert.NotContains(t, watched, hidden, "hidden directories are not watched")

	// A freshly created stack directory without a compose file yet: it must
	// still be watched so the file's later arrival is seen.
	newStack := mkdir("media/radarr")
	sawCompose, err = watchTree(watcher, newStack)
	require.NoError(t, err)
	assert.False(t, sawCompose)
	assert.Contains(t, watcher.WatchList(), newStack)
}

// TestIsComposePath verifies the file name filter used by watch mode.
func TestIsComposePath(t *testing.T) {
	assert.True(t, isComposePath("stacks/media/docker-compose.yml"))
	assert.True(t, isComposePath("stacks/media/compose.yaml"))
	assert.False(t, isComposePath("stacks/media/.env"))
	assert.False(t, isComposePath("stacks/media/docker-compose.override.yml"))
}
