package secret

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panzer1119/homelabctl/internal/model"
)

// TestTargetName verifies the template-to-target name mapping, including
// the ref.env special case.
func TestTargetName(t *testing.T) {
	assert.Equal(t, ".env", TargetName("ref.env"))
	assert.Equal(t, "config.yml", TargetName("ref.config.yml"))
	assert.Equal(t, "apprise.txt", TargetName("ref.apprise.txt"))
}

// TestDiscoverTemplates verifies recursive template discovery and the
// computed target paths.
func TestDiscoverTemplates(t *testing.T) {
	dir := t.TempDir()

	write := func(rel string) string {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("X=op://V/I/f\n"), 0o644))
		return path
	}

	envTmpl := write("sonarr/ref.env")
	confTmpl := write("apprise/ref.config.yml")
	write("sonarr/docker-compose.yml") // not a template
	write(".hidden/ref.env")           // hidden dirs are skipped

	templates, err := DiscoverTemplates([]string{dir})
	require.NoError(t, err)
	require.Len(t, templates, 2)

	assert.Equal(t, confTmpl, templates[0].SourcePath)
	assert.Equal(t, filepath.Join(dir, "apprise", "config.yml"), templates[0].TargetPath)
	assert.Equal(t, envTmpl, templates[1].SourcePath)
	assert.Equal(t, filepath.Join(dir, "sonarr", ".env"), templates[1].TargetPath)
}

// TestDiscoverTemplatesRejectsNonTemplate verifies that pointing directly
// at a file without the ref. prefix is an error.
func TestDiscoverTemplatesRejectsNonTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := DiscoverTemplates([]string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a secret template")
}

// TestRender verifies both resolution forms: {{ op://... }} placeholders
// anywhere in the content and bare op:// values on env lines.
func TestRender(t *testing.T) {
	resolver := Static{
		"op://Apprise/pushover/token": "tok123",
		"op://Docker/NAS/password":    "hunter2",
	}

	content := `# comment
PUSHOVER_URL=pover://{{ op://Apprise/pushover/token }}@host
SMB_PASSWORD=op://Docker/NAS/password
PLAIN=unchanged
`

	rendered, err := Render(context.Background(), resolver, content)
	require.NoError(t, err)
	assert.Contains(t, rendered, "PUSHOVER_URL=pover://tok123@host")
	assert.Contains(t, rendered, "SMB_PASSWORD=hunter2")
	assert.Contains(t, rendered, "PLAIN=unchanged")
	assert.NotContains(t, rendered, "op://", "no unresolved references may remain")
}

// TestRenderFailureAborts verifies that a single unresolvable reference
// fails the whole render instead of producing a partially resolved file.
func TestRenderFailureAborts(t *testing.T) {
	resolver := Static{"op://V/known/f": "value"}

	content := "A=op://V/known/f\nB=op://V/unknown/f\n"

	_, err := Render(context.Background(), resolver, content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op://V/unknown/f")
}

// TestMaterialize verifies that the rendered output lands at the target
// path with owner-only permissions.
func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "ref.env")
	require.NoError(t, os.WriteFile(source, []byte("PASSWORD=op://Docker/NAS/password\n"), 0o644))

	tmpl := Template{SourcePath: source, TargetPath: filepath.Join(dir, ".env")}
	resolver := Static{"op://Docker/NAS/password": "hunter2"}

	require.NoError(t, Materialize(context.Background(), resolver, tmpl))

	data, err := os.ReadFile(tmpl.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "PASSWORD=hunter2\n", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(tmpl.TargetPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(),
			"materialized files must be owner-only")
	}
}

// TestMaterializeTightensExistingTarget verifies that overwriting a target
// that already exists with wider permissions leaves it owner-only. WriteFile
// applies the mode only on create, so this needs the explicit chmod.
func TestMaterializeTightensExistingTarget(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on Windows")
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "ref.env")
	require.NoError(t, os.WriteFile(source, []byte("PASSWORD=op://Docker/NAS/password\n"), 0o644))

	tmpl := Template{SourcePath: source, TargetPath: filepath.Join(dir, ".env")}
	require.NoError(t, os.WriteFile(tmpl.TargetPath, []byte("PASSWORD=stale\n"), 0o644))

	resolver := Static{"op://Docker/NAS/password": "hunter2"}
	require.NoError(t, Materialize(context.Background(), resolver, tmpl))

	info, err := os.Stat(tmpl.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(),
		"pre-existing targets must be tightened on overwrite")

	data, err := os.ReadFile(tmpl.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "PASSWORD=hunter2\n", string(data))
}

// TestMaterializeFailureKeepsExitCode verifies that a resolution failure
// surfaces the secret-resolution exit code through Materialize's wrapping,
// so `secrets inject` exits with the dedicated code.
func TestMaterializeFailureKeepsExitCode(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "ref.env")
	require.NoError(t, os.WriteFile(source, []byte("PASSWORD=op://Vault/Item/password\n"), 0o644))

	tmpl := Template{SourcePath: source, TargetPath: filepath.Join(dir, ".env")}

	err := Materialize(context.Background(), Static{}, tmpl)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitSecretResolveFailed, cliErr.Code)
	assert.Contains(t, err.Error(), source, "the failing template must be named")

	assert.NoFileExists(t, tmpl.TargetPath, "no partial output on failure")
}
