package zfs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec stands in for the zfs binary. It records every invocation and
// serves canned output keyed by the zfs subcommand.
type fakeExec struct {
	calls   [][]string
	outputs map[string]string
}

func (f *fakeExec) run(_ context.Context, args []string) (string, error) {
	f.calls = append(f.calls, args)
	return f.outputs[args[0]], nil
}

// subcommands returns the first argument of every recorded invocation.
func (f *fakeExec) subcommands() []string {
	var subs []string
	for _, call := range f.calls {
		subs = append(subs, call[0])
	}
	return subs
}

// TestDestroySnapshotSafely verifies the holds-aware destroy decision tree:
// no holds destroys, only our own hold releases then destroys, and any
// foreign hold skips the snapshot entirely.
func TestDestroySnapshotSafely(t *testing.T) {
	const snap = "tank/docker/sonarr@homelabctl-backup_1756000000"

	tests := []struct {
		name           string
		holdsOutput    string
		holdingEnabled bool
		wantDestroyed  bool
		wantCommands   []string
	}{
		{
			name:           "no holds",
			holdsOutput:    "",
			holdingEnabled: true,
			wantDestroyed:  true,
			wantCommands:   []string{"holds", "destroy"},
		},
		{
			name:           "only our own hold",
			holdsOutput:    snap + "\thomelabctl-backup\tSun Aug 31 12:00 2025\n",
			holdingEnabled: true,
			wantDestroyed:  true,
			wantCommands:   []string{"holds", "release", "destroy"},
		},
		{
			name:           "foreign hold",
			holdsOutput:    snap + "\tzrepl\tSun Aug 31 12:00 2025\n",
			holdingEnabled: true,
			wantDestroyed:  false,
			wantCommands:   []string{"holds"},
		},
		{
			name: "our hold next to a foreign one",
			holdsOutput: snap + "\thomelabctl-backup\tSun Aug 31 12:00 2025\n" +
				snap + "\tzrepl\tSun Aug 31 12:00 2025\n",
			holdingEnabled: true,
			wantDestroyed:  false,
			wantCommands:   []string{"holds"},
		},
		{
			name:           "our hold with holding disabled",
			holdsOutput:    snap + "\thomelabctl-backup\tSun Aug 31 12:00 2025\n",
			holdingEnabled: false,
			wantDestroyed:  false,
			wantCommands:   []string{"holds"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeExec{outputs: map[string]string{"holds": tt.holdsOutput}}

			var logged []string
			runner := &Runner{
				Logf:   func(format string, args ...interface{}) { logged = append(logged, fmt.Sprintf(format, args...)) },
				execFn: fake.run,
			}

			destroyed, err := runner.DestroySnapshotSafely(context.Background(), snap, "homelabctl-backup", tt.holdingEnabled)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDestroyed, destroyed)
			assert.Equal(t, tt.wantCommands, fake.subcommands())

			if !tt.wantDestroyed {
				require.NotEmpty(t, logged)
				assert.Contains(t, logged[len(logged)-1], "foreign holds")
			}
		})
	}
}

// TestDestroySnapshotRefusesDatasets verifies the guard against destroying
// a whole dataset through a name without "@".
func TestDestroySnapshotRefusesDatasets(t *testing.T) {
	fake := &fakeExec{outputs: map[string]string{}}
	runner := &Runner{execFn: fake.run}

	err := runner.DestroySnapshot(context.Background(), "tank/docker/sonarr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a snapshot name")
	assert.Empty(t, fake.calls, "nothing may be executed for a non-snapshot target")
}
