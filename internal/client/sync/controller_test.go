package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerForMode(t *testing.T) {
	tests := []struct {
		mode string
		want Controller
		ok   bool
	}{
		{"twoway", TwoWaySync(), true},
		{"", TwoWaySync(), true},
		{"push", PushOnly(), true},
		{"pull", PullOnly(), true},
		{"mirror-up", MirrorToRemote(), true},
		{"mirror-down", MirrorToLocal(), true},
		{"bogus", Controller{}, false},
	}

	for _, tt := range tests {
		got, ok := ControllerForMode(tt.mode)
		require.Equal(t, tt.ok, ok, tt.mode)
		assert.Equal(t, tt.want, got, tt.mode)
	}
}

// A preset must never express the same conflict resolution on both
// sides; that would schedule two transfers for one path.
func TestPresetsResolveConflictsOnOneSideOnly(t *testing.T) {
	for name, ctrl := range map[string]Controller{
		"twoway":      TwoWaySync(),
		"push":        PushOnly(),
		"pull":        PullOnly(),
		"mirror-up":   MirrorToRemote(),
		"mirror-down": MirrorToLocal(),
	} {
		localActs := ctrl.Local.Conflicted != Skip
		remoteActs := ctrl.Remote.Conflicted != Skip
		assert.False(t, localActs && remoteActs, "%s acts on conflicts from both sides", name)
	}
}

func TestStatusInfo(t *testing.T) {
	for _, s := range []Status{
		StatusIdle, StatusTesting, StatusChecking, StatusSyncing,
		StatusSaving, StatusOffline, StatusError, StatusPaused,
	} {
		info := s.Info()
		assert.NotEmpty(t, info.Label, s)
		assert.NotEmpty(t, info.Color, s)
	}

	// unknown statuses still render something
	assert.Equal(t, "bogus", Status("bogus").Info().Label)
}
