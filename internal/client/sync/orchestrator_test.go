package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(t *testing.T, local *fakeLocal, remote *fakeRemote) *Orchestrator {
	t.Helper()

	dir := t.TempDir()
	ignore := NewIgnoreList(dir, false)
	trees := NewTreeBuilder(local, remote, ignore, nil)

	orch, err := NewOrchestrator(Options{
		Local:           local,
		Remote:          remote,
		Trees:           trees,
		Snapshots:       NewSnapshotStore(filepath.Join(dir, "snapshot.json")),
		ProtectedPrefix: ".vault/",
		LockPath:        filepath.Join(dir, "test.lock"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { orch.Close() })
	return orch
}

func TestOrchestratorStatusGate(t *testing.T) {
	local := newFakeLocal(map[string]string{"a.md": "one"})
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	_, err := orch.Check(context.Background())
	require.NoError(t, err)
	before := orch.Result()
	snapBefore := orch.Snapshot()

	orch.setStatus(StatusSyncing)

	_, err = orch.Sync(context.Background(), TwoWaySync())
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, StatusSyncing, busy.Current)

	_, err = orch.Check(context.Background())
	require.ErrorAs(t, err, &busy)

	// the rejected calls touched nothing
	assert.Same(t, before, orch.Result())
	assert.Same(t, snapBefore, orch.Snapshot())
}

func TestOrchestratorTestTransitions(t *testing.T) {
	local := newFakeLocal(nil)
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	remote.online = false
	err := orch.Test(context.Background())
	var ce *ConnectivityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StatusOffline, orch.Status())

	remote.online = true
	require.NoError(t, orch.Test(context.Background()))
	assert.Equal(t, StatusIdle, orch.Status())
}

func TestOrchestratorTestWithPersistedError(t *testing.T) {
	local := newFakeLocal(nil)
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	orch.persistErrorFlag()
	orch.setStatus(StatusError)

	err := orch.Test(context.Background())
	assert.ErrorIs(t, err, ErrPersistedError)
	assert.Equal(t, StatusError, orch.Status())

	require.NoError(t, orch.ClearError())
	assert.Equal(t, StatusIdle, orch.Status())
	require.NoError(t, orch.Test(context.Background()))
}

func TestOrchestratorCheckGoesOfflineOnConnectivityFailure(t *testing.T) {
	local := newFakeLocal(map[string]string{"a.md": "one"})
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	remote.online = false
	_, err := orch.Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusOffline, orch.Status())

	// connectivity failures do not persist an error flag
	assert.False(t, orch.errorFlag())

	remote.online = true
	_, err = orch.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, orch.Status())
}

func protectedVault(n int, body string) map[string]string {
	files := make(map[string]string, n)
	for i := 0; i < n; i++ {
		files[fmt.Sprintf(".vault/cfg-%02d.json", i)] = body
	}
	return files
}

func TestOrchestratorDangerGuard(t *testing.T) {
	t.Run("16 protected deletions trips the guard", func(t *testing.T) {
		files := protectedVault(16, "conf")
		local := newFakeLocal(files)
		remote := newFakeRemote(files)
		orch := newTestOrchestrator(t, local, remote)

		// seed the baseline while the sides agree
		_, err := orch.Check(context.Background())
		require.NoError(t, err)

		// remote loses every protected file, e.g. a corrupted listing
		for path := range files {
			require.NoError(t, remote.DeleteFile(context.Background(), path))
		}

		_, err = orch.Check(context.Background())
		var guard *DangerGuardError
		require.ErrorAs(t, err, &guard)
		assert.Equal(t, 16, guard.Deleted)
		assert.Equal(t, StatusError, orch.Status())
		assert.True(t, orch.Snapshot().ErrorFlag)

		// no sync can proceed from this pass
		_, err = orch.Sync(context.Background(), TwoWaySync())
		assert.Error(t, err)
	})

	t.Run("14 protected deletions proceed normally", func(t *testing.T) {
		files := protectedVault(14, "conf")
		local := newFakeLocal(files)
		remote := newFakeRemote(files)
		orch := newTestOrchestrator(t, local, remote)

		_, err := orch.Check(context.Background())
		require.NoError(t, err)

		for path := range files {
			require.NoError(t, remote.DeleteFile(context.Background(), path))
		}

		res, err := orch.Check(context.Background())
		require.NoError(t, err)
		assert.Len(t, res.LocalFiles.Deleted, 14)
		assert.Equal(t, StatusIdle, orch.Status())
	})
}

func TestOrchestratorSyncRoundTrip(t *testing.T) {
	local := newFakeLocal(map[string]string{
		"notes/a.md": "local only",
		"shared.md":  "same",
	})
	remote := newFakeRemote(map[string]string{
		"notes/b.md": "remote only",
		"shared.md":  "same",
	})
	orch := newTestOrchestrator(t, local, remote)

	report, err := orch.Sync(context.Background(), TwoWaySync())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Uploaded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, StatusIdle, orch.Status())

	// both replicas now hold everything
	assert.True(t, local.Exists("notes/b.md"))
	body, err := remote.GetFile(context.Background(), "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "local only", string(body))

	// the refreshed snapshot makes the next pass a no-op
	res, err := orch.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.HasChanges())

	report, err = orch.Sync(context.Background(), TwoWaySync())
	require.NoError(t, err)
	assert.Equal(t, &TransferReport{}, report)
}

func TestOrchestratorSyncRefreshesOnEmptyPlan(t *testing.T) {
	local := newFakeLocal(map[string]string{"a.md": "v1"})
	remote := newFakeRemote(map[string]string{"a.md": "v1"})
	orch := newTestOrchestrator(t, local, remote)

	// cache a clean classification, then edit behind its back
	res, err := orch.Check(context.Background())
	require.NoError(t, err)
	require.False(t, res.HasChanges())
	require.NoError(t, local.Write("a.md", []byte("v2")))

	// nothing to transfer, but the pass still re-checks instead of
	// handing the stale cached result back
	report, err := orch.Sync(context.Background(), TwoWaySync())
	require.NoError(t, err)
	assert.Equal(t, &TransferReport{}, report)
	assert.Contains(t, orch.Result().LocalFiles.Modified, "a.md")

	// the baseline still carries v1; the edit is pending, not absorbed
	assert.Equal(t, digestOf("v1"), orch.Snapshot().Files["a.md"])
}

func TestOrchestratorSyncAlwaysLeavesSyncing(t *testing.T) {
	local := newFakeLocal(map[string]string{"a.md": "one"})
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	_, err := orch.Check(context.Background())
	require.NoError(t, err)

	// the post-transfer refresh hits a dead remote
	remote.online = false
	_, err = orch.Sync(context.Background(), TwoWaySync())
	require.Error(t, err)
	assert.NotEqual(t, StatusSyncing, orch.Status())
	assert.Equal(t, StatusOffline, orch.Status())
}

func TestOrchestratorSaveState(t *testing.T) {
	local := newFakeLocal(map[string]string{
		"a.md": "accepted",
		"b.md": "held back",
	})
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	require.NoError(t, orch.SaveState(context.Background(), []string{"b.md"}))
	assert.Equal(t, StatusIdle, orch.Status())

	snap := orch.Snapshot()
	assert.Equal(t, digestOf("accepted"), snap.Files["a.md"])

	// b.md was unselected and had no previous baseline entry, so it
	// stays out of the baseline and classifies as added next check
	assert.NotContains(t, snap.Files, "b.md")

	res, err := orch.Check(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.LocalFiles.Added, "b.md")
	assert.NotContains(t, res.LocalFiles.Added, "a.md")
}

func TestOrchestratorSaveStateKeepsPreviousDigest(t *testing.T) {
	local := newFakeLocal(map[string]string{"a.md": "v1"})
	remote := newFakeRemote(map[string]string{"a.md": "v1"})
	orch := newTestOrchestrator(t, local, remote)

	_, err := orch.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, digestOf("v1"), orch.Snapshot().Files["a.md"])

	// local edits the file, then saves with the edit unselected; the
	// baseline keeps v1 so the edit is still pending afterwards
	require.NoError(t, local.Write("a.md", []byte("v2")))
	require.NoError(t, orch.SaveState(context.Background(), []string{"a.md"}))
	assert.Equal(t, digestOf("v1"), orch.Snapshot().Files["a.md"])

	res, err := orch.Check(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.LocalFiles.Modified, "a.md")
}

func TestOrchestratorPause(t *testing.T) {
	local := newFakeLocal(nil)
	remote := newFakeRemote(nil)
	orch := newTestOrchestrator(t, local, remote)

	require.NoError(t, orch.Pause())
	assert.Equal(t, StatusPaused, orch.Status())

	_, err := orch.Check(context.Background())
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, orch.Test(context.Background()), ErrPaused)

	orch.Resume()
	assert.Equal(t, StatusIdle, orch.Status())
	_, err = orch.Check(context.Background())
	assert.NoError(t, err)
}

func TestOrchestratorPersistedErrorSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	local := newFakeLocal(nil)
	remote := newFakeRemote(nil)
	ignore := NewIgnoreList(dir, false)
	trees := NewTreeBuilder(local, remote, ignore, nil)
	snapStore := NewSnapshotStore(filepath.Join(dir, "snapshot.json"))

	opts := Options{
		Local:     local,
		Remote:    remote,
		Trees:     trees,
		Snapshots: snapStore,
	}

	orch, err := NewOrchestrator(opts)
	require.NoError(t, err)
	orch.persistErrorFlag()

	// a fresh session over the same snapshot starts out blocked
	orch2, err := NewOrchestrator(opts)
	require.NoError(t, err)
	assert.Equal(t, StatusError, orch2.Status())
	_, err = orch2.Check(context.Background())
	assert.Error(t, err)
}

func TestOrchestratorSecondInstanceRejected(t *testing.T) {
	dir := t.TempDir()
	local := newFakeLocal(nil)
	remote := newFakeRemote(nil)
	ignore := NewIgnoreList(dir, false)
	trees := NewTreeBuilder(local, remote, ignore, nil)

	opts := Options{
		Local:     local,
		Remote:    remote,
		Trees:     trees,
		Snapshots: NewSnapshotStore(filepath.Join(dir, "snapshot.json")),
		LockPath:  filepath.Join(dir, "test.lock"),
	}

	first, err := NewOrchestrator(opts)
	require.NoError(t, err)
	defer first.Close()

	_, err = NewOrchestrator(opts)
	assert.Error(t, err)
}
