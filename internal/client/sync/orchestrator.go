package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// DangerThreshold is the largest number of protected-prefix deletions a
// single check may classify before the pass is refused.
const DangerThreshold = 15

// Options configures an Orchestrator.
type Options struct {
	Local           LocalStore
	Remote          RemoteStore
	Trees           *TreeBuilder
	Snapshots       *SnapshotStore
	Notifier        Notifier
	Hasher          Hasher
	ProtectedPrefix string
	LockPath        string
}

// Orchestrator owns the session: the status machine, the persisted
// snapshot, and the change classification cached by the latest check.
// All three are mutated only inside the matching exclusive status and
// replaced wholesale each successful pass.
type Orchestrator struct {
	local     LocalStore
	remote    RemoteStore
	trees     *TreeBuilder
	snapStore *SnapshotStore
	notifier  Notifier
	hasher    Hasher

	protectedPrefix string
	lock            *flock.Flock

	mu       stdsync.Mutex
	status   Status
	resumeTo Status
	snapshot *Snapshot

	// cached classification from the latest successful check, together
	// with the trees it was computed from. Discarded at the next pass.
	result      *ReconcileResult
	localTree   FileList
	remoteTree  FileList
	lastChecked time.Time
}

// NewOrchestrator loads the persisted snapshot and takes the session
// lock, so a second instance over the same data directory fails fast
// instead of racing the snapshot file.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Local == nil || opts.Remote == nil || opts.Trees == nil || opts.Snapshots == nil {
		return nil, fmt.Errorf("sync: orchestrator misconfigured")
	}
	if opts.Notifier == nil {
		opts.Notifier = slogNotifier{}
	}
	if opts.Hasher == nil {
		opts.Hasher = MD5Hasher
	}

	var lock *flock.Flock
	if opts.LockPath != "" {
		lock = flock.New(opts.LockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("sync: acquire session lock: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("sync: another instance holds %s", opts.LockPath)
		}
	}

	snap, err := opts.Snapshots.Load()
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, err
	}

	status := StatusIdle
	if snap != nil && snap.ErrorFlag {
		status = StatusError
	}

	return &Orchestrator{
		local:           opts.Local,
		remote:          opts.Remote,
		trees:           opts.Trees,
		snapStore:       opts.Snapshots,
		notifier:        opts.Notifier,
		hasher:          opts.Hasher,
		protectedPrefix: opts.ProtectedPrefix,
		lock:            lock,
		status:          status,
		snapshot:        snap,
	}, nil
}

// Close releases the session lock.
func (o *Orchestrator) Close() error {
	if o.lock != nil {
		return o.lock.Unlock()
	}
	return nil
}

// Status returns the current session status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Result returns the classification cached by the latest check, or nil.
func (o *Orchestrator) Result() *ReconcileResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Snapshot returns the current baseline, or nil before the first
// successful reconciliation.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

// begin checks the current status and transitions in one atomic step.
// The check-then-set hazard here is re-entrancy across operations, so
// the two never happen as separate reads.
func (o *Orchestrator) begin(target Status, from ...Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status == StatusPaused {
		return ErrPaused
	}
	for _, s := range from {
		if o.status == s {
			o.status = target
			return nil
		}
	}
	return &BusyError{Current: o.status}
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	o.status = s
	o.mu.Unlock()
}

func (o *Orchestrator) errorFlag() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot != nil && o.snapshot.ErrorFlag
}

// persistErrorFlag records a fatal pass in the snapshot so the block
// survives restarts and transient connectivity recovery.
func (o *Orchestrator) persistErrorFlag() {
	o.mu.Lock()
	if o.snapshot == nil {
		o.snapshot = NewSnapshot()
	}
	o.snapshot.ErrorFlag = true
	snap := o.snapshot
	o.mu.Unlock()

	if err := o.snapStore.Save(snap); err != nil {
		slog.Error("persist error flag", "error", err)
	}
}

// Test probes remote reachability. Success brings an Offline or Error
// session back to Idle, unless a persisted error flag forces Error until
// it is explicitly cleared. Failure goes Offline.
func (o *Orchestrator) Test(ctx context.Context) error {
	if err := o.begin(StatusTesting, StatusIdle, StatusOffline, StatusError); err != nil {
		return err
	}
	opID := uuid.New().String()
	slog.Debug("test started", "op", opID)

	if err := o.remote.GetStatus(ctx); err != nil {
		o.setStatus(StatusOffline)
		o.notifier.Notify(NoticeWarn, "remote store is unreachable")
		return &ConnectivityError{Err: err}
	}

	if o.errorFlag() {
		o.setStatus(StatusError)
		o.notifier.Notify(NoticeError, "a previous sync failed; clear the error to resume")
		return ErrPersistedError
	}

	o.setStatus(StatusIdle)
	slog.Debug("test finished", "op", opID)
	return nil
}

// Check rebuilds both trees, reconciles them against the snapshot, and
// caches the classification. Connectivity failure parks the session
// Offline; anything unexpected goes Error with a persisted flag.
func (o *Orchestrator) Check(ctx context.Context) (*ReconcileResult, error) {
	if err := o.begin(StatusChecking, StatusIdle, StatusOffline); err != nil {
		return nil, err
	}
	if o.errorFlag() {
		o.setStatus(StatusError)
		return nil, ErrPersistedError
	}

	opID := uuid.New().String()
	res, err := o.runCheck(ctx, opID)
	if err != nil {
		o.failPass(err)
		return nil, err
	}

	o.setStatus(StatusIdle)
	return res, nil
}

// runCheck is the silent core of a check: no status transitions, no
// notices. Check and Sync both call it.
func (o *Orchestrator) runCheck(ctx context.Context, opID string) (*ReconcileResult, error) {
	slog.Debug("check started", "op", opID)

	localTree, err := o.trees.BuildLocal(ctx)
	if err != nil {
		return nil, err
	}
	remoteTree, err := o.trees.BuildRemote(ctx)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	snap := o.snapshot
	o.mu.Unlock()

	res, err := Reconcile(snap, localTree, remoteTree)
	if err != nil {
		return nil, err
	}

	if err := o.dangerGuard(res); err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.result = res
	o.localTree = localTree
	o.remoteTree = remoteTree
	o.lastChecked = time.Now()
	first := o.snapshot.Empty()
	o.mu.Unlock()

	// first successful reconciliation seeds the baseline
	if first {
		if err := o.commitSnapshot(localTree, remoteTree, res); err != nil {
			return nil, err
		}
	}

	slog.Info("check finished", "op", opID,
		"local", len(localTree), "remote", len(remoteTree),
		"pending", res.LocalFiles.Total()+res.RemoteFiles.Total())
	return res, nil
}

// dangerGuard refuses a pass whose classification deletes an implausible
// number of files under the protected prefix. A tripped guard persists
// the error flag so no sync can proceed from this pass.
func (o *Orchestrator) dangerGuard(res *ReconcileResult) error {
	if o.protectedPrefix == "" {
		return nil
	}

	deleted := 0
	for path := range res.LocalFiles.Deleted {
		if strings.HasPrefix(path, o.protectedPrefix) {
			deleted++
		}
	}
	if deleted <= DangerThreshold {
		return nil
	}

	return &DangerGuardError{
		Prefix:    o.protectedPrefix,
		Deleted:   deleted,
		Threshold: DangerThreshold,
	}
}

// failPass routes a pass-level failure to the right terminal status.
// Prior cached state is left untouched.
func (o *Orchestrator) failPass(err error) {
	if isConnectivityFailure(err) {
		o.setStatus(StatusOffline)
		o.notifier.Notify(NoticeWarn, "remote store is unreachable")
		return
	}

	o.persistErrorFlag()
	o.setStatus(StatusError)
	o.notifier.Notify(NoticeError, fmt.Sprintf("sync pass failed: %v", err))
}

// Sync executes the cached classification under the given controller,
// then refreshes the classification and the snapshot by re-running the
// check core. The session always leaves Syncing, error or not.
func (o *Orchestrator) Sync(ctx context.Context, ctrl Controller) (*TransferReport, error) {
	if err := o.begin(StatusSyncing, StatusIdle); err != nil {
		return nil, err
	}
	if o.errorFlag() {
		o.setStatus(StatusError)
		return nil, ErrPersistedError
	}

	// guaranteed cleanup: whatever happens below, Syncing is never the
	// resting state
	defer func() {
		if o.Status() == StatusSyncing {
			o.setStatus(StatusIdle)
		}
	}()

	opID := uuid.New().String()
	slog.Info("sync started", "op", opID)

	o.mu.Lock()
	res := o.result
	localTree := o.localTree
	remoteTree := o.remoteTree
	o.mu.Unlock()

	if res == nil {
		var err error
		res, err = o.runCheck(ctx, opID)
		if err != nil {
			o.failPass(err)
			return nil, err
		}
		o.mu.Lock()
		localTree = o.localTree
		remoteTree = o.remoteTree
		o.mu.Unlock()
	}

	plan := buildPlan(res, ctrl, localTree, remoteTree)
	report := &TransferReport{}
	if plan.empty() {
		// nothing to transfer, but the snapshot still refreshes below so
		// a stale cached classification is not handed back as-is
		slog.Info("nothing to transfer", "op", opID)
	} else {
		slog.Info("executing transfer plan", "op", opID,
			"downloads", len(plan.downloads), "uploads", len(plan.uploads),
			"deleteLocal", len(plan.deleteLocal), "deleteRemote", len(plan.deleteRemote))

		tr := &transferrer{local: o.local, remote: o.remote, hasher: o.hasher}
		report = tr.execute(ctx, plan)

		for _, te := range report.Failed {
			slog.Warn("left for next check", "op", opID, "path", te.Path, "cause", te.Err)
		}
	}

	// the post-sync check is the source of truth for the new baseline;
	// files that failed to transfer simply classify again next pass
	refreshed, err := o.runCheck(ctx, opID)
	if err != nil {
		o.failPass(err)
		return report, err
	}
	if err := o.commitFromCache(refreshed); err != nil {
		o.failPass(err)
		return report, err
	}

	slog.Info("sync finished", "op", opID,
		"downloaded", report.Downloaded, "uploaded", report.Uploaded,
		"deletedLocal", report.DeletedLocal, "deletedRemote", report.DeletedRemote,
		"failed", len(report.Failed))
	return report, nil
}

// commitFromCache persists a new baseline from the trees cached by the
// latest check.
func (o *Orchestrator) commitFromCache(res *ReconcileResult) error {
	o.mu.Lock()
	localTree := o.localTree
	remoteTree := o.remoteTree
	o.mu.Unlock()
	return o.commitSnapshot(localTree, remoteTree, res)
}

func (o *Orchestrator) commitSnapshot(localTree, remoteTree FileList, res *ReconcileResult) error {
	o.mu.Lock()
	prev := o.snapshot
	o.mu.Unlock()

	snap := BuildSnapshot(prev, localTree, remoteTree, res)
	if err := o.snapStore.Save(snap); err != nil {
		return err
	}

	o.mu.Lock()
	o.snapshot = snap
	o.mu.Unlock()
	return nil
}

// SaveState commits the current local tree as the new baseline without
// transferring anything. Paths in unselected keep their previous
// baseline digest, so their pending changes stay visible to the next
// check instead of being silently accepted.
func (o *Orchestrator) SaveState(ctx context.Context, unselected []string) error {
	if err := o.begin(StatusSaving, StatusIdle); err != nil {
		return err
	}
	if o.errorFlag() {
		o.setStatus(StatusError)
		return ErrPersistedError
	}

	opID := uuid.New().String()
	slog.Info("save started", "op", opID, "unselected", len(unselected))

	localTree, err := o.trees.BuildLocal(ctx)
	if err != nil {
		o.failPass(err)
		return err
	}

	o.mu.Lock()
	prev := o.snapshot
	o.mu.Unlock()

	snap := NewSnapshot()
	for path, digest := range localTree {
		snap.Files[path] = digest
	}
	for _, path := range unselected {
		if prev != nil {
			if digest, ok := prev.Files[path]; ok {
				snap.Files[path] = digest
				continue
			}
		}
		delete(snap.Files, path)
	}

	if err := o.snapStore.Save(snap); err != nil {
		o.failPass(err)
		return err
	}

	o.mu.Lock()
	o.snapshot = snap
	o.result = nil
	o.mu.Unlock()

	o.setStatus(StatusIdle)
	slog.Info("save finished", "op", opID, "baseline", len(snap.Files))
	return nil
}

// Pause blocks new operations until Resume. An operation already in
// flight is unaffected; pause only changes what may start.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.status {
	case StatusPaused:
		return nil
	case StatusIdle, StatusOffline, StatusError:
		o.resumeTo = o.status
		o.status = StatusPaused
		return nil
	default:
		return &BusyError{Current: o.status}
	}
}

// Resume restores the status Pause replaced.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.status != StatusPaused {
		return
	}
	if o.resumeTo == "" {
		o.resumeTo = StatusIdle
	}
	o.status = o.resumeTo
	o.resumeTo = ""
}

// ClearError lifts the persisted error flag and returns the session to
// Idle. This is the only way out of a tripped danger guard or a fatal
// pass.
func (o *Orchestrator) ClearError() error {
	o.mu.Lock()
	snap := o.snapshot
	if snap == nil || !snap.ErrorFlag {
		if o.status == StatusError {
			o.status = StatusIdle
		}
		o.mu.Unlock()
		return nil
	}
	snap.ErrorFlag = false
	o.mu.Unlock()

	if err := o.snapStore.Save(snap); err != nil {
		return err
	}

	o.mu.Lock()
	if o.status == StatusError {
		o.status = StatusIdle
	}
	o.mu.Unlock()

	o.notifier.Notify(NoticeInfo, "error cleared, syncing may resume")
	return nil
}
