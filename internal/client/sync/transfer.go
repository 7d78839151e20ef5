package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const (
	downloadConcurrency = 8
	uploadConcurrency   = 4
	deleteConcurrency   = 8
)

// opKind names a concrete transfer operation for logs and errors.
type opKind string

const (
	opDownload     opKind = "download"
	opUpload       opKind = "upload"
	opDeleteLocal  opKind = "delete local"
	opDeleteRemote opKind = "delete remote"
)

// transferPlan is the concrete operation set derived from a
// classification and a controller. Paths are disjoint across the four
// sets; a directive combination that would schedule a second operation
// for an already-planned path is skipped with a warning.
type transferPlan struct {
	downloads    map[string]Digest // path -> expected digest from the remote listing
	uploads      map[string]struct{}
	deleteLocal  map[string]struct{}
	deleteRemote map[string]struct{}
}

func newTransferPlan() *transferPlan {
	return &transferPlan{
		downloads:    make(map[string]Digest),
		uploads:      make(map[string]struct{}),
		deleteLocal:  make(map[string]struct{}),
		deleteRemote: make(map[string]struct{}),
	}
}

func (p *transferPlan) empty() bool {
	return len(p.downloads) == 0 && len(p.uploads) == 0 && len(p.deleteLocal) == 0 && len(p.deleteRemote) == 0
}

func (p *transferPlan) total() int {
	return len(p.downloads) + len(p.uploads) + len(p.deleteLocal) + len(p.deleteRemote)
}

func (p *transferPlan) planned(path string) bool {
	if _, ok := p.downloads[path]; ok {
		return true
	}
	if _, ok := p.uploads[path]; ok {
		return true
	}
	if _, ok := p.deleteLocal[path]; ok {
		return true
	}
	_, ok := p.deleteRemote[path]
	return ok
}

func (p *transferPlan) addDownload(path string, remoteTree FileList) {
	if p.planned(path) {
		slog.Warn("transfer plan: path already scheduled, skipping", "path", path, "op", opDownload)
		return
	}
	p.downloads[path] = remoteTree[path]
}

func (p *transferPlan) add(path string, kind opKind) {
	if p.planned(path) {
		slog.Warn("transfer plan: path already scheduled, skipping", "path", path, "op", kind)
		return
	}
	switch kind {
	case opUpload:
		p.uploads[path] = struct{}{}
	case opDeleteLocal:
		p.deleteLocal[path] = struct{}{}
	case opDeleteRemote:
		p.deleteRemote[path] = struct{}{}
	}
}

// buildPlan interprets the controller's directive matrix against the
// classification. The trees supply expected digests for download
// integrity checks, and tell Revert on a modification whether the
// counterpart still holds the path at all. A modification whose
// counterpart copy is gone (edit on one side, delete on the other)
// reverts by deleting the surviving copy, not by copying from a side
// that has nothing to offer.
func buildPlan(res *ReconcileResult, ctrl Controller, localTree, remoteTree FileList) *transferPlan {
	plan := newTransferPlan()

	// remote side: Apply pulls remote content onto local, Revert pushes
	// local state onto the remote
	forEach(res.RemoteFiles.Added, ctrl.Remote.Added, func(path string) {
		plan.addDownload(path, remoteTree)
	}, func(path string) {
		plan.add(path, opDeleteRemote)
	})
	forEach(res.RemoteFiles.Modified, ctrl.Remote.Modified, func(path string) {
		plan.addDownload(path, remoteTree)
	}, func(path string) {
		if _, ok := localTree[path]; !ok {
			plan.add(path, opDeleteRemote)
			return
		}
		plan.add(path, opUpload)
	})
	forEach(res.RemoteFiles.Deleted, ctrl.Remote.Deleted, func(path string) {
		plan.add(path, opDeleteRemote)
	}, func(path string) {
		plan.addDownload(path, remoteTree)
	})
	forEach(res.RemoteFiles.Conflicted, ctrl.Remote.Conflicted, func(path string) {
		plan.addDownload(path, remoteTree)
	}, func(path string) {
		plan.add(path, opUpload)
	})

	// local side mirrors symmetrically
	forEach(res.LocalFiles.Added, ctrl.Local.Added, func(path string) {
		plan.add(path, opUpload)
	}, func(path string) {
		plan.add(path, opDeleteLocal)
	})
	forEach(res.LocalFiles.Modified, ctrl.Local.Modified, func(path string) {
		plan.add(path, opUpload)
	}, func(path string) {
		if _, ok := remoteTree[path]; !ok {
			plan.add(path, opDeleteLocal)
			return
		}
		plan.addDownload(path, remoteTree)
	})
	forEach(res.LocalFiles.Deleted, ctrl.Local.Deleted, func(path string) {
		plan.add(path, opDeleteLocal)
	}, func(path string) {
		plan.add(path, opUpload)
	})
	forEach(res.LocalFiles.Conflicted, ctrl.Local.Conflicted, func(path string) {
		plan.add(path, opUpload)
	}, func(path string) {
		plan.addDownload(path, remoteTree)
	})

	return plan
}

func forEach(files FileList, d Directive, apply func(string), revert func(string)) {
	switch d {
	case Apply:
		for path := range files {
			apply(path)
		}
	case Revert:
		for path := range files {
			revert(path)
		}
	}
}

// TransferReport collects the outcome of one executed plan. Failed holds
// per-file terminal failures; they never abort the batch.
type TransferReport struct {
	Downloaded    int
	Uploaded      int
	DeletedLocal  int
	DeletedRemote int
	Failed        []*TransferError
}

// transferrer executes a plan against the two stores. All categories
// launch together; within a category files transfer concurrently with no
// ordering guarantee. Downloads and deletions get exactly one retry
// round after remote reachability is re-confirmed; uploads get a single
// attempt.
type transferrer struct {
	local  LocalStore
	remote RemoteStore
	hasher Hasher
}

func (t *transferrer) execute(ctx context.Context, plan *transferPlan) *TransferReport {
	report := &TransferReport{}
	var mu stdsync.Mutex

	fail := func(te *TransferError) {
		mu.Lock()
		report.Failed = append(report.Failed, te)
		mu.Unlock()
	}

	var wg stdsync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		n := t.runRetryable(ctx, opDownload, keysOf(plan.downloads), downloadConcurrency, fail, func(ctx context.Context, path string) error {
			return t.download(ctx, path, plan.downloads[path])
		})
		mu.Lock()
		report.Downloaded = n
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		n := t.runOnce(ctx, opUpload, keysOfSet(plan.uploads), uploadConcurrency, fail, t.upload)
		mu.Lock()
		report.Uploaded = n
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		n := t.runRetryable(ctx, opDeleteLocal, keysOfSet(plan.deleteLocal), deleteConcurrency, fail, func(_ context.Context, path string) error {
			return t.local.Delete(path)
		})
		mu.Lock()
		report.DeletedLocal = n
		mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		n := t.runRetryable(ctx, opDeleteRemote, keysOfSet(plan.deleteRemote), deleteConcurrency, fail, t.remote.DeleteFile)
		mu.Lock()
		report.DeletedRemote = n
		mu.Unlock()
	}()

	wg.Wait()
	return report
}

// runOnce fires every operation once, collecting failures as terminal.
func (t *transferrer) runOnce(ctx context.Context, kind opKind, paths []string, limit int, fail func(*TransferError), op func(context.Context, string) error) int {
	failed := t.runBatch(ctx, kind, paths, limit, op)
	for path, err := range failed {
		te := &TransferError{Path: path, Op: string(kind), Err: err}
		slog.Error("transfer failed", "op", kind, "path", path, "error", err)
		fail(te)
	}
	return len(paths) - len(failed)
}

// runRetryable fires every operation once, then retries the collected
// failures a single time after re-confirming remote reachability. A
// second failure is terminal for that file only.
func (t *transferrer) runRetryable(ctx context.Context, kind opKind, paths []string, limit int, fail func(*TransferError), op func(context.Context, string) error) int {
	failed := t.runBatch(ctx, kind, paths, limit, op)
	if len(failed) == 0 {
		return len(paths)
	}

	if err := t.remote.GetStatus(ctx); err != nil {
		slog.Warn("skipping retry round, remote unreachable", "op", kind, "pending", len(failed), "error", err)
		for path, opErr := range failed {
			fail(&TransferError{Path: path, Op: string(kind), Err: opErr})
		}
		return len(paths) - len(failed)
	}

	slog.Info("retrying failed transfers", "op", kind, "count", len(failed))
	retryPaths := make([]string, 0, len(failed))
	for path := range failed {
		retryPaths = append(retryPaths, path)
	}

	stillFailed := t.runBatch(ctx, kind, retryPaths, limit, op)
	for path, err := range stillFailed {
		te := &TransferError{Path: path, Op: string(kind), Err: err}
		slog.Error("transfer failed after retry", "op", kind, "path", path, "error", err)
		fail(te)
	}
	return len(paths) - len(stillFailed)
}

// runBatch executes op for every path with bounded concurrency and
// returns the failures. Partial failure never cancels siblings.
func (t *transferrer) runBatch(ctx context.Context, kind opKind, paths []string, limit int, op func(context.Context, string) error) map[string]error {
	if len(paths) == 0 {
		return nil
	}

	failed := make(map[string]error)
	var mu stdsync.Mutex

	var eg errgroup.Group
	eg.SetLimit(limit)

	for _, path := range paths {
		eg.Go(func() error {
			if err := op(ctx, path); err != nil {
				mu.Lock()
				failed[path] = err
				mu.Unlock()
			} else {
				slog.Debug("transfer done", "op", kind, "path", path)
			}
			return nil
		})
	}
	eg.Wait()

	return failed
}

// download fetches one file and writes it locally, verifying the content
// digest against the remote listing before the write lands.
func (t *transferrer) download(ctx context.Context, path string, expected Digest) error {
	body, err := t.remote.GetFile(ctx, path)
	if err != nil {
		return err
	}

	if expected != "" {
		if got := t.hasher(body); got != expected {
			return fmt.Errorf("integrity check failed: expected %q got %q", expected, got)
		}
	}

	if err := t.local.Write(path, body); err != nil {
		return err
	}

	slog.Info("downloaded", "path", path, "size", humanize.Bytes(uint64(len(body))))
	return nil
}

func (t *transferrer) upload(ctx context.Context, path string) error {
	body, err := t.local.Read(path)
	if err != nil {
		return err
	}

	if err := t.remote.PutFile(ctx, path, body); err != nil {
		return err
	}

	slog.Info("uploaded", "path", path, "size", humanize.Bytes(uint64(len(body))))
	return nil
}

func keysOf(m map[string]Digest) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysOfSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
