package sync

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// Reconcile computes, from the baseline snapshot and both current
// listings, a change classification per side.
//
// Without a usable baseline the two listings are compared directly:
// side-only files are that side's additions, matching files need no
// transfer, and divergent files go straight to conflicted since there is
// nothing to tell whose edit is newer. With a baseline each side is
// classified independently against it, then reconciled across sides.
// Whenever both sides changed the same path incompatibly the result is
// always conflicted; content is never merged.
//
// A failure while building the maps aborts the pass with no partial
// result.
func Reconcile(snap *Snapshot, local, remote FileList) (res *ReconcileResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("reconcile aborted: %v", r)
		}
	}()

	res = NewReconcileResult()

	universe := mapset.NewThreadUnsafeSet[string]()
	for path := range local {
		universe.Add(path)
	}
	for path := range remote {
		universe.Add(path)
	}
	if snap != nil {
		for path := range snap.Files {
			universe.Add(path)
		}
		for path := range snap.Except {
			universe.Add(path)
		}
	}

	noBaseline := snap.Empty()

	for path := range universe.Iter() {
		ld, lok := local[path]
		rd, rok := remote[path]

		if noBaseline {
			switch {
			case lok && rok && ld == rd:
				// already in agreement, no transfer
			case lok && rok:
				res.LocalFiles.Conflicted[path] = ld
				res.RemoteFiles.Conflicted[path] = rd
			case lok:
				res.LocalFiles.Added[path] = ld
			case rok:
				res.RemoteFiles.Added[path] = rd
			}
			continue
		}

		sd, sok := snap.Files[path]

		if _, isCarried := snap.Except[path]; isCarried {
			reconcileCarried(res, path, ld, lok, rd, rok, sd, sok)
			continue
		}

		if !sok {
			// new relative to the baseline
			switch {
			case lok && rok && ld == rd:
				// both sides added identical content, nothing to do
			case lok && rok:
				res.LocalFiles.Conflicted[path] = ld
				res.RemoteFiles.Conflicted[path] = rd
			case lok:
				res.LocalFiles.Added[path] = ld
			case rok:
				res.RemoteFiles.Added[path] = rd
			}
			continue
		}

		switch {
		case lok && rok:
			lmod := ld != sd
			rmod := rd != sd
			switch {
			case lmod && rmod && ld == rd:
				// both sides converged on the same content
			case lmod && rmod:
				res.LocalFiles.Conflicted[path] = ld
				res.RemoteFiles.Conflicted[path] = rd
			case lmod:
				res.LocalFiles.Modified[path] = ld
			case rmod:
				res.RemoteFiles.Modified[path] = rd
			}

		case lok && !rok:
			// gone from remote; local still holds a copy. The deletion
			// propagates only if that copy still matches the baseline;
			// a local edit outranks the remote deletion.
			if ld == sd {
				res.LocalFiles.Deleted[path] = ld
			} else {
				res.LocalFiles.Modified[path] = ld
			}

		case !lok && rok:
			if rd == sd {
				res.RemoteFiles.Deleted[path] = rd
			} else {
				// the remote recreated or edited the file after the local
				// deletion; its content wins over the deletion
				res.RemoteFiles.Modified[path] = rd
			}

		default:
			// deleted on both sides, baseline entry simply retires
		}
	}

	return res, nil
}

// reconcileCarried handles a path with a conflict carried over from the
// previous pass. A carried conflict survives while the path stays
// divergent; it resolves by the sides matching each other, by one side
// returning to the baseline, or by disappearance. When only one side
// resolves, the other side's still-divergent edit resurfaces as a fresh
// change rather than being dropped silently.
func reconcileCarried(res *ReconcileResult, path string, ld Digest, lok bool, rd Digest, rok bool, sd Digest, sok bool) {
	switch {
	case lok && rok && ld == rd:
		// both sides now agree; conflict resolved

	case lok && rok && sok && ld == sd:
		// local went back to the baseline; remote's edit stands alone
		res.RemoteFiles.Modified[path] = rd

	case lok && rok && sok && rd == sd:
		res.LocalFiles.Modified[path] = ld

	case lok && rok:
		// still divergent on both sides, re-raise
		res.LocalFiles.Conflicted[path] = ld
		res.RemoteFiles.Conflicted[path] = rd

	case lok && !rok:
		// conflict resolved by remote disappearance
		switch {
		case sok && ld == sd:
			res.LocalFiles.Deleted[path] = ld
		case sok:
			res.LocalFiles.Modified[path] = ld
		default:
			res.LocalFiles.Added[path] = ld
		}

	case !lok && rok:
		switch {
		case sok && rd == sd:
			res.RemoteFiles.Deleted[path] = rd
		case sok:
			res.RemoteFiles.Modified[path] = rd
		default:
			res.RemoteFiles.Added[path] = rd
		}

	default:
		// gone from both sides, conflict resolved by disappearance
	}
}
