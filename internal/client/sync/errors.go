package sync

import (
	"errors"
	"fmt"

	"github.com/openvault/vaultsync/internal/vaultsdk"
)

var (
	// ErrPersistedError blocks check/sync/save while the snapshot carries
	// an error flag from an earlier pass.
	ErrPersistedError = errors.New("sync: a previous pass failed; clear the error before syncing")

	// ErrPaused blocks all operations while manually paused.
	ErrPaused = errors.New("sync: paused")
)

// BusyError rejects an operation because another one holds the status
// machine.
type BusyError struct {
	Current Status
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("sync: operation rejected, status is %s", e.Current)
}

// ConnectivityError marks the remote store as unreachable; the session
// recovers by going Offline rather than Error.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("sync: remote unreachable: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// isConnectivityFailure reports whether a pass failed because the remote
// store is unreachable, as opposed to failing on its own terms.
func isConnectivityFailure(err error) bool {
	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}
	return vaultsdk.IsConnectivityErr(err)
}

// DangerGuardError aborts a pass whose reconciliation wants to delete an
// implausible number of protected configuration files.
type DangerGuardError struct {
	Prefix    string
	Deleted   int
	Threshold int
}

func (e *DangerGuardError) Error() string {
	return fmt.Sprintf("sync: refusing to delete %d files under %q (threshold %d); check exclusion rules and remote listing", e.Deleted, e.Prefix, e.Threshold)
}

// TransferError is a single file's terminal failure. It never aborts the
// batch it belongs to.
type TransferError struct {
	Path string
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("sync: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
