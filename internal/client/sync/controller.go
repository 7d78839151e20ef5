package sync

// Directive selects whether and how a classified category executes.
// For side X, Apply copies X's content onto the counterpart and Revert
// pushes the counterpart's view back onto X:
//
//	added      Apply: copy to counterpart       Revert: delete from X
//	modified   Apply: copy to counterpart       Revert: overwrite X with counterpart's copy
//	deleted    Apply: delete X's surviving copy Revert: copy it back to the counterpart
//	conflicted Apply: X's version wins          Revert: counterpart's version wins
//
// Skip leaves the category untouched; conflicts left at Skip are only
// surfaced, never executed.
type Directive int8

const (
	Skip   Directive = 0
	Apply  Directive = +1
	Revert Directive = -1
)

// SideControl holds one directive per change category.
type SideControl struct {
	Added      Directive
	Deleted    Directive
	Modified   Directive
	Conflicted Directive
}

// Controller is the full directive matrix. Every sync mode (push-only,
// pull-only, bidirectional, full replication either way) is a different
// matrix over the same execution path.
type Controller struct {
	Remote SideControl
	Local  SideControl
}

// TwoWaySync exchanges changes in both directions and propagates
// deletions. Conflicts are surfaced untouched.
func TwoWaySync() Controller {
	return Controller{
		Remote: SideControl{Added: Apply, Deleted: Apply, Modified: Apply},
		Local:  SideControl{Added: Apply, Deleted: Apply, Modified: Apply},
	}
}

// PushOnly executes local-originated changes against the remote and
// nothing else.
func PushOnly() Controller {
	return Controller{
		Local: SideControl{Added: Apply, Modified: Apply},
		// locally deleted files still held by the remote
		Remote: SideControl{Deleted: Apply},
	}
}

// PullOnly executes remote-originated changes against the local replica.
func PullOnly() Controller {
	return Controller{
		Remote: SideControl{Added: Apply, Modified: Apply},
		Local:  SideControl{Deleted: Apply},
	}
}

// MirrorToRemote makes the remote identical to the local replica,
// discarding remote-only state and resolving conflicts in local's favor.
func MirrorToRemote() Controller {
	return Controller{
		Local:  SideControl{Added: Apply, Modified: Apply, Deleted: Revert, Conflicted: Apply},
		Remote: SideControl{Added: Revert, Modified: Revert, Deleted: Apply},
	}
}

// MirrorToLocal makes the local replica identical to the remote.
func MirrorToLocal() Controller {
	return Controller{
		Remote: SideControl{Added: Apply, Modified: Apply, Deleted: Revert, Conflicted: Apply},
		Local:  SideControl{Added: Revert, Modified: Revert, Deleted: Apply},
	}
}

// ControllerForMode maps a CLI mode name onto its directive matrix.
func ControllerForMode(mode string) (Controller, bool) {
	switch mode {
	case "twoway", "":
		return TwoWaySync(), true
	case "push":
		return PushOnly(), true
	case "pull":
		return PullOnly(), true
	case "mirror-up":
		return MirrorToRemote(), true
	case "mirror-down":
		return MirrorToLocal(), true
	}
	return Controller{}, false
}
