package sync

// Status is the pure logical session state. It drives locking and
// transitions only; presentation lives in StatusInfo.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusTesting  Status = "testing"
	StatusChecking Status = "checking"
	StatusSyncing  Status = "syncing"
	StatusSaving   Status = "saving"
	StatusOffline  Status = "offline"
	StatusError    Status = "error"
	StatusPaused   Status = "paused"
)

func (s Status) String() string {
	return string(s)
}

// StatusInfo is the presentation lookup for a Status: what to show, not
// what to lock.
type StatusInfo struct {
	Label string
	Icon  string
	Color string
}

var statusInfos = map[Status]StatusInfo{
	StatusIdle:     {Label: "Idle", Icon: "✓", Color: "green"},
	StatusTesting:  {Label: "Testing connection", Icon: "…", Color: "cyan"},
	StatusChecking: {Label: "Checking", Icon: "…", Color: "cyan"},
	StatusSyncing:  {Label: "Syncing", Icon: "⇅", Color: "cyan"},
	StatusSaving:   {Label: "Saving", Icon: "…", Color: "cyan"},
	StatusOffline:  {Label: "Offline", Icon: "○", Color: "yellow"},
	StatusError:    {Label: "Error", Icon: "✗", Color: "red"},
	StatusPaused:   {Label: "Paused", Icon: "‖", Color: "yellow"},
}

// Info returns the presentation entry for s.
func (s Status) Info() StatusInfo {
	if info, ok := statusInfos[s]; ok {
		return info
	}
	return StatusInfo{Label: string(s)}
}
