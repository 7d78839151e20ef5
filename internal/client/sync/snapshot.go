package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/openvault/vaultsync/internal/utils"
)

// Snapshot is the last fully-reconciled baseline, persisted across
// sessions. Except carries conflicts that are still unresolved. ErrorFlag
// blocks new check/sync/save operations until explicitly cleared.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	ErrorFlag bool      `json:"errorFlag"`
	Files     FileList  `json:"files"`
	Except    FileList  `json:"except"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Timestamp: time.Now().UTC(),
		Files:     make(FileList),
		Except:    make(FileList),
	}
}

// Empty reports whether the snapshot carries no baseline at all, which
// is treated the same as having no snapshot.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Files) == 0 && len(s.Except) == 0)
}

// SnapshotStore persists the snapshot as one whole structured record at
// a fixed path. Saves are atomic and replace the record wholesale.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Load reads the persisted snapshot. A missing file means no snapshot
// yet and returns (nil, nil).
func (st *SnapshotStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Files == nil {
		snap.Files = make(FileList)
	}
	if snap.Except == nil {
		snap.Except = make(FileList)
	}
	return &snap, nil
}

// Save writes the snapshot atomically: temp file in the same directory,
// then rename.
func (st *SnapshotStore) Save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("save snapshot: nil snapshot")
	}

	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := utils.EnsureParent(st.path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), filepath.Base(st.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, st.path); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	success = true
	return nil
}

// BuildSnapshot derives the next baseline after a pass. Paths where both
// sides now hold the same digest enter the baseline with that digest;
// paths still present somewhere but not in agreement keep their previous
// baseline entry so classification stays stable across passes. Conflicts
// still open in res are carried in Except.
func BuildSnapshot(prev *Snapshot, local, remote FileList, res *ReconcileResult) *Snapshot {
	snap := NewSnapshot()
	if prev != nil {
		snap.ErrorFlag = prev.ErrorFlag
	}

	for path, digest := range local {
		if remote[path] == digest {
			snap.Files[path] = digest
		}
	}

	if prev != nil {
		for path, digest := range prev.Files {
			if _, ok := snap.Files[path]; ok {
				continue
			}
			_, onLocal := local[path]
			_, onRemote := remote[path]
			if onLocal || onRemote {
				snap.Files[path] = digest
			}
		}
	}

	if res != nil {
		for path := range res.LocalFiles.Conflicted {
			if digest, ok := local[path]; ok {
				snap.Except[path] = digest
			} else if digest, ok := remote[path]; ok {
				snap.Except[path] = digest
			}
		}
	}

	return snap
}
