package sync

// Digest is an opaque content fingerprint. It is never produced for
// content that does not exist.
type Digest = string

// FileList maps a normalized relative path to the digest of its content.
// It contains only real files; directories are never listed.
type FileList map[string]Digest

// Clone returns a shallow copy of the list.
func (f FileList) Clone() FileList {
	out := make(FileList, len(f))
	for path, digest := range f {
		out[path] = digest
	}
	return out
}

// ChangeSet classifies one side's divergence from the baseline. A path
// occurs in at most one of the four categories.
//
// Categories are side-relative: Added and Modified carry this side's own
// new content. Deleted carries paths the counterpart removed while this
// side still holds a copy (the digest is the surviving copy's). Conflicted
// entries appear on both sides, each with its own digest.
type ChangeSet struct {
	Added      FileList `json:"added"`
	Deleted    FileList `json:"deleted"`
	Modified   FileList `json:"modified"`
	Conflicted FileList `json:"conflicted"`
}

func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		Added:      make(FileList),
		Deleted:    make(FileList),
		Modified:   make(FileList),
		Conflicted: make(FileList),
	}
}

// Empty reports whether no change was classified.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Deleted) == 0 && len(c.Modified) == 0 && len(c.Conflicted) == 0
}

// Total is the number of classified paths.
func (c *ChangeSet) Total() int {
	return len(c.Added) + len(c.Deleted) + len(c.Modified) + len(c.Conflicted)
}

// Has reports whether path occurs in any category.
func (c *ChangeSet) Has(path string) bool {
	if _, ok := c.Added[path]; ok {
		return true
	}
	if _, ok := c.Deleted[path]; ok {
		return true
	}
	if _, ok := c.Modified[path]; ok {
		return true
	}
	_, ok := c.Conflicted[path]
	return ok
}

// ReconcileResult pairs the two per-side classifications over the same
// path universe.
type ReconcileResult struct {
	RemoteFiles *ChangeSet `json:"remoteFiles"`
	LocalFiles  *ChangeSet `json:"localFiles"`
}

func NewReconcileResult() *ReconcileResult {
	return &ReconcileResult{
		RemoteFiles: NewChangeSet(),
		LocalFiles:  NewChangeSet(),
	}
}

// HasChanges reports whether any transfer or conflict is pending.
func (r *ReconcileResult) HasChanges() bool {
	return !r.RemoteFiles.Empty() || !r.LocalFiles.Empty()
}
