package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"time"

	"github.com/openvault/vaultsync/internal/client/store"
	"github.com/openvault/vaultsync/internal/vaultsdk"
)

// fakeLocal is an in-memory LocalStore.
type fakeLocal struct {
	mu    stdsync.Mutex
	files map[string][]byte
}

func newFakeLocal(files map[string]string) *fakeLocal {
	f := &fakeLocal{files: make(map[string][]byte)}
	for path, body := range files {
		f.files[path] = []byte(body)
	}
	return f
}

func (f *fakeLocal) List() ([]store.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := make([]store.Entry, 0, len(f.files))
	for path, body := range f.files {
		entries = append(entries, store.Entry{
			RelPath: path,
			Size:    int64(len(body)),
			ModTime: time.Unix(1700000000, 0),
		})
	}
	return entries, nil
}

func (f *fakeLocal) Read(relPath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, ok := f.files[relPath]
	if !ok {
		return nil, errors.New("not found: " + relPath)
	}
	return body, nil
}

func (f *fakeLocal) Write(relPath string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[relPath] = body
	return nil
}

func (f *fakeLocal) Delete(relPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, relPath)
	return nil
}

func (f *fakeLocal) Exists(relPath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[relPath]
	return ok
}

// fakeRemote is an in-memory RemoteStore. Checksums derive from the
// stored bodies unless an override digest is set, and per-path failure
// counters let tests exercise the retry rounds.
type fakeRemote struct {
	mu     stdsync.Mutex
	files  map[string][]byte
	online bool

	digests  map[string]Digest // overrides for integrity tests
	failGets map[string]int    // remaining failures per path
	failPuts map[string]int
	failDels map[string]int

	getCalls int
	putCalls int
}

func newFakeRemote(files map[string]string) *fakeRemote {
	f := &fakeRemote{
		files:    make(map[string][]byte),
		online:   true,
		digests:  make(map[string]Digest),
		failGets: make(map[string]int),
		failPuts: make(map[string]int),
		failDels: make(map[string]int),
	}
	for path, body := range files {
		f.files[path] = []byte(body)
	}
	return f
}

func (f *fakeRemote) GetChecksums(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.online {
		return nil, vaultsdk.ErrRemoteOffline
	}
	out := make(map[string]string, len(f.files))
	for path, body := range f.files {
		if d, ok := f.digests[path]; ok {
			out[path] = d
			continue
		}
		out[path] = MD5Hasher(body)
	}
	return out, nil
}

func (f *fakeRemote) GetFile(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++
	if !f.online {
		return nil, vaultsdk.ErrRemoteOffline
	}
	if n := f.failGets[path]; n > 0 {
		f.failGets[path] = n - 1
		return nil, errors.New("transient get failure")
	}
	body, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found: " + path)
	}
	return body, nil
}

func (f *fakeRemote) PutFile(ctx context.Context, path string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.putCalls++
	if !f.online {
		return vaultsdk.ErrRemoteOffline
	}
	if n := f.failPuts[path]; n > 0 {
		f.failPuts[path] = n - 1
		return errors.New("transient put failure")
	}
	f.files[path] = body
	return nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.online {
		return vaultsdk.ErrRemoteOffline
	}
	if n := f.failDels[path]; n > 0 {
		f.failDels[path] = n - 1
		return errors.New("transient delete failure")
	}
	delete(f.files, path)
	return nil
}

func (f *fakeRemote) GetStatus(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.online {
		return vaultsdk.ErrRemoteOffline
	}
	return nil
}

// digestOf is a test shorthand.
func digestOf(body string) Digest {
	return MD5Hasher([]byte(body))
}
