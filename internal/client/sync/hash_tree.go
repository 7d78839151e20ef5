package sync

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	stdsync "sync"

	"github.com/openvault/vaultsync/internal/client/store"
	"github.com/openvault/vaultsync/internal/utils"
	"golang.org/x/sync/errgroup"
)

// hashParallelism bounds the digest fan-out; the work is I/O bound.
const hashParallelism = 16

// LocalStore is the local replica as seen by the sync core.
type LocalStore interface {
	List() ([]store.Entry, error)
	Read(relPath string) ([]byte, error)
	Write(relPath string, body []byte) error
	Delete(relPath string) error
	Exists(relPath string) bool
}

// RemoteStore is the remote replica as seen by the sync core. Transport,
// auth and wire format live behind it.
type RemoteStore interface {
	GetChecksums(ctx context.Context) (map[string]string, error)
	GetFile(ctx context.Context, path string) ([]byte, error)
	PutFile(ctx context.Context, path string, body []byte) error
	DeleteFile(ctx context.Context, path string) error
	GetStatus(ctx context.Context) error
}

// Hasher produces a content digest.
type Hasher func(body []byte) Digest

// MD5Hasher is the default content hasher.
func MD5Hasher(body []byte) Digest {
	return fmt.Sprintf("%x", md5.Sum(body))
}

// TreeBuilder turns a store plus exclusion rules into a current
// path -> digest map.
type TreeBuilder struct {
	local  LocalStore
	remote RemoteStore
	ignore *IgnoreList
	cache  *HashCache // optional
	hasher Hasher
}

func NewTreeBuilder(local LocalStore, remote RemoteStore, ignore *IgnoreList, cache *HashCache) *TreeBuilder {
	return &TreeBuilder{
		local:  local,
		remote: remote,
		ignore: ignore,
		cache:  cache,
		hasher: MD5Hasher,
	}
}

// BuildLocal lists the local store and digests every included file with
// bounded parallelism. Excluded entries are omitted entirely. A single
// file's failure drops that file and never aborts the walk.
func (b *TreeBuilder) BuildLocal(ctx context.Context) (FileList, error) {
	entries, err := b.local.List()
	if err != nil {
		return nil, fmt.Errorf("build local tree: %w", err)
	}

	tree := make(FileList)
	var mu stdsync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(hashParallelism)

	for _, entry := range entries {
		if b.ignore.Match(entry.RelPath, entry.IsDir) {
			continue
		}
		if entry.IsDir {
			// directories are never tracked
			continue
		}

		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			digest, err := b.digest(entry)
			if err != nil {
				slog.Warn("hash tree: dropping entry", "path", entry.RelPath, "error", err)
				return nil
			}

			mu.Lock()
			tree[entry.RelPath] = digest
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("build local tree: %w", err)
	}

	if b.cache != nil {
		hits, misses := b.cache.Stats()
		slog.Debug("local tree built", "files", len(tree), "cacheHits", hits, "cacheMisses", misses)
	}
	return tree, nil
}

func (b *TreeBuilder) digest(entry store.Entry) (Digest, error) {
	mtime := entry.ModTime.UnixNano()

	if b.cache != nil {
		if digest, ok := b.cache.Lookup(entry.RelPath, entry.Size, mtime); ok {
			return digest, nil
		}
	}

	body, err := b.local.Read(entry.RelPath)
	if err != nil {
		return "", err
	}
	digest := b.hasher(body)

	if b.cache != nil {
		if err := b.cache.Store(entry.RelPath, entry.Size, mtime, digest); err != nil {
			slog.Warn("hash cache store failed", "path", entry.RelPath, "error", err)
		}
	}
	return digest, nil
}

// BuildRemote fetches the remote checksum listing and applies the same
// exclusion rules. The remote lists only real files.
func (b *TreeBuilder) BuildRemote(ctx context.Context) (FileList, error) {
	checksums, err := b.remote.GetChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("build remote tree: %w", err)
	}

	tree := make(FileList, len(checksums))
	for path, digest := range checksums {
		path = utils.NormPath(path)
		if b.ignore.Match(path, false) {
			continue
		}
		tree[path] = digest
	}
	return tree, nil
}
