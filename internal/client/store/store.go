// Package store implements the local side of the sync pair: a plain
// directory tree addressed by normalized relative paths.
package store

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openvault/vaultsync/internal/utils"
)

// Entry is one item of a store listing.
type Entry struct {
	RelPath string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// LocalStore exposes a directory as list/read/write/delete operations.
// Writes are atomic; parent directories come into existence as a side
// effect of writing the first file beneath them.
type LocalStore struct {
	rootDir string
}

func NewLocalStore(rootDir string) *LocalStore {
	return &LocalStore{rootDir: rootDir}
}

func (s *LocalStore) Root() string {
	return s.rootDir
}

func (s *LocalStore) abs(relPath string) string {
	return filepath.Join(s.rootDir, filepath.FromSlash(relPath))
}

// List walks the store recursively and returns every entry, directories
// included. An entry whose info cannot be read is logged and skipped;
// it never aborts the walk.
func (s *LocalStore) List() ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == s.rootDir {
				return fmt.Errorf("walk root: %w", walkErr)
			}
			slog.Warn("local list: skipping entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if path == s.rootDir {
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = utils.NormPath(relPath)

		if d.IsDir() {
			entries = append(entries, Entry{RelPath: relPath, IsDir: true})
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("local list: skipping file", "path", path, "error", err)
			return nil
		}

		entries = append(entries, Entry{
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local list: %w", err)
	}

	return entries, nil
}

func (s *LocalStore) Read(relPath string) ([]byte, error) {
	return os.ReadFile(s.abs(relPath))
}

// Write stores body at relPath atomically: the content lands in a temp
// file first and is renamed into place only once fully written.
func (s *LocalStore) Write(relPath string, body []byte) error {
	target := s.abs(relPath)
	if err := utils.EnsureParent(target); err != nil {
		return fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".vtmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", relPath, err)
	}

	success = true
	return nil
}

// Delete removes a file. Deleting a missing file is not an error.
func (s *LocalStore) Delete(relPath string) error {
	err := os.Remove(s.abs(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", relPath, err)
	}
	return nil
}

func (s *LocalStore) Exists(relPath string) bool {
	return utils.FileExists(s.abs(relPath))
}
