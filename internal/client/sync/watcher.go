package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/openvault/vaultsync/internal/utils"
)

const (
	watchBufferSize = 64

	// inotify fires a burst of write events while a file lands; absorb
	// the burst before nudging the sync loop
	defaultDebounce = 50 * time.Millisecond
)

// Watcher observes write activity under the vault directory and emits
// one relative path per settled change. Excluded paths never surface.
type Watcher struct {
	vaultDir string
	ignore   *IgnoreList
	debounce time.Duration

	raw     chan notify.EventInfo
	changes chan string
	done    chan struct{}
	wg      stdsync.WaitGroup

	mu      stdsync.Mutex
	pending map[string]*time.Timer
}

func NewWatcher(vaultDir string, ignore *IgnoreList) *Watcher {
	return &Watcher{
		vaultDir: vaultDir,
		ignore:   ignore,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}
}

func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Changes delivers debounced relative paths. The channel closes when the
// watcher stops.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watcher start", "dir", w.vaultDir)

	w.raw = make(chan notify.EventInfo, watchBufferSize)
	w.changes = make(chan string, watchBufferSize)

	if err := notify.Watch(filepath.Join(w.vaultDir, "..."), w.raw, notify.Write); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	close(w.done)
	if w.raw != nil {
		notify.Stop(w.raw)
	}
	w.wg.Wait()
	slog.Info("watcher stopped")
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		for path, timer := range w.pending {
			timer.Stop()
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.wg.Done()
		close(w.changes)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.raw:
			if !ok {
				return
			}

			relPath, ok := w.relative(event.Path())
			if !ok {
				continue
			}
			if w.ignore != nil && w.ignore.Match(relPath, false) {
				continue
			}
			w.schedule(relPath)
		}
	}
}

// relative converts an absolute event path to the vault-relative form
// the rest of the engine speaks. Events outside the vault are dropped.
func (w *Watcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(w.vaultDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return utils.NormPath(rel), true
}

// schedule arms (or re-arms) the per-path debounce timer.
func (w *Watcher) schedule(relPath string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[relPath]; ok {
		timer.Stop()
	}
	w.pending[relPath] = time.AfterFunc(w.debounce, func() {
		w.flush(relPath)
	})
}

func (w *Watcher) flush(relPath string) {
	w.mu.Lock()
	delete(w.pending, relPath)
	w.mu.Unlock()

	select {
	case <-w.done:
	case w.changes <- relPath:
		slog.Debug("watcher change", "path", relPath)
	default:
		slog.Warn("watcher dropped change, channel full", "path", relPath)
	}
}
