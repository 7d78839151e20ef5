package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openvault/vaultsync/internal/client/config"
	"github.com/openvault/vaultsync/internal/client/store"
	"github.com/openvault/vaultsync/internal/client/sync"
	"github.com/openvault/vaultsync/internal/vaultsdk"
)

const (
	snapshotFile  = "snapshot.json"
	hashCacheFile = "hashes.db"
	lockFile      = "vaultsync.lock"

	// a watcher nudge waits this long for more changes before it
	// triggers a pass, so one bulk edit becomes one sync
	nudgeDelay = 2 * time.Second
)

// Client wires the vault directory, the remote store SDK and the sync
// engine into one session.
type Client struct {
	config  *config.Config
	sdk     *vaultsdk.VaultSDK
	store   *store.LocalStore
	ignore  *sync.IgnoreList
	cache   *sync.HashCache
	orch    *sync.Orchestrator
	watcher *sync.Watcher
}

func New(cfg *config.Config, notifier sync.Notifier) (*Client, error) {
	sdk, err := vaultsdk.New(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("create sdk: %w", err)
	}

	local := store.NewLocalStore(cfg.VaultDir)
	ignore := sync.NewIgnoreList(cfg.VaultDir, cfg.IgnoreNothing)

	cache := sync.NewHashCache(filepath.Join(cfg.DataDir, hashCacheFile))
	if err := cache.Open(); err != nil {
		sdk.Close()
		return nil, fmt.Errorf("open hash cache: %w", err)
	}

	trees := sync.NewTreeBuilder(local, sdk, ignore, cache)

	orch, err := sync.NewOrchestrator(sync.Options{
		Local:           local,
		Remote:          sdk,
		Trees:           trees,
		Snapshots:       sync.NewSnapshotStore(filepath.Join(cfg.DataDir, snapshotFile)),
		Notifier:        notifier,
		ProtectedPrefix: cfg.ProtectedPrefix,
		LockPath:        filepath.Join(cfg.DataDir, lockFile),
	})
	if err != nil {
		cache.Close()
		sdk.Close()
		return nil, err
	}

	return &Client{
		config:  cfg,
		sdk:     sdk,
		store:   local,
		ignore:  ignore,
		cache:   cache,
		orch:    orch,
		watcher: sync.NewWatcher(cfg.VaultDir, ignore),
	}, nil
}

// Sync exposes the orchestrator for one-shot commands.
func (c *Client) Sync() *sync.Orchestrator {
	return c.orch
}

func (c *Client) Close() error {
	var errs []error
	if err := c.cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.orch.Close(); err != nil {
		errs = append(errs, err)
	}
	c.sdk.Close()
	return errors.Join(errs...)
}

// Run drives the daemon loop: a full pass at every interval, plus
// nudged passes shortly after local write activity settles. It returns
// when ctx is cancelled.
func (c *Client) Run(ctx context.Context, ctrl sync.Controller) error {
	slog.Info("client start",
		"vault", c.config.VaultDir,
		"server", c.sdk.BaseURL(),
		"interval", c.config.SyncInterval)

	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer c.watcher.Stop()

	c.cycle(ctx, ctrl)

	// a timer, not a ticker, so a slow pass never queues a stale tick
	timer := time.NewTimer(c.config.SyncInterval)
	defer timer.Stop()

	var nudge *time.Timer
	var nudged <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			slog.Info("client stop")
			return nil

		case <-timer.C:
			c.cycle(ctx, ctrl)
			timer.Reset(c.config.SyncInterval)

		case path, ok := <-c.watcher.Changes():
			if !ok {
				return nil
			}
			slog.Debug("local change", "path", path)
			if nudge == nil {
				nudge = time.NewTimer(nudgeDelay)
			} else {
				nudge.Reset(nudgeDelay)
			}
			nudged = nudge.C

		case <-nudged:
			nudged = nil
			c.cycle(ctx, ctrl)
			timer.Reset(c.config.SyncInterval)
		}
	}
}

// cycle runs one test-if-offline, check, sync pass. Failures are logged
// and left for the next cycle; a persisted error stops nothing here but
// keeps every pass rejected until cleared.
func (c *Client) cycle(ctx context.Context, ctrl sync.Controller) {
	if c.orch.Status() == sync.StatusOffline {
		if err := c.orch.Test(ctx); err != nil {
			slog.Warn("still offline", "error", err)
			return
		}
	}

	if _, err := c.orch.Check(ctx); err != nil {
		if errors.Is(err, sync.ErrPersistedError) {
			slog.Warn("pass blocked by persisted error, run clear-error to resume")
		} else {
			slog.Warn("check failed", "error", err)
		}
		return
	}

	res := c.orch.Result()
	if res == nil || !res.HasChanges() {
		return
	}

	if _, err := c.orch.Sync(ctx, ctrl); err != nil {
		slog.Warn("sync failed", "error", err)
	}
}
