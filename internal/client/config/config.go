package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/openvault/vaultsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".vaultsync", "config.json")
	DefaultDataDir    = filepath.Join(home, ".vaultsync")

	// ProtectedPrefix covers the vault's own configuration directory. A
	// reconciliation pass that wants to delete many files under it is
	// treated as dangerous.
	DefaultProtectedPrefix = ".vault/"

	DefaultSyncInterval = 5 * time.Minute
)

type Config struct {
	// VaultDir is the root of the local replica.
	VaultDir string `json:"vault_dir"`
	// DataDir holds the snapshot, hash cache and lock file.
	DataDir string `json:"data_dir"`
	// ServerURL is the base URL of the remote content store.
	ServerURL string `json:"server_url"`
	// IgnoreNothing disables all exclusion rules when set.
	IgnoreNothing bool `json:"ignore_nothing"`
	// ProtectedPrefix is the path prefix guarded against mass deletion.
	ProtectedPrefix string `json:"protected_prefix"`
	// SyncInterval is the full-pass interval in daemon mode.
	SyncInterval time.Duration `json:"sync_interval"`

	Path string `json:"-"`
}

func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return errors.New("config: vault_dir is required")
	}
	resolved, err := utils.ResolvePath(c.VaultDir)
	if err != nil {
		return fmt.Errorf("config: vault_dir: %w", err)
	}
	c.VaultDir = resolved

	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	resolved, err = utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: data_dir: %w", err)
	}
	c.DataDir = resolved

	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: invalid server_url %q", c.ServerURL)
	}

	if c.ProtectedPrefix == "" {
		c.ProtectedPrefix = DefaultProtectedPrefix
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}
