package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openvault/vaultsync/internal/client/config"
	"github.com/openvault/vaultsync/internal/utils"
	"github.com/openvault/vaultsync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:           "vaultsync",
	Short:         "Keep a local vault and a remote content store reconciled",
	Version:       version.Detailed(),
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		utils.SetupLogging(debug)
		return loadConfig(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.SortFlags = false
	pf.StringP("config", "c", config.DefaultConfigPath, "config file")
	pf.StringP("vault", "v", "", "vault directory (the local replica root)")
	pf.StringP("server", "s", "", "remote store base URL")
	pf.StringP("datadir", "d", config.DefaultDataDir, "directory for snapshot, hash cache and lock")
	pf.Bool("ignore-nothing", false, "disable all exclusion rules")
	pf.Duration("interval", config.DefaultSyncInterval, "full-pass interval in daemon mode")
	pf.Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(testCmd, checkCmd, syncCmd, saveCmd, clearErrorCmd, daemonCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		path, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigFile(config.DefaultConfigPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read %q: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("vault_dir", cmd.Flags().Lookup("vault"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("ignore_nothing", cmd.Flags().Lookup("ignore-nothing"))
	viper.BindPFlag("sync_interval", cmd.Flags().Lookup("interval"))

	viper.SetEnvPrefix("VAULTSYNC")
	viper.AutomaticEnv()
	return nil
}

func configFromViper() (*config.Config, error) {
	cfg := &config.Config{
		Path:            viper.ConfigFileUsed(),
		VaultDir:        viper.GetString("vault_dir"),
		DataDir:         viper.GetString("data_dir"),
		ServerURL:       viper.GetString("server_url"),
		IgnoreNothing:   viper.GetBool("ignore_nothing"),
		ProtectedPrefix: viper.GetString("protected_prefix"),
		SyncInterval:    viper.GetDuration("sync_interval"),
	}
	if cfg.SyncInterval == 0 {
		if d, err := time.ParseDuration(viper.GetString("sync_interval")); err == nil {
			cfg.SyncInterval = d
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
