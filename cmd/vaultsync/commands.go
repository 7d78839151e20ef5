package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvault/vaultsync/internal/client"
	syncpkg "github.com/openvault/vaultsync/internal/client/sync"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// colorNotifier surfaces orchestrator notices on the terminal.
var colorNotifier = syncpkg.NotifierFunc(func(level syncpkg.NoticeLevel, msg string) {
	switch level {
	case syncpkg.NoticeError:
		fmt.Println(red("✗"), msg)
	case syncpkg.NoticeWarn:
		fmt.Println(yellow("!"), msg)
	default:
		fmt.Println(green("✓"), msg)
	}
})

// withClient builds a client from the loaded config, runs fn, and tears
// the client down.
func withClient(cmd *cobra.Command, fn func(*client.Client) error) error {
	cfg, err := configFromViper()
	if err != nil {
		return err
	}

	c, err := client.New(cfg, colorNotifier)
	if err != nil {
		return err
	}
	defer c.Close()

	cmd.SilenceUsage = true
	return fn(c)
}

func controllerFlagValue(cmd *cobra.Command) (syncpkg.Controller, error) {
	mode, _ := cmd.Flags().GetString("mode")
	ctrl, ok := syncpkg.ControllerForMode(mode)
	if !ok {
		return ctrl, fmt.Errorf("unknown mode %q (twoway, push, pull, mirror-up, mirror-down)", mode)
	}
	return ctrl, nil
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Probe remote store reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.Sync().Test(cmd.Context()); err != nil {
				return err
			}
			fmt.Println(green("✓"), "remote store is reachable")
			return nil
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify pending changes without transferring anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			res, err := c.Sync().Check(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(res)
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation pass and execute the transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controllerFlagValue(cmd)
		if err != nil {
			return err
		}
		return withClient(cmd, func(c *client.Client) error {
			report, err := c.Sync().Sync(cmd.Context(), ctrl)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		})
	},
}

var saveCmd = &cobra.Command{
	Use:   "save [unselected paths...]",
	Short: "Accept the current local state as the new baseline",
	Long: "Commits the current local file list as the new baseline without " +
		"transferring anything. Paths given as arguments are left unselected: " +
		"their pending changes stay visible to the next check.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			if err := c.Sync().SaveState(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Println(green("✓"), "baseline saved")
			return nil
		})
	},
}

var clearErrorCmd = &cobra.Command{
	Use:   "clear-error",
	Short: "Lift a persisted error flag so syncing may resume",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(c *client.Client) error {
			return c.Sync().ClearError()
		})
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync continuously: full passes on an interval, nudged by local writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := controllerFlagValue(cmd)
		if err != nil {
			return err
		}
		return withClient(cmd, func(c *client.Client) error {
			return c.Run(cmd.Context(), ctrl)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{syncCmd, daemonCmd} {
		cmd.Flags().StringP("mode", "m", "twoway", "sync mode: twoway, push, pull, mirror-up, mirror-down")
	}
}

func printSummary(res *syncpkg.ReconcileResult) {
	if !res.HasChanges() {
		fmt.Println(green("✓"), "replicas are in sync")
		return
	}

	printSide := func(name string, cs *syncpkg.ChangeSet) {
		if cs.Empty() {
			return
		}
		fmt.Println(cyan(name))
		printCategory("  added", green("+"), cs.Added)
		printCategory("  modified", yellow("~"), cs.Modified)
		printCategory("  deleted", red("-"), cs.Deleted)
		printCategory("  conflicted", red("!"), cs.Conflicted)
	}
	printSide("remote", res.RemoteFiles)
	printSide("local", res.LocalFiles)
}

func printCategory(label, marker string, files syncpkg.FileList) {
	if len(files) == 0 {
		return
	}
	fmt.Printf("%s (%d)\n", label, len(files))

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Printf("    %s %s\n", marker, path)
	}
}

func printReport(report *syncpkg.TransferReport) {
	fmt.Printf("%s downloaded %d, uploaded %d, deleted %d local / %d remote\n",
		green("✓"), report.Downloaded, report.Uploaded, report.DeletedLocal, report.DeletedRemote)
	for _, te := range report.Failed {
		fmt.Println(red("✗"), te.Error())
	}
}
