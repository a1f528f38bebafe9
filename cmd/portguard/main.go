// Command portguard is a small CLI demonstrating the reservation engine:
// reserve one or more ports, hold them open for a caller-chosen duration,
// and release them when the command exits.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/devtoolkit/portguard"
	"github.com/devtoolkit/portguard/internal/lockfile"
)

var (
	debugMode bool
	engine    *portguard.Engine
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portguard",
		Short: "Reserve and inspect TCP ports",
		Long:  "portguard coordinates TCP port reservations across cooperating processes on one host.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debugMode {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			path, err := lockfile.Bootstrap(filepath.Join("portguard", "portLockFile"))
			if err != nil {
				return fmt.Errorf("bootstrap lock file: %w", err)
			}
			engine = portguard.New(path)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newReserveCommand(), newReserveAnyCommand(), newListCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newReserveCommand() *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "reserve <port>",
		Short: "Reserve a specific port and hold it for a duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var port int
			if _, err := fmt.Sscanf(args[0], "%d", &port); err != nil {
				return fmt.Errorf("invalid port %q: %w", args[0], err)
			}

			h, err := engine.Reserve(port)
			if err != nil {
				return err
			}
			if h == nil {
				return fmt.Errorf("port %d is already reserved", port)
			}
			defer h.Close(portguard.CloseOptions{})

			fmt.Fprintf(cmd.OutOrStdout(), "reserved port %d\n", h.Port())
			time.Sleep(hold)
			return nil
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the reservation before releasing it")
	return cmd
}

func newReserveAnyCommand() *cobra.Command {
	var count int
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "reserve-any",
		Short: "Reserve one or more arbitrary free ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := engine.ReserveMany(count)
			if err != nil {
				return err
			}
			defer func() {
				for _, h := range refs {
					h.Close(portguard.CloseOptions{})
				}
			}()

			for _, h := range refs {
				fmt.Fprintf(cmd.OutOrStdout(), "reserved port %d\n", h.Port())
			}
			time.Sleep(hold)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of ports to reserve")
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to hold the reservations before releasing them")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ports reserved by this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, port := range engine.List() {
				fmt.Fprintln(cmd.OutOrStdout(), port)
			}
			return nil
		},
	}
}
