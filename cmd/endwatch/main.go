package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "endwatch",
		Short: "Daily Endfield attendance check-in and redeem code watcher",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(attendCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(codesCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(serveCmd())

	return root
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func attendCmd() *cobra.Command {
	var profileID string

	cmd := &cobra.Command{
		Use:   "attend",
		Short: "Run attendance check-in now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAttend(profileID)
		},
	}

	cmd.Flags().StringVar(&profileID, "profile", "", "check in a single profile by id")
	return cmd
}

func statusCmd() *cobra.Command {
	var (
		profileID  string
		sendNotify bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show attendance calendar status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(profileID, sendNotify)
		},
	}

	cmd.Flags().StringVar(&profileID, "profile", "", "show a single profile by id")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "also send the status through the configured notifiers")
	return cmd
}

func watchCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a code watch cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func codesCmd() *cobra.Command {
	var (
		jsonOutput   bool
		limit        int
		notifiedOnly bool
		sourceID     string
		sendNotify   bool
	)

	cmd := &cobra.Command{
		Use:   "codes",
		Short: "List tracked redeem codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodes(jsonOutput, limit, notifiedOnly, sourceID, sendNotify)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max codes to show")
	cmd.Flags().BoolVar(&notifiedOnly, "notified", false, "only codes that were notified")
	cmd.Flags().StringVar(&sourceID, "source", "", "only codes seen by this source")
	cmd.Flags().BoolVar(&sendNotify, "notify", false, "also send the listing through the configured notifiers")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [attendance|watch]",
		Short: "Show the run history log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "attendance"
			if len(args) > 0 {
				kind = args[0]
			}
			return runHistory(kind, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max entries to show")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
