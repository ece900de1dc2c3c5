// Package main provides the csm CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "csm",
		Short: "Claude session manager - track and stream coding sessions",
		Long: `csm tracks Claude Code sessions: lifecycle status, token usage,
cost, and activity, aggregated from the on-disk transcripts and served
over an HTTP API with a live event stream.

Use 'csm serve' to start the daemon.
Use 'csm help' for the full command list.`,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
		&cobra.Group{ID: "query", Title: "Query:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
	)

	serve := serveCmd()
	serve.GroupID = "daemon"
	rootCmd.AddCommand(serve)

	sessions := sessionsCmd()
	sessions.GroupID = "query"
	rootCmd.AddCommand(sessions)

	activity := activityCmd()
	activity.GroupID = "query"
	rootCmd.AddCommand(activity)

	summary := summaryCmd()
	summary.GroupID = "query"
	rootCmd.AddCommand(summary)

	migrate := migrateCmd()
	migrate.GroupID = "maintenance"
	rootCmd.AddCommand(migrate)

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show csm version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("csm version %s\n", version)
		},
	}
}
