package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksred/claude-session-manager/internal/render"
	"github.com/ksred/claude-session-manager/internal/session"
)

func sessionsCmd() *cobra.Command {
	var status, project, dbPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List tracked sessions",
		Long: `List sessions from the local store, newest first.

Examples:
  csm sessions                      # All sessions
  csm sessions --status working     # Active sessions only
  csm sessions --project api        # One project`,
		Run: func(cmd *cobra.Command, args []string) {
			loadConfig()
			st := openStorage(dbPath)
			defer st.Close()

			mgr := session.NewManager(st, nil)
			sessions, total, err := mgr.List(context.Background(), status, project, limit, 0)
			if err != nil {
				fatalError(err)
			}

			fmt.Print(render.New(pretty).Sessions(sessions))
			if total > len(sessions) {
				fmt.Printf("\nShowing %d of %d\n", len(sessions), total)
			}
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (working, idle, complete, error)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Filter by project name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Max sessions to show")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CSM_DB_PATH)")

	return cmd
}

func activityCmd() *cobra.Command {
	var sessionID, dbPath string
	var limit int
	var errorsOnly bool

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity feed",
		Long: `Show recent activity entries, newest first.

Examples:
  csm activity                      # Across all sessions
  csm activity --session <id>       # One session
  csm activity --errors             # Error entries only`,
		Run: func(cmd *cobra.Command, args []string) {
			loadConfig()
			st := openStorage(dbPath)
			defer st.Close()

			mgr := session.NewManager(st, nil)
			entries, _, err := mgr.ListActivity(context.Background(), sessionID, limit)
			if err != nil {
				fatalError(err)
			}

			a := render.NewActivity()
			if errorsOnly {
				a.Errors(entries)
			} else {
				a.Feed(entries)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Limit to one session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Max entries to show")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Show error entries only")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CSM_DB_PATH)")

	return cmd
}

func summaryCmd() *cobra.Command {
	var hours int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show cross-session metrics",
		Long: `Roll sessions up into totals by model and project.

Examples:
  csm summary               # All sessions
  csm summary --hours 24    # Sessions updated in the last day`,
		Run: func(cmd *cobra.Command, args []string) {
			loadConfig()
			st := openStorage(dbPath)
			defer st.Close()

			mgr := session.NewManager(st, nil)
			sum, err := mgr.Summary(context.Background(), hours)
			if err != nil {
				fatalError(err)
			}

			fmt.Print(render.New(pretty).Summary(*sum))
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "Trailing window in hours (0 = all)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CSM_DB_PATH)")

	return cmd
}
