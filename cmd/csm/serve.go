package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ksred/claude-session-manager/internal/broadcast"
	"github.com/ksred/claude-session-manager/internal/claude"
	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/runtime"
	"github.com/ksred/claude-session-manager/internal/server"
	"github.com/ksred/claude-session-manager/internal/session"
)

// sweepInterval is how often working sessions are checked for idleness.
const sweepInterval = time.Minute

func serveCmd() *cobra.Command {
	var addr, dbPath, claudeDir string
	var noIngest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session manager daemon",
		Long: `Start the HTTP API, the live event stream, and the transcript
ingest watcher.

The daemon tails Claude Code transcripts under ~/.claude/projects,
folds new messages into the session store, and broadcasts every state
change to viewers connected on /api/stream.

Examples:
  csm serve                     # Defaults from env and config file
  csm serve --addr :9000        # Custom listen address
  csm serve --no-ingest         # API only, no transcript watching`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe(addr, dbPath, claudeDir, noIngest)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from CSM_HTTP_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CSM_DB_PATH)")
	cmd.Flags().StringVar(&claudeDir, "claude-dir", "", "Claude projects directory to watch")
	cmd.Flags().BoolVar(&noIngest, "no-ingest", false, "Disable the transcript watcher")

	return cmd
}

func runServe(addr, dbPath, claudeDir string, noIngest bool) {
	log := logging.New("csm")
	cfg := loadConfig()

	if addr == "" {
		addr = config.Env().HTTPAddr
	}
	claudeDir = claudeRoot(claudeDir)

	st := openStorage(dbPath)
	runtime.OnShutdown("storage", func(context.Context) error { return st.Close() })

	hub := broadcast.New(cfg.SubscriberBuffer)
	runtime.OnShutdownSimple("broadcast-hub", hub.Close)

	mgr := session.NewManager(st, hub)

	runtime.ListenForSignals()
	ctx := runtime.ShutdownContext()

	if !noIngest {
		ingester := claude.NewIngester(mgr, st, claudeDir)
		logging.SafeGo("ingest", func() {
			if err := ingester.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("ingest_stopped", map[string]interface{}{"dir": claudeDir}, err)
			}
		})
	}

	logging.SafeGo("idle-sweeper", func() {
		mgr.RunIdleSweeper(ctx, cfg.IdleAfter(), sweepInterval)
	})

	log.Info("starting", map[string]interface{}{
		"addr":       addr,
		"db":         st.Path(),
		"claude_dir": claudeDir,
		"ingest":     !noIngest,
	})

	srv := server.New(mgr, hub, addr)
	if err := srv.Serve(ctx); err != nil {
		fatalErrorf("server: %v", err)
	}

	runtime.Global().Shutdown()
	runtime.Global().WaitForShutdown()
}
