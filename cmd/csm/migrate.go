package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ksred/claude-session-manager/internal/claude"
	"github.com/ksred/claude-session-manager/internal/reconcile"
	"github.com/ksred/claude-session-manager/internal/render"
	"github.com/ksred/claude-session-manager/internal/session"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Data migrations",
	}

	var dryRun, yes bool
	var dbPath, claudeDir string

	pathsCmd := &cobra.Command{
		Use:   "project-paths",
		Short: "Correct session project paths from transcript evidence",
		Long: `Scan every session and compare its stored project path against the
working directory recorded in its transcript. Sessions whose paths
disagree get a proposed correction backed by the earliest message
that recorded the real path.

Without --dry-run the corrections are applied after confirmation.
A failed session never aborts the batch; the command exits non-zero
if any apply failed.

Examples:
  csm migrate project-paths --dry-run   # Preview corrections
  csm migrate project-paths             # Prompt, then apply
  csm migrate project-paths --yes       # Apply without prompting`,
		Run: func(cmd *cobra.Command, args []string) {
			runPathMigration(dbPath, claudeDir, dryRun, yes)
		},
	}

	pathsCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show corrections without applying")
	pathsCmd.Flags().BoolVar(&yes, "yes", false, "Apply without confirmation")
	pathsCmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CSM_DB_PATH)")
	pathsCmd.Flags().StringVar(&claudeDir, "claude-dir", "", "Claude projects directory holding transcripts")

	cmd.AddCommand(pathsCmd)
	return cmd
}

func runPathMigration(dbPath, claudeDir string, dryRun, yes bool) {
	ctx := context.Background()
	loadConfig()

	st := openStorage(dbPath)
	defer st.Close()

	mgr := session.NewManager(st, nil)
	rec := reconcile.New(st, claude.NewSource(claudeRoot(claudeDir)), mgr)

	records, report, err := rec.DryRun(ctx)
	if err != nil {
		fatalErrorf("scan: %v", err)
	}

	r := render.New(pretty)
	fmt.Print(r.MigrationRecords(records))
	fmt.Println()

	if dryRun {
		fmt.Print(r.MigrationReport(report))
		return
	}

	if len(records) == 0 {
		return
	}

	if !yes && !confirm(fmt.Sprintf("Apply %d change(s)? [y/N]: ", len(records))) {
		fmt.Println("Aborted")
		os.Exit(1)
	}

	applied, err := rec.Apply(ctx, records)
	fmt.Print(r.MigrationReport(applied))
	if err != nil {
		fatalError(err)
	}
	if !applied.Ok() {
		os.Exit(1)
	}
}

// confirm prompts on stdin. Without a terminal it refuses, so scripted
// runs must pass --yes.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; use --yes to apply")
		return false
	}

	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
