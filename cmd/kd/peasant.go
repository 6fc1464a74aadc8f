package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/peasant"
	"github.com/jbohnslav/kingdom/internal/thread"
)

var peasantBranchFlag string

var peasantCmd = &cobra.Command{
	Use:     "peasant",
	GroupID: "work",
	Short:   "Spawn and operate worker processes against tickets",
}

func init() {
	peasantCmd.PersistentFlags().StringVar(&peasantBranchFlag, "branch", "", "branch to operate against (default: current branch)")
	peasantCmd.AddCommand(peasantStartCmd, peasantStatusCmd, peasantLogsCmd, peasantStopCmd,
		peasantCleanCmd, peasantSyncCmd, peasantMsgCmd, peasantReadCmd, peasantReviewCmd)
}

func resolveSupervisor(cmd *cobra.Command) (*peasant.Supervisor, string, *branch.Lifecycle, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, "", nil, err
	}
	lc := branch.New(root)
	normalized, err := currentOrFlag(peasantBranchFlag, lc.Current())
	if err != nil {
		return nil, "", nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, "", nil, err
	}
	return peasant.New(root, normalized, cfg, auditLog(root)), normalized, lc, nil
}

var (
	peasantStartMode   string
	peasantStartAgent  string
	peasantStartNoPull bool
)

var peasantStartCmd = &cobra.Command{
	Use:   "start <ticket>",
	Short: "Spawn a detached worker against a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		mode := peasant.Mode(peasantStartMode)
		sess, err := sup.Start(args[0], mode, peasantStartAgent, !peasantStartNoPull)
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("spawned %s (pid %d) for ticket %s", sess.Name, sess.Pid, sess.TicketID), sess)
		return nil
	},
}

func init() {
	peasantStartCmd.Flags().StringVar(&peasantStartMode, "mode", string(peasant.ModeWorktree), "worktree or hand")
	peasantStartCmd.Flags().StringVar(&peasantStartAgent, "agent", "claude", "backend driving the worker: claude, codex, or cursor")
	peasantStartCmd.Flags().BoolVar(&peasantStartNoPull, "no-pull", false, "do not auto-pull the ticket out of the backlog")
}

var peasantStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List recorded worker sessions and their liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		entries, err := sup.Status()
		if err != nil {
			return err
		}
		var human strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&human, "%s ticket=%s pid=%d alive=%v\n", e.Session.Name, e.Session.TicketID, e.Session.Pid, e.Alive)
		}
		printResult(strings.TrimRight(human.String(), "\n"), entries)
		return nil
	},
}

var peasantLogsTail int

var peasantLogsCmd = &cobra.Command{
	Use:   "logs <ticket>",
	Short: "Print a worker's captured stdout/stderr log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, normalized, lc, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		path := filepath.Join(lc.PeasantsDir(normalized), args[0]+".log")
		data, err := os.ReadFile(path) // #nosec G304 -- path is kingdom-constructed
		if err != nil {
			return kderrors.Wrap(kderrors.NotFound, err, "no log for ticket %s", args[0])
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if peasantLogsTail > 0 && len(lines) > peasantLogsTail {
			lines = lines[len(lines)-peasantLogsTail:]
		}
		text := strings.Join(lines, "\n")
		printResult(text, map[string]string{"ticket": args[0], "log": text})
		return nil
	},
}

func init() {
	peasantLogsCmd.Flags().IntVar(&peasantLogsTail, "tail", 0, "show only the last N lines (0 = whole file)")
}

var peasantStopCmd = &cobra.Command{
	Use:   "stop <ticket>",
	Short: "Signal a worker to stop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		if err := sup.Stop(args[0]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("stopped worker for %s", args[0]), map[string]string{"ticket": args[0]})
		return nil
	},
}

var peasantCleanCmd = &cobra.Command{
	Use:   "clean <ticket>",
	Short: "Remove a worker's worktree and session record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		if err := sup.Clean(args[0]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("cleaned up %s", args[0]), map[string]string{"ticket": args[0]})
		return nil
	},
}

var peasantSyncCmd = &cobra.Command{
	Use:   "sync <ticket>",
	Short: "Fast-forward a worktree-mode worker's branch from upstream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		if err := sup.Sync(args[0]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("synced %s", args[0]), map[string]string{"ticket": args[0]})
		return nil
	},
}

var peasantMsgCmd = &cobra.Command{
	Use:   "msg <ticket> <body>",
	Short: "Append a message to a worker's work thread",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		if err := sup.Msg(args[0], args[1]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("message appended to %s's work thread", args[0]), map[string]string{"ticket": args[0]})
		return nil
	},
}

var peasantReadCmd = &cobra.Command{
	Use:   "read <ticket>",
	Short: "Print a ticket's work thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, normalized, lc, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		ts := thread.New(lc.Dir(normalized))
		msgs, err := ts.List(args[0] + "-work")
		if err != nil {
			return err
		}
		var human strings.Builder
		for _, m := range msgs {
			fmt.Fprintf(&human, "%04d %s -> %s: %s\n", m.Sequence, m.From, m.To, m.Body)
		}
		printResult(strings.TrimRight(human.String(), "\n"), msgs)
		return nil
	},
}

var peasantReviewReject bool

var peasantReviewCmd = &cobra.Command{
	Use:   "review <ticket>",
	Short: "Inspect (or, with --reject, relaunch) a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sup, _, _, err := resolveSupervisor(cmd)
		if err != nil {
			return err
		}
		sess, err := sup.Review(args[0], peasantReviewReject)
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("%s pid=%d worktree=%s", sess.Name, sess.Pid, sess.WorktreePath), sess)
		return nil
	},
}

func init() {
	peasantReviewCmd.Flags().BoolVar(&peasantReviewReject, "reject", false, "relaunch the worker against king feedback instead of just inspecting it")
}
