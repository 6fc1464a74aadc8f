package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/council"
)

var councilBranchFlag string

var councilCmd = &cobra.Command{
	Use:     "council",
	GroupID: "council",
	Short:   "Ask, inspect, and manage council conversations",
}

func init() {
	councilCmd.PersistentFlags().StringVar(&councilBranchFlag, "branch", "", "branch to operate on (default: current branch)")
	councilCmd.AddCommand(councilAskCmd, councilShowCmd, councilListCmd, councilStatusCmd,
		councilWatchCmd, councilRetryCmd, councilResetCmd)
}

func resolveCouncil(cmd *cobra.Command) (*council.Council, string, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, "", err
	}
	lc := branch.New(root)
	normalized, err := currentOrFlag(councilBranchFlag, lc.Current())
	if err != nil {
		return nil, "", err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, "", err
	}
	c := council.New(root, normalized, cfg, agent.DefaultRegistry(), auditLog(root))
	return c, normalized, nil
}

var (
	councilAskTo        string
	councilAskThread    string
	councilAskNewThread bool
)

var councilAskCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Fan a prompt out to council members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		res, err := c.Ask(context.Background(), args[0], councilAskTo, councilAskThread, councilAskNewThread)
		if err != nil {
			return err
		}
		printAskResult(res)
		return nil
	},
}

func init() {
	councilAskCmd.Flags().StringVar(&councilAskTo, "to", "", "member name or \"all\" (default: all, unless overridden by an @mention)")
	councilAskCmd.Flags().StringVar(&councilAskThread, "thread", "", "existing thread id to continue (default: start a new thread)")
	councilAskCmd.Flags().BoolVar(&councilAskNewThread, "new-thread", false, "force a new thread even if --thread is set and missing")
}

func printAskResult(res *council.AskResult) {
	var human strings.Builder
	fmt.Fprintf(&human, "thread %s\n", res.ThreadID)
	for member, msg := range res.Responses {
		fmt.Fprintf(&human, "--- %s ---\n%s\n", member, msg.Body)
	}
	printResult(strings.TrimRight(human.String(), "\n"), res)
}

var councilShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print every message in a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		msgs, err := c.Threads.List(args[0])
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

var councilListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a branch's council threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, normalized, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		root, err := repoRoot()
		if err != nil {
			return err
		}
		lc := branch.New(root)
		entries, err := listThreadDirs(lc.ThreadsDir(normalized))
		if err != nil {
			return err
		}
		printResult(strings.Join(entries, "\n"), entries)
		return nil
	},
}

// listThreadDirs lists thread ids (one per subdirectory of dir) for
// `council list`, which has no dedicated store method since the
// council package only ever addresses threads it already knows the id
// of.
func listThreadDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

var councilStatusCmd = &cobra.Command{
	Use:   "status <thread-id>",
	Short: "Summarize a thread: members, latest responders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		meta, err := c.Threads.Meta(args[0])
		if err != nil {
			return err
		}
		msgs, err := c.Threads.List(args[0])
		if err != nil {
			return err
		}
		human := fmt.Sprintf("thread %s: kind=%s members=%v messages=%d", args[0], meta.Kind, meta.Members, len(msgs))
		printResult(human, map[string]any{"meta": meta, "message_count": len(msgs)})
		return nil
	},
}

var councilWatchTimeout time.Duration

var councilWatchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Poll a thread until every expected member responds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		res, err := c.Watch(context.Background(), args[0], nil, councilWatchTimeout)
		if err != nil {
			return err
		}
		var human strings.Builder
		fmt.Fprintf(&human, "done=%v\n", res.Done)
		for member, msg := range res.Responses {
			fmt.Fprintf(&human, "--- %s (final) ---\n%s\n", member, msg.Body)
		}
		for member, preview := range res.Previews {
			fmt.Fprintf(&human, "--- %s (streaming) ---\n%s\n", member, preview)
		}
		printResult(strings.TrimRight(human.String(), "\n"), res)
		return nil
	},
}

func init() {
	councilWatchCmd.Flags().DurationVar(&councilWatchTimeout, "timeout", 300*time.Second, "how long to poll before giving up")
}

var councilRetryCmd = &cobra.Command{
	Use:   "retry <thread-id>",
	Short: "Reissue the last king prompt to non-responders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		res, err := c.Retry(context.Background(), args[0])
		if err != nil {
			return err
		}
		printAskResult(res)
		return nil
	},
}

var councilResetCmd = &cobra.Command{
	Use:   "reset [member...]",
	Short: "Clear persisted session ids (all members if none given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := resolveCouncil(cmd)
		if err != nil {
			return err
		}
		if err := c.ResetSessions(args); err != nil {
			return err
		}
		printResult("sessions reset", map[string][]string{"members": args})
		return nil
	},
}
