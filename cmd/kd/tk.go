package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/ticket"
)

var tkBranchFlag string

var tkCmd = &cobra.Command{
	Use:     "tk",
	GroupID: "tickets",
	Short:   "Create, inspect, and mutate tickets",
}

func init() {
	tkCmd.PersistentFlags().StringVar(&tkBranchFlag, "branch", "", "branch to operate against (default: current branch)")
	tkCmd.AddCommand(tkListCmd, tkShowCmd, tkCreateCmd, tkStartCmd, tkCloseCmd, tkReopenCmd,
		tkMoveCmd, tkEditCmd, tkReadyCmd, tkPullCmd, tkDepCmd, tkUndepCmd, tkAssignCmd, tkUnassignCmd)
}

func tkStoreAndBranch() (*ticket.Store, string, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, "", err
	}
	lc := branch.New(root)
	normalized, err := currentOrFlag(tkBranchFlag, lc.Current())
	if err != nil {
		return nil, "", err
	}
	return ticket.New(root), normalized, nil
}

func renderTicket(t *ticket.Ticket) string {
	return fmt.Sprintf("%s [%s] (%s, p%d) %s", t.ID, t.Status, t.Type, t.Priority, t.Title)
}

var tkListBacklog bool

var tkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets in a branch (or the backlog with --backlog)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, normalized, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		var tickets []*ticket.Ticket
		if tkListBacklog {
			tickets, err = ts.ListBacklog()
		} else {
			tickets, err = ts.ListBranch(normalized)
		}
		if err != nil {
			return err
		}
		lines := make([]string, len(tickets))
		for i, t := range tickets {
			lines[i] = renderTicket(t)
		}
		printResult(strings.Join(lines, "\n"), tickets)
		return nil
	},
}

func init() {
	tkListCmd.Flags().BoolVar(&tkListBacklog, "backlog", false, "list the backlog instead of a branch")
}

var tkShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a ticket's full contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		printResult(t.Encode(), t)
		return nil
	},
}

var (
	tkCreateType     string
	tkCreatePriority int
	tkCreateDesc     string
)

var tkCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new backlog ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Create(args[0], tkCreateDesc, ticket.Type(tkCreateType), tkCreatePriority)
		if err != nil {
			return err
		}
		printResult(fmt.Sprintf("created ticket %s", t.ID), t)
		return nil
	},
}

func init() {
	tkCreateCmd.Flags().StringVar(&tkCreateType, "type", string(ticket.TypeTask), "task, bug, feature, or chore")
	tkCreateCmd.Flags().IntVar(&tkCreatePriority, "priority", 0, "priority (1 is highest)")
	tkCreateCmd.Flags().StringVar(&tkCreateDesc, "description", "", "ticket description body")
}

var tkStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Mark a ticket in_progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.Start(t); err != nil {
			return err
		}
		printResult(fmt.Sprintf("ticket %s in_progress", t.ID), t)
		return nil
	},
}

var tkCloseCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.Close(t); err != nil {
			return err
		}
		printResult(fmt.Sprintf("ticket %s closed", t.ID), t)
		return nil
	},
}

var tkReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a closed ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], true)
		if err != nil {
			return err
		}
		if err := ts.Reopen(t); err != nil {
			return err
		}
		printResult(fmt.Sprintf("ticket %s reopened", t.ID), t)
		return nil
	},
}

var tkMoveCmd = &cobra.Command{
	Use:   "move <id> <target-branch>",
	Short: "Move a ticket into another branch's tickets/ directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.Move(t, args[1]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("moved ticket %s to %s", t.ID, args[1]), t)
		return nil
	},
}

var (
	tkEditTitle       string
	tkEditDesc        string
	tkEditPriority    string
	tkEditInteractive bool
)

var tkEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a ticket's title, description, or priority",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if tkEditInteractive {
			edited, err := editInEditor(t.Description)
			if err != nil {
				return err
			}
			t.Description = edited
		}
		if tkEditTitle != "" {
			t.Title = tkEditTitle
		}
		if cmd.Flags().Changed("description") {
			t.Description = tkEditDesc
		}
		if tkEditPriority != "" {
			p, err := strconv.Atoi(tkEditPriority)
			if err != nil {
				return fmt.Errorf("--priority must be an integer: %w", err)
			}
			t.Priority = p
		}
		if err := ts.Save(t); err != nil {
			return err
		}
		printResult(fmt.Sprintf("ticket %s updated", t.ID), t)
		return nil
	},
}

func init() {
	tkEditCmd.Flags().StringVar(&tkEditTitle, "title", "", "new title")
	tkEditCmd.Flags().StringVar(&tkEditDesc, "description", "", "new description")
	tkEditCmd.Flags().StringVar(&tkEditPriority, "priority", "", "new priority")
	tkEditCmd.Flags().BoolVarP(&tkEditInteractive, "interactive", "i", false, "edit the description in $EDITOR")
}

// editInEditor round-trips body through a temp file and $EDITOR,
// splitting the editor command on whitespace so values like
// "code --wait" work (spec §6.7). Quotes in $EDITOR are not
// interpreted. Grounded on the teacher's cmd/bd/edit.go
// tmpfile+exec.Command dance.
func editInEditor(body string) (string, error) {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		return "", kderrors.New(kderrors.InvalidConfig, "$EDITOR is not set")
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return "", kderrors.New(kderrors.InvalidConfig, "$EDITOR is empty")
	}

	tmp, err := os.CreateTemp("", "kd-edit-*.md")
	if err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.WriteString(body); err != nil {
		_ = tmp.Close()
		return "", kderrors.Wrap(kderrors.IO, err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "close temp file")
	}

	editorArgs := append(append([]string{}, parts[1:]...), tmpPath)
	editorCmd := exec.Command(parts[0], editorArgs...) // #nosec G204 -- editor command comes from the trusted $EDITOR env var
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "run editor")
	}

	edited, err := os.ReadFile(tmpPath) // #nosec G304 -- tmpPath was created above in this function
	if err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "read edited file")
	}
	return string(edited), nil
}

var tkReadyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List tickets whose dependencies are all closed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, normalized, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		ready, err := ts.Ready(normalized)
		if err != nil {
			return err
		}
		lines := make([]string, len(ready))
		for i, t := range ready {
			lines[i] = renderTicket(t)
		}
		printResult(strings.Join(lines, "\n"), ready)
		return nil
	},
}

var tkPullCmd = &cobra.Command{
	Use:   "pull <id>",
	Short: "Pull a backlog ticket into the current branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, normalized, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.PullFromBacklog(t, normalized); err != nil {
			return err
		}
		printResult(fmt.Sprintf("pulled ticket %s into %s", t.ID, normalized), t)
		return nil
	},
}

var tkDepCmd = &cobra.Command{
	Use:   "dep <id> <dep-id>",
	Short: "Add a dependency, refusing if it would create a cycle",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, normalized, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.AddDepChecked(normalized, t, args[1]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("%s now depends on %s", t.ID, args[1]), t)
		return nil
	},
}

var tkUndepCmd = &cobra.Command{
	Use:   "undep <id> <dep-id>",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.RemoveDep(t, args[1]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("%s no longer depends on %s", t.ID, args[1]), t)
		return nil
	},
}

var tkAssignCmd = &cobra.Command{
	Use:   "assign <id> <assignee>",
	Short: "Set a ticket's assignee",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.Assign(t, args[1]); err != nil {
			return err
		}
		printResult(fmt.Sprintf("%s assigned to %s", t.ID, args[1]), t)
		return nil
	},
}

var tkUnassignCmd = &cobra.Command{
	Use:   "unassign <id>",
	Short: "Clear a ticket's assignee",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, _, err := tkStoreAndBranch()
		if err != nil {
			return err
		}
		t, err := ts.Find(args[0], false)
		if err != nil {
			return err
		}
		if err := ts.Unassign(t); err != nil {
			return err
		}
		printResult(fmt.Sprintf("%s unassigned", t.ID), t)
		return nil
	},
}
