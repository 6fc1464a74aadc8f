package branch

import (
	"os"
	"testing"
)

func TestInitIsIdempotent(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := l.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if _, err := os.Stat(l.kdDir()); err != nil {
		t.Fatalf(".kd dir missing: %v", err)
	}
}

func TestStartCreatesLayoutAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	st, err := l.Start("Add Login Flow")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st.NormalizedName != "add-login-flow" {
		t.Errorf("NormalizedName = %q, want add-login-flow", st.NormalizedName)
	}
	if st.Status != StatusActive {
		t.Errorf("Status = %q, want active", st.Status)
	}

	for _, sub := range []string{"tickets", "threads", "worktrees", "sessions"} {
		if _, err := os.Stat(l.Dir(st.NormalizedName) + "/" + sub); err != nil {
			t.Errorf("expected subdir %q to exist: %v", sub, err)
		}
	}

	// Re-running Start on the same name is a no-op returning the existing state.
	if err := l.ApproveDesign(st.NormalizedName); err != nil {
		t.Fatalf("ApproveDesign: %v", err)
	}
	again, err := l.Start("Add Login Flow")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !again.DesignApproved {
		t.Error("second Start should return the existing (already-approved) state, not overwrite it")
	}
}

func TestStartRejectsEmptySlug(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := l.Start("   "); err == nil {
		t.Fatal("expected Start to refuse a name that normalizes to an empty slug")
	}
}

func TestCurrentPointer(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := l.Current(); got != "" {
		t.Errorf("Current() = %q before any SetCurrent, want empty", got)
	}
	if err := l.SetCurrent("feature-a"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	if got := l.Current(); got != "feature-a" {
		t.Errorf("Current() = %q, want feature-a", got)
	}
}

func TestDoneRefusesOpenTicketsWithoutForce(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st, err := l.Start("Feature")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := l.Tickets.Create("open thing", "", "task", 0); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ti, err := l.Tickets.ListBacklog()
	if err != nil {
		t.Fatalf("ListBacklog: %v", err)
	}
	if len(ti) != 1 {
		t.Fatalf("expected 1 backlog ticket, got %d", len(ti))
	}
	if err := l.Tickets.PullFromBacklog(ti[0], st.NormalizedName); err != nil {
		t.Fatalf("PullFromBacklog: %v", err)
	}

	if err := l.Done(st.NormalizedName, false); err == nil {
		t.Fatal("expected Done to refuse a branch with an open ticket")
	}
	if err := l.Done(st.NormalizedName, true); err != nil {
		t.Fatalf("Done with force: %v", err)
	}

	reloaded, err := l.Load(st.NormalizedName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Status != StatusDone {
		t.Errorf("Status = %q, want done", reloaded.Status)
	}
	if reloaded.DoneAt == nil {
		t.Error("expected DoneAt to be set")
	}
}

func TestDoneIsIdempotentNoOp(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st, err := l.Start("Feature")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Done(st.NormalizedName, false); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if err := l.Done(st.NormalizedName, false); err != nil {
		t.Fatalf("second Done should be a no-op success, got: %v", err)
	}
}

func TestListExcludesDoneByDefault(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	if err := l.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	active, err := l.Start("Active One")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	done, err := l.Start("Done One")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Done(done.NormalizedName, false); err != nil {
		t.Fatalf("Done: %v", err)
	}

	list, err := l.List(false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].NormalizedName != active.NormalizedName {
		t.Errorf("List(false) = %v, want only %q", list, active.NormalizedName)
	}

	all, err := l.List(true)
	if err != nil {
		t.Fatalf("List(true): %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(true) = %v, want 2 entries", all)
	}
}
