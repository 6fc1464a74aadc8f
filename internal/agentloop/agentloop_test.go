package agentloop

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/config"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/ticket"
)

// fakeAdapter is the same real-subprocess-backed stand-in used in the
// council package's tests, reimplemented here since it is unexported
// there: it shells out to /bin/sh so agent.Query's real spawn/wait path
// runs end to end, with a deterministic call count and scripted output.
type fakeAdapter struct {
	calls  atomic.Int64
	stdout string // "OK:<session>:<text>"; repeated for every call
}

func (f *fakeAdapter) BuildCommand(prompt, sessionID string, streaming bool, extraPrompt string) []string {
	f.calls.Add(1)
	script := fmt.Sprintf("printf %s", shellQuote(f.stdout+"\n"))
	return []string{"/bin/sh", "-c", script}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (f *fakeAdapter) ParseResponse(stdout []byte) (agent.Result, error) {
	line := strings.TrimSpace(string(stdout))
	if !strings.HasPrefix(line, "OK:") {
		return agent.Result{}, fmt.Errorf("fakeAdapter: unparseable output %q", line)
	}
	rest := strings.TrimPrefix(line, "OK:")
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return agent.Result{}, fmt.Errorf("fakeAdapter: malformed output %q", line)
	}
	return agent.Result{SessionID: parts[0], Text: parts[1]}, nil
}

func (f *fakeAdapter) ExtractStreamText(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	return line, true
}

func hasShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no /bin/sh available in this environment")
	}
}

// testHarness wires a Harness over a fresh repo with one open ticket
// and an empty work thread, backed by a fakeAdapter under "claude".
func testHarness(t *testing.T, stdout string) (*Harness, *ticket.Ticket, *fakeAdapter) {
	t.Helper()
	hasShell(t)

	root := t.TempDir()
	lc := branch.New(root)
	if err := lc.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	st, err := lc.Start("Feature")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	tk, err := ticket.New(root).Create("a title", "a description", ticket.TypeTask, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ticket.New(root).PullFromBacklog(tk, st.NormalizedName); err != nil {
		t.Fatalf("PullFromBacklog: %v", err)
	}

	fake := &fakeAdapter{stdout: stdout}
	reg := agent.Registry{"claude": fake}

	h := New(root, st.NormalizedName, tk.ID, "claude", &config.Config{}, reg)
	if err := h.Threads.CreateThread(h.threadID(), []string{"claude"}, "work"); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return h, tk, fake
}

// TestRunClosesTicketOnCompleteSentinel covers Run's success exit:
// once the adapter's response contains a standalone COMPLETE line, Run
// returns nil and the ticket is closed (spec §4.9 step 4).
func TestRunClosesTicketOnCompleteSentinel(t *testing.T) {
	h, tk, fake := testHarness(t, "OK::COMPLETE")

	if err := h.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("adapter calls = %d, want exactly 1", n)
	}

	reloaded, err := h.Tickets.Find(tk.ID, false)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if reloaded.Status != ticket.StatusClosed {
		t.Errorf("ticket status = %q, want closed", reloaded.Status)
	}
}

// TestRunReturnsConflictWhenIterationsExhausted covers Run's bounded
// exit (spec §4.9 step 5): a backend that never emits COMPLETE must
// cause Run to return a Conflict error once MaxIterations is spent,
// having made exactly that many adapter calls (agent.Query's own
// MaxRetries is fixed at 0 for this loop, so each iteration is one
// subprocess invocation).
func TestRunReturnsConflictWhenIterationsExhausted(t *testing.T) {
	h, _, fake := testHarness(t, "OK::still working")
	h.MaxIterations = 2

	err := h.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to fail once iterations are exhausted")
	}
	if !kderrors.Is(err, kderrors.Conflict) {
		t.Errorf("err = %v, want kderrors.Conflict", err)
	}
	if n := fake.calls.Load(); n != 2 {
		t.Errorf("adapter calls = %d, want exactly 2 (MaxIterations)", n)
	}
}
