package council

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/config"
)

// fakeAdapter is a deterministic stand-in for a real backend CLI: it
// shells out to /bin/sh instead of claude/codex/cursor, so Query still
// exercises the real spawn/tee/wait path end to end without needing
// those binaries on the test machine. Each call is recorded so tests
// can assert a member was (or was not) actually queried.
type fakeAdapter struct {
	calls atomic.Int64
	// behaviors is consumed in order across successive attempts of a
	// single Query call; the last entry repeats once exhausted.
	behaviors []fakeBehavior
}

type fakeBehavior struct {
	sleep    string // e.g. "0.3" seconds, passed to `sleep`
	exitCode int
	stdout   string // raw stdout text; "" means no output at all
}

func newFakeAdapter(behaviors ...fakeBehavior) *fakeAdapter {
	if len(behaviors) == 0 {
		behaviors = []fakeBehavior{{stdout: "OK::hello"}}
	}
	return &fakeAdapter{behaviors: behaviors}
}

func (f *fakeAdapter) behaviorFor(n int64) fakeBehavior {
	if int(n) < len(f.behaviors) {
		return f.behaviors[n]
	}
	return f.behaviors[len(f.behaviors)-1]
}

func (f *fakeAdapter) BuildCommand(prompt, sessionID string, streaming bool, extraPrompt string) []string {
	n := f.calls.Add(1) - 1
	b := f.behaviorFor(n)
	script := ""
	if b.sleep != "" {
		script += "sleep " + b.sleep + "; "
	}
	if b.stdout != "" {
		script += fmt.Sprintf("printf %s", shellQuote(b.stdout+"\n"))
	} else {
		script += ":"
	}
	script += fmt.Sprintf("; exit %d", b.exitCode)
	return []string{"/bin/sh", "-c", script}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ParseResponse decodes this fake's own wire format: "OK:<session>:<text>".
// Anything else is treated as unparseable, matching a real adapter's
// "resilient but eventually give up" contract.
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

// testCouncil wires a Council over a fresh repo with three members
// (claude, codex, cursor), each backed by its own fakeAdapter so tests
// can assert per-member call counts.
func testCouncil(t *testing.T) (*Council, map[string]*fakeAdapter) {
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

	fakes := map[string]*fakeAdapter{
		"claude": newFakeAdapter(),
		"codex":  newFakeAdapter(),
		"cursor": newFakeAdapter(),
	}
	reg := agent.Registry{
		"claude": fakes["claude"],
		"codex":  fakes["codex"],
		"cursor": fakes["cursor"],
	}

	cfg := &config.Config{}
	cfg.Council.Members = []config.Member{
		{Name: "claude", Backend: "claude"},
		{Name: "codex", Backend: "codex"},
		{Name: "cursor", Backend: "cursor"},
	}
	cfg.Council.AutoCommit = false

	c := New(root, st.NormalizedName, cfg, reg, nil)
	return c, fakes
}

// TestAskMentionTargetsSingleMember is spec §8 end-to-end scenario 2:
// "hi @codex" must address only codex, leaving claude and cursor
// unqueried, and the stream file must be gone once the query completes
// (invariant 4).
func TestAskMentionTargetsSingleMember(t *testing.T) {
	c, fakes := testCouncil(t)

	res, err := c.Ask(context.Background(), "hi @codex", "", "", false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if fakes["codex"].calls.Load() != 1 {
		t.Errorf("codex calls = %d, want 1", fakes["codex"].calls.Load())
	}
	if n := fakes["claude"].calls.Load(); n != 0 {
		t.Errorf("claude calls = %d, want 0 (not addressed)", n)
	}
	if n := fakes["cursor"].calls.Load(); n != 0 {
		t.Errorf("cursor calls = %d, want 0 (not addressed)", n)
	}

	if len(res.Responses) != 1 {
		t.Fatalf("Responses = %v, want exactly 1 entry", res.Responses)
	}
	msg, ok := res.Responses["codex"]
	if !ok {
		t.Fatalf("expected a codex response, got %v", res.Responses)
	}
	if msg.Body != "hello" {
		t.Errorf("codex response body = %q, want %q", msg.Body, "hello")
	}

	msgs, err := c.Threads.List(res.ThreadID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("thread has %d messages, want 2 (king + codex)", len(msgs))
	}
	if msgs[0].From != "king" || msgs[0].To != "codex" {
		t.Errorf("king message = %+v, want to=codex", msgs[0])
	}
	if msgs[1].From != "codex" {
		t.Errorf("second message from = %q, want codex", msgs[1].From)
	}

	streamPath := c.Threads.StreamPath(res.ThreadID, "codex")
	if _, err := os.Stat(streamPath); err == nil {
		t.Errorf("stream file %s still exists after a completed query (invariant 4)", streamPath)
	}
}

// TestAskUnknownMentionFailsBeforeSpawning is spec §8 boundary
// behavior: "@bogus" must fail loudly with no member queried at all.
func TestAskUnknownMentionFailsBeforeSpawning(t *testing.T) {
	c, fakes := testCouncil(t)

	_, err := c.Ask(context.Background(), "please help @bogus", "", "", false)
	if err == nil {
		t.Fatal("expected Ask to fail on an unknown @mention")
	}
	for name, f := range fakes {
		if n := f.calls.Load(); n != 0 {
			t.Errorf("%s calls = %d, want 0 (no subprocess should spawn on an unknown mention)", name, n)
		}
	}
}

// TestAskUnknownToFailsBeforeSpawning covers the same boundary for an
// explicit --to flag instead of an @mention.
func TestAskUnknownToFailsBeforeSpawning(t *testing.T) {
	c, fakes := testCouncil(t)

	_, err := c.Ask(context.Background(), "please help", "nonexistent", "", false)
	if err == nil {
		t.Fatal("expected Ask to fail on an unknown --to member")
	}
	for name, f := range fakes {
		if n := f.calls.Load(); n != 0 {
			t.Errorf("%s calls = %d, want 0", name, n)
		}
	}
}

// TestAskAllFansOutToEveryMember covers the default (no --to, no
// mention) broadcast case.
func TestAskAllFansOutToEveryMember(t *testing.T) {
	c, fakes := testCouncil(t)

	res, err := c.Ask(context.Background(), "status check", "", "", false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(res.Responses) != 3 {
		t.Fatalf("Responses = %v, want 3 entries", res.Responses)
	}
	for name, f := range fakes {
		if n := f.calls.Load(); n != 1 {
			t.Errorf("%s calls = %d, want 1", name, n)
		}
	}
}
