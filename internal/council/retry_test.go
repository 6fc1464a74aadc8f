package council

import (
	"context"
	"testing"
	"time"
)

// TestAskRetriesTransientTimeout is spec §8 end-to-end scenario 3: the
// first attempt exceeds its timeout, the adapter-level retry policy
// (agent.Query, exercised here through Council.Ask) fires exactly one
// retry, and the eventual success persists a session id for future
// turns.
func TestAskRetriesTransientTimeout(t *testing.T) {
	c, fakes := testCouncil(t)
	c.Cfg.Council.Timeout = 150 * time.Millisecond

	fakes["codex"].behaviors = []fakeBehavior{
		{sleep: "1", stdout: "OK::too slow"}, // exceeds the 150ms timeout
		{stdout: "OK:sess-1:recovered"},
	}

	res, err := c.Ask(context.Background(), "x", "codex", "", false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if n := fakes["codex"].calls.Load(); n != 2 {
		t.Fatalf("codex subprocess invocations = %d, want exactly 2", n)
	}

	msg, ok := res.Responses["codex"]
	if !ok {
		t.Fatalf("expected a codex response, got %v", res.Responses)
	}
	if msg.Error {
		t.Errorf("final persisted message is an error sentinel, want the recovered success: %q", msg.Body)
	}
	if msg.Body != "recovered" {
		t.Errorf("body = %q, want %q", msg.Body, "recovered")
	}

	sess := c.loadSession("codex")
	if sess == nil || sess.SessionID != "sess-1" {
		t.Errorf("loadSession(codex) = %+v, want session id sess-1 persisted from the successful retry", sess)
	}
}

// TestAskBothAttemptsTimeOutPersistsErrorSentinel covers the "both
// fail" half of scenario 3: the persisted message body must begin with
// the canonical `*Error: Timeout` sentinel (spec §6.5).
func TestAskBothAttemptsTimeOutPersistsErrorSentinel(t *testing.T) {
	c, fakes := testCouncil(t)
	c.Cfg.Council.Timeout = 100 * time.Millisecond

	fakes["codex"].behaviors = []fakeBehavior{
		{sleep: "1"},
		{sleep: "1"},
	}

	res, err := c.Ask(context.Background(), "x", "codex", "", false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if n := fakes["codex"].calls.Load(); n != 2 {
		t.Fatalf("codex subprocess invocations = %d, want exactly 2 (MaxRetries=1)", n)
	}
	msg := res.Responses["codex"]
	if !msg.Error {
		t.Fatalf("expected the persisted message to be flagged as an error, got %+v", msg)
	}
	if got := msg.Body; len(got) < 7 || got[:7] != "*Error:" {
		t.Errorf("body = %q, want it to start with the canonical *Error: sentinel", got)
	}
	if !contains(msg.Body, "Timeout") {
		t.Errorf("body = %q, want it to cite the Timeout kind", msg.Body)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// TestRetryReissuesOnlyNonResponders exercises Council.Retry (spec
// §4.6 retry): expected responders come from the most recent king
// message's "to" set, and only members whose latest response is absent
// or an error sentinel get reissued.
func TestRetryReissuesOnlyNonResponders(t *testing.T) {
	c, fakes := testCouncil(t)

	res, err := c.Ask(context.Background(), "status check", "", "", false)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	for _, f := range fakes {
		f.calls.Store(0)
	}

	// Hand-craft an error response for codex, as if its query had
	// failed after Ask already recorded it, so Retry has something to
	// reissue against an otherwise-complete round.
	if _, err := c.Threads.Append(res.ThreadID, "codex", "king", "*Error: Timeout: synthetic*", true, false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := c.Retry(context.Background(), res.ThreadID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if n := fakes["codex"].calls.Load(); n != 1 {
		t.Errorf("codex calls = %d, want 1 (it was the non-responder)", n)
	}
	if n := fakes["claude"].calls.Load(); n != 0 {
		t.Errorf("claude calls = %d, want 0 (it already responded successfully)", n)
	}
	if n := fakes["cursor"].calls.Load(); n != 0 {
		t.Errorf("cursor calls = %d, want 0 (it already responded successfully)", n)
	}
}
