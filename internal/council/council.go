// Package council implements the Council engine (spec §4.6): parallel
// fan-out of AgentAdapter queries against one thread, retry/resume via
// persisted per-member sessions, @mention targeting, and auto-commit on
// completion. Grounded on the teacher's orchestration-adjacent
// internal/audit call sites and madhatter5501-Factory's agent-spawn
// fan-out shape, composed here over kingdom's own ThreadStore.
package council

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/auditlog"
	"github.com/jbohnslav/kingdom/internal/branch"
	"github.com/jbohnslav/kingdom/internal/config"
	"github.com/jbohnslav/kingdom/internal/kdgit"
	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/thread"
)

const defaultMaxRetries = 1

// Council orchestrates one branch's configured members against its
// threads.
type Council struct {
	Root       string
	Normalized string
	Cfg        *config.Config
	Registry   agent.Registry
	Branch     *branch.Lifecycle
	Threads    *thread.Store
	Audit      *auditlog.Log
	MaxRetries int
}

func New(root, normalized string, cfg *config.Config, reg agent.Registry, audit *auditlog.Log) *Council {
	br := branch.New(root)
	return &Council{
		Root:       root,
		Normalized: normalized,
		Cfg:        cfg,
		Registry:   reg,
		Branch:     br,
		Threads:    thread.New(br.Dir(normalized)),
		Audit:      audit,
		MaxRetries: defaultMaxRetries,
	}
}

func (c *Council) timeout() time.Duration {
	if c.Cfg.Council.Timeout > 0 {
		return c.Cfg.Council.Timeout
	}
	return 300 * time.Second
}

func newThreadID() (string, error) {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		return "", kderrors.Wrap(kderrors.IO, err, "generate thread id")
	}
	return "council-" + hex.EncodeToString(buf), nil
}

// resolveTargets implements spec §4.6 step 1: an explicit @mention in
// the prompt overrides any "to" argument; otherwise "to" (a member name,
// "all", or empty) decides the target set.
func (c *Council) resolveTargets(to, prompt string) ([]string, error) {
	validNames := map[string]bool{}
	for _, n := range c.Cfg.MemberNames() {
		validNames[n] = true
	}

	mentions, err := extractMentions(prompt, validNames)
	if err != nil {
		return nil, err
	}
	if len(mentions) > 0 {
		if len(mentions) == 1 && mentions[0] == "all" {
			return c.Cfg.MemberNames(), nil
		}
		return mentions, nil
	}

	if to == "" || to == "all" {
		return c.Cfg.MemberNames(), nil
	}
	if !validNames[to] {
		return nil, kderrors.New(kderrors.NotFound, "unknown council member %q", to)
	}
	return []string{to}, nil
}

// AskResult is what Ask returns: the thread it operated on and each
// responding member's final message.
type AskResult struct {
	ThreadID  string
	Responses map[string]thread.Message
}

// Ask fans prompt out to the resolved target members in parallel,
// appending the king message first and then each member's response as
// it completes (spec §4.6 ask, §5 ordering).
func (c *Council) Ask(ctx context.Context, prompt, to, threadID string, newThread bool) (*AskResult, error) {
	targets, err := c.resolveTargets(to, prompt)
	if err != nil {
		return nil, err
	}

	tid := threadID
	switch {
	case tid == "":
		tid, err = newThreadID()
		if err != nil {
			return nil, err
		}
		if err := c.Threads.CreateThread(tid, c.Cfg.MemberNames(), "council"); err != nil {
			return nil, err
		}
	case newThread:
		if !c.Threads.Exists(tid) {
			if err := c.Threads.CreateThread(tid, c.Cfg.MemberNames(), "council"); err != nil {
				return nil, err
			}
		}
	default:
		if !c.Threads.Exists(tid) {
			return nil, kderrors.New(kderrors.NotFound, "thread %s", tid)
		}
	}

	toField := "all"
	if len(targets) != len(c.Cfg.MemberNames()) {
		toField = strings.Join(targets, ",")
	}
	if _, err := c.Threads.Append(tid, "king", toField, prompt, false, false); err != nil {
		return nil, err
	}

	responses := c.fanOut(ctx, tid, targets, prompt)

	if c.Cfg.Council.AutoCommit {
		c.maybeAutoCommit(tid, prompt)
	}

	return &AskResult{ThreadID: tid, Responses: responses}, nil
}

// fanOut runs one query per target member concurrently and appends
// each response to the thread as soon as it lands (incremental, not
// batched — spec §4.6 concurrency & ordering).
func (c *Council) fanOut(ctx context.Context, threadID string, targets []string, prompt string) map[string]thread.Message {
	type outcome struct {
		name string
		msg  thread.Message
	}
	results := make(chan outcome, len(targets))

	var wg sync.WaitGroup
	for _, name := range targets {
		wg.Add(1)
		go func(member string) {
			defer wg.Done()
			msg := c.queryToThread(ctx, threadID, member, prompt, "")
			results <- outcome{name: member, msg: msg}
		}(name)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]thread.Message, len(targets))
	for r := range results {
		out[r.name] = r.msg
	}
	return out
}

// queryToThread runs one member's adapter query and appends the
// resulting message (success text, error sentinel, or empty sentinel)
// to the thread. It never returns an error itself: every outcome,
// including adapter failure, is represented as a persisted message.
func (c *Council) queryToThread(ctx context.Context, threadID, member, prompt, extraPrompt string) thread.Message {
	mcfg, ok := c.Cfg.MemberByName(member)
	if !ok {
		msg, _ := c.Threads.Append(threadID, member, "king",
			thread.ErrorSentinel(string(kderrors.InvalidConfig), "no configured member "+member), true, false)
		return msg
	}

	if _, hasAdapter := c.Registry[mcfg.Backend]; !hasAdapter {
		msg, _ := c.Threads.Append(threadID, member, "king",
			thread.ErrorSentinel(string(kderrors.CommandNotFound), "no adapter registered for backend "+mcfg.Backend), true, false)
		return msg
	}

	sessionID := ""
	if sess := c.loadSession(member); sess != nil {
		sessionID = sess.SessionID
	}

	if extraPrompt == "" {
		extraPrompt = mcfg.Prompts["ask"]
	}
	streamPath := c.Threads.StreamPath(threadID, member)

	result := agent.Query(ctx, c.Registry, agent.QueryParams{
		Backend:     mcfg.Backend,
		Prompt:      prompt,
		ExtraPrompt: extraPrompt,
		Timeout:     c.timeout(),
		SessionID:   sessionID,
		StreamPath:  streamPath,
		MaxRetries:  c.MaxRetries,
	})

	// Invariant 4 (spec §8): the stream file must be absent once an
	// adapter query returns, success or failure.
	_ = os.Remove(streamPath)

	var body string
	isError := false
	switch {
	case result.Err != nil:
		body = thread.ErrorSentinel(string(result.Err.Kind), result.Err.Detail)
		isError = true
		c.logAudit(member, threadID, "", result.Err)
	case strings.TrimSpace(result.Text) == "":
		body = thread.EmptySentinel(member)
		c.logAudit(member, threadID, "empty response", nil)
	default:
		body = result.Text
		c.logAudit(member, threadID, fmt.Sprintf("%d bytes", len(result.Text)), nil)
	}

	if result.SessionID != "" {
		_ = c.saveSession(member, result.SessionID)
	}

	msg, err := c.Threads.Append(threadID, member, "king", body, isError, !isError)
	if err != nil {
		return thread.Message{From: member, To: "king", Body: body, Error: isError}
	}
	return msg
}

func (c *Council) logAudit(member, threadID, detail string, cause error) {
	if c.Audit == nil {
		return
	}
	if cause != nil {
		_ = c.Audit.QueryFailed(member, threadID, cause)
		return
	}
	_ = c.Audit.QuerySucceeded(member, threadID, detail)
}

// maybeAutoCommit stages and commits threads/<tid>/ if it has any
// diff, per spec §4.6 step 5. Commit failures are swallowed: auto-commit
// is a convenience, not a correctness requirement.
func (c *Council) maybeAutoCommit(threadID, prompt string) {
	repo := kdgit.New(c.Root)
	if !repo.IsRepo() {
		return
	}
	rel := fmt.Sprintf(".kd/branches/%s/threads/%s/", c.Normalized, threadID)
	if err := repo.Add(rel); err != nil {
		return
	}
	summary := prompt
	if len(summary) > 60 {
		summary = summary[:60]
	}
	_ = repo.Commit("council: " + summary)
}
