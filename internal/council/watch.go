package council

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/jbohnslav/kingdom/internal/agent"
	"github.com/jbohnslav/kingdom/internal/thread"
)

const watchPollInterval = 250 * time.Millisecond

// WatchResult is a live snapshot during watch: finalized messages for
// members that have responded, and accumulated preview text for
// members still streaming.
type WatchResult struct {
	Done      bool
	Responses map[string]thread.Message
	Previews  map[string]string
}

// Watch polls the thread until every expected member has posted a final
// response to the most recent king message, or timeout expires (spec
// §4.6 watch, §5: filesystem polling only, no event-based watches).
func (c *Council) Watch(ctx context.Context, threadID string, expectedMembers []string, timeout time.Duration) (*WatchResult, error) {
	deadline := time.Now().Add(timeout)
	offsets := map[string]int64{}
	previews := map[string]string{}

	for {
		msgs, err := c.Threads.List(threadID)
		if err != nil {
			return nil, err
		}
		lastKing, haveKing := lastKingMessage(msgs)
		expected := expectedMembers
		if haveKing && len(expected) == 0 {
			expected = expandTargets(lastKing.To, c.Cfg.MemberNames())
		}
		afterSeq := 0
		if haveKing {
			afterSeq = lastKing.Sequence
		}
		responses := latestResponsePerMember(msgs, afterSeq)

		allDone := true
		for _, m := range expected {
			if _, done := responses[m]; done {
				continue
			}
			allDone = false
			text, off, truncated := c.tailStream(threadID, m, offsets[m])
			offsets[m] = off
			if truncated {
				previews[m] = text
			} else {
				previews[m] += text
			}
		}

		snapshot := previewSnapshot(previews, expected, responses)
		if allDone {
			return &WatchResult{Done: true, Responses: responses, Previews: snapshot}, nil
		}
		if time.Now().After(deadline) {
			return &WatchResult{Done: false, Responses: responses, Previews: snapshot}, nil
		}
		select {
		case <-ctx.Done():
			return &WatchResult{Done: false, Responses: responses, Previews: snapshot}, nil
		case <-time.After(watchPollInterval):
		}
	}
}

// previewSnapshot returns the subset of the accumulated previews map
// that still applies: members awaiting a response. Once a member's
// final message lands, its preview is dropped in favor of the
// finalized Responses entry (spec §4.6: "replace the preview with the
// final rendered message when the corresponding NNNN-<m>.md file
// appears").
func previewSnapshot(previews map[string]string, expected []string, responses map[string]thread.Message) map[string]string {
	out := make(map[string]string, len(expected))
	for _, m := range expected {
		if _, done := responses[m]; done {
			continue
		}
		out[m] = previews[m]
	}
	return out
}

// tailStream reads a member's stream file from offset onward, returning
// the extracted text read since offset, the new offset, and whether the
// file had shrunk below offset — a retry truncated and recreated it, so
// the offset resets to zero and the caller's accumulated preview for
// this member must reset too rather than appending post-truncation text
// onto stale pre-truncation text (spec §4.6 watch, §8 boundary behavior).
func (c *Council) tailStream(threadID, member string, offset int64) (string, int64, bool) {
	path := c.Threads.StreamPath(threadID, member)
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, offset != 0
	}
	truncated := false
	if info.Size() < offset {
		offset = 0
		truncated = true
	}

	f, err := os.Open(path) // #nosec G304 -- path is kingdom-constructed
	if err != nil {
		return "", offset, truncated
	}
	defer f.Close()

	if _, err := f.Seek(offset, 0); err != nil {
		return "", 0, true
	}
	data := make([]byte, info.Size()-offset)
	n, _ := f.Read(data)
	newOffset := offset + int64(n)

	adapterImpl := c.adapterForMember(member)
	if adapterImpl == nil {
		return "", newOffset, truncated
	}

	var text strings.Builder
	for _, line := range strings.Split(string(data[:n]), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if frag, ok := adapterImpl.ExtractStreamText(line); ok {
			text.WriteString(frag)
		}
	}
	return text.String(), newOffset, truncated
}

func (c *Council) adapterForMember(member string) agent.Adapter {
	mcfg, ok := c.Cfg.MemberByName(member)
	if !ok {
		return nil
	}
	a, ok := c.Registry[mcfg.Backend]
	if !ok {
		return nil
	}
	return a
}
