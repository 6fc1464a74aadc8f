package council

import (
	"context"
	"strings"

	"github.com/jbohnslav/kingdom/internal/kderrors"
	"github.com/jbohnslav/kingdom/internal/thread"
)

// Retry reissues the original prompt to every expected responder of the
// most recent king message whose response is either absent or an error
// sentinel (spec §4.6 retry: expected responders come from the last
// king message's "to" field, not the thread's static member list).
func (c *Council) Retry(ctx context.Context, threadID string) (*AskResult, error) {
	msgs, err := c.Threads.List(threadID)
	if err != nil {
		return nil, err
	}

	lastKing, ok := lastKingMessage(msgs)
	if !ok {
		return nil, kderrors.New(kderrors.NotFound, "thread %s has no king message", threadID)
	}

	expected := expandTargets(lastKing.To, c.Cfg.MemberNames())
	latest := latestResponsePerMember(msgs, lastKing.Sequence)

	var needRetry []string
	for _, m := range expected {
		resp, responded := latest[m]
		if !responded || resp.Error {
			needRetry = append(needRetry, m)
		}
	}
	if len(needRetry) == 0 {
		return &AskResult{ThreadID: threadID, Responses: map[string]thread.Message{}}, nil
	}

	responses := c.fanOut(ctx, threadID, needRetry, lastKing.Body)
	return &AskResult{ThreadID: threadID, Responses: responses}, nil
}

func lastKingMessage(msgs []thread.Message) (thread.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].From == "king" {
			return msgs[i], true
		}
	}
	return thread.Message{}, false
}

// expandTargets turns a persisted "to" field ("all", "", or a
// comma-joined list) back into a member-name slice.
func expandTargets(to string, all []string) []string {
	if to == "all" || to == "" {
		return all
	}
	return strings.Split(to, ",")
}

// latestResponsePerMember returns each member's most recent response
// message strictly after afterSeq. msgs must already be sequence-ordered
// (thread.Store.List's contract), so the last write for a member wins.
func latestResponsePerMember(msgs []thread.Message, afterSeq int) map[string]thread.Message {
	out := map[string]thread.Message{}
	for _, m := range msgs {
		if m.Sequence <= afterSeq || m.From == "king" {
			continue
		}
		out[m.From] = m
	}
	return out
}
