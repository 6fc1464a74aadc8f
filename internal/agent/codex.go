package agent

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/jbohnslav/kingdom/internal/procenv"
)

func init() {
	procenv.Register("CODEX_SANDBOX")
	procenv.Register("CODEX_SANDBOX_NETWORK_DISABLED")
}

const codexPreamble = "You are a read-only advisor. Answer the question; do not edit files."

// codexEvent mirrors the line-delimited JSON the `codex exec` CLI
// emits with --json: a discriminated "msg" object carrying a "type"
// (agent_message, agent_reasoning, task_complete, error, ...) and a
// top-level thread/session id once assigned.
type codexEvent struct {
	ID  string `json:"id"`
	Msg struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		LastMsg string `json:"last_agent_message"`
	} `json:"msg"`
}

// Codex adapts the `codex` (OpenAI Codex CLI) backend.
type Codex struct {
	binary string
}

func NewCodex() *Codex {
	bin := "codex"
	if p, err := exec.LookPath("codex"); err == nil {
		bin = p
	}
	return &Codex{binary: bin}
}

func (c *Codex) BuildCommand(prompt, sessionID string, streaming bool, extraPrompt string) []string {
	full := codexPreamble
	if extraPrompt != "" {
		full += "\n\n" + extraPrompt
	}
	full += "\n\n" + prompt

	args := []string{c.binary, "exec", "--json", "--sandbox", "read-only", "--skip-git-repo-check"}
	if sessionID != "" {
		args = append(args, "resume", sessionID)
	}
	args = append(args, full)
	return args
}

func (c *Codex) ParseResponse(stdout []byte) (Result, error) {
	var lastMessage string
	var sessionID string
	var sawAny bool

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev codexEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		sawAny = true
		if ev.ID != "" {
			sessionID = ev.ID
		}
		switch ev.Msg.Type {
		case "agent_message":
			if ev.Msg.Message != "" {
				lastMessage = ev.Msg.Message
			}
		case "task_complete":
			if ev.Msg.LastMsg != "" {
				lastMessage = ev.Msg.LastMsg
			}
		}
	}

	if !sawAny {
		return Result{}, fmt.Errorf("codex: no parseable output lines")
	}
	return Result{Text: strings.TrimSpace(lastMessage), SessionID: sessionID}, nil
}

func (c *Codex) ExtractStreamText(line string) (string, bool) {
	var ev codexEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return "", false
	}
	if ev.Msg.Type != "agent_message" || ev.Msg.Message == "" {
		return "", false
	}
	return ev.Msg.Message, true
}
