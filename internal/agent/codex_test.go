package agent

import "testing"

func TestCodexParseResponsePrefersTaskComplete(t *testing.T) {
	c := &Codex{binary: "codex"}
	stdout := []byte(`{"id":"thread-1","msg":{"type":"agent_message","message":"intermediate"}}
{"id":"thread-1","msg":{"type":"task_complete","last_agent_message":"final answer"}}
`)
	res, err := c.ParseResponse(stdout)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if res.Text != "final answer" {
		t.Errorf("Text = %q, want %q", res.Text, "final answer")
	}
	if res.SessionID != "thread-1" {
		t.Errorf("SessionID = %q, want thread-1", res.SessionID)
	}
}

func TestCodexParseResponseFailsOnNoParseableLines(t *testing.T) {
	c := &Codex{binary: "codex"}
	if _, err := c.ParseResponse([]byte("nope\n")); err == nil {
		t.Fatal("expected an error when nothing parses")
	}
}

func TestCodexBuildCommandIncludesResumeSubcommand(t *testing.T) {
	c := &Codex{binary: "codex"}
	argv := c.BuildCommand("task", "thread-1", false, "")
	found := false
	for i, a := range argv {
		if a == "resume" && i+1 < len(argv) && argv[i+1] == "thread-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("BuildCommand argv = %v, want resume thread-1", argv)
	}
}

func TestCodexExtractStreamTextOnlyAgentMessage(t *testing.T) {
	c := &Codex{binary: "codex"}
	line := `{"id":"t","msg":{"type":"agent_message","message":"streaming chunk"}}`
	text, ok := c.ExtractStreamText(line)
	if !ok || text != "streaming chunk" {
		t.Errorf("ExtractStreamText = %q, %v", text, ok)
	}
	other := `{"id":"t","msg":{"type":"agent_reasoning","message":"thinking"}}`
	if _, ok := c.ExtractStreamText(other); ok {
		t.Error("ExtractStreamText should ignore non agent_message events")
	}
}
