package agent

import (
	"context"
	"testing"

	"github.com/jbohnslav/kingdom/internal/kderrors"
)

func TestDefaultRegistryHasAllThreeBackends(t *testing.T) {
	reg := DefaultRegistry()
	for _, name := range []string{"claude", "codex", "cursor"} {
		if _, ok := reg[name]; !ok {
			t.Errorf("DefaultRegistry missing backend %q", name)
		}
	}
}

func TestQueryUnknownBackendIsCommandNotFound(t *testing.T) {
	reg := DefaultRegistry()
	res := Query(context.Background(), reg, QueryParams{Backend: "nonexistent"})
	if res.Err == nil || res.Err.Kind != kderrors.CommandNotFound {
		t.Errorf("Query with unknown backend = %+v, want CommandNotFound", res.Err)
	}
}

// fakeAdapter lets the retry-policy test drive Query without spawning a
// real subprocess: BuildCommand points at a binary that doesn't exist,
// which attemptOnce turns into a CommandNotFound Result — exercising
// the non-retriable path deterministically.
type fakeAdapter struct{}

func (fakeAdapter) BuildCommand(prompt, sessionID string, streaming bool, extraPrompt string) []string {
	return []string{"kingdom-test-binary-does-not-exist"}
}
func (fakeAdapter) ParseResponse(stdout []byte) (Result, error) { return Result{}, nil }
func (fakeAdapter) ExtractStreamText(line string) (string, bool) { return "", false }

func TestQueryCommandNotFoundIsNotRetried(t *testing.T) {
	reg := Registry{"fake": fakeAdapter{}}
	res := Query(context.Background(), reg, QueryParams{Backend: "fake", MaxRetries: 3})
	if res.Err == nil || res.Err.Kind != kderrors.CommandNotFound {
		t.Fatalf("Query = %+v, want CommandNotFound", res.Err)
	}
}

// emptyArgvAdapter exercises the empty-argv guard in attemptOnce.
type emptyArgvAdapter struct{}

func (emptyArgvAdapter) BuildCommand(prompt, sessionID string, streaming bool, extraPrompt string) []string {
	return nil
}
func (emptyArgvAdapter) ParseResponse(stdout []byte) (Result, error) { return Result{}, nil }
func (emptyArgvAdapter) ExtractStreamText(line string) (string, bool) { return "", false }

func TestQueryEmptyArgvIsCommandNotFound(t *testing.T) {
	reg := Registry{"empty": emptyArgvAdapter{}}
	res := Query(context.Background(), reg, QueryParams{Backend: "empty"})
	if res.Err == nil || res.Err.Kind != kderrors.CommandNotFound {
		t.Fatalf("Query = %+v, want CommandNotFound", res.Err)
	}
}
