// Package procenv computes the sanitized environment passed to every
// agent backend subprocess. Nested-session markers are stripped so an
// agent CLI invoked by kingdom never refuses to run believing it is
// already inside another instance of itself.
package procenv

import "os"

// nestedSessionMarkers enumerates environment keys that backend CLIs
// set on themselves and check for on startup to refuse recursive
// invocation. Each adapter may contribute additional markers via
// Register.
var nestedSessionMarkers = map[string]bool{
	"CLAUDECODE":            true,
	"CLAUDE_CODE_SSE_PORT":  true,
	"CODEX_SANDBOX":         true,
	"CURSOR_AGENT_SESSION":  true,
}

// Register adds a backend-specific nested-session marker to the
// sanitization set. Adapters call this from an init() so the set is
// complete before the first subprocess spawn.
func Register(key string) {
	nestedSessionMarkers[key] = true
}

// Sanitized returns a copy of the current process environment with all
// registered nested-session markers removed, as os.Environ()-style
// "KEY=VALUE" strings suitable for exec.Cmd.Env.
func Sanitized() []string {
	parent := os.Environ()
	out := make([]string, 0, len(parent))
	for _, kv := range parent {
		key, _, ok := splitEnv(kv)
		if ok && nestedSessionMarkers[key] {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func splitEnv(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}
