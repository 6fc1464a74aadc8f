package council

import (
	"regexp"
	"strings"

	"github.com/jbohnslav/kingdom/internal/kderrors"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// extractMentions scans prompt for @<name> tokens outside fenced code
// blocks. @all always wins outright. An unrecognized mention is a
// loud failure — the caller must not spawn any subprocess (spec §4.6
// step 1, §8 boundary behavior).
func extractMentions(prompt string, validNames map[string]bool) ([]string, error) {
	scanned := stripFencedCode(prompt)
	matches := mentionPattern.FindAllStringSubmatch(scanned, -1)

	var names []string
	seen := map[string]bool{}
	for _, m := range matches {
		name := m[1]
		if name == "all" {
			return []string{"all"}, nil
		}
		if !validNames[name] {
			return nil, kderrors.New(kderrors.NotFound, "unknown council member mentioned: @%s", name)
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

// stripFencedCode removes the contents of ``` fenced blocks so mentions
// inside example code are not mistaken for addressing directives.
func stripFencedCode(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
