package branch

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jbohnslav/kingdom/internal/kderrors"
)

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// asciiFold decomposes to NFKD and strips combining marks, turning most
// diacritic latin letters into their plain ASCII base ("café" -> "cafe").
// Scripts with no ASCII base (CJK, Cyrillic, ...) pass through unchanged
// and fall to nonAlnumRun below, which replaces them with "-".
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize computes the filesystem-safe slug for a branch name per
// spec §6.2: NFKD decompose, drop combining marks, ASCII-fold, replace
// runs of non [A-Za-z0-9] with "-", lowercase, strip leading/trailing
// "-". An empty result is an error — callers must never write to the
// branches root under an empty name.
func Normalize(name string) (string, error) {
	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		return "", kderrors.Wrap(kderrors.InvalidConfig, err, "normalize branch name %q", name)
	}
	lower := strings.ToLower(folded)
	slug := nonAlnumRun.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "", kderrors.New(kderrors.InvalidConfig, "branch name %q normalizes to an empty slug", name)
	}
	return slug, nil
}
