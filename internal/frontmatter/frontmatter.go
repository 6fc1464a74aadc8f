// Package frontmatter parses and emits the markdown-with-frontmatter
// micro-format used for tickets and thread messages: a document
// optionally opens with a line "---", followed by "key: value" lines,
// closed by another "---", followed by a markdown body.
//
// This is deliberately not a full YAML parser. The numeric-literal
// policy is bespoke: a bare integer-looking token is only coerced to an
// integer if it does not begin with "0" followed by more digits, so
// that ticket-id-shaped strings such as "0817" survive a round trip as
// strings rather than being read back as octal-looking numbers with
// their leading zero dropped.
package frontmatter

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const delimiter = "---"

// Value is a scalar string, bool, int64, or []string (bracketed list).
type Value = any

// Document is a parsed frontmatter header plus the body that follows it.
type Document struct {
	Fields map[string]Value
	Body   string
}

var octalLike = regexp.MustCompile(`^0[0-9]+$`)
var bareInt = regexp.MustCompile(`^-?[0-9]+$`)

// Parse splits raw into a frontmatter Document. If raw does not open
// with a "---" line, the whole input is treated as body with no fields.
func Parse(raw string) (*Document, error) {
	doc := &Document{Fields: map[string]Value{}}

	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != delimiter {
		doc.Body = raw
		return doc, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == delimiter {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, fmt.Errorf("frontmatter: unterminated header (no closing %q line)", delimiter)
	}

	for _, line := range lines[1:closeIdx] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("frontmatter: malformed header line %q", line)
		}
		doc.Fields[key] = decodeScalar(val)
	}

	doc.Body = strings.Join(lines[closeIdx+1:], "\n")
	doc.Body = strings.TrimPrefix(doc.Body, "\n")
	return doc, nil
}

func splitKV(line string) (key, val string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	val = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, val, true
}

func decodeScalar(val string) Value {
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		return unquote(val)
	}
	if len(val) >= 2 && val[0] == '[' && val[len(val)-1] == ']' {
		return decodeList(val[1 : len(val)-1])
	}
	if bareInt.MatchString(val) && !octalLike.MatchString(val) {
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil {
			return n
		}
	}
	return val
}

func decodeList(inner string) []string {
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return []string{}
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
			p = unquote(p)
		}
		out = append(out, p)
	}
	return out
}

func unquote(s string) string {
	inner := s[1 : len(s)-1]
	inner = strings.ReplaceAll(inner, `\"`, `"`)
	inner = strings.ReplaceAll(inner, `\\`, `\`)
	return inner
}

// Emit serializes fields and body back into the frontmatter format.
// Keys are written in the order given by keyOrder; any field not in
// keyOrder is appended afterward in sorted order, so callers that care
// about field ordering (tickets, thread messages) can control it while
// ad hoc extra fields still round-trip.
func Emit(fields map[string]Value, keyOrder []string, body string) string {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteByte('\n')

	written := make(map[string]bool, len(fields))
	for _, k := range keyOrder {
		v, ok := fields[k]
		if !ok {
			continue
		}
		writeField(&b, k, v)
		written[k] = true
	}

	rest := make([]string, 0, len(fields))
	for k := range fields {
		if !written[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		writeField(&b, k, fields[k])
	}

	b.WriteString(delimiter)
	b.WriteByte('\n')
	if body != "" {
		b.WriteByte('\n')
		b.WriteString(body)
	}
	return b.String()
}

func writeField(b *strings.Builder, key string, v Value) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(encodeScalar(v))
	b.WriteByte('\n')
}

func encodeScalar(v Value) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case []string:
		quoted := make([]string, len(t))
		for i, s := range t {
			quoted[i] = maybeQuote(s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	case string:
		return maybeQuote(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// maybeQuote quotes a string value whenever its bare printed form would
// round-trip incorrectly: it looks like a bool, a bare integer (octal-
// looking ticket-id strings such as "0817" included — invariant (ii)
// requires these always be quoted on emit, even though this package's
// own parser already declines to coerce them), a bracketed list, or it
// would otherwise be misread (leading/trailing space, contains a colon,
// or is empty).
func maybeQuote(s string) string {
	needsQuote := s == "" ||
		s == "true" || s == "false" ||
		bareInt.MatchString(s) ||
		octalLike.MatchString(s) ||
		(len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']') ||
		strings.Contains(s, ":") ||
		s != strings.TrimSpace(s) ||
		strings.ContainsAny(s, "\n\"")
	if !needsQuote {
		return s
	}
	escaped := strings.ReplaceAll(s, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
